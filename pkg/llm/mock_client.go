package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// MockClient provides a controllable implementation of Client for testing.
// Responses and errors are consumed in order; errors take precedence when
// both remain.
type MockClient struct {
	mu            sync.Mutex
	responses     []CompletionResponse
	responseIndex int
	errors        []error
	errorIndex    int
	requests      []CompletionRequest
	delayChunks   bool
	gate          chan struct{}
	chunked       [][]string
	chunkedIndex  int
}

// NewMockClient creates a new mock client with predefined responses.
func NewMockClient(responses []CompletionResponse, errors []error) *MockClient {
	return &MockClient{
		responses: responses,
		errors:    errors,
	}
}

// Gate makes Stream emit content word by word, waiting on the returned
// channel before each chunk. Tests use it to interleave cancellation with
// an in-flight stream.
func (m *MockClient) Gate() chan<- struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delayChunks = true
	m.gate = make(chan struct{}, 64)
	return m.gate
}

// Chunks makes successive Stream calls emit exactly the given fragment
// sequences, independent of the response queue. Used to test chunk-boundary
// behavior.
func (m *MockClient) Chunks(sequences ...[]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunked = append(m.chunked, sequences...)
}

// Requests returns a copy of every request the mock has seen.
func (m *MockClient) Requests() []CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]CompletionRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// Complete returns the next predefined response or error.
func (m *MockClient) Complete(_ context.Context, req CompletionRequest) (CompletionResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)

	if m.errorIndex < len(m.errors) && m.errors[m.errorIndex] != nil {
		err := m.errors[m.errorIndex]
		m.errorIndex++
		return CompletionResponse{}, err
	}
	// Keep error cursor aligned with responses when the slot is nil
	if m.errorIndex < len(m.errors) {
		m.errorIndex++
	}

	if m.responseIndex >= len(m.responses) {
		return CompletionResponse{}, fmt.Errorf("mock client: no more responses")
	}

	resp := m.responses[m.responseIndex]
	m.responseIndex++
	return resp, nil
}

// Stream returns a channel fed from the next predefined response. With a
// gate installed, content is split on spaces and each fragment waits for a
// gate signal; context cancellation ends the stream with ctx.Err().
func (m *MockClient) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)

	if m.chunkedIndex < len(m.chunked) {
		fragments := m.chunked[m.chunkedIndex]
		m.chunkedIndex++
		m.mu.Unlock()

		ch := make(chan StreamChunk)
		go func() {
			defer close(ch)
			for _, fragment := range fragments {
				select {
				case ch <- StreamChunk{Content: fragment}:
				case <-ctx.Done():
					ch <- StreamChunk{Error: ctx.Err()}
					return
				}
			}
			ch <- StreamChunk{Done: true}
		}()
		return ch, nil
	}

	if m.errorIndex < len(m.errors) && m.errors[m.errorIndex] != nil {
		err := m.errors[m.errorIndex]
		m.errorIndex++
		m.mu.Unlock()
		return nil, err
	}
	if m.errorIndex < len(m.errors) {
		m.errorIndex++
	}

	if m.responseIndex >= len(m.responses) {
		m.mu.Unlock()
		return nil, fmt.Errorf("mock client: no more responses")
	}

	resp := m.responses[m.responseIndex]
	m.responseIndex++
	delay := m.delayChunks
	gate := m.gate
	m.mu.Unlock()

	ch := make(chan StreamChunk)
	go func() {
		defer close(ch)

		if !delay {
			select {
			case ch <- StreamChunk{Content: resp.Content, Done: true}:
			case <-ctx.Done():
				ch <- StreamChunk{Error: ctx.Err()}
			}
			return
		}

		words := strings.SplitAfter(resp.Content, " ")
		for _, w := range words {
			select {
			case <-gate:
			case <-ctx.Done():
				ch <- StreamChunk{Error: ctx.Err()}
				return
			}
			select {
			case ch <- StreamChunk{Content: w}:
			case <-ctx.Done():
				ch <- StreamChunk{Error: ctx.Err()}
				return
			}
		}
		ch <- StreamChunk{Done: true}
	}()

	return ch, nil
}

// GetModelName returns a fixed identifier for the mock.
func (m *MockClient) GetModelName() string {
	return "mock-model"
}
