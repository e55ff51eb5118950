// Package metrics provides metrics middleware for LLM clients.
package metrics

import (
	"time"
)

// Recorder receives observations for completed LLM requests.
type Recorder interface {
	ObserveRequest(
		model, bookID, agent string,
		promptTokens, completionTokens int,
		cost float64,
		success bool,
		errorType string,
		duration time.Duration,
	)
}

// NopRecorder discards all observations. Used in tests.
type NopRecorder struct{}

// ObserveRequest implements Recorder.
func (NopRecorder) ObserveRequest(string, string, string, int, int, float64, bool, string, time.Duration) {
}
