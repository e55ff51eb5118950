package session

import (
	"fmt"
	"sync"

	"ghostwriter/pkg/logx"
)

// Manager hands out the single session actor per book. Different books run
// fully in parallel; one book is always served by exactly one actor.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	deps     Deps
	logger   *logx.Logger
}

// NewManager creates a session manager.
func NewManager(deps Deps) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		deps:     deps,
		logger:   logx.NewLogger("session-manager"),
	}
}

// Get returns the running session for a book, creating and starting it on
// first use. Session state is created implicitly on first attach.
func (m *Manager) Get(bookID string) (*Session, error) {
	if bookID == "" {
		return nil, fmt.Errorf("book id is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[bookID]; ok {
		return s, nil
	}

	s, err := New(m.deps, bookID)
	if err != nil {
		return nil, err
	}
	s.Start()
	m.sessions[bookID] = s
	m.logger.Info("session started for book %s", bookID)
	return s, nil
}

// Shutdown stops every session: in-flight streams are cancelled and final
// snapshots persisted.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Stop()
		m.logger.Info("session stopped for book %s", s.BookID())
	}
}
