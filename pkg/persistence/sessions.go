package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ghostwriter/pkg/notes"
	"ghostwriter/pkg/proto"
)

// ErrSessionNotFound is returned when no snapshot exists for a book.
var ErrSessionNotFound = errors.New("session not found")

// SessionSnapshot is the durable state of one book's session actor. The
// actor writes it after every state-changing message and loads it eagerly on
// cold start before processing anything.
//
//nolint:govet // struct alignment optimization not critical for this type.
type SessionSnapshot struct {
	BookID       string            `json:"book_id"`
	UserID       string            `json:"user_id"`
	Phase        string            `json:"phase"`
	ChapterIndex int               `json:"chapter_index"`
	Transcript   []proto.Turn      `json:"transcript"`
	Notes        []notes.Note      `json:"notes"`
	Draft        string            `json:"draft"`
	Manuscript   string            `json:"manuscript"`
	Outline      []*OutlineChapter `json:"outline,omitempty"` // Cached copy, refreshed on init
	Provider     string            `json:"provider,omitempty"`
	Model        string            `json:"model,omitempty"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// SaveSessionSnapshot upserts the snapshot for a book.
func (s *Store) SaveSessionSnapshot(snapshot *SessionSnapshot) error {
	snapshot.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal session snapshot for book %s: %w", snapshot.BookID, err)
	}

	_, err = s.db.Exec(`
		INSERT INTO session_states (book_id, state_json, updated_at)
		VALUES (?, ?, strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		ON CONFLICT(book_id) DO UPDATE SET
			state_json = excluded.state_json,
			updated_at = excluded.updated_at
	`, snapshot.BookID, string(data))
	if err != nil {
		return fmt.Errorf("failed to save session snapshot for book %s: %w", snapshot.BookID, err)
	}
	return nil
}

// LoadSessionSnapshot loads the snapshot for a book.
// Returns ErrSessionNotFound if the book has no persisted session.
func (s *Store) LoadSessionSnapshot(bookID string) (*SessionSnapshot, error) {
	var data string
	err := s.db.QueryRow(`
		SELECT state_json FROM session_states WHERE book_id = ?
	`, bookID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session snapshot for book %s: %w", bookID, err)
	}

	var snapshot SessionSnapshot
	if err := json.Unmarshal([]byte(data), &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session snapshot for book %s: %w", bookID, err)
	}
	return &snapshot, nil
}

// DeleteSessionSnapshot removes a book's persisted session. Used only by
// tests and external retention tooling; the actor never deletes its own state.
func (s *Store) DeleteSessionSnapshot(bookID string) error {
	_, err := s.db.Exec(`DELETE FROM session_states WHERE book_id = ?`, bookID)
	if err != nil {
		return fmt.Errorf("failed to delete session snapshot for book %s: %w", bookID, err)
	}
	return nil
}
