// Package notes holds the facts gathered during an interview. The store is
// shared between the LLM tool handlers and the live viewer edits, so all
// mutation goes through one mutex.
package notes

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"
)

// Note is one recorded fact.
type Note struct {
	ID   string `json:"id"`
	Text string `json:"text"`
	Seq  int    `json:"seq"` // Creation order, preserved across edits
}

// NotFoundError is returned when an operation names a note that does not
// exist.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("note %s does not exist", e.ID)
}

// IsNotFound reports whether err is a note-not-found error.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// Store is a thread-safe collection of notes for one book.
type Store struct {
	mu      sync.RWMutex
	notes   map[string]*Note
	nextSeq int
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{notes: make(map[string]*Note)}
}

// NewStoreFrom creates a store pre-populated from a snapshot, preserving
// the snapshot's order.
func NewStoreFrom(snapshot []Note) *Store {
	s := NewStore()
	sort.SliceStable(snapshot, func(i, j int) bool { return snapshot[i].Seq < snapshot[j].Seq })
	for i := range snapshot {
		n := snapshot[i]
		n.Seq = s.nextSeq
		s.nextSeq++
		s.notes[n.ID] = &n
	}
	return s
}

// Create adds a new note. Fails if the id is already taken.
func (s *Store) Create(id, text string) error {
	if id == "" {
		return fmt.Errorf("note id cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.notes[id]; exists {
		return fmt.Errorf("note %s already exists", id)
	}
	s.notes[id] = &Note{ID: id, Text: text, Seq: s.nextSeq}
	s.nextSeq++
	return nil
}

// Append extends an existing note's text, joined with a single space unless
// the existing text already ends in whitespace.
func (s *Store) Append(id, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	note, exists := s.notes[id]
	if !exists {
		return &NotFoundError{ID: id}
	}
	switch {
	case note.Text == "":
		note.Text = text
	case endsInSpace(note.Text):
		note.Text += text
	default:
		note.Text = note.Text + " " + text
	}
	return nil
}

func endsInSpace(s string) bool {
	r, _ := utf8.DecodeLastRuneInString(s)
	return unicode.IsSpace(r)
}

// Patch replaces a note's text outright. Used for direct viewer edits, which
// apply immediately regardless of what the session is doing.
func (s *Store) Patch(id, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	note, exists := s.notes[id]
	if !exists {
		return &NotFoundError{ID: id}
	}
	note.Text = text
	return nil
}

// Delete removes a note.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.notes[id]; !exists {
		return &NotFoundError{ID: id}
	}
	delete(s.notes, id)
	return nil
}

// Merge reconciles a full client-side notes list into the store. Incoming
// notes update existing entries and add new ones; notes absent from the
// incoming list are kept. Removal only ever happens through Delete.
func (s *Store) Merge(incoming []Note) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range incoming {
		in := incoming[i]
		if in.ID == "" {
			continue
		}
		if note, exists := s.notes[in.ID]; exists {
			note.Text = in.Text
		} else {
			s.notes[in.ID] = &Note{ID: in.ID, Text: in.Text, Seq: s.nextSeq}
			s.nextSeq++
		}
	}
}

// Get returns a copy of one note.
func (s *Store) Get(id string) (Note, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	note, exists := s.notes[id]
	if !exists {
		return Note{}, false
	}
	return *note, true
}

// Len returns the number of notes.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.notes)
}

// Snapshot returns all notes in creation order. The result is a copy and
// safe to hold across further mutation.
func (s *Store) Snapshot() []Note {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Note, 0, len(s.notes))
	for _, note := range s.notes {
		out = append(out, *note)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// Render formats the notes as a block for inclusion in an LLM prompt.
func (s *Store) Render() string {
	snapshot := s.Snapshot()
	if len(snapshot) == 0 {
		return "(no notes yet)"
	}

	var b strings.Builder
	for i := range snapshot {
		fmt.Fprintf(&b, "- [%s] %s\n", snapshot[i].ID, snapshot[i].Text)
	}
	return b.String()
}
