package persistence

import (
	"time"

	"github.com/google/uuid"
)

// User is the memoir subject a book is written about.
type User struct {
	CreatedAt time.Time `json:"created_at"`
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Bio       string    `json:"bio,omitempty"`
}

// TimelineEntry is one place the user lived, with a date range.
// The entry with the earliest DateStart is treated as the birthplace.
type TimelineEntry struct {
	DateStart   time.Time  `json:"date_start"`
	DateEnd     *time.Time `json:"date_end,omitempty"`
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Location    string     `json:"location"`
	Description string     `json:"description,omitempty"`
}

// Document is uploaded background material, stored as extracted text.
type Document struct {
	CreatedAt time.Time `json:"created_at"`
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
}

// Book is one memoir project for a user.
type Book struct {
	CreatedAt time.Time `json:"created_at"`
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
}

// OutlineChapter is one planned chapter. Index is 1-based and contiguous
// within a book.
type OutlineChapter struct {
	BookID  string `json:"book_id"`
	Title   string `json:"title"`
	Summary string `json:"summary"`
	Index   int    `json:"index"`
}

// ArchivedChapter is a finished draft moved into the permanent manuscript.
type ArchivedChapter struct {
	ArchivedAt time.Time `json:"archived_at"`
	BookID     string    `json:"book_id"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	Status     string    `json:"status"`
	Index      int       `json:"index"`
}

// Archived chapter status constants.
const (
	ChapterStatusFinal   = "final"
	ChapterStatusPartial = "partial"
)

// GenerateID generates a new UUID for users, documents, books and timeline
// entries.
func GenerateID() string {
	return uuid.New().String()
}
