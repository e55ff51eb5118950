package persistence

import (
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Store provides methods for database operations.
type Store struct {
	db *sql.DB
}

// NewStore creates a new Store instance.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// UpsertUser inserts or updates a user record.
func (s *Store) UpsertUser(user *User) error {
	query := `
		INSERT INTO users (id, name, bio)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			bio = excluded.bio
	`
	_, err := s.db.Exec(query, user.ID, user.Name, user.Bio)
	if err != nil {
		return fmt.Errorf("failed to upsert user %s: %w", user.ID, err)
	}
	return nil
}

// GetUserByID retrieves a user by ID.
func (s *Store) GetUserByID(id string) (*User, error) {
	var user User
	err := s.db.QueryRow(`
		SELECT id, name, COALESCE(bio, ''), created_at FROM users WHERE id = ?
	`, id).Scan(&user.ID, &user.Name, &user.Bio, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user %s: %w", id, err)
	}
	return &user, nil
}

// UpsertTimelineEntry inserts or updates a timeline entry.
func (s *Store) UpsertTimelineEntry(entry *TimelineEntry) error {
	query := `
		INSERT INTO timeline_entries (id, user_id, location, description, date_start, date_end)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			location = excluded.location,
			description = excluded.description,
			date_start = excluded.date_start,
			date_end = excluded.date_end
	`
	_, err := s.db.Exec(query, entry.ID, entry.UserID, entry.Location, entry.Description, entry.DateStart, entry.DateEnd)
	if err != nil {
		return fmt.Errorf("failed to upsert timeline entry %s: %w", entry.ID, err)
	}
	return nil
}

// GetTimelineByUser returns a user's timeline entries in chronological order.
// The first entry is treated as the birthplace by the context assembler.
func (s *Store) GetTimelineByUser(userID string) ([]*TimelineEntry, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, location, COALESCE(description, ''), date_start, date_end
		FROM timeline_entries
		WHERE user_id = ?
		ORDER BY date_start ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query timeline for user %s: %w", userID, err)
	}
	defer func() { _ = rows.Close() }()

	var entries []*TimelineEntry
	for rows.Next() {
		var entry TimelineEntry
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.Location, &entry.Description,
			&entry.DateStart, &entry.DateEnd); err != nil {
			return nil, fmt.Errorf("failed to scan timeline entry: %w", err)
		}
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("timeline row iteration error: %w", err)
	}
	return entries, nil
}

// UpsertDocument inserts or updates a background document.
func (s *Store) UpsertDocument(doc *Document) error {
	query := `
		INSERT INTO documents (id, user_id, title, content)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			content = excluded.content
	`
	_, err := s.db.Exec(query, doc.ID, doc.UserID, doc.Title, doc.Content)
	if err != nil {
		return fmt.Errorf("failed to upsert document %s: %w", doc.ID, err)
	}
	return nil
}

// GetDocumentsByUser returns all background documents for a user in upload order.
func (s *Store) GetDocumentsByUser(userID string) ([]*Document, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, title, content, created_at
		FROM documents
		WHERE user_id = ?
		ORDER BY created_at ASC, id ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents for user %s: %w", userID, err)
	}
	defer func() { _ = rows.Close() }()

	var docs []*Document
	for rows.Next() {
		var doc Document
		if err := rows.Scan(&doc.ID, &doc.UserID, &doc.Title, &doc.Content, &doc.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, &doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("document row iteration error: %w", err)
	}
	return docs, nil
}

// UpsertBook inserts or updates a book record.
func (s *Store) UpsertBook(book *Book) error {
	query := `
		INSERT INTO books (id, user_id, title)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title
	`
	_, err := s.db.Exec(query, book.ID, book.UserID, book.Title)
	if err != nil {
		return fmt.Errorf("failed to upsert book %s: %w", book.ID, err)
	}
	return nil
}

// GetBookByID retrieves a book by ID.
func (s *Store) GetBookByID(id string) (*Book, error) {
	var book Book
	err := s.db.QueryRow(`
		SELECT id, user_id, title, created_at FROM books WHERE id = ?
	`, id).Scan(&book.ID, &book.UserID, &book.Title, &book.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("book %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get book %s: %w", id, err)
	}
	return &book, nil
}

// ListBooksByUser returns all books owned by a user.
func (s *Store) ListBooksByUser(userID string) ([]*Book, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, title, created_at
		FROM books
		WHERE user_id = ?
		ORDER BY created_at ASC, id ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query books for user %s: %w", userID, err)
	}
	defer func() { _ = rows.Close() }()

	var books []*Book
	for rows.Next() {
		var book Book
		if err := rows.Scan(&book.ID, &book.UserID, &book.Title, &book.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan book: %w", err)
		}
		books = append(books, &book)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("book row iteration error: %w", err)
	}
	return books, nil
}

// GetOutline returns a book's planned chapters ordered by index.
func (s *Store) GetOutline(bookID string) ([]*OutlineChapter, error) {
	rows, err := s.db.Query(`
		SELECT book_id, chapter_index, title, summary
		FROM outline_chapters
		WHERE book_id = ?
		ORDER BY chapter_index ASC
	`, bookID)
	if err != nil {
		return nil, fmt.Errorf("failed to query outline for book %s: %w", bookID, err)
	}
	defer func() { _ = rows.Close() }()

	var chapters []*OutlineChapter
	for rows.Next() {
		var ch OutlineChapter
		if err := rows.Scan(&ch.BookID, &ch.Index, &ch.Title, &ch.Summary); err != nil {
			return nil, fmt.Errorf("failed to scan outline chapter: %w", err)
		}
		chapters = append(chapters, &ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("outline row iteration error: %w", err)
	}
	return chapters, nil
}

// AppendOutlineChapters appends chapters to a book's outline, assigning
// contiguous indices continuing from the current outline length. Existing
// chapters are never renumbered. Returns the appended chapters with their
// assigned indices.
func (s *Store) AppendOutlineChapters(bookID string, chapters []*OutlineChapter) ([]*OutlineChapter, error) {
	if len(chapters) == 0 {
		return nil, fmt.Errorf("no chapters to append for book %s", bookID)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin outline append: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var maxIndex int
	err = tx.QueryRow(`
		SELECT COALESCE(MAX(chapter_index), 0) FROM outline_chapters WHERE book_id = ?
	`, bookID).Scan(&maxIndex)
	if err != nil {
		return nil, fmt.Errorf("failed to read outline length for book %s: %w", bookID, err)
	}

	appended := make([]*OutlineChapter, 0, len(chapters))
	for i, ch := range chapters {
		assigned := &OutlineChapter{
			BookID:  bookID,
			Index:   maxIndex + i + 1,
			Title:   ch.Title,
			Summary: ch.Summary,
		}
		_, err := tx.Exec(`
			INSERT INTO outline_chapters (book_id, chapter_index, title, summary)
			VALUES (?, ?, ?, ?)
		`, assigned.BookID, assigned.Index, assigned.Title, assigned.Summary)
		if err != nil {
			return nil, fmt.Errorf("failed to append chapter %d for book %s: %w", assigned.Index, bookID, err)
		}
		appended = append(appended, assigned)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit outline append: %w", err)
	}
	return appended, nil
}

// ArchiveChapter records a finished chapter draft. Archived chapters are
// immutable: a second archive of the same index is ignored rather than
// overwriting the first.
func (s *Store) ArchiveChapter(ch *ArchivedChapter) error {
	status := ch.Status
	if status == "" {
		status = ChapterStatusFinal
	}
	_, err := s.db.Exec(`
		INSERT INTO archived_chapters (book_id, chapter_index, title, content, status)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(book_id, chapter_index) DO NOTHING
	`, ch.BookID, ch.Index, ch.Title, ch.Content, status)
	if err != nil {
		return fmt.Errorf("failed to archive chapter %d for book %s: %w", ch.Index, ch.BookID, err)
	}
	return nil
}

// GetArchivedChapters returns a book's archived chapters in chapter order.
func (s *Store) GetArchivedChapters(bookID string) ([]*ArchivedChapter, error) {
	rows, err := s.db.Query(`
		SELECT book_id, chapter_index, title, content, status, archived_at
		FROM archived_chapters
		WHERE book_id = ?
		ORDER BY chapter_index ASC
	`, bookID)
	if err != nil {
		return nil, fmt.Errorf("failed to query archived chapters for book %s: %w", bookID, err)
	}
	defer func() { _ = rows.Close() }()

	var chapters []*ArchivedChapter
	for rows.Next() {
		var ch ArchivedChapter
		if err := rows.Scan(&ch.BookID, &ch.Index, &ch.Title, &ch.Content, &ch.Status, &ch.ArchivedAt); err != nil {
			return nil, fmt.Errorf("failed to scan archived chapter: %w", err)
		}
		chapters = append(chapters, &ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("archived chapter row iteration error: %w", err)
	}
	return chapters, nil
}
