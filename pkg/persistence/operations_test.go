package persistence

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

// Helper function to create a new database for each test.
func createTestStore(t *testing.T) *Store {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := InitializeDatabase(dbPath)
	if err != nil {
		t.Fatalf("Failed to initialize database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return NewStore(db)
}

func seedBook(t *testing.T, store *Store) *Book {
	t.Helper()

	user := &User{ID: GenerateID(), Name: "Margaret", Bio: "Retired teacher"}
	if err := store.UpsertUser(user); err != nil {
		t.Fatalf("Failed to upsert user: %v", err)
	}
	book := &Book{ID: GenerateID(), UserID: user.ID, Title: "A Life in Chalk"}
	if err := store.UpsertBook(book); err != nil {
		t.Fatalf("Failed to upsert book: %v", err)
	}
	return book
}

func TestUserOperations(t *testing.T) {
	store := createTestStore(t)

	user := &User{ID: GenerateID(), Name: "Margaret", Bio: "Retired teacher"}
	if err := store.UpsertUser(user); err != nil {
		t.Fatalf("Failed to upsert user: %v", err)
	}

	got, err := store.GetUserByID(user.ID)
	if err != nil {
		t.Fatalf("Failed to get user: %v", err)
	}
	if got.Name != user.Name || got.Bio != user.Bio {
		t.Errorf("Expected %q/%q, got %q/%q", user.Name, user.Bio, got.Name, got.Bio)
	}

	// Upsert updates in place
	user.Bio = "Retired history teacher"
	if err := store.UpsertUser(user); err != nil {
		t.Fatalf("Failed to update user: %v", err)
	}
	got, err = store.GetUserByID(user.ID)
	if err != nil {
		t.Fatalf("Failed to re-get user: %v", err)
	}
	if got.Bio != "Retired history teacher" {
		t.Errorf("Expected updated bio, got %q", got.Bio)
	}

	if _, err := store.GetUserByID("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for missing user, got %v", err)
	}
}

func TestTimelineChronologicalOrder(t *testing.T) {
	store := createTestStore(t)
	book := seedBook(t, store)

	// Insert out of chronological order
	entries := []*TimelineEntry{
		{ID: GenerateID(), UserID: book.UserID, Location: "Denver", DateStart: time.Date(1975, 6, 1, 0, 0, 0, 0, time.UTC)},
		{ID: GenerateID(), UserID: book.UserID, Location: "Chicago", DateStart: time.Date(1950, 3, 12, 0, 0, 0, 0, time.UTC)},
		{ID: GenerateID(), UserID: book.UserID, Location: "Portland", DateStart: time.Date(1990, 1, 15, 0, 0, 0, 0, time.UTC)},
	}
	for _, entry := range entries {
		if err := store.UpsertTimelineEntry(entry); err != nil {
			t.Fatalf("Failed to upsert timeline entry: %v", err)
		}
	}

	got, err := store.GetTimelineByUser(book.UserID)
	if err != nil {
		t.Fatalf("Failed to get timeline: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(got))
	}
	// Earliest date_start first (the birthplace)
	if got[0].Location != "Chicago" || got[1].Location != "Denver" || got[2].Location != "Portland" {
		t.Errorf("Timeline not chronological: %s, %s, %s", got[0].Location, got[1].Location, got[2].Location)
	}
}

func TestDocumentOperations(t *testing.T) {
	store := createTestStore(t)
	book := seedBook(t, store)

	doc := &Document{ID: GenerateID(), UserID: book.UserID, Title: "Letters 1962", Content: "Dear Ruth, ..."}
	if err := store.UpsertDocument(doc); err != nil {
		t.Fatalf("Failed to upsert document: %v", err)
	}

	docs, err := store.GetDocumentsByUser(book.UserID)
	if err != nil {
		t.Fatalf("Failed to get documents: %v", err)
	}
	if len(docs) != 1 || docs[0].Content != doc.Content {
		t.Fatalf("Expected 1 document with original content, got %d", len(docs))
	}
}

func TestOutlineAppendAssignsContiguousIndices(t *testing.T) {
	store := createTestStore(t)
	book := seedBook(t, store)

	first, err := store.AppendOutlineChapters(book.ID, []*OutlineChapter{
		{Title: "Roots", Summary: "Childhood in Chicago"},
		{Title: "The Move West", Summary: "Denver years"},
	})
	if err != nil {
		t.Fatalf("Failed to append outline chapters: %v", err)
	}
	if first[0].Index != 1 || first[1].Index != 2 {
		t.Errorf("Expected indices 1,2, got %d,%d", first[0].Index, first[1].Index)
	}

	second, err := store.AppendOutlineChapters(book.ID, []*OutlineChapter{
		{Title: "Classrooms", Summary: "Teaching career"},
	})
	if err != nil {
		t.Fatalf("Failed to append second batch: %v", err)
	}
	if second[0].Index != 3 {
		t.Errorf("Expected index 3, got %d", second[0].Index)
	}

	outline, err := store.GetOutline(book.ID)
	if err != nil {
		t.Fatalf("Failed to get outline: %v", err)
	}
	if len(outline) != 3 {
		t.Fatalf("Expected 3 chapters, got %d", len(outline))
	}
	for i, ch := range outline {
		if ch.Index != i+1 {
			t.Errorf("Chapter %d has index %d", i, ch.Index)
		}
	}
	// Existing chapters untouched by the second append
	if outline[0].Title != "Roots" || outline[1].Title != "The Move West" {
		t.Errorf("Earlier chapters changed: %q, %q", outline[0].Title, outline[1].Title)
	}
}

func TestAppendOutlineChaptersRejectsEmpty(t *testing.T) {
	store := createTestStore(t)
	book := seedBook(t, store)

	if _, err := store.AppendOutlineChapters(book.ID, nil); err == nil {
		t.Error("Expected error appending empty chapter list")
	}
}

func TestArchiveChapterIsImmutable(t *testing.T) {
	store := createTestStore(t)
	book := seedBook(t, store)

	ch := &ArchivedChapter{BookID: book.ID, Index: 1, Title: "Roots", Content: "Chapter 1 text"}
	if err := store.ArchiveChapter(ch); err != nil {
		t.Fatalf("Failed to archive chapter: %v", err)
	}

	// A second archive of the same index must not overwrite the first
	again := &ArchivedChapter{BookID: book.ID, Index: 1, Title: "Roots", Content: "rewritten"}
	if err := store.ArchiveChapter(again); err != nil {
		t.Fatalf("Re-archive returned error: %v", err)
	}

	got, err := store.GetArchivedChapters(book.ID)
	if err != nil {
		t.Fatalf("Failed to get archived chapters: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Expected 1 archived chapter, got %d", len(got))
	}
	if got[0].Content != "Chapter 1 text" {
		t.Errorf("Archived content mutated: %q", got[0].Content)
	}
	if got[0].Status != ChapterStatusFinal {
		t.Errorf("Expected default status final, got %q", got[0].Status)
	}
}

func TestSchemaVersionRecorded(t *testing.T) {
	store := createTestStore(t)

	version, err := GetSchemaVersion(store.db)
	if err != nil {
		t.Fatalf("Failed to get schema version: %v", err)
	}
	if version != CurrentSchemaVersion {
		t.Errorf("Expected schema version %d, got %d", CurrentSchemaVersion, version)
	}
}

func TestReopenExistingDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	db, err := InitializeDatabase(dbPath)
	if err != nil {
		t.Fatalf("Failed to initialize database: %v", err)
	}
	store := NewStore(db)
	book := seedBook(t, store)
	if err := db.Close(); err != nil {
		t.Fatalf("Failed to close database: %v", err)
	}

	// Second open runs the migration path instead of schema creation
	db, err = InitializeDatabase(dbPath)
	if err != nil {
		t.Fatalf("Failed to reopen database: %v", err)
	}
	defer func() { _ = db.Close() }()

	got, err := NewStore(db).GetBookByID(book.ID)
	if err != nil {
		t.Fatalf("Failed to get book after reopen: %v", err)
	}
	if got.Title != book.Title {
		t.Errorf("Expected title %q, got %q", book.Title, got.Title)
	}
}
