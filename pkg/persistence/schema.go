package persistence

import (
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite" // SQLite driver
)

// CurrentSchemaVersion is the schema version this build expects.
// Bump when adding a migration.
const CurrentSchemaVersion = 1

// initializeSchemaWithMigrations creates the schema on a fresh database and
// runs pending migrations on an existing one.
func initializeSchemaWithMigrations(db *sql.DB) error {
	version, err := GetSchemaVersion(db)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	if version == 0 {
		if err := createSchema(db); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
		return nil
	}

	if version < CurrentSchemaVersion {
		if err := runMigrations(db, version, CurrentSchemaVersion); err != nil {
			return fmt.Errorf("failed to run migrations from %d to %d: %w", version, CurrentSchemaVersion, err)
		}
	}

	return nil
}

// runMigrations applies migrations one version at a time.
func runMigrations(db *sql.DB, from, to int) error {
	for v := from + 1; v <= to; v++ {
		if err := runMigration(db, v); err != nil {
			return fmt.Errorf("migration to version %d failed: %w", v, err)
		}
		if err := setSchemaVersion(db, v); err != nil {
			return fmt.Errorf("failed to record schema version %d: %w", v, err)
		}
	}
	return nil
}

func runMigration(db *sql.DB, version int) error {
	switch version {
	case 1:
		// Version 1 is the base schema; nothing to migrate.
		return nil
	default:
		return fmt.Errorf("unknown schema version %d", version)
	}
}

// createSchema creates all required tables and indices.
func createSchema(db *sql.DB) error {
	// Enable WAL mode and foreign keys
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute pragma %s: %w", pragma, err)
		}
	}

	tables := []string{
		// Schema version tracking
		`CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		)`,

		// Memoir subjects
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			bio TEXT,
			created_at DATETIME DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		)`,

		// Life locations in chronological order; the earliest date_start is
		// treated as the birthplace by the context assembler.
		`CREATE TABLE IF NOT EXISTS timeline_entries (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			location TEXT NOT NULL,
			description TEXT,
			date_start DATETIME NOT NULL,
			date_end DATETIME
		)`,

		// Uploaded background material, already reduced to extracted text
		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			title TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at DATETIME DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		)`,

		`CREATE TABLE IF NOT EXISTS books (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			title TEXT NOT NULL,
			created_at DATETIME DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		)`,

		// Planned chapters; indices are contiguous starting at 1 and existing
		// rows are never renumbered, only appended to.
		`CREATE TABLE IF NOT EXISTS outline_chapters (
			book_id TEXT NOT NULL REFERENCES books(id) ON DELETE CASCADE,
			chapter_index INTEGER NOT NULL CHECK (chapter_index >= 1),
			title TEXT NOT NULL,
			summary TEXT NOT NULL,
			created_at DATETIME DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
			PRIMARY KEY (book_id, chapter_index)
		)`,

		// Finished chapter drafts, append-only
		`CREATE TABLE IF NOT EXISTS archived_chapters (
			book_id TEXT NOT NULL REFERENCES books(id) ON DELETE CASCADE,
			chapter_index INTEGER NOT NULL CHECK (chapter_index >= 1),
			title TEXT NOT NULL,
			content TEXT NOT NULL,
			status TEXT DEFAULT 'final' CHECK (status IN ('final', 'partial')),
			archived_at DATETIME DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
			PRIMARY KEY (book_id, chapter_index)
		)`,

		// One JSON snapshot per book session, written transactionally by the
		// session actor and loaded eagerly on cold start.
		`CREATE TABLE IF NOT EXISTS session_states (
			book_id TEXT PRIMARY KEY REFERENCES books(id) ON DELETE CASCADE,
			state_json TEXT NOT NULL,
			updated_at DATETIME DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		)`,
	}

	indices := []string{
		"CREATE INDEX IF NOT EXISTS idx_timeline_user ON timeline_entries(user_id)",
		"CREATE INDEX IF NOT EXISTS idx_timeline_start ON timeline_entries(user_id, date_start)",
		"CREATE INDEX IF NOT EXISTS idx_documents_user ON documents(user_id)",
		"CREATE INDEX IF NOT EXISTS idx_books_user ON books(user_id)",
		"CREATE INDEX IF NOT EXISTS idx_outline_book ON outline_chapters(book_id)",
		"CREATE INDEX IF NOT EXISTS idx_archived_book ON archived_chapters(book_id)",
	}

	for _, ddl := range tables {
		if _, err := db.Exec(ddl); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	for _, ddl := range indices {
		if _, err := db.Exec(ddl); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	if err := setSchemaVersion(db, CurrentSchemaVersion); err != nil {
		return fmt.Errorf("failed to set schema version: %w", err)
	}

	return nil
}

// setSchemaVersion records the current schema version.
func setSchemaVersion(db *sql.DB, version int) error {
	_, err := db.Exec(`
		INSERT OR REPLACE INTO schema_version (version) VALUES (?)
	`, version)
	if err != nil {
		return fmt.Errorf("database exec error: %w", err)
	}
	return nil
}

// GetSchemaVersion returns the current schema version from the database.
func GetSchemaVersion(db *sql.DB) (int, error) {
	// First ensure the schema_version table exists
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
	)`)
	if err != nil {
		return 0, fmt.Errorf("failed to create schema_version table: %w", err)
	}

	var version int
	err = db.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil // No version set yet
	}
	if err != nil {
		return 0, fmt.Errorf("failed to query schema version: %w", err)
	}
	return version, nil
}
