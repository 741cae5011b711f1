// Package history keeps a small local record of finished download sessions,
// the CLI's counterpart to the web app's recent-downloads list.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

type Entry struct {
	ID            string
	SourceURL     string
	Platform      string
	Quality       string
	Filename      string
	FileSizeBytes int64
	Status        string
	CreatedAt     time.Time
}

type Store struct {
	db *sql.DB
}

// Open creates (or opens) the history database under dataDir.
func Open(dataDir string) (*Store, error) {
	dbDir := filepath.Join(dataDir, "db")
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	dbPath := filepath.Join(dbDir, "grabvid.db")

	database, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := database.Exec(p); err != nil {
			database.Close()
			return nil, fmt.Errorf("pragma %q: %w", p, err)
		}
	}
	database.SetMaxOpenConns(1)

	if _, err := database.Exec(schema); err != nil {
		database.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &Store{db: database}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS recent_downloads (
	id         TEXT PRIMARY KEY,
	source_url TEXT NOT NULL,
	platform   TEXT NOT NULL,
	quality    TEXT NOT NULL,
	filename   TEXT NOT NULL DEFAULT '',
	size_bytes INTEGER NOT NULL DEFAULT 0,
	status     TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_recent_downloads_created ON recent_downloads(created_at DESC);
`

func (s *Store) Close() error {
	return s.db.Close()
}

// Add records a finished session. The entry's ID and CreatedAt are assigned
// here when unset.
func (s *Store) Add(e *Entry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO recent_downloads (id, source_url, platform, quality, filename, size_bytes, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.SourceURL, e.Platform, e.Quality, e.Filename, e.FileSizeBytes, e.Status,
		e.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("insert download record: %w", err)
	}
	return nil
}

// Recent returns the newest entries, most recent first.
func (s *Store) Recent(limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`
		SELECT id, source_url, platform, quality, filename, size_bytes, status, created_at
		FROM recent_downloads
		ORDER BY created_at DESC, id
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent downloads: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var created string
		if err := rows.Scan(&e.ID, &e.SourceURL, &e.Platform, &e.Quality, &e.Filename, &e.FileSizeBytes, &e.Status, &created); err != nil {
			return nil, fmt.Errorf("scan download record: %w", err)
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339, created)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Prune keeps only the newest keep entries.
func (s *Store) Prune(keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}
	res, err := s.db.Exec(`
		DELETE FROM recent_downloads
		WHERE id NOT IN (
			SELECT id FROM recent_downloads ORDER BY created_at DESC, id LIMIT ?
		)`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune download records: %w", err)
	}
	return res.RowsAffected()
}
