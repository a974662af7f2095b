package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/cityfix/cityfix/internal/models"
	"github.com/cityfix/cityfix/internal/render"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MemoryDSN keeps the registry for the lifetime of the process only.
// The feature service is the system of record; nothing persists across
// sessions.
const MemoryDSN = ":memory:"

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
// Issue rows live in SQLite; the renderable handles, which are live objects,
// live in a side registry keyed by issue id.
type SQLiteStore struct {
	db *sql.DB

	mu      sync.Mutex
	handles map[string]render.Handle
}

// NewSQLiteStore opens a SQLite database at the given path, or an in-memory
// database when path is MemoryDSN.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path != MemoryDSN {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one concurrent writer. Limiting to a single
	// connection serializes all DB access through Go's connection pool;
	// for the in-memory DSN it also keeps every query on the same database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	return &SQLiteStore{
		db:      db,
		handles: make(map[string]render.Handle),
	}, nil
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()

		var count int
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count); err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Add registers an issue with its handle.
func (s *SQLiteStore) Add(ctx context.Context, issue *models.Issue, h render.Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM issues WHERE id = ?", issue.ID).Scan(&count); err != nil {
		return fmt.Errorf("check issue id: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("issue %s: %w", issue.ID, ErrDuplicateID)
	}

	_, err := s.db.ExecContext(ctx, `INSERT INTO issues
		(id, category, status, severity, description, timestamp, latitude, longitude)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		issue.ID, string(issue.Category), string(issue.Status), issue.Severity,
		issue.Description, issue.Timestamp, issue.Latitude, issue.Longitude)
	if err != nil {
		return fmt.Errorf("insert issue: %w", err)
	}

	s.handles[issue.ID] = h
	return nil
}

// Get returns the entry for id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, category, status, severity,
		description, timestamp, latitude, longitude FROM issues WHERE id = ?`, id)

	issue, err := scanIssue(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("issue %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get issue: %w", err)
	}

	s.mu.Lock()
	h := s.handles[issue.ID]
	s.mu.Unlock()

	return &Entry{Issue: issue, Handle: h}, nil
}

// All returns a snapshot of entries in insertion (rowid) order.
func (s *SQLiteStore) All(ctx context.Context) ([]*Entry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, category, status, severity,
		description, timestamp, latitude, longitude FROM issues ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, fmt.Errorf("scan issue: %w", err)
		}
		s.mu.Lock()
		h := s.handles[issue.ID]
		s.mu.Unlock()
		entries = append(entries, &Entry{Issue: issue, Handle: h})
	}
	return entries, rows.Err()
}

// Count returns the number of registered issues.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM issues").Scan(&n); err != nil {
		return 0, fmt.Errorf("count issues: %w", err)
	}
	return n, nil
}

// BulkLoad registers a batch of raw features. Features with malformed
// geometry (missing or non-numeric coordinates) are skipped.
func (s *SQLiteStore) BulkLoad(ctx context.Context, feats []models.Feature, newHandle HandleFunc) (loaded, skipped int, err error) {
	for _, f := range feats {
		if !f.ValidGeometry() {
			skipped++
			continue
		}
		issue := f.Issue
		issue.Longitude = f.Coords[0]
		issue.Latitude = f.Coords[1]
		if err := s.Add(ctx, &issue, newHandle(issue)); err != nil {
			return loaded, skipped, err
		}
		loaded++
	}
	return loaded, skipped, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanIssue(row scanner) (*models.Issue, error) {
	var issue models.Issue
	var category, status string
	err := row.Scan(&issue.ID, &category, &status, &issue.Severity,
		&issue.Description, &issue.Timestamp, &issue.Latitude, &issue.Longitude)
	if err != nil {
		return nil, err
	}
	issue.Category = models.Category(category)
	issue.Status = models.Status(status)
	return &issue, nil
}
