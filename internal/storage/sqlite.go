package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// sqliteTimestamp is the layout CURRENT_TIMESTAMP produces for the
// extracted_at column.
const sqliteTimestamp = "2006-01-02 15:04:05"

// Store wraps a SQLite database holding extracted page records and analysis
// history.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending
// migrations. Pass ":memory:" as dataDir for an in-memory database (used by
// tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "pdfinsight.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	// Ensure schema_version table exists (bootstrap).
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort by filename to guarantee ascending order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		// Check if already applied.
		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Page records ---

// RecordPages inserts one page record per element of pages, assigning page
// numbers 1..N in the given order. The whole upload commits atomically: on
// any failure no page of the document is retained. With replace set, rows
// previously stored under the same filename are removed inside the same
// transaction, so a re-upload swaps the document rather than accumulating
// duplicates.
func (s *Store) RecordPages(filename string, pages []string, replace bool) error {
	if filename == "" {
		return fmt.Errorf("filename is required")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if replace {
		if _, err := tx.Exec(`DELETE FROM pdf_data WHERE filename = ?`, filename); err != nil {
			return fmt.Errorf("removing previous pages of %s: %w", filename, err)
		}
	}

	stmt, err := tx.Prepare(`INSERT INTO pdf_data (filename, page_number, content) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for i, content := range pages {
		if _, err := stmt.Exec(filename, i+1, content); err != nil {
			return fmt.Errorf("inserting page %d of %s: %w", i+1, filename, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing pages of %s: %w", filename, err)
	}
	return nil
}

// ReadAllContent returns the space-joined content of every stored page in
// insertion order, across all documents. Returns "" when nothing is stored.
func (s *Store) ReadAllContent() (string, error) {
	content, _, err := s.joinContent(`SELECT content FROM pdf_data ORDER BY id ASC`)
	return content, err
}

// ReadDocumentContent returns the space-joined content of every page stored
// under filename, in insertion order. ErrNotFound when no pages exist.
func (s *Store) ReadDocumentContent(filename string) (string, error) {
	content, found, err := s.joinContent(`SELECT content FROM pdf_data WHERE filename = ? ORDER BY id ASC`, filename)
	if err != nil {
		return "", err
	}
	if !found {
		return "", ErrNotFound
	}
	return content, nil
}

func (s *Store) joinContent(query string, args ...any) (string, bool, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return "", false, err
	}
	defer rows.Close()

	var parts []string
	for rows.Next() {
		var content string
		if err := rows.Scan(&content); err != nil {
			return "", false, err
		}
		parts = append(parts, content)
	}
	if err := rows.Err(); err != nil {
		return "", false, err
	}
	return strings.Join(parts, " "), len(parts) > 0, nil
}

// ListDocuments returns stored documents grouped by filename, most recently
// inserted first.
func (s *Store) ListDocuments(limit, offset int) ([]DocumentInfo, error) {
	rows, err := s.db.Query(`
		SELECT filename, COUNT(*), MAX(extracted_at)
		FROM pdf_data
		GROUP BY filename
		ORDER BY MAX(id) DESC
		LIMIT ? OFFSET ?`, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []DocumentInfo
	for rows.Next() {
		var d DocumentInfo
		var extractedAt string
		if err := rows.Scan(&d.Filename, &d.Pages, &extractedAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(sqliteTimestamp, extractedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing extracted_at: %w", err)
		}
		d.ExtractedAt = t
		results = append(results, d)
	}
	return results, rows.Err()
}

// DeleteDocument removes every page stored under filename.
func (s *Store) DeleteDocument(filename string) error {
	res, err := s.db.Exec(`DELETE FROM pdf_data WHERE filename = ?`, filename)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Analyses ---

func (s *Store) SaveAnalysis(a Analysis) error {
	status := a.Status
	if status == "" {
		status = StatusCompleted
	}
	_, err := s.db.Exec(`
		INSERT INTO analyses (id, created_at, filename, intent, instruction, prompt, result, status, attempts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.CreatedAt.UTC().Format(time.RFC3339), a.Filename, a.Intent,
		a.Instruction, a.Prompt, a.Result, status, a.Attempts,
	)
	return err
}

func (s *Store) GetAnalysis(id string) (Analysis, error) {
	var a Analysis
	var createdAt string
	err := s.db.QueryRow(`
		SELECT id, created_at, filename, intent, instruction, prompt, result, status, attempts
		FROM analyses WHERE id = ?`, id,
	).Scan(&a.ID, &createdAt, &a.Filename, &a.Intent, &a.Instruction, &a.Prompt, &a.Result, &a.Status, &a.Attempts)
	if err == sql.ErrNoRows {
		return Analysis{}, ErrNotFound
	}
	if err != nil {
		return Analysis{}, err
	}
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return Analysis{}, fmt.Errorf("parsing created_at: %w", err)
	}
	a.CreatedAt = t
	return a, nil
}

func (s *Store) ListAnalyses(limit, offset int) ([]Analysis, error) {
	rows, err := s.db.Query(`
		SELECT id, created_at, filename, intent, instruction, prompt, result, status, attempts
		FROM analyses ORDER BY created_at DESC LIMIT ? OFFSET ?`, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Analysis
	for rows.Next() {
		var a Analysis
		var createdAt string
		if err := rows.Scan(&a.ID, &createdAt, &a.Filename, &a.Intent, &a.Instruction, &a.Prompt, &a.Result, &a.Status, &a.Attempts); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		a.CreatedAt = t
		results = append(results, a)
	}
	return results, rows.Err()
}

func (s *Store) DeleteAnalysis(id string) error {
	res, err := s.db.Exec(`DELETE FROM analyses WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
