// Package sqlite provides a SQLite-backed URL and check store built on sqlx
// and the pure-Go modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/JakeFAU/page-analyzer/internal/analyzer"
)

//go:embed schema.sql
var schema string

const pragmas = "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

type clock interface {
	Now() time.Time
}

// Store implements analyzer.URLStore and analyzer.CheckStore on SQLite.
// Timestamps are stored as RFC 3339 text in UTC.
type Store struct {
	db    *sqlx.DB
	clock clock
}

// New opens the database file at dsn with foreign keys enforced.
func New(ctx context.Context, dsn string, clk clock) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	db, err := sqlx.Open("sqlite", dsn+sep+pragmas)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite allows a single writer; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return NewWithDB(db, clk)
}

// NewWithDB constructs a store from an existing handle (primarily for testing).
func NewWithDB(db *sqlx.DB, clk clock) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if clk == nil {
		return nil, fmt.Errorf("clock is required")
	}
	return &Store{db: db, clock: clk}, nil
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping sqlite: %w", err)
	}
	return nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}
	return nil
}

type urlRow struct {
	ID        int64  `db:"id"`
	Name      string `db:"name"`
	CreatedAt string `db:"created_at"`
}

func (r urlRow) record() (analyzer.URLRecord, error) {
	createdAt, err := parseTime(r.CreatedAt)
	if err != nil {
		return analyzer.URLRecord{}, err
	}
	return analyzer.URLRecord{ID: r.ID, Name: r.Name, CreatedAt: createdAt}, nil
}

type checkRow struct {
	ID          int64          `db:"id"`
	URLID       int64          `db:"url_id"`
	StatusCode  int            `db:"status_code"`
	H1          sql.NullString `db:"h1"`
	Title       sql.NullString `db:"title"`
	Description sql.NullString `db:"description"`
	CreatedAt   string         `db:"created_at"`
}

func (r checkRow) record() (analyzer.CheckRecord, error) {
	createdAt, err := parseTime(r.CreatedAt)
	if err != nil {
		return analyzer.CheckRecord{}, err
	}
	return analyzer.CheckRecord{
		ID:          r.ID,
		URLID:       r.URLID,
		StatusCode:  r.StatusCode,
		H1:          nullable(r.H1),
		Title:       nullable(r.Title),
		Description: nullable(r.Description),
		CreatedAt:   createdAt,
	}, nil
}

// CreateURL inserts a URL; a name collision yields analyzer.ErrDuplicateURL.
func (s *Store) CreateURL(ctx context.Context, name string) (analyzer.URLRecord, error) {
	now := s.clock.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO urls (name, created_at) VALUES (?, ?)`, name, formatTime(now))
	if err != nil {
		if isConstraint(err, sqlite3.SQLITE_CONSTRAINT_UNIQUE, "UNIQUE constraint failed") {
			return analyzer.URLRecord{}, analyzer.ErrDuplicateURL
		}
		return analyzer.URLRecord{}, fmt.Errorf("insert url: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return analyzer.URLRecord{}, fmt.Errorf("url id: %w", err)
	}
	return analyzer.URLRecord{ID: id, Name: name, CreatedAt: now}, nil
}

// FindURLByID returns the URL or nil when absent.
func (s *Store) FindURLByID(ctx context.Context, id int64) (*analyzer.URLRecord, error) {
	return s.getURL(ctx, `SELECT id, name, created_at FROM urls WHERE id = ?`, id)
}

// FindURLByName returns the URL or nil when absent.
func (s *Store) FindURLByName(ctx context.Context, name string) (*analyzer.URLRecord, error) {
	return s.getURL(ctx, `SELECT id, name, created_at FROM urls WHERE name = ?`, name)
}

func (s *Store) getURL(ctx context.Context, query string, arg any) (*analyzer.URLRecord, error) {
	var row urlRow
	if err := s.db.GetContext(ctx, &row, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get url: %w", err)
	}
	rec, err := row.record()
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListURLs returns all URLs, newest first.
func (s *Store) ListURLs(ctx context.Context) ([]analyzer.URLRecord, error) {
	var rows []urlRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT id, name, created_at FROM urls ORDER BY id DESC`); err != nil {
		return nil, fmt.Errorf("select urls: %w", err)
	}
	out := make([]analyzer.URLRecord, 0, len(rows))
	for _, r := range rows {
		rec, err := r.record()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

type urlWithLatestRow struct {
	urlRow
	CheckID          sql.NullInt64  `db:"check_id"`
	CheckStatusCode  sql.NullInt64  `db:"check_status_code"`
	CheckH1          sql.NullString `db:"check_h1"`
	CheckTitle       sql.NullString `db:"check_title"`
	CheckDescription sql.NullString `db:"check_description"`
	CheckCreatedAt   sql.NullString `db:"check_created_at"`
}

const listWithLatestQuery = `
SELECT u.id, u.name, u.created_at,
       c.id AS check_id,
       c.status_code AS check_status_code,
       c.h1 AS check_h1,
       c.title AS check_title,
       c.description AS check_description,
       c.created_at AS check_created_at
FROM urls u
LEFT JOIN url_checks c ON c.id = (SELECT MAX(id) FROM url_checks WHERE url_id = u.id)
ORDER BY u.id DESC`

// ListURLsWithLatestCheck returns every URL, newest first, joined with its
// latest check in a single query.
func (s *Store) ListURLsWithLatestCheck(ctx context.Context) ([]analyzer.URLWithLatestCheck, error) {
	var rows []urlWithLatestRow
	if err := s.db.SelectContext(ctx, &rows, listWithLatestQuery); err != nil {
		return nil, fmt.Errorf("select urls with latest check: %w", err)
	}
	out := make([]analyzer.URLWithLatestCheck, 0, len(rows))
	for _, r := range rows {
		u, err := r.record()
		if err != nil {
			return nil, err
		}
		item := analyzer.URLWithLatestCheck{URL: u}
		if r.CheckID.Valid {
			check, err := checkRow{
				ID:          r.CheckID.Int64,
				URLID:       u.ID,
				StatusCode:  int(r.CheckStatusCode.Int64),
				H1:          r.CheckH1,
				Title:       r.CheckTitle,
				Description: r.CheckDescription,
				CreatedAt:   r.CheckCreatedAt.String,
			}.record()
			if err != nil {
				return nil, err
			}
			item.LatestCheck = &check
		}
		out = append(out, item)
	}
	return out, nil
}

// CreateCheck inserts a check; an unknown url id yields analyzer.ErrURLNotFound.
func (s *Store) CreateCheck(ctx context.Context, check analyzer.NewCheck) (analyzer.CheckRecord, error) {
	now := s.clock.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
INSERT INTO url_checks (url_id, status_code, h1, title, description, created_at)
VALUES (?, ?, ?, ?, ?, ?)`,
		check.URLID, check.StatusCode, check.H1, check.Title, check.Description, formatTime(now))
	if err != nil {
		if isConstraint(err, sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY, "FOREIGN KEY constraint failed") {
			return analyzer.CheckRecord{}, analyzer.ErrURLNotFound
		}
		return analyzer.CheckRecord{}, fmt.Errorf("insert check: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return analyzer.CheckRecord{}, fmt.Errorf("check id: %w", err)
	}
	return analyzer.CheckRecord{
		ID:          id,
		URLID:       check.URLID,
		StatusCode:  check.StatusCode,
		H1:          check.H1,
		Title:       check.Title,
		Description: check.Description,
		CreatedAt:   now,
	}, nil
}

const checkColumns = `id, url_id, status_code, h1, title, description, created_at`

// ListChecksByURLID returns the URL's checks, newest first.
func (s *Store) ListChecksByURLID(ctx context.Context, urlID int64) ([]analyzer.CheckRecord, error) {
	var rows []checkRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+checkColumns+` FROM url_checks WHERE url_id = ? ORDER BY id DESC`, urlID)
	if err != nil {
		return nil, fmt.Errorf("select checks: %w", err)
	}
	out := make([]analyzer.CheckRecord, 0, len(rows))
	for _, r := range rows {
		rec, err := r.record()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// FindLatestCheckByURLID returns the check with the greatest id, or nil.
func (s *Store) FindLatestCheckByURLID(ctx context.Context, urlID int64) (*analyzer.CheckRecord, error) {
	var row checkRow
	err := s.db.GetContext(ctx, &row,
		`SELECT `+checkColumns+` FROM url_checks WHERE url_id = ? ORDER BY id DESC LIMIT 1`, urlID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get latest check: %w", err)
	}
	rec, err := row.record()
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func isConstraint(err error, code int, message string) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code() == code
	}
	return strings.Contains(err.Error(), message)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(v string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", v, err)
	}
	return t, nil
}

func nullable(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
