// Package postgres provides the Postgres-backed URL and check store.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/page-analyzer/internal/analyzer"
)

//go:embed schema.sql
var schema string

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

type clock interface {
	Now() time.Time
}

// Store implements analyzer.URLStore and analyzer.CheckStore on Postgres.
type Store struct {
	pool  pool
	clock clock
}

// New connects a pgx pool using the provided config.
func New(ctx context.Context, cfg Config, clk clock) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return NewWithPool(p, clk)
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool, clk clock) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if clk == nil {
		return nil, fmt.Errorf("clock is required")
	}
	return &Store{pool: p, clock: clk}, nil
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// CreateURL inserts a URL; a name collision yields analyzer.ErrDuplicateURL.
func (s *Store) CreateURL(ctx context.Context, name string) (analyzer.URLRecord, error) {
	rec := analyzer.URLRecord{Name: name, CreatedAt: s.clock.Now()}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO urls (name, created_at) VALUES ($1, $2) RETURNING id`,
		rec.Name, rec.CreatedAt,
	).Scan(&rec.ID)
	if err != nil {
		if pgCode(err) == codeUniqueViolation {
			return analyzer.URLRecord{}, analyzer.ErrDuplicateURL
		}
		return analyzer.URLRecord{}, fmt.Errorf("insert url: %w", err)
	}
	return rec, nil
}

// FindURLByID returns the URL or nil when absent.
func (s *Store) FindURLByID(ctx context.Context, id int64) (*analyzer.URLRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT id, name, created_at FROM urls WHERE id = $1`, id)
	return scanURL(row)
}

// FindURLByName returns the URL or nil when absent.
func (s *Store) FindURLByName(ctx context.Context, name string) (*analyzer.URLRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT id, name, created_at FROM urls WHERE name = $1`, name)
	return scanURL(row)
}

// ListURLs returns all URLs, newest first.
func (s *Store) ListURLs(ctx context.Context) ([]analyzer.URLRecord, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, created_at FROM urls ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("query urls: %w", err)
	}
	defer rows.Close()

	out := []analyzer.URLRecord{}
	for rows.Next() {
		var rec analyzer.URLRecord
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan url: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate urls: %w", err)
	}
	return out, nil
}

const listWithLatestQuery = `
SELECT u.id, u.name, u.created_at,
       c.id, c.status_code, c.h1, c.title, c.description, c.created_at
FROM urls u
LEFT JOIN LATERAL (
    SELECT id, status_code, h1, title, description, created_at
    FROM url_checks
    WHERE url_id = u.id
    ORDER BY id DESC
    LIMIT 1
) c ON true
ORDER BY u.id DESC`

// ListURLsWithLatestCheck returns every URL, newest first, joined with its
// latest check in a single query.
func (s *Store) ListURLsWithLatestCheck(ctx context.Context) ([]analyzer.URLWithLatestCheck, error) {
	rows, err := s.pool.Query(ctx, listWithLatestQuery)
	if err != nil {
		return nil, fmt.Errorf("query urls with latest check: %w", err)
	}
	defer rows.Close()

	out := []analyzer.URLWithLatestCheck{}
	for rows.Next() {
		var (
			item      analyzer.URLWithLatestCheck
			checkID   *int64
			status    *int
			h1        *string
			title     *string
			desc      *string
			checkedAt *time.Time
		)
		if err := rows.Scan(
			&item.URL.ID, &item.URL.Name, &item.URL.CreatedAt,
			&checkID, &status, &h1, &title, &desc, &checkedAt,
		); err != nil {
			return nil, fmt.Errorf("scan url with latest check: %w", err)
		}
		if checkID != nil {
			item.LatestCheck = &analyzer.CheckRecord{
				ID:          *checkID,
				URLID:       item.URL.ID,
				StatusCode:  deref(status),
				H1:          h1,
				Title:       title,
				Description: desc,
				CreatedAt:   derefTime(checkedAt),
			}
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate urls with latest check: %w", err)
	}
	return out, nil
}

// CreateCheck inserts a check; an unknown url id yields analyzer.ErrURLNotFound.
func (s *Store) CreateCheck(ctx context.Context, check analyzer.NewCheck) (analyzer.CheckRecord, error) {
	rec := analyzer.CheckRecord{
		URLID:       check.URLID,
		StatusCode:  check.StatusCode,
		H1:          check.H1,
		Title:       check.Title,
		Description: check.Description,
		CreatedAt:   s.clock.Now(),
	}
	err := s.pool.QueryRow(ctx, `
INSERT INTO url_checks (url_id, status_code, h1, title, description, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id`,
		rec.URLID, rec.StatusCode, rec.H1, rec.Title, rec.Description, rec.CreatedAt,
	).Scan(&rec.ID)
	if err != nil {
		if pgCode(err) == codeForeignKeyViolation {
			return analyzer.CheckRecord{}, analyzer.ErrURLNotFound
		}
		return analyzer.CheckRecord{}, fmt.Errorf("insert check: %w", err)
	}
	return rec, nil
}

const checkColumns = `id, url_id, status_code, h1, title, description, created_at`

// ListChecksByURLID returns the URL's checks, newest first.
func (s *Store) ListChecksByURLID(ctx context.Context, urlID int64) ([]analyzer.CheckRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+checkColumns+` FROM url_checks WHERE url_id = $1 ORDER BY id DESC`, urlID)
	if err != nil {
		return nil, fmt.Errorf("query checks: %w", err)
	}
	defer rows.Close()

	out := []analyzer.CheckRecord{}
	for rows.Next() {
		rec, err := scanCheck(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checks: %w", err)
	}
	return out, nil
}

// FindLatestCheckByURLID returns the check with the greatest id, or nil.
func (s *Store) FindLatestCheckByURLID(ctx context.Context, urlID int64) (*analyzer.CheckRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+checkColumns+` FROM url_checks WHERE url_id = $1 ORDER BY id DESC LIMIT 1`, urlID)
	rec, err := scanCheck(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

func scanURL(row pgx.Row) (*analyzer.URLRecord, error) {
	var rec analyzer.URLRecord
	if err := row.Scan(&rec.ID, &rec.Name, &rec.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan url: %w", err)
	}
	return &rec, nil
}

func scanCheck(row pgx.Row) (*analyzer.CheckRecord, error) {
	var rec analyzer.CheckRecord
	err := row.Scan(&rec.ID, &rec.URLID, &rec.StatusCode, &rec.H1, &rec.Title, &rec.Description, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan check: %w", err)
	}
	return &rec, nil
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func deref(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

func derefTime(v *time.Time) time.Time {
	if v == nil {
		return time.Time{}
	}
	return *v
}
