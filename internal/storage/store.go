// Package storage selects and opens the URL and check persistence backend.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/JakeFAU/page-analyzer/internal/analyzer"
	"github.com/JakeFAU/page-analyzer/internal/storage/memory"
	"github.com/JakeFAU/page-analyzer/internal/storage/postgres"
	"github.com/JakeFAU/page-analyzer/internal/storage/sqlite"
)

// Supported drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Store is the full persistence surface used by the application.
type Store interface {
	analyzer.URLStore
	analyzer.CheckStore
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Config selects a backend and its connection parameters.
type Config struct {
	Driver          string
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// Open connects the configured backend. The caller owns the returned store
// and must Close it.
func Open(ctx context.Context, cfg Config, clk analyzer.Clock) (Store, error) {
	switch cfg.Driver {
	case DriverMemory, "":
		return memory.New(clk), nil
	case DriverSQLite:
		s, err := sqlite.New(ctx, cfg.DSN, clk)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverPostgres:
		s, err := postgres.New(ctx, postgres.Config{
			DSN:             cfg.DSN,
			MaxConns:        cfg.MaxConns,
			MinConns:        cfg.MinConns,
			MaxConnLifetime: cfg.MaxConnLifetime,
		}, clk)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported db driver %q", cfg.Driver)
	}
}
