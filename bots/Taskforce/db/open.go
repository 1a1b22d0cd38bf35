package db

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	DriverPostgREST = "postgrest"
	DriverPostgres  = "postgres"
	DriverSQLite    = "sqlite"
)

// Config selects and configures a store backend.
type Config struct {
	Driver        string
	URL           string // PostgREST base URL, Postgres connection string or SQLite path
	APIKey        string // PostgREST only
	Timeout       time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
	MaxConns      int
	Migrate       bool
}

// Open creates the configured store. Postgres migrations run first when
// cfg.Migrate is set.
func Open(ctx context.Context, cfg Config, l *zap.SugaredLogger) (Store, error) {
	switch cfg.Driver {
	case DriverPostgREST:
		return NewRESTStore(cfg.URL, cfg.APIKey, cfg.Timeout), nil

	case DriverPostgres:
		if cfg.Migrate {
			if err := RunMigrations(cfg.URL, l); err != nil {
				return nil, err
			}
		}
		return NewPostgresStore(ctx, cfg, l)

	case DriverSQLite:
		return NewSQLiteStore(cfg.URL)
	}

	return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}
