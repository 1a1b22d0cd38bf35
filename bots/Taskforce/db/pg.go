package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/jalenchen0/taskforce-bot/bot"
)

// pgxPool is the part of *pgxpool.Pool the store needs.
type pgxPool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore runs queries against Postgres through a pgx pool.
type PostgresStore struct {
	pool pgxPool
}

// NewPostgresStore connects to Postgres, retrying the initial connection
// according to cfg.
func NewPostgresStore(ctx context.Context, cfg Config, l *zap.SugaredLogger) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, errors.Wrap(err, "failed parsing connection string")
	}
	if cfg.MaxConns > 0 {
		pgxCfg.MaxConns = int32(cfg.MaxConns)
	}

	var pool *pgxpool.Pool
	ok := bot.RobustExecute(ctx, cfg.RetryAttempts, cfg.RetryDelay, func() bool {
		pool, err = connect(ctx, pgxCfg)
		if err != nil {
			l.Warnw("failed connecting to postgres", "err", err)
			return false
		}
		return true
	})
	if !ok {
		if err == nil {
			err = ctx.Err()
		}
		return nil, errors.Wrap(err, "failed connecting to postgres")
	}

	l.Infow("connected to postgres", "host", pgxCfg.ConnConfig.Host, "db", pgxCfg.ConnConfig.Database)
	return &PostgresStore{pool: pool}, nil
}

func connect(ctx context.Context, cfg *pgxpool.Config) (*pgxpool.Pool, error) {
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func (s *PostgresStore) Do(ctx context.Context, q Query) ([]Row, error) {
	query, args, err := postgresDialect.build(q)
	if err != nil {
		return nil, err
	}

	if q.Verb == VerbDelete {
		if _, err := s.pool.Exec(ctx, query, args...); err != nil {
			return nil, errors.Wrapf(err, "failed deleting from %s", q.Collection)
		}
		return nil, nil
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to %s %s", q.Verb, q.Collection)
	}

	result, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, errors.Wrapf(err, "failed reading %s", q.Collection)
	}
	return result, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
