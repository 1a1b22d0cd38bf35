package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

const (
	sqliteSchemaVersion = 1
	// fixed width keeps lexical order equal to chronological order
	sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"
	memoryPath       = ":memory:"
)

// SQLiteStore keeps everything in a local SQLite file. It's meant for
// development and tests.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path and brings the schema
// up to date.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		path = memoryPath
	}
	if path != memoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.Wrap(err, "failed creating db directory")
		}
	}

	d, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "failed opening database")
	}

	// a single connection keeps :memory: databases alive and serializes writes
	d.SetMaxOpenConns(1)

	for _, p := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := d.Exec(p); err != nil {
			d.Close()
			return nil, errors.Wrapf(err, "failed executing %q", p)
		}
	}

	s := &SQLiteStore{db: d}
	if err := s.migrate(); err != nil {
		d.Close()
		return nil, errors.Wrap(err, "failed migrating database")
	}
	return s, nil
}

// NewMemoryStore creates an in-memory store.
func NewMemoryStore() (*SQLiteStore, error) {
	return NewSQLiteStore(memoryPath)
}

func (s *SQLiteStore) Do(ctx context.Context, q Query) ([]Row, error) {
	query, args, err := sqliteDialect.build(q)
	if err != nil {
		return nil, err
	}

	if q.Verb == VerbDelete {
		if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
			return nil, errors.Wrapf(err, "failed deleting from %s", q.Collection)
		}
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to %s %s", q.Verb, q.Collection)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrap(err, "failed reading columns")
	}

	var result []Row
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}

		if err := rows.Scan(ptrs...); err != nil {
			return nil, errors.Wrapf(err, "failed scanning %s", q.Collection)
		}

		row := make(Row, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				row[c] = string(b)
			} else {
				row[c] = vals[i]
			}
		}
		result = append(result, row)
	}

	return result, rows.Err()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return errors.Wrap(err, "failed reading user_version")
	}

	if version >= sqliteSchemaVersion {
		return nil
	}

	if version < 1 {
		if _, err := s.db.Exec(sqliteSchemaV1); err != nil {
			return errors.Wrap(err, "failed creating schema")
		}
	}

	_, err := s.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", sqliteSchemaVersion))
	return err
}

const sqliteSchemaV1 = `
CREATE TABLE IF NOT EXISTS tasks (
	id          TEXT PRIMARY KEY,
	user_id     INTEGER NOT NULL,
	task        TEXT NOT NULL,
	priority    INTEGER NOT NULL CHECK (priority BETWEEN 1 AND 3),
	created_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tasks_user ON tasks(user_id);

CREATE TABLE IF NOT EXISTS reminders (
	id          TEXT PRIMARY KEY,
	user_id     INTEGER NOT NULL,
	message     TEXT NOT NULL,
	remind_at   TEXT NOT NULL,
	created_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_reminders_user ON reminders(user_id);
CREATE INDEX IF NOT EXISTS idx_reminders_remind_at ON reminders(remind_at);

CREATE TABLE IF NOT EXISTS timezones (
	user_id     INTEGER PRIMARY KEY,
	utc_offset  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS pomodoro_settings (
	user_id                     INTEGER PRIMARY KEY,
	work_duration               INTEGER NOT NULL,
	break_duration              INTEGER NOT NULL,
	long_break_duration         INTEGER NOT NULL,
	sessions_before_long_break  INTEGER NOT NULL
);
`

func sqliteValue(v any) any {
	if t, ok := v.(time.Time); ok {
		return t.UTC().Format(sqliteTimeLayout)
	}
	return v
}
