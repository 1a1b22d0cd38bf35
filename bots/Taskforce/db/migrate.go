package db

import (
	"database/sql"
	"embed"

	"github.com/golang-migrate/migrate/v4"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

//go:embed migrations/postgres/*.sql
var postgresMigrations embed.FS

// RunMigrations brings the Postgres schema up to date.
func RunMigrations(connStr string, l *zap.SugaredLogger) error {
	d, err := sql.Open("pgx", connStr)
	if err != nil {
		return errors.Wrap(err, "failed opening database")
	}
	defer d.Close()

	if err = d.Ping(); err != nil {
		return errors.Wrap(err, "failed pinging database")
	}

	driver, err := pgxmigrate.WithInstance(d, &pgxmigrate.Config{})
	if err != nil {
		return errors.Wrap(err, "failed creating migration driver")
	}

	src, err := iofs.New(postgresMigrations, "migrations/postgres")
	if err != nil {
		return errors.Wrap(err, "failed reading migrations")
	}

	m, err := migrate.NewWithInstance("iofs", src, "pgx5", driver)
	if err != nil {
		return errors.Wrap(err, "failed preparing migrations")
	}

	if err = m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Wrap(err, "failed applying migrations")
	}

	version, _, _ := m.Version()
	l.Infow("database migrations applied", "version", version)
	return nil
}
