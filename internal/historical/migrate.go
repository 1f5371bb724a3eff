// Package historical persists delivered trade/book events to Postgres for
// offline backtesting. It is an out-of-core consumer of a Session's typed
// rings, never part of the live message path.
package historical

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/golang-migrate/migrate/v4"
	pgxv5 "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the pgx driver for database/sql

	dbmigrations "github.com/coachpo/krakenstream/db/migrations"
)

const embeddedMigrationsRoot = "."

// ApplyMigrations brings the database at dsn up to the latest embedded
// schema version. A nil logger disables informational logging.
func ApplyMigrations(ctx context.Context, dsn string, logger *log.Logger) error {
	m, cleanup, err := prepareMigrator(dsn)
	if err != nil {
		return err
	}
	defer cleanup()

	if logger != nil {
		logger.Printf("running historical recorder migrations")
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			if logger != nil {
				logger.Printf("historical recorder schema up-to-date")
			}
			return nil
		}
		return fmt.Errorf("apply historical migrations: %w", err)
	}

	if logger != nil {
		logger.Printf("historical recorder migrations applied")
	}
	return nil
}

func prepareMigrator(dsn string) (*migrate.Migrate, func(), error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, func() {}, fmt.Errorf("open migrations connection: %w", err)
	}
	cleanup := func() { _ = db.Close() }

	if err := db.Ping(); err != nil {
		cleanup()
		return nil, func() {}, fmt.Errorf("ping migrations database: %w", err)
	}

	var driverConfig pgxv5.Config
	driver, err := pgxv5.WithInstance(db, &driverConfig)
	if err != nil {
		cleanup()
		return nil, func() {}, fmt.Errorf("initialise pgx v5 driver: %w", err)
	}

	sourceDriver, err := iofs.New(dbmigrations.Files, embeddedMigrationsRoot)
	if err != nil {
		cleanup()
		return nil, func() {}, fmt.Errorf("initialise embedded migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "pgx5", driver)
	if err != nil {
		cleanup()
		return nil, func() {}, fmt.Errorf("initialise migrate instance: %w", err)
	}

	return m, func() {
		_, _ = m.Close()
		cleanup()
	}, nil
}
