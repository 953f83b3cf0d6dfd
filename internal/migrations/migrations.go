// Package migrations applies the embedded schema migrations with
// golang-migrate.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed sqlite/*.sql postgres/*.sql
var files embed.FS

// Supported database/sql driver names.
const (
	DriverSQLite   = "sqlite"
	DriverSQLite3  = "sqlite3"
	DriverPostgres = "postgres"
)

// ErrUnsupportedDriver is returned for driver names without migrations.
var ErrUnsupportedDriver = errors.New("migrations: unsupported driver")

// Runner applies migrations to one database. It takes ownership of the
// *sql.DB it was built with: Close closes it.
type Runner struct {
	m      *migrate.Migrate
	logger *slog.Logger
}

// New prepares a Runner for db, opened with the named database/sql driver.
func New(db *sql.DB, driver string, logger *slog.Logger) (*Runner, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	dir, instance, err := databaseInstance(db, driver)
	if err != nil {
		return nil, err
	}
	src, err := iofs.New(files, dir)
	if err != nil {
		return nil, fmt.Errorf("migrations: open source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, driver, instance)
	if err != nil {
		return nil, fmt.Errorf("migrations: init: %w", err)
	}
	return &Runner{m: m, logger: logger.With("driver", driver)}, nil
}

func databaseInstance(db *sql.DB, driver string) (string, database.Driver, error) {
	var (
		instance database.Driver
		err      error
		dir      string
	)
	switch driver {
	case DriverSQLite:
		dir = "sqlite"
		instance, err = sqlite.WithInstance(db, &sqlite.Config{})
	case DriverSQLite3:
		dir = "sqlite"
		instance, err = sqlite3.WithInstance(db, &sqlite3.Config{})
	case DriverPostgres:
		dir = "postgres"
		instance, err = postgres.WithInstance(db, &postgres.Config{})
	default:
		return "", nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}
	if err != nil {
		return "", nil, fmt.Errorf("migrations: %s driver: %w", driver, err)
	}
	return dir, instance, nil
}

// Up applies every pending migration. Having nothing to apply is not an
// error.
func (r *Runner) Up() error {
	err := r.m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		r.logger.Info("no migrations to apply")
		return nil
	}
	if err != nil {
		return fmt.Errorf("migrations: up: %w", err)
	}
	r.logger.Info("migrations applied")
	return nil
}

// Down rolls back steps migrations.
func (r *Runner) Down(steps int) error {
	if steps <= 0 {
		return fmt.Errorf("migrations: steps must be positive, got %d", steps)
	}
	err := r.m.Steps(-steps)
	if errors.Is(err, migrate.ErrNoChange) {
		r.logger.Info("no migrations to roll back")
		return nil
	}
	if err != nil {
		return fmt.Errorf("migrations: down: %w", err)
	}
	r.logger.Info("migrations rolled back", "steps", steps)
	return nil
}

// Version returns the applied version. ok is false when no migration has
// been applied.
func (r *Runner) Version() (version uint, dirty bool, ok bool, err error) {
	version, dirty, err = r.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, false, nil
	}
	if err != nil {
		return 0, false, false, fmt.Errorf("migrations: version: %w", err)
	}
	return version, dirty, true, nil
}

// Close releases the source and the database.
func (r *Runner) Close() error {
	srcErr, dbErr := r.m.Close()
	return errors.Join(srcErr, dbErr)
}
