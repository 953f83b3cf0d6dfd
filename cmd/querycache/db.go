package main

import (
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "modernc.org/sqlite"

	"github.com/goliatone/go-repository-query/internal/config"
	"github.com/goliatone/go-repository-query/internal/migrations"
)

const memoryPath = ":memory:"

func openSQL(cfg config.DatabaseConfig) (*sql.DB, error) {
	sqldb, err := sql.Open(cfg.Driver, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}
	if cfg.IsSQLite() && cfg.Path == memoryPath {
		// every connection to ":memory:" is a different database
		sqldb.SetMaxOpenConns(1)
	}
	return sqldb, nil
}

func openBun(cfg config.DatabaseConfig, sqldb *sql.DB) *bun.DB {
	if cfg.IsSQLite() {
		return bun.NewDB(sqldb, sqlitedialect.New())
	}
	return bun.NewDB(sqldb, pgdialect.New())
}

// newRunner opens a dedicated connection for migrations; the runner closes
// it together with itself.
func newRunner(cfg config.DatabaseConfig, logger *slog.Logger) (*migrations.Runner, error) {
	sqldb, err := openSQL(cfg)
	if err != nil {
		return nil, err
	}
	r, err := migrations.New(sqldb, cfg.Driver, logger)
	if err != nil {
		_ = sqldb.Close()
		return nil, err
	}
	return r, nil
}

// autoMigrate brings the schema up to date before serving. An in-memory
// sqlite database only exists on its own connection, so it is migrated in
// place and the runner is left open.
func autoMigrate(cfg config.DatabaseConfig, sqldb *sql.DB, logger *slog.Logger) error {
	if cfg.IsSQLite() && cfg.Path == memoryPath {
		r, err := migrations.New(sqldb, cfg.Driver, logger)
		if err != nil {
			return err
		}
		return r.Up()
	}

	r, err := newRunner(cfg, logger)
	if err != nil {
		return err
	}
	defer r.Close()
	return r.Up()
}
