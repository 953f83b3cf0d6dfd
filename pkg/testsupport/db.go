package testsupport

import (
	"context"
	"database/sql"
	"testing"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "modernc.org/sqlite"
)

// NewSQLiteDB opens a private in-memory sqlite database wrapped in bun and
// runs the given DDL statements. Foreign keys are enforced. The database is
// closed with the test.
func NewSQLiteDB(t *testing.T, ddl ...string) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open("sqlite", ":memory:?_pragma=foreign_keys(1)")
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	// every connection to ":memory:" is a different database
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	for _, stmt := range ddl {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("failed to run %q: %v", stmt, err)
		}
	}
	return db
}
