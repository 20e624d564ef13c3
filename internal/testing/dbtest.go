package testutil

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"renter-registry/pkg/database"
)

// DBTest provides a real DB connection for integration tests with helpers for isolation.
// It uses DATABASE_URL_TEST if set, otherwise DATABASE_URL. Tests are skipped if missing.
type DBTest struct {
	T   *testing.T
	DB  *database.DB
	SQL *sql.DB
}

// NewDBTest connects, creates the schema and empties every registry table.
func NewDBTest(t *testing.T) *DBTest {
	t.Helper()
	url := os.Getenv("DATABASE_URL_TEST")
	if url == "" {
		url = os.Getenv("DATABASE_URL")
	}
	if url == "" {
		t.Skip("DATABASE_URL_TEST or DATABASE_URL not set; skipping integration tests")
	}
	db, err := database.New(url)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	d := &DBTest{T: t, DB: db, SQL: db.Conn()}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := db.EnsureSchema(ctx); err != nil {
		db.Close()
		t.Fatalf("ensure schema: %v", err)
	}
	d.Truncate()
	t.Cleanup(d.Close)
	return d
}

func (d *DBTest) Close() {
	_ = d.DB.Close()
}

// Truncate wipes the registry tables, children first.
func (d *DBTest) Truncate() {
	d.T.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	tables := database.Tables()
	for i := len(tables) - 1; i >= 0; i-- {
		if _, err := d.SQL.ExecContext(ctx, "DELETE FROM "+tables[i]); err != nil {
			d.T.Fatalf("truncate %s: %v", tables[i], err)
		}
	}
}
