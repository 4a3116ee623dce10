// Package pgtest gives repository tests a clean PostgreSQL database, or skips them.
package pgtest

import (
	"context"
	"fmt"
	"libraryhub/internal/config"
	"libraryhub/internal/postgres"
	"os"
	"testing"

	"github.com/jmoiron/sqlx"
)

// Open connects using PG* environment variables (falling back to local defaults),
// creates the schema and empties every table. The test is skipped when no server answers.
func Open(t testing.TB) *sqlx.DB {
	t.Helper()

	connStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		getEnv("PGHOST", "localhost"),
		getEnv("PGPORT", "5432"),
		getEnv("PGUSER", "user"),
		getEnv("PGPASSWORD", "password"),
		getEnv("PGDATABASE", "testdb"),
	)

	cfg := config.Default().Database
	cfg.URL = connStr
	cfg.Driver = getEnv("PGDRIVER", "postgres")

	ctx := context.Background()
	db, err := postgres.Open(ctx, cfg)
	if err != nil {
		t.Skipf("skipping database tests: could not connect to postgres: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := postgres.EnsureSchema(ctx, db); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}

	_, err = db.ExecContext(ctx, "TRUNCATE TABLE loan_events, loans, members, accounts, books, authors CASCADE")
	if err != nil {
		t.Fatalf("failed to truncate tables: %v", err)
	}

	return db
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
