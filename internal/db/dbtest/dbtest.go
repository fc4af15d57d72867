// Package dbtest opens a migrated Postgres pool for repository tests. Tests
// are skipped unless STOREFRONT_TEST_DSN is set.
package dbtest

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/foretdhiver1228/storefront/internal/db"
)

const EnvDSN = "STOREFRONT_TEST_DSN"

func Pool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv(EnvDSN)
	if dsn == "" {
		t.Skipf("%s not set", EnvDSN)
	}
	ctx := context.Background()
	pool, err := db.Connect(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	if err := db.Migrate(ctx, pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return pool
}

// User inserts a throwaway account and returns its id.
func User(t *testing.T, pool *pgxpool.Pool) string {
	t.Helper()
	id := uuid.NewString()
	if _, err := pool.Exec(context.Background(),
		`INSERT INTO users (id, email, password_hash) VALUES ($1, $2, 'x')`, id, id+"@test.local"); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return id
}

// Product inserts a product at the given price and returns its id.
func Product(t *testing.T, pool *pgxpool.Pool, name, price string) string {
	t.Helper()
	id := uuid.NewString()
	if _, err := pool.Exec(context.Background(),
		`INSERT INTO products (id, name, price) VALUES ($1, $2, $3::numeric)`, id, name, price); err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return id
}
