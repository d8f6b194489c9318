package account

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Integration tests are opt-in and require KODBANK_DATABASE_URL.
// In non-CI runs, unreachable Postgres skips these tests to keep local runs fast.

func TestPostgresStore_Create_ConflictEmail_CaseInsensitive(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	defer pool.Close()

	schema := mustCreateTestSchema(t, pool)
	t.Cleanup(func() { mustDropSchema(t, pool, schema) })
	mustApplyBankSchema(t, pool, schema)

	s := mustNewAccountStore(t, pool, schema)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	_, err := s.Create(ctx, CreateInput{
		Name:     "Alice",
		Email:    "Alice@Example.com",
		Password: "very-strong-password-1",
		Now:      time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create account 1: %v", err)
	}

	// Same email (case-insensitive) should conflict.
	_, err = s.Create(ctx, CreateInput{
		Name:     "Imposter",
		Email:    "aLiCe@example.com",
		Password: "very-strong-password-2",
		Now:      time.Now().UTC(),
	})
	if !IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestPostgresStore_Transfer_AtomicAndConserving(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	defer pool.Close()

	schema := mustCreateTestSchema(t, pool)
	t.Cleanup(func() { mustDropSchema(t, pool, schema) })
	mustApplyBankSchema(t, pool, schema)

	s := mustNewAccountStore(t, pool, schema)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	alice, err := s.Create(ctx, CreateInput{Name: "Alice", Email: "alice@example.com", Password: "very-strong-password-1"})
	if err != nil {
		t.Fatalf("create alice: %v", err)
	}
	bob, err := s.Create(ctx, CreateInput{Name: "Bob", Email: "bob@example.com", Password: "very-strong-password-2"})
	if err != nil {
		t.Fatalf("create bob: %v", err)
	}

	res, err := s.Transfer(ctx, alice.ID, bob.ID, 400)
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if res.SenderBalance != 600 || res.RecipientBalance != 1400 {
		t.Fatalf("got %+v", res)
	}

	if _, err := s.Transfer(ctx, alice.ID, bob.ID, 601); !IsInsufficientFunds(err) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if _, err := s.Transfer(ctx, alice.ID, "01ZZZZZZZZZZZZZZZZZZZZZZZZ", 1); !IsNotFound(err) {
		t.Fatalf("expected recipient not found, got %v", err)
	}

	a, err := s.GetByID(ctx, alice.ID)
	if err != nil {
		t.Fatalf("get alice: %v", err)
	}
	b, err := s.GetByID(ctx, bob.ID)
	if err != nil {
		t.Fatalf("get bob: %v", err)
	}
	if a.Balance+b.Balance != 2*StartingBalance {
		t.Fatalf("conservation violated: total=%v", a.Balance+b.Balance)
	}
}

func TestPostgresStore_Transfer_ConcurrentDrain(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	defer pool.Close()

	schema := mustCreateTestSchema(t, pool)
	t.Cleanup(func() { mustDropSchema(t, pool, schema) })
	mustApplyBankSchema(t, pool, schema)

	s := mustNewAccountStore(t, pool, schema)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	alice, err := s.Create(ctx, CreateInput{Name: "Alice", Email: "alice@example.com", Password: "very-strong-password-1"})
	if err != nil {
		t.Fatalf("create alice: %v", err)
	}
	bob, err := s.Create(ctx, CreateInput{Name: "Bob", Email: "bob@example.com", Password: "very-strong-password-2"})
	if err != nil {
		t.Fatalf("create bob: %v", err)
	}

	// N concurrent transfers that together drain the sender exactly.
	const n = 20
	amount := StartingBalance / n

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			if _, err := s.Transfer(ctx, alice.ID, bob.ID, amount); err != nil {
				t.Errorf("transfer: %v", err)
			}
		}()
	}
	wg.Wait()

	a, err := s.GetByID(ctx, alice.ID)
	if err != nil {
		t.Fatalf("get alice: %v", err)
	}
	b, err := s.GetByID(ctx, bob.ID)
	if err != nil {
		t.Fatalf("get bob: %v", err)
	}
	if a.Balance != 0 {
		t.Fatalf("alice balance=%v want 0 (lost update or overdraft)", a.Balance)
	}
	if b.Balance != 2*StartingBalance {
		t.Fatalf("bob balance=%v want %v", b.Balance, 2*StartingBalance)
	}
}

// ---- harness ----

func mustNewAccountStore(t *testing.T, pool *pgxpool.Pool, schema string) *PostgresStore {
	t.Helper()

	s, err := NewPostgresStore(pool, WithSchema(schema))
	if err != nil {
		t.Fatalf("NewPostgresStore: %v", err)
	}
	return s
}

func mustOpenTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	raw := strings.TrimSpace(os.Getenv("KODBANK_DATABASE_URL"))
	if raw == "" {
		t.Skip("integration test skipped: KODBANK_DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 12*time.Second)
	defer cancel()

	cfg, err := pgxpool.ParseConfig(raw)
	if err != nil {
		t.Fatalf("parse KODBANK_DATABASE_URL: %v", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}

	// Validate acquire quickly (fast fail).
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer pingCancel()

	c, err := pool.Acquire(pingCtx)
	if err != nil {
		pool.Close()
		if shouldSkipIntegration(err) {
			t.Skipf("integration test skipped: Postgres unreachable (KODBANK_DATABASE_URL set): %v", err)
		}
		t.Fatalf("acquire: %v", err)
	}
	c.Release()

	return pool
}

func mustCreateTestSchema(t *testing.T, pool *pgxpool.Pool) string {
	t.Helper()

	id, err := NewULID(time.Now().UTC())
	if err != nil {
		t.Fatalf("ulid: %v", err)
	}
	schema := "bank_it_" + strings.ToLower(id)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := pool.Exec(ctx, `CREATE SCHEMA `+pgx.Identifier{schema}.Sanitize()); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	return schema
}

func mustDropSchema(t *testing.T, pool *pgxpool.Pool, schema string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := pool.Exec(ctx, `DROP SCHEMA IF EXISTS `+pgx.Identifier{schema}.Sanitize()+` CASCADE`); err != nil {
		t.Fatalf("drop schema: %v", err)
	}
}

func mustApplyBankSchema(t *testing.T, pool *pgxpool.Pool, schema string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	accounts := pgIdent(schema, "accounts")

	schemaSQL := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  email TEXT NOT NULL,
  email_norm TEXT NOT NULL,
  password_hash TEXT NOT NULL,
  balance DOUBLE PRECISION NOT NULL DEFAULT 1000.0,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),

  CONSTRAINT chk_accounts_id_ulid_len CHECK (char_length(id) = 26),
  CONSTRAINT chk_accounts_balance_nonneg CHECK (balance >= 0),
  CONSTRAINT uq_accounts_email_norm UNIQUE (email_norm)
);
`, accounts)

	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
}

func shouldSkipIntegration(err error) bool {
	if err == nil {
		return false
	}
	if strings.TrimSpace(os.Getenv("CI")) != "" {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	s := err.Error()
	return strings.Contains(s, "connection refused") ||
		strings.Contains(s, "no such host") ||
		strings.Contains(s, "context deadline exceeded")
}
