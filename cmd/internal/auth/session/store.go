package session

import (
	"context"
	"time"
)

// Row is a persisted session record.
// IMPORTANT: TokenHash is stored server-side; the plain token is never stored.
type Row struct {
	TokenHash string
	AccountID string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Store is the session persistence boundary.
//
// Contract:
//   - Insert persists a new row (token hashes are unique by construction;
//     a collision is an error, not an upsert).
//   - GetByTokenHash returns ErrInvalidToken when no row matches. It does NOT
//     check expiry; that is the Manager's job (lazy, at read time).
//   - Delete is idempotent: deleting an unknown hash is not an error.
//   - DeleteExpired removes rows with expires_at <= now and reports how many.
type Store interface {
	Insert(ctx context.Context, row Row) error
	GetByTokenHash(ctx context.Context, tokenHash string) (Row, error)
	Delete(ctx context.Context, tokenHash string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
