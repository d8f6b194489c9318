package session

import (
	"context"
	"strings"
	"time"

	"kodbank/cmd/account"
	"kodbank/cmd/security/token"
)

// AccountReader is the slice of the credential store the session subsystem
// needs: resolving an account id to its current identity snapshot.
type AccountReader interface {
	GetByID(ctx context.Context, id string) (account.Account, error)
}

// Identity is the authenticated view of an account at resolution time.
// Balance is read from the credential store when the token is resolved, not
// cached from issue time.
type Identity struct {
	AccountID string
	Name      string
	Email     string
	Balance   float64
}

// Issued is the result of issuing a session. Token is the plain bearer token;
// it must be shown to the client exactly once and never logged.
type Issued struct {
	Token     string
	AccountID string
	ExpiresAt time.Time
}

// Manager implements the high-level session operations: issue, resolve,
// revoke, and expired-row purging.
type Manager struct {
	cfg      Config
	store    Store
	accounts AccountReader
}

// NewManager constructs a Manager with the provided configuration and stores.
func NewManager(cfg Config, store Store, accounts AccountReader) *Manager {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = DefaultConfig().TokenTTL
	}
	if cfg.TokenBytes <= 0 {
		cfg.TokenBytes = DefaultConfig().TokenBytes
	}
	return &Manager{cfg: cfg, store: store, accounts: accounts}
}

// Issue creates a new session for accountID and returns the plain token.
// Every login gets a fresh session; existing sessions for the account are
// left untouched (one account may hold several concurrent valid sessions).
func (m *Manager) Issue(ctx context.Context, now time.Time, accountID string) (Issued, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	plain, err := token.NewOpaque(m.cfg.TokenBytes)
	if err != nil {
		return Issued{}, err
	}

	expiresAt := now.Add(m.cfg.TokenTTL)

	err = m.store.Insert(ctx, Row{
		TokenHash: token.HashSessionTokenHex(plain),
		AccountID: accountID,
		CreatedAt: now,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		return Issued{}, err
	}

	return Issued{Token: plain, AccountID: accountID, ExpiresAt: expiresAt}, nil
}

// Resolve answers "who does this token belong to".
//
// Expiry is checked here, lazily: an expired row stays in storage (until
// Revoke or PurgeExpired) but never authenticates. The returned identity
// carries the account's balance as of this lookup.
func (m *Manager) Resolve(ctx context.Context, now time.Time, plainToken string) (Identity, error) {
	plainToken = strings.TrimSpace(plainToken)
	// Sanity bounds to avoid hashing pathological inputs.
	if plainToken == "" || len(plainToken) > 4096 {
		return Identity{}, ErrInvalidToken
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	row, err := m.store.GetByTokenHash(ctx, token.HashSessionTokenHex(plainToken))
	if err != nil {
		return Identity{}, err
	}

	// Valid strictly before expiry.
	if !now.Before(row.ExpiresAt) {
		return Identity{}, ErrExpiredToken
	}

	acct, err := m.accounts.GetByID(ctx, row.AccountID)
	if err != nil {
		// Accounts are never deleted in this system; a dangling session is
		// treated as unauthenticated rather than surfaced as a server fault.
		if account.IsNotFound(err) {
			return Identity{}, ErrInvalidToken
		}
		return Identity{}, err
	}

	return Identity{
		AccountID: acct.ID,
		Name:      acct.Name,
		Email:     acct.Email,
		Balance:   acct.Balance,
	}, nil
}

// Revoke deletes the session bound to plainToken. Idempotent: revoking an
// unknown or already-revoked token succeeds.
func (m *Manager) Revoke(ctx context.Context, plainToken string) error {
	plainToken = strings.TrimSpace(plainToken)
	if plainToken == "" || len(plainToken) > 4096 {
		return nil
	}
	return m.store.Delete(ctx, token.HashSessionTokenHex(plainToken))
}

// PurgeExpired deletes sessions past expiry. Storage hygiene only; resolution
// correctness never depends on it running.
func (m *Manager) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return m.store.DeleteExpired(ctx, now)
}
