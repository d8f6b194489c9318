package account

import (
	"context"
	"sync"

	"kodbank/cmd/security/password"
)

// Credential derivation is Argon2id via cmd/security/password, the single
// source of truth for parameters (defaults + env overrides). The account
// package must not silently drift from that configuration.

// HashPassword returns a PHC-style Argon2id hash string for storage.
func HashPassword(plain string) (string, error) {
	cfg, err := password.FromEnv()
	if err != nil {
		// Treat invalid env as an operational error, not a weak fallback.
		return "", err
	}
	return cfg.Hash(plain)
}

// VerifyPassword re-derives the credential from plain using the salt and cost
// parameters pinned in the stored hash, and compares in constant time.
func VerifyPassword(plain, encodedPHC string) (bool, error) {
	cfg, err := password.FromEnv()
	if err != nil {
		return false, err
	}
	return cfg.Verify(encodedPHC, plain)
}

// dummyVerifyHash is a fixed-cost hash used to equalize login timing when the
// email is unknown. Computed once per process.
var dummyVerifyHash = sync.OnceValue(func() string {
	h, err := HashPassword("dummy-password-for-timing-only")
	if err != nil {
		return ""
	}
	return h
})

// FindByCredentials resolves an account by email + password.
//
// Unknown email and wrong password are indistinguishable to the caller: both
// return ErrNotFound, and the unknown-email path still performs a dummy
// Argon2id verification so response timing does not leak which case occurred.
func FindByCredentials(ctx context.Context, s Store, email, plain string) (Account, error) {
	const op = "account.FindByCredentials"

	acct, err := s.GetByEmail(ctx, email)
	if err != nil {
		if IsNotFound(err) {
			if dh := dummyVerifyHash(); dh != "" {
				_, _ = VerifyPassword(plain, dh)
			}
			return Account{}, NotFoundError{Op: op, Resource: "account"}
		}
		return Account{}, err
	}

	ok, err := VerifyPassword(plain, acct.PasswordHash)
	if err != nil || !ok {
		return Account{}, NotFoundError{Op: op, Resource: "account"}
	}

	return acct, nil
}
