// Package account implements KodBank's credential store: the single data
// authority for identity records (name, email, password credential) and
// account balances.
//
// It contains the balance-mutation primitives (single-account adjust and the
// atomic pairwise transfer), security primitives (ULID ids, Argon2id
// credential hashing), and the store interface used by the HTTP and
// WebSocket layers.
//
// The package knows nothing about sessions or transfer policy; those live in
// cmd/internal/auth/session and cmd/internal/ledger respectively.
package account
