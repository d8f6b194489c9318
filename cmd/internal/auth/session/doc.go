// Package session implements KodBank's bearer-session subsystem.
//
// A session is an opaque random token bound to exactly one account, valid
// strictly before its expiry instant. The plain token lives only on the
// client; the server persists a hash (cmd/security/token). Expiry is checked
// lazily at resolution time; PurgeExpired exists for out-of-band hygiene and
// is not part of the correctness contract.
package session
