// Package bankapi exposes the banking HTTP surface: registration, login,
// balance lookup, peer-to-peer transfer, and logout. It is a thin layer over
// the account store, the session manager, and the ledger engine; all business
// rules live below it.
package bankapi
