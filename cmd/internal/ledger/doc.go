// Package ledger implements the peer-to-peer transfer engine.
//
// The engine validates a transfer request in a fixed order, delegates the
// atomic debit+credit to the credential store, and maps store failures onto
// stable, client-facing error kinds.
package ledger
