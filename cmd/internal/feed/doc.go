// Package feed streams balance events to connected clients over WebSocket.
//
// Delivery is best-effort: the feed is fed after a transfer commits and is
// never part of the transfer's atomicity contract. A slow client loses
// events rather than blocking the ledger.
package feed
