package session

import "errors"

var (
	// ErrInvalidToken is returned when a token does not match any session.
	ErrInvalidToken = errors.New("invalid token")

	// ErrExpiredToken is returned when the session exists but now >= expiry.
	// Callers treat it identically to ErrInvalidToken (both are
	// "unauthenticated"); the distinction exists for logging and tests.
	ErrExpiredToken = errors.New("expired token")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)
