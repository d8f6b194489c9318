package session

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config defines runtime configuration for the session subsystem.
//
// It is environment-driven so deployments can tune token lifetime and entropy
// without code changes.
type Config struct {
	// TokenTTL is the session lifetime. A session is valid strictly before
	// issue time + TokenTTL.
	TokenTTL time.Duration

	// TokenBytes is the number of random bytes behind each opaque token.
	TokenBytes int
}

// DefaultConfig returns the baseline: 24h tokens with 32 bytes of entropy.
func DefaultConfig() Config {
	return Config{
		TokenTTL:   24 * time.Hour,
		TokenBytes: 32,
	}
}

// LoadConfigFromEnv loads Config from environment variables with defaults.
//
// Env surface:
// - KODBANK_SESSION_TTL (Go duration, e.g. "24h")
// - KODBANK_SESSION_TOKEN_BYTES (16..256)
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v, ok := os.LookupEnv("KODBANK_SESSION_TTL"); ok {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil || d <= 0 {
			return Config{}, fmt.Errorf("%w: KODBANK_SESSION_TTL=%q", ErrConfig, v)
		}
		cfg.TokenTTL = d
	}

	if v, ok := os.LookupEnv("KODBANK_SESSION_TOKEN_BYTES"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || n < 16 || n > 256 {
			return Config{}, fmt.Errorf("%w: KODBANK_SESSION_TOKEN_BYTES=%q", ErrConfig, v)
		}
		cfg.TokenBytes = n
	}

	return cfg, nil
}
