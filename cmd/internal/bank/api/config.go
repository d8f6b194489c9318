package bankapi

import (
	"os"
	"strconv"
	"strings"
)

// Config controls bank API behavior and security defaults.
type Config struct {
	// TrustProxy enables X-Forwarded-For / X-Real-IP parsing for client IPs
	// in request logs. Only set behind a trusted reverse proxy.
	TrustProxy bool

	// MaxBodyBytes caps JSON request bodies.
	MaxBodyBytes int64
}

// LoadConfigFromEnv loads bank API config from environment variables with
// safe defaults.
func LoadConfigFromEnv() Config {
	cfg := Config{
		TrustProxy:   envBool("KODBANK_API_TRUST_PROXY", false),
		MaxBodyBytes: envInt64("KODBANK_API_MAX_BODY_BYTES", 1<<20), // 1 MiB
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	return cfg
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
