package app

import (
	"os"
	"strings"
	"time"
)

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	// DatabaseURL selects the persistence mode: empty runs the in-memory dev
	// stores, non-empty runs Postgres.
	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	// DBMigrate applies the idempotent schema DDL at startup.
	DBMigrate bool

	// If true:
	// - /readyz returns 503 unless DB is configured and reachable.
	ReadinessRequireDB bool

	// Security policy:
	// If true, KODBANK_TOKEN_HMAC_KEY MUST be set (>= 32 bytes) and session
	// token hashing must be HMAC-based.
	RequireTokenHMAC bool

	// SessionPurgeInterval drives the expired-session reaper; 0 disables it.
	// Expiry correctness never depends on the reaper (checked at resolve time).
	SessionPurgeInterval time.Duration

	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAgeSeconds    int
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	cfg := Config{
		HTTPAddr:  EnvString("KODBANK_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("KODBANK_LOG_LEVEL", "info"),
		LogFormat: EnvString("KODBANK_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("KODBANK_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("KODBANK_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("KODBANK_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("KODBANK_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("KODBANK_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("KODBANK_DATABASE_URL", ""),
		DBMaxConns:  EnvInt32("KODBANK_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("KODBANK_DB_MIN_CONNS", 0),
		DBMigrate:   EnvBool("KODBANK_DB_MIGRATE", true),

		ReadinessRequireDB: EnvBool("KODBANK_READINESS_REQUIRE_DB", false),

		RequireTokenHMAC: EnvBool("KODBANK_REQUIRE_TOKEN_HMAC", false),

		SessionPurgeInterval: EnvDuration("KODBANK_SESSION_PURGE_INTERVAL", time.Hour),

		CORSAllowedOrigins:   EnvCSV("KODBANK_CORS_ALLOWED_ORIGINS", ""),
		CORSAllowCredentials: EnvBool("KODBANK_CORS_ALLOW_CREDENTIALS", false),
		CORSMaxAgeSeconds:    EnvInt("KODBANK_CORS_MAX_AGE_SECONDS", 600),
	}

	// "0" (or "off") disables the reaper; EnvDuration treats non-positive
	// values as unset, so handle the sentinel here.
	if v := strings.TrimSpace(os.Getenv("KODBANK_SESSION_PURGE_INTERVAL")); v == "0" || strings.EqualFold(v, "off") {
		cfg.SessionPurgeInterval = 0
	}

	return cfg
}
