package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port     string
	APIToken string

	DBHost string
	DBPort string
	DBName string
	DBUser string
	DBPass string

	// DBMaxOpenConns is the maximum number of open connections to the database (default 25).
	DBMaxOpenConns int
	// DBMaxIdleConns is the maximum number of idle connections (default 5).
	DBMaxIdleConns int

	JWTSecret string

	// Env is "dev" (default) or "prod". When "prod", JWT_SECRET must be set and not the default,
	// and a missing signing key is fatal instead of being generated.
	Env string

	// JWTExpireHours is the token lifetime in hours (default 24). Set via JWT_EXPIRE_HOURS.
	JWTExpireHours int

	// SigningKeyFile is the PEM-encoded RSA key used to sign ledger blocks.
	SigningKeyFile string

	// IngestQueueSize bounds the ingestion queue; submissions beyond it are
	// rejected with a retryable error (default 1024).
	IngestQueueSize int

	// AnomalyWindow is the sliding window for per-actor counters (default 1h).
	AnomalyWindow time.Duration
	// AnomalyThreshold is the per (actor, event type) count that triggers an
	// alert inside the window (default 10).
	AnomalyThreshold int

	// MirrorEndpoint is the optional secondary-ledger base URL. Empty means
	// the no-op adapter: primary commits proceed without mirroring.
	MirrorEndpoint string
	// MirrorTimeout is the per-call timeout for mirror writes (default 5s).
	MirrorTimeout time.Duration

	// VerifyCronSpec schedules periodic chain verification (default hourly).
	VerifyCronSpec string

	// TLSCertFile and TLSKeyFile enable HTTPS when both are set.
	// When empty, the API listens with plain HTTP.
	TLSCertFile string
	TLSKeyFile  string

	// LogFormat is "text" (default) or "json" for structured logging.
	LogFormat string

	// CORSAllowedOrigins is a list of origins allowed for CORS (e.g. https://app.example.com, http://localhost:3000).
	// Set via CORS_ALLOWED_ORIGINS (comma-separated). When empty, no CORS headers are sent (same-origin only).
	CORSAllowedOrigins []string
}

func Load() Config {
	return Config{
		Port:     getEnv("PORT", "8080"),
		APIToken: getEnv("API_TOKEN", "dev-token"),

		DBHost: getEnv("DB_HOST", "localhost"),
		DBPort: getEnv("DB_PORT", "5432"),
		DBName: getEnv("DB_NAME", "ledgerdb"),
		DBUser: getEnv("DB_USER", "ledgeruser"),
		DBPass: getEnv("DB_PASS", "ledgerpass"),

		DBMaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
		DBMaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 5),

		JWTSecret:      getEnv("JWT_SECRET", "supersecretkey"),
		Env:            getEnv("ENV", "dev"),
		JWTExpireHours: getEnvInt("JWT_EXPIRE_HOURS", 24),

		SigningKeyFile: getEnv("SIGNING_KEY_FILE", "ledger_signing_key.pem"),

		IngestQueueSize: getEnvInt("INGEST_QUEUE_SIZE", 1024),

		AnomalyWindow:    time.Duration(getEnvInt("ANOMALY_WINDOW_MINUTES", 60)) * time.Minute,
		AnomalyThreshold: getEnvInt("ANOMALY_THRESHOLD", 10),

		MirrorEndpoint: getEnv("MIRROR_ENDPOINT", ""),
		MirrorTimeout:  time.Duration(getEnvInt("MIRROR_TIMEOUT_SECONDS", 5)) * time.Second,

		VerifyCronSpec: getEnv("VERIFY_CRON_SPEC", "0 * * * *"),

		// Optional TLS configuration for HTTPS.
		TLSCertFile: getEnv("TLS_CERT_FILE", ""),
		TLSKeyFile:  getEnv("TLS_KEY_FILE", ""),

		LogFormat: getEnv("LOG_FORMAT", "text"),

		CORSAllowedOrigins: parseCORSOrigins(getEnv("CORS_ALLOWED_ORIGINS", "")),
	}
}

// parseCORSOrigins splits a comma-separated list of origins and trims spaces. Empty strings are omitted.
func parseCORSOrigins(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if o := strings.TrimSpace(p); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
