package app

import "time"

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

	DatabaseURL string
	DBSchema    string
	DBMaxConns  int32
	DBMinConns  int32

	// Shadow-copy lifetime for last-known locations in the durable store.
	LocationTTL time.Duration

	// If true:
	// - /readyz returns 503 unless DB is configured and reachable.
	ReadinessRequireDB bool
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  EnvString("VICINITY_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("VICINITY_LOG_LEVEL", "info"),
		LogFormat: EnvString("VICINITY_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("VICINITY_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("VICINITY_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("VICINITY_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("VICINITY_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("VICINITY_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("VICINITY_DATABASE_URL", ""),
		DBSchema:    EnvString("VICINITY_DB_SCHEMA", "vicinity"),
		DBMaxConns:  EnvInt32("VICINITY_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("VICINITY_DB_MIN_CONNS", 0),

		LocationTTL: EnvDuration("VICINITY_LOCATION_TTL", 7*24*time.Hour),

		ReadinessRequireDB: EnvBool("VICINITY_READINESS_REQUIRE_DB", false),
	}
}
