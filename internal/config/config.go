package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Spend ledger backends.
const (
	LedgerPostgres = "postgres"
	LedgerRedis    = "redis"
)

// Config holds application configuration derived from environment variables.
type Config struct {
	Port             string
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	RedisAddr        string
	ClickHouseDSN    string
	PostgresDSN      string
	GeoIPDB          string
	DebugTrace       bool
	ReloadInterval   time.Duration
	TokenSecret      string
	TokenTTL         time.Duration
	WinNoticeBaseURL string
	ServiceName      string
	// Auction behaviour
	AuctionFailOpen   bool
	AuctionTimeout    time.Duration
	MacroStrictMode   bool
	SpendLedger       string
	AnalyticsEnabled  bool
	RedisReloadNotify bool
	// Per-zone admission control on /bid
	ZoneRateLimitEnabled  bool
	ZoneRateLimitCapacity int
	ZoneRateLimitRefill   int
	// Database connection pooling configuration
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration
	DBConnMaxIdleTime time.Duration
	// ClickHouse connection pooling configuration
	CHMaxOpenConns    int
	CHMaxIdleConns    int
	CHConnMaxLifetime time.Duration
	CHConnMaxIdleTime time.Duration
	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64
}

// Load parses environment variables and returns a Config populated with
// defaults when variables are absent.
func Load() Config {
	cfg := Config{}

	cfg.Port = getenv("PORT", "8787")
	cfg.ReadTimeout = envDuration("READ_TIMEOUT", 5*time.Second)
	cfg.WriteTimeout = envDuration("WRITE_TIMEOUT", 10*time.Second)
	cfg.RedisAddr = getenv("REDIS_ADDR", "localhost:6379")
	cfg.ClickHouseDSN = getenv("CLICKHOUSE_DSN", "clickhouse://default:@localhost:9000/default?async_insert=1&wait_for_async_insert=1")
	cfg.PostgresDSN = getenv("POSTGRES_DSN", "postgres://postgres@127.0.0.1:5432/postgres?sslmode=disable")
	cfg.GeoIPDB = getenv("GEOIP_DB", "internal/geoip/testdata/GeoLite2-Country.mmdb")
	cfg.DebugTrace = envBool("DEBUG_TRACE", false)
	// default to 30 seconds between automatic reloads
	cfg.ReloadInterval = envDuration("RELOAD_INTERVAL", 30*time.Second)
	cfg.TokenSecret = getenv("TOKEN_SECRET", "")
	cfg.TokenTTL = envDuration("TOKEN_TTL", 30*time.Minute)
	cfg.WinNoticeBaseURL = getenv("WIN_NOTICE_BASE_URL", "http://localhost:8787")
	cfg.ServiceName = getenv("SERVICE_NAME", "rtbengine")

	cfg.AuctionFailOpen = envBool("AUCTION_FAIL_OPEN", true)
	// soft ceiling on the whole request, enforced by the HTTP layer
	cfg.AuctionTimeout = envDuration("AUCTION_TIMEOUT", 1*time.Second)
	cfg.MacroStrictMode = envBool("MACRO_STRICT_MODE", false)
	cfg.SpendLedger = strings.ToLower(getenv("SPEND_LEDGER", LedgerPostgres))
	cfg.AnalyticsEnabled = envBool("ANALYTICS_ENABLED", true)
	cfg.RedisReloadNotify = envBool("REDIS_RELOAD_NOTIFY", true)

	cfg.ZoneRateLimitEnabled = envBool("ZONE_RATE_LIMIT_ENABLED", false)
	cfg.ZoneRateLimitCapacity = envInt("ZONE_RATE_LIMIT_CAPACITY", 200)
	cfg.ZoneRateLimitRefill = envInt("ZONE_RATE_LIMIT_REFILL", 100)

	// Database connection pooling configuration
	cfg.DBMaxOpenConns = envInt("DB_MAX_OPEN_CONNS", 25)
	cfg.DBMaxIdleConns = envInt("DB_MAX_IDLE_CONNS", 5)
	cfg.DBConnMaxLifetime = envDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	cfg.DBConnMaxIdleTime = envDuration("DB_CONN_MAX_IDLE_TIME", 1*time.Minute)

	// ClickHouse connection pooling configuration
	// Default to higher values than PostgreSQL due to async insert patterns and high event volume
	cfg.CHMaxOpenConns = envInt("CH_MAX_OPEN_CONNS", 100)
	cfg.CHMaxIdleConns = envInt("CH_MAX_IDLE_CONNS", 25)
	cfg.CHConnMaxLifetime = envDuration("CH_CONN_MAX_LIFETIME", 5*time.Minute)
	cfg.CHConnMaxIdleTime = envDuration("CH_CONN_MAX_IDLE_TIME", 1*time.Minute)

	// Tracing configuration
	cfg.TracingEnabled = envBool("TRACING_ENABLED", false)
	cfg.OTLPEndpoint = getenv("OTLP_ENDPOINT", "tempo:4317")
	cfg.TracingSampleRate = envFloat("TRACING_SAMPLE_RATE", 1.0) // Default to 100% sampling for dev

	return cfg
}

// Validate reports configuration combinations the server cannot run with.
func (c Config) Validate() error {
	switch c.SpendLedger {
	case LedgerPostgres, LedgerRedis:
	default:
		return fmt.Errorf("SPEND_LEDGER must be %q or %q, got %q", LedgerPostgres, LedgerRedis, c.SpendLedger)
	}
	if c.TracingSampleRate < 0 || c.TracingSampleRate > 1 {
		return fmt.Errorf("TRACING_SAMPLE_RATE must be within [0,1], got %v", c.TracingSampleRate)
	}
	if c.ZoneRateLimitEnabled && (c.ZoneRateLimitCapacity <= 0 || c.ZoneRateLimitRefill < 0) {
		return fmt.Errorf("ZONE_RATE_LIMIT_CAPACITY must be positive and ZONE_RATE_LIMIT_REFILL non-negative")
	}
	if c.AuctionTimeout <= 0 {
		return fmt.Errorf("AUCTION_TIMEOUT must be positive, got %v", c.AuctionTimeout)
	}
	return nil
}

// getenv returns the value of the environment variable if set, otherwise def.
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// envDuration parses an environment variable into a time.Duration.
// The value can be a duration string (e.g. "5s") or a number of seconds.
// If the variable is unset or invalid, def is returned.
func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return def
}

// envBool parses a boolean environment variable. Accepted values are those
// supported by strconv.ParseBool. When unset or invalid, def is returned.
func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	return def
}

// envInt parses an integer environment variable. When unset or invalid, def is returned.
func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if i, err := strconv.Atoi(v); err == nil {
		return i
	}
	return def
}

// envFloat parses a float64 environment variable. When unset or invalid, def is returned.
func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return def
}
