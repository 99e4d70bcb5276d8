package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"PORT", "AUCTION_FAIL_OPEN", "SPEND_LEDGER", "TOKEN_TTL", "TRACING_SAMPLE_RATE"} {
		t.Setenv(k, "")
	}
	cfg := Load()
	assert.Equal(t, "8787", cfg.Port)
	assert.True(t, cfg.AuctionFailOpen)
	assert.Equal(t, LedgerPostgres, cfg.SpendLedger)
	assert.Equal(t, 30*time.Minute, cfg.TokenTTL)
	assert.Equal(t, time.Second, cfg.AuctionTimeout)
	require.NoError(t, cfg.Validate())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("AUCTION_FAIL_OPEN", "false")
	t.Setenv("SPEND_LEDGER", "Redis")
	t.Setenv("TOKEN_TTL", "90")
	t.Setenv("RELOAD_INTERVAL", "2m")
	t.Setenv("DB_MAX_OPEN_CONNS", "7")
	t.Setenv("TRACING_SAMPLE_RATE", "0.25")

	cfg := Load()
	assert.Equal(t, "9000", cfg.Port)
	assert.False(t, cfg.AuctionFailOpen)
	assert.Equal(t, LedgerRedis, cfg.SpendLedger)
	assert.Equal(t, 90*time.Second, cfg.TokenTTL)
	assert.Equal(t, 2*time.Minute, cfg.ReloadInterval)
	assert.Equal(t, 7, cfg.DBMaxOpenConns)
	assert.Equal(t, 0.25, cfg.TracingSampleRate)
	require.NoError(t, cfg.Validate())
}

func TestLoadInvalidValuesFallBack(t *testing.T) {
	t.Setenv("AUCTION_FAIL_OPEN", "maybe")
	t.Setenv("DB_MAX_OPEN_CONNS", "lots")
	t.Setenv("READ_TIMEOUT", "soon")

	cfg := Load()
	assert.True(t, cfg.AuctionFailOpen)
	assert.Equal(t, 25, cfg.DBMaxOpenConns)
	assert.Equal(t, 5*time.Second, cfg.ReadTimeout)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown ledger", func(c *Config) { c.SpendLedger = "memory" }},
		{"sample rate above one", func(c *Config) { c.TracingSampleRate = 1.5 }},
		{"zero timeout", func(c *Config) { c.AuctionTimeout = 0 }},
		{"rate limit without capacity", func(c *Config) {
			c.ZoneRateLimitEnabled = true
			c.ZoneRateLimitCapacity = 0
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Load()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
