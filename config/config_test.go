package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"PCS_DB", "PCS_PORT", "PCS_CACHE_TTL", "PCS_WARM_SCHEDULE", "PCS_CORS_ORIGINS", "PCS_AUTO_TRADE_CASH", "PCS_PORTFOLIO"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "portfolio.db", cfg.DB)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 10*time.Minute, cfg.CacheTTL)
	assert.True(t, cfg.AutoTradeCash)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Equal(t, "@every 15m", cfg.WarmSchedule)
	assert.Empty(t, cfg.Portfolio)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("PCS_DB", "/tmp/ledger.db")
	t.Setenv("PCS_PORT", "9090")
	t.Setenv("PCS_CACHE_TTL", "1m")
	t.Setenv("PCS_AUTO_TRADE_CASH", "false")
	t.Setenv("PCS_WARM_SCHEDULE", "0 18 * * 1-5")
	t.Setenv("PCS_CORS_ORIGINS", "http://a.example, http://b.example")
	t.Setenv("PCS_PORTFOLIO", "main")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/ledger.db", cfg.DB)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, time.Minute, cfg.CacheTTL)
	assert.False(t, cfg.AutoTradeCash)
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.CORSOrigins)
	assert.Equal(t, "main", cfg.Portfolio)

	opts := cfg.EngineOptions(cfg.Logger())
	assert.Equal(t, time.Minute, opts.CacheTTL)
	assert.False(t, opts.AutoTradeCash)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{DB: "x.db", Port: 8080, SnapshotAttempts: 3, AppendAttempts: 5, WarmSchedule: "@hourly"}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"no db", func(c *Config) { c.DB = "" }},
		{"port", func(c *Config) { c.Port = 70000 }},
		{"ttl", func(c *Config) { c.CacheTTL = -time.Second }},
		{"snapshot attempts", func(c *Config) { c.SnapshotAttempts = 0 }},
		{"append attempts", func(c *Config) { c.AppendAttempts = 0 }},
		{"schedule", func(c *Config) { c.WarmSchedule = "every day" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.modify(c)
			assert.Error(t, c.Validate())
		})
	}
}
