package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "memory")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, BackendMemory, cfg.StorageBackend)
	assert.Equal(t, 3, cfg.AdmitAttempts)
	assert.Equal(t, 50*time.Millisecond, cfg.AdmitBaseDelay)
	assert.Equal(t, 5*time.Minute, cfg.ReconcileInterval)
	assert.False(t, cfg.TrustProxyHeaders)
	assert.False(t, cfg.AlertsEnabled())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "MEMORY")
	t.Setenv("APP_PORT", "9090")
	t.Setenv("TALLY_ATTEMPTS", "7")
	t.Setenv("PHASE_SWEEP_INTERVAL", "2s")
	t.Setenv("TELEGRAM_BOT_ID", "bot")
	t.Setenv("TELEGRAM_CHAT_ID", "42")
	t.Setenv("TRUST_PROXY_HEADERS", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 7, cfg.TallyAttempts)
	assert.Equal(t, 2*time.Second, cfg.PhaseSweepInterval)
	assert.Equal(t, BackendMemory, cfg.StorageBackend)
	assert.True(t, cfg.TrustProxyHeaders)
	assert.True(t, cfg.AlertsEnabled())
}

func TestValidateRejectsBadValues(t *testing.T) {
	valid := Config{
		Port:               "8080",
		DB_DSN:             "postgres://x",
		StorageBackend:     BackendPostgres,
		JWTSecret:          "s",
		AdmitAttempts:      1,
		TallyAttempts:      1,
		PhaseSweepInterval: time.Second,
		ReconcileInterval:  time.Second,
		VoteRatePerMinute:  1,
		VoteRateBurst:      1,
		LogLevel:           "info",
		LogFormat:          "json",
	}
	require.NoError(t, valid.Validate())

	cases := map[string]func(*Config){
		"unknown backend":   func(c *Config) { c.StorageBackend = "mysql" },
		"missing dsn":       func(c *Config) { c.DB_DSN = "" },
		"unknown ballots":   func(c *Config) { c.BallotBackend = "redis" },
		"dynamo no table":   func(c *Config) { c.BallotBackend = BackendDynamo },
		"zero attempts":     func(c *Config) { c.TallyAttempts = 0 },
		"no secret":         func(c *Config) { c.JWTSecret = "" },
		"bad level":         func(c *Config) { c.LogLevel = "loud" },
		"bad format":        func(c *Config) { c.LogFormat = "xml" },
		"zero sweep period": func(c *Config) { c.PhaseSweepInterval = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := valid
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
