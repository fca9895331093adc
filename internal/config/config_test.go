package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "rallyd.db", cfg.Store.Path)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Server.DevMode)
	assert.False(t, cfg.SMSEnabled())
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("RALLYD_SERVER_PORT", "9090")
	t.Setenv("RALLYD_SERVER_DEV_MODE", "true")
	t.Setenv("RALLYD_STORE_DRIVER", "memory")
	t.Setenv("RALLYD_TWILIO_ACCOUNT_SID", "AC_test")
	t.Setenv("RALLYD_TWILIO_AUTH_TOKEN", "secret")
	t.Setenv("RALLYD_TWILIO_FROM_NUMBER", "+15550001111")
	t.Setenv("RALLYD_EXTRACTOR_MODEL", "gpt-4o")
	t.Setenv("RALLYD_LOGGING_FORMAT", "console")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.True(t, cfg.Server.DevMode)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, "AC_test", cfg.Twilio.AccountSID)
	assert.Equal(t, "gpt-4o", cfg.Extractor.Model)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.True(t, cfg.SMSEnabled())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port too low", func(c *Config) { c.Server.Port = 0 }},
		{"port too high", func(c *Config) { c.Server.Port = 70000 }},
		{"unknown driver", func(c *Config) { c.Store.Driver = "postgres" }},
		{"sqlite without path", func(c *Config) { c.Store.Path = "" }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "logfmt" }},
		{"zero concurrency", func(c *Config) { c.Dispatch.MaxConcurrent = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	assert.NoError(t, Default().Validate())
}
