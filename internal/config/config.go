// Package config provides configuration loading for rallyd.
package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	"github.com/fyrsmithlabs/rallyd/internal/intent"
	"github.com/fyrsmithlabs/rallyd/internal/notify"
)

// envPrefix namespaces rallyd's environment variables.
const envPrefix = "RALLYD_"

// Config is the root configuration. Every field is settable through an
// environment variable: strip the prefix, uppercase, and join the section
// and field with an underscore (RALLYD_SERVER_PORT, RALLYD_TWILIO_AUTH_TOKEN).
type Config struct {
	Server    ServerConfig        `koanf:"server"`
	Store     StoreConfig         `koanf:"store"`
	Twilio    notify.TwilioConfig `koanf:"twilio"`
	Extractor intent.LLMConfig    `koanf:"extractor"`
	Dispatch  DispatchConfig      `koanf:"dispatch"`
	Logging   LoggingConfig       `koanf:"logging"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`

	// DevMode disables webhook signature validation. Never enable in
	// production.
	DevMode bool `koanf:"dev_mode"`

	ReadTimeoutSeconds  int `koanf:"read_timeout_seconds"`
	WriteTimeoutSeconds int `koanf:"write_timeout_seconds"`
}

// StoreConfig selects the record-store backend.
type StoreConfig struct {
	// Driver is "memory" or "sqlite".
	Driver string `koanf:"driver"`
	// Path is the SQLite database file; ignored for memory.
	Path string `koanf:"path"`
}

// DispatchConfig tunes the notification fan-out.
type DispatchConfig struct {
	MaxConcurrent int `koanf:"max_concurrent"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `koanf:"level"`
	// Format is "json" or "console".
	Format string `koanf:"format"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:                "0.0.0.0",
			Port:                8080,
			ReadTimeoutSeconds:  15,
			WriteTimeoutSeconds: 30,
		},
		Store: StoreConfig{
			Driver: "sqlite",
			Path:   "rallyd.db",
		},
		Extractor: intent.LLMConfig{
			Model: "gpt-4o-mini",
		},
		Dispatch: DispatchConfig{
			MaxConcurrent: 8,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads configuration from the environment on top of defaults.
//
// The transformer maps variables to config keys by stripping the prefix,
// lowercasing, and treating the first underscore as the section separator:
//
//	RALLYD_SERVER_PORT          -> server.port
//	RALLYD_TWILIO_ACCOUNT_SID   -> twilio.account_sid
//	RALLYD_EXTRACTOR_API_KEY    -> extractor.api_key
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
		return strings.Replace(s, "_", ".", 1)
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the daemon cannot start with. Missing
// Twilio credentials are allowed: the dispatcher degrades to skipping SMS
// with an explicit reason.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	switch c.Store.Driver {
	case "memory":
	case "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unknown store.driver %q", c.Store.Driver)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown logging.level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("unknown logging.format %q", c.Logging.Format)
	}
	if c.Dispatch.MaxConcurrent < 1 {
		return fmt.Errorf("dispatch.max_concurrent must be positive")
	}
	return nil
}

// SMSEnabled reports whether outbound SMS is fully configured. The
// dispatcher asks the transport directly; this exists for startup logging.
func (c *Config) SMSEnabled() bool {
	return c.Twilio.AccountSID != "" && c.Twilio.AuthToken != "" && c.Twilio.FromNumber != ""
}
