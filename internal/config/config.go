// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads gatekeep configuration from defaults, a YAML file,
// the environment and command-line flags, in increasing precedence.
package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/holomush/gatekeep/internal/auth"
)

// Environment variables consulted after the config file.
const (
	EnvSessionSecret = "GATEKEEP_SESSION_SECRET"
	EnvDatabaseURL   = "DATABASE_URL"
)

// Config is the full gatekeep configuration.
type Config struct {
	DatabaseURL string         `koanf:"database_url"`
	LogFormat   string         `koanf:"log_format"`
	MetricsAddr string         `koanf:"metrics_addr"`
	Session     SessionConfig  `koanf:"session"`
	Reset       ResetConfig    `koanf:"reset"`
	Throttle    ThrottleConfig `koanf:"throttle"`
	SMTP        SMTPConfig     `koanf:"smtp"`
	Janitor     JanitorConfig  `koanf:"janitor"`
}

// SessionConfig configures the session token minter.
type SessionConfig struct {
	Secret string        `koanf:"secret"`
	TTL    time.Duration `koanf:"ttl"`
	Issuer string        `koanf:"issuer"`
}

// ResetConfig configures the password reset protocol.
type ResetConfig struct {
	TTL      time.Duration `koanf:"ttl"`
	LinkBase string        `koanf:"link_base"`
}

// ThrottleConfig configures the login throttle.
type ThrottleConfig struct {
	Enabled       bool   `koanf:"enabled"`
	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`
}

// SMTPConfig configures reset mail delivery. An empty Host selects the
// console notifier.
type SMTPConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	From     string `koanf:"from"`
	FromName string `koanf:"from_name"`
	UseTLS   bool   `koanf:"use_tls"`
}

// JanitorConfig configures the expired reset sweeper.
type JanitorConfig struct {
	Interval time.Duration `koanf:"interval"`
}

// Defaults returns the built-in configuration.
func Defaults() map[string]any {
	return map[string]any{
		"log_format":       "json",
		"metrics_addr":     "127.0.0.1:9100",
		"session.ttl":      auth.SessionTokenExpiry,
		"session.issuer":   auth.DefaultTokenIssuer,
		"reset.ttl":        auth.ResetTokenExpiry,
		"throttle.enabled": true,
		"smtp.port":        587,
		"janitor.interval": auth.DefaultSweepInterval,
	}
}

// FlagKeys maps command-line flag names to config keys. Only flags listed
// here and explicitly set by the user override lower layers.
var FlagKeys = map[string]string{
	"database-url": "database_url",
	"log-format":   "log_format",
	"metrics-addr": "metrics_addr",
	"session-ttl":  "session.ttl",
	"reset-ttl":    "reset.ttl",
	"throttle":     "throttle.enabled",
	"redis-addr":   "throttle.redis_addr",
	"interval":     "janitor.interval",
}

// Load builds a Config. path may be empty; a missing file at path is an
// error only when required is true. flags may be nil.
func Load(path string, required bool, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	for key, val := range Defaults() {
		if err := k.Set(key, val); err != nil {
			return nil, oops.Code("CONFIG_DEFAULTS_FAILED").With("key", key).Wrap(err)
		}
	}

	if path != "" {
		if err := loadFile(k, path, required); err != nil {
			return nil, err
		}
	}

	if v := os.Getenv(EnvSessionSecret); v != "" {
		_ = k.Set("session.secret", v) //nolint:errcheck // Set on a plain string key cannot fail
	}
	if v := os.Getenv(EnvDatabaseURL); v != "" {
		_ = k.Set("database_url", v) //nolint:errcheck // Set on a plain string key cannot fail
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			key, ok := FlagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_FLAGS_FAILED").Wrap(err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, oops.Code("CONFIG_DECODE_FAILED").Wrap(err)
	}
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(cfg.LogFormat))
	return &cfg, nil
}

// loadFile merges the YAML file at path into k after checking it against the
// config schema.
func loadFile(k *koanf.Koanf, path string, required bool) error {
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if required || !errors.Is(err, fs.ErrNotExist) {
			return oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
		}
		return nil
	}

	data, err := os.ReadFile(path) //nolint:gosec // path is operator supplied
	if err != nil {
		return oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
	}
	if err := ValidateDocument(data); err != nil {
		return oops.With("path", path).Wrap(err)
	}
	return nil
}

// Validate checks the fields every command relies on.
func (c *Config) Validate() error {
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return oops.Code("CONFIG_INVALID").
			With("field", "log_format").
			Errorf("log_format must be 'json' or 'text', got %q", c.LogFormat)
	}
	if c.Session.TTL <= 0 {
		return oops.Code("CONFIG_INVALID").With("field", "session.ttl").Errorf("session.ttl must be positive")
	}
	if c.Reset.TTL <= 0 {
		return oops.Code("CONFIG_INVALID").With("field", "reset.ttl").Errorf("reset.ttl must be positive")
	}
	if c.Janitor.Interval <= 0 {
		return oops.Code("CONFIG_INVALID").With("field", "janitor.interval").Errorf("janitor.interval must be positive")
	}
	return nil
}

// ValidateForAuth additionally checks what the auth commands need.
func (c *Config) ValidateForAuth() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.DatabaseURL == "" {
		return oops.Code("CONFIG_INVALID").
			With("field", "database_url").
			Errorf("database_url is required (or set %s)", EnvDatabaseURL)
	}
	if len(c.Session.Secret) < auth.MinSessionSecretSize {
		return oops.Code("CONFIG_INVALID").
			With("field", "session.secret").
			Errorf("session.secret must be at least %d bytes (or set %s)", auth.MinSessionSecretSize, EnvSessionSecret)
	}
	if c.Throttle.Enabled && c.Throttle.RedisDB < 0 {
		return oops.Code("CONFIG_INVALID").With("field", "throttle.redis_db").Errorf("throttle.redis_db must be non-negative")
	}
	return nil
}
