// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pinvent Contributors

// Package config loads pinvent settings from a YAML file, PINVENT_*
// environment variables, and command-line flags, in increasing precedence.
package config

import (
	"net/url"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/robfig/cron/v3"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes environment overrides. A double underscore separates
// nesting levels: PINVENT_HTTP__ADDR sets http.addr.
const EnvPrefix = "PINVENT_"

// Environments.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// MinSecretLength is the minimum session secret size in bytes.
const MinSecretLength = 32

// Config is the complete runtime configuration. It is loaded once and passed
// by value.
type Config struct {
	Env         string         `koanf:"env"`
	FrontendURL string         `koanf:"frontend_url"`
	HTTP        HTTPConfig     `koanf:"http"`
	Log         LogConfig      `koanf:"log"`
	Database    DatabaseConfig `koanf:"database"`
	Redis       RedisConfig    `koanf:"redis"`
	Session     SessionConfig  `koanf:"session"`
	Mail        MailConfig     `koanf:"mail"`
	Metrics     MetricsConfig  `koanf:"metrics"`
	Jobs        JobsConfig     `koanf:"jobs"`
}

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Addr           string        `koanf:"addr"`
	ReadTimeout    time.Duration `koanf:"read_timeout"`
	WriteTimeout   time.Duration `koanf:"write_timeout"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
	CORSOrigins    []string      `koanf:"cors_origins"`
	// AuthRateLimit is the per-IP request budget per minute on auth routes.
	AuthRateLimit int `koanf:"auth_rate_limit"`
}

// LogConfig configures logging.
type LogConfig struct {
	Format string `koanf:"format"`
}

// DatabaseConfig configures Postgres.
type DatabaseConfig struct {
	URL             string `koanf:"url"`
	MaxConns        int32  `koanf:"max_conns"`
	AutoMigrate     bool   `koanf:"auto_migrate"`
	ConnectAttempts uint64 `koanf:"connect_attempts"`
}

// RedisConfig configures Redis. An empty Addr disables the logout denylist
// and the background worker.
type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

// SessionConfig configures session tokens.
type SessionConfig struct {
	Secret     string `koanf:"secret"`
	CookieName string `koanf:"cookie_name"`
}

// MailConfig configures outgoing mail. An empty Host logs messages instead
// of sending them, which is only allowed outside production.
type MailConfig struct {
	Host               string `koanf:"host"`
	Port               int    `koanf:"port"`
	Username           string `koanf:"username"`
	Password           string `koanf:"password"`
	From               string `koanf:"from"`
	SupportAddress     string `koanf:"support_address"`
	InsecureSkipVerify bool   `koanf:"insecure_skip_verify"`
}

// MetricsConfig configures the observability server. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// JobsConfig configures background jobs.
type JobsConfig struct {
	PurgeSchedule string `koanf:"purge_schedule"`
}

var defaults = map[string]any{
	"env":                       EnvDevelopment,
	"frontend_url":              "http://localhost:3000",
	"http.addr":                 ":5000",
	"http.read_timeout":         "10s",
	"http.write_timeout":        "15s",
	"http.request_timeout":      "30s",
	"http.cors_origins":         []string{"http://localhost:3000"},
	"http.auth_rate_limit":      20,
	"log.format":                "json",
	"database.max_conns":        10,
	"database.auto_migrate":     false,
	"database.connect_attempts": 5,
	"session.cookie_name":       "token",
	"mail.port":                 587,
	"metrics.addr":              "127.0.0.1:9100",
	"jobs.purge_schedule":       "*/15 * * * *",
}

// RegisterFlags adds the flag overrides to fs. Flag names are the dotted
// config keys.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("env", EnvDevelopment, "environment (development or production)")
	fs.String("http.addr", ":5000", "API listen address")
	fs.String("log.format", "json", "log format (json or text)")
	fs.String("database.url", "", "PostgreSQL connection URL")
	fs.Bool("database.auto_migrate", false, "apply pending migrations on startup")
	fs.String("redis.addr", "", "Redis address (empty disables the denylist and worker)")
	fs.String("metrics.addr", "127.0.0.1:9100", "metrics/health listen address (empty disables)")
}

// Load reads configuration from path (skipped when empty), the environment,
// and the changed flags of fs (may be nil), then validates it.
func Load(path string, fs *pflag.FlagSet) (Config, error) {
	cfg, err := load(path, fs)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadDatabase is Load for commands that only talk to Postgres. It checks
// database.url and nothing else.
func LoadDatabase(path string, fs *pflag.FlagSet) (DatabaseConfig, error) {
	cfg, err := load(path, fs)
	if err != nil {
		return DatabaseConfig{}, err
	}
	if cfg.Database.URL == "" {
		return DatabaseConfig{}, oops.Code("CONFIG_INVALID").With("key", "database.url").Errorf("database.url is required")
	}
	return cfg.Database, nil
}

func load(path string, fs *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")

	for key, v := range defaults {
		if err := k.Set(key, v); err != nil {
			return Config{}, oops.Code("CONFIG_LOAD_FAILED").With("key", key).Wrap(err)
		}
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return Config{}, oops.Code("CONFIG_LOAD_FAILED").With("source", "env").Wrap(err)
	}

	if fs != nil {
		if err := k.Load(posflag.Provider(fs, ".", k), nil); err != nil {
			return Config{}, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, oops.Code("CONFIG_LOAD_FAILED").With("operation", "unmarshal").Wrap(err)
	}
	return cfg, nil
}

// envKey maps PINVENT_MAIL__SUPPORT_ADDRESS to mail.support_address.
func envKey(s string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimPrefix(s, EnvPrefix), "__", "."))
}

// IsProduction reports whether the service runs in production mode.
func (c Config) IsProduction() bool {
	return c.Env == EnvProduction
}

// SupportInbox returns the contact-us recipient: mail.support_address, else
// mail.from, else a local placeholder for development.
func (c Config) SupportInbox() string {
	switch {
	case c.Mail.SupportAddress != "":
		return c.Mail.SupportAddress
	case c.Mail.From != "":
		return c.Mail.From
	default:
		return "support@localhost"
	}
}

// Validate checks the loaded values.
func (c Config) Validate() error {
	invalid := func(key, format string, args ...any) error {
		return oops.Code("CONFIG_INVALID").With("key", key).Errorf(format, args...)
	}

	if c.Env != EnvDevelopment && c.Env != EnvProduction {
		return invalid("env", "env must be %q or %q, got %q", EnvDevelopment, EnvProduction, c.Env)
	}
	if c.HTTP.Addr == "" {
		return invalid("http.addr", "http.addr is required")
	}
	if c.HTTP.AuthRateLimit <= 0 {
		return invalid("http.auth_rate_limit", "http.auth_rate_limit must be positive")
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return invalid("log.format", "log.format must be 'json' or 'text', got %q", c.Log.Format)
	}
	if c.Database.URL == "" {
		return invalid("database.url", "database.url is required")
	}
	if len(c.Session.Secret) < MinSecretLength {
		return invalid("session.secret", "session.secret must be at least %d bytes", MinSecretLength)
	}
	if c.Session.CookieName == "" {
		return invalid("session.cookie_name", "session.cookie_name is required")
	}
	if u, err := url.Parse(c.FrontendURL); err != nil || u.Scheme == "" || u.Host == "" {
		return invalid("frontend_url", "frontend_url must be an absolute URL, got %q", c.FrontendURL)
	}
	if c.Mail.Host == "" && c.IsProduction() {
		return invalid("mail.host", "mail.host is required in production")
	}
	if c.Mail.Host != "" && c.Mail.From == "" {
		return invalid("mail.from", "mail.from is required when mail.host is set")
	}
	if _, err := cron.ParseStandard(c.Jobs.PurgeSchedule); err != nil {
		return invalid("jobs.purge_schedule", "jobs.purge_schedule %q: %v", c.Jobs.PurgeSchedule, err)
	}
	return nil
}
