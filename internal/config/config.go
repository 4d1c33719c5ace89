// Package config loads the server configuration.
//
// LOAD ORDER (later wins):
//  1. Built-in defaults (setDefaults)
//  2. config.yaml, if one is found on the search path
//  3. Environment variables prefixed with FORUM_, where nested keys use
//     underscores: session.ttl → FORUM_SESSION_TTL
//
// A .env file in the working directory is loaded into the environment first,
// so local development can keep secrets out of config.yaml.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const envPrefix = "FORUM"

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type SessionConfig struct {
	Secret       string        `mapstructure:"secret"`
	TTL          time.Duration `mapstructure:"ttl"`
	SecureCookie bool          `mapstructure:"secure_cookie"`
}

type GitHubConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	CallbackURL  string `mapstructure:"callback_url"`
	// APIToken authenticates profile lookups made outside a login flow.
	// Unauthenticated lookups work but are heavily rate limited.
	APIToken   string `mapstructure:"api_token"`
	APIBaseURL string `mapstructure:"api_base_url"`
}

type ModerationConfig struct {
	// BanSweepSchedule is a cron spec; "@every 1m" style descriptors work too.
	BanSweepSchedule string `mapstructure:"ban_sweep_schedule"`
}

type Config struct {
	Environment string           `mapstructure:"environment"`
	LogLevel    string           `mapstructure:"log_level"`
	Server      ServerConfig     `mapstructure:"server"`
	Database    DatabaseConfig   `mapstructure:"database"`
	Session     SessionConfig    `mapstructure:"session"`
	GitHub      GitHubConfig     `mapstructure:"github"`
	Moderation  ModerationConfig `mapstructure:"moderation"`
}

// Load reads the configuration. searchPaths overrides where config.yaml is
// looked for; by default that is the working directory and ./config.
func Load(searchPaths ...string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if len(searchPaths) == 0 {
		searchPaths = []string{".", "./config"}
	}
	for _, p := range searchPaths {
		v.AddConfigPath(p)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Every key needs a default (even an empty one) so that AutomaticEnv can
// see it during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "30s")

	v.SetDefault("database.path", "data/forum.db")

	v.SetDefault("session.secret", "")
	v.SetDefault("session.ttl", "24h")
	v.SetDefault("session.secure_cookie", false)

	v.SetDefault("github.client_id", "")
	v.SetDefault("github.client_secret", "")
	v.SetDefault("github.callback_url", "http://localhost:8080/auth/github/callback")
	v.SetDefault("github.api_token", "")
	v.SetDefault("github.api_base_url", "https://api.github.com")

	v.SetDefault("moderation.ban_sweep_schedule", "@every 1m")
}

// Validate checks the values the server cannot start without.
func (c *Config) Validate() error {
	if c.Session.Secret == "" {
		return errors.New("config: session.secret is required (FORUM_SESSION_SECRET)")
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("config: session.ttl must be positive, got %s", c.Session.TTL)
	}
	if c.Database.Path == "" {
		return errors.New("config: database.path is required")
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// SlogLevel parses LogLevel ("debug", "info", "warn", "error").
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("config: invalid log_level %q", c.LogLevel)
	}
	return level, nil
}
