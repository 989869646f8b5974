// Package config loads the tasksync configuration file: store backend,
// configured task sources, and delegated-auth tokens.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration.
type Config struct {
	Store   StoreConfig            `mapstructure:"store" yaml:"store"`
	Sources []SourceConfig         `mapstructure:"sources" yaml:"sources"`
	Tokens  map[string]string      `mapstructure:"tokens" yaml:"tokens,omitempty"` // source id -> static access token
	OAuth   map[string]OAuthConfig `mapstructure:"oauth" yaml:"oauth,omitempty"`   // source id -> refreshing client
}

// OAuthConfig holds the delegated-auth client settings for one source. The
// refresh token comes from an out-of-band consent flow; access tokens are
// minted and refreshed against the token endpoint as needed.
type OAuthConfig struct {
	ClientID     string `mapstructure:"client_id" yaml:"client_id"`
	ClientSecret string `mapstructure:"client_secret" yaml:"client_secret,omitempty"`
	TokenURL     string `mapstructure:"token_url" yaml:"token_url"`
	RefreshToken string `mapstructure:"refresh_token" yaml:"refresh_token"`
}

// StoreConfig selects and locates the database backend.
type StoreConfig struct {
	// Dialect is "sqlite" (default) or "postgres".
	Dialect string `mapstructure:"dialect" yaml:"dialect"`
	// DSN is the database path (sqlite) or connection string (postgres).
	// Empty sqlite DSN defaults to <dir>/tasksync.db.
	DSN string `mapstructure:"dsn" yaml:"dsn,omitempty"`
	// Dir is the data directory for the database file and attachments.
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// SourceConfig declares one integration instance.
type SourceConfig struct {
	ID     string            `mapstructure:"id" yaml:"id"`
	Name   string            `mapstructure:"name" yaml:"name,omitempty"`
	Plugin string            `mapstructure:"plugin" yaml:"plugin"`
	Config map[string]string `mapstructure:"config" yaml:"config"`

	// SyncWindow overrides the incremental lookback window (default 24h).
	SyncWindow time.Duration `mapstructure:"sync_window" yaml:"sync_window,omitempty"`
}

// Load reads the configuration. With an explicit path only that file is
// read; otherwise .tasksync/config.yaml and $HOME/.tasksync/config.yaml are
// searched. TASKSYNC_* environment variables override file values.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".tasksync")
		v.AddConfigPath("$HOME/.tasksync")
		v.SetConfigType("yaml")
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("TASKSYNC")
	v.AutomaticEnv()
	v.SetDefault("store.dialect", "sqlite")
	v.SetDefault("store.dir", ".tasksync")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && errors.As(err, &notFound) {
			// No file is fine: defaults cover a local sqlite setup.
			return unmarshal(v)
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	return unmarshal(v)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks structural invariants the loader can verify without
// touching any plugin: ids present and unique, plugin kinds named.
func (c *Config) Validate() error {
	seen := map[string]bool{}
	for i, src := range c.Sources {
		if src.ID == "" {
			return fmt.Errorf("sources[%d]: id is required", i)
		}
		if src.Plugin == "" {
			return fmt.Errorf("source %q: plugin is required", src.ID)
		}
		if seen[src.ID] {
			return fmt.Errorf("source %q: duplicate id", src.ID)
		}
		seen[src.ID] = true
	}
	for id, oc := range c.OAuth {
		if oc.TokenURL == "" {
			return fmt.Errorf("oauth %q: token_url is required", id)
		}
		if oc.RefreshToken == "" {
			return fmt.Errorf("oauth %q: refresh_token is required", id)
		}
	}
	return nil
}

// Source returns the source with the given id, or nil.
func (c *Config) Source(id string) *SourceConfig {
	for i := range c.Sources {
		if c.Sources[i].ID == id {
			return &c.Sources[i]
		}
	}
	return nil
}
