// Package config loads the TOML configuration file. Defaults are applied
// before decoding, so a partial file or no file at all still yields a
// runnable configuration. Environment overrides are applied by the caller.
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host           string  `toml:"host"`
	Port           int     `toml:"port"`
	JWTSecret      string  `toml:"jwt_secret"`
	RateLimitRPS   float64 `toml:"rate_limit_rps"`
	RateLimitBurst int     `toml:"rate_limit_burst"`
}

// SQLiteConfig configures the embedded database backend.
type SQLiteConfig struct {
	Path           string `toml:"path"`
	BusyTimeoutSec int    `toml:"busy_timeout_sec"`
}

// PostgresConfig configures the shared database backend.
type PostgresConfig struct {
	URL                string `toml:"url"`
	MaxOpenConns       int    `toml:"max_open_conns"`
	MaxIdleConns       int    `toml:"max_idle_conns"`
	ConnMaxLifetimeSec int    `toml:"conn_max_lifetime_sec"`
	ConnMaxIdleSec     int    `toml:"conn_max_idle_sec"`
}

// StorageConfig selects and configures the persistence backend.
type StorageConfig struct {
	// Backend is "sqlite" (default, offline-first single instance) or
	// "postgres" (shared, multi-instance)
	Backend  string         `toml:"backend"`
	SQLite   SQLiteConfig   `toml:"sqlite"`
	Postgres PostgresConfig `toml:"postgres"`
}

// RedisConfig configures the optional distributed lock backend. An empty URL
// disables it; postgres deployments then fall back to advisory locks.
type RedisConfig struct {
	URL string `toml:"url"`
}

// NATSConfig configures the optional JetStream event fan-out. An empty URL
// keeps events on the in-process bus only.
type NATSConfig struct {
	URL string `toml:"url"`
}

// CredentialsConfig locates the provisioned token file.
type CredentialsConfig struct {
	TokenFile string `toml:"token_file"`
}

// SyncConfig tunes the sync engine and scheduling behavior. Zero values fall
// back to the service-level defaults.
type SyncConfig struct {
	BreakerThreshold        int  `toml:"breaker_threshold"`
	BreakerCoolDownSec      int  `toml:"breaker_cooldown_sec"`
	BankruptcyThresholdDays int  `toml:"bankruptcy_threshold_days"`
	CheckpointEvery         int  `toml:"checkpoint_every"`
	AdaptiveDisabled        bool `toml:"adaptive_disabled"`

	// Adaptive cadence tiers
	ActiveIntervalSec   int `toml:"active_interval_sec"`
	BaselineIntervalSec int `toml:"baseline_interval_sec"`
	MidIntervalSec      int `toml:"mid_interval_sec"`
	SlowIntervalSec     int `toml:"slow_interval_sec"`
	MinIntervalSec      int `toml:"min_interval_sec"`
	MaxIntervalSec      int `toml:"max_interval_sec"`
	MidIdleThreshold    int `toml:"mid_idle_threshold"`
	SlowIdleThreshold   int `toml:"slow_idle_threshold"`
}

// NetworkConfig tunes the connectivity probe.
type NetworkConfig struct {
	ProbeAddr        string `toml:"probe_addr"`
	ProbeIntervalSec int    `toml:"probe_interval_sec"`
}

// Config is the full application configuration.
type Config struct {
	Server      ServerConfig      `toml:"server"`
	Storage     StorageConfig     `toml:"storage"`
	Redis       RedisConfig       `toml:"redis"`
	NATS        NATSConfig        `toml:"nats"`
	Credentials CredentialsConfig `toml:"credentials"`
	Sync        SyncConfig        `toml:"sync"`
	Network     NetworkConfig     `toml:"network"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "127.0.0.1",
			Port:           8080,
			RateLimitRPS:   10,
			RateLimitBurst: 20,
		},
		Storage: StorageConfig{
			Backend: "sqlite",
			SQLite: SQLiteConfig{
				Path:           "mailsync.db",
				BusyTimeoutSec: 5,
			},
			Postgres: PostgresConfig{
				MaxOpenConns:       25,
				MaxIdleConns:       5,
				ConnMaxLifetimeSec: 300,
				ConnMaxIdleSec:     60,
			},
		},
		Credentials: CredentialsConfig{
			TokenFile: "tokens.toml",
		},
		Sync: SyncConfig{
			BreakerThreshold:        5,
			BreakerCoolDownSec:      60,
			BankruptcyThresholdDays: 7,
		},
		Network: NetworkConfig{
			ProbeAddr:        "1.1.1.1:443",
			ProbeIntervalSec: 15,
		},
	}
}

// Load reads the configuration file at path on top of the defaults. An empty
// path returns the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("decode config %s: %w", path, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the cross-field constraints a TOML decode cannot.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "sqlite":
		if c.Storage.SQLite.Path == "" {
			return fmt.Errorf("storage.sqlite.path is required for the sqlite backend")
		}
	case "postgres":
		if c.Storage.Postgres.URL == "" {
			return fmt.Errorf("storage.postgres.url is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q (use sqlite or postgres)", c.Storage.Backend)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	return nil
}

// BreakerCoolDown returns the breaker cool-down as a duration.
func (c SyncConfig) BreakerCoolDown() time.Duration {
	return time.Duration(c.BreakerCoolDownSec) * time.Second
}

// BankruptcyThreshold returns the staleness threshold as a duration.
func (c SyncConfig) BankruptcyThreshold() time.Duration {
	return time.Duration(c.BankruptcyThresholdDays) * 24 * time.Hour
}
