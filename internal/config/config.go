// Package config provides configuration management for reliefline.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied when a field is absent from the config file.
const (
	DefaultListenAddr        = ":8090"
	DefaultDBPath            = "reliefline.db"
	DefaultSessionTTLMin     = 10
	DefaultDuplicateWindow   = 30 // minutes
	DefaultSessionStartLimit = 3  // session starts per caller per hour
	DefaultMaxRadiusKm       = 50.0
	DefaultGraceMinutes      = 5
	DefaultAutoMatchMinutes  = 10
	DefaultSweepMinutes      = 5
	DefaultMaxCandidates     = 5
	DefaultMaxConns          = 4
)

// Config is the top-level YAML structure.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	DBPath     string `yaml:"db_path"`
	MaxConns   int    `yaml:"max_conns"`

	// RedisAddr selects the Redis session backend when non-empty;
	// otherwise sessions live in SQLite.
	RedisAddr string `yaml:"redis_addr"`

	// PhoneSalt is mixed into the one-way phone hash. Must be stable across
	// restarts or every caller becomes a new account.
	PhoneSalt string `yaml:"phone_salt"`

	// GatewaySecret enables HMAC signature checks on the USSD callback when
	// non-empty.
	GatewaySecret string `yaml:"gateway_secret"`

	SessionTTLMinutes        int     `yaml:"session_ttl_minutes"`
	DuplicateWindowMinutes   int     `yaml:"duplicate_window_minutes"`
	SessionStartsPerHour     int     `yaml:"session_starts_per_hour"`
	MaxRadiusKm              float64 `yaml:"max_radius_km"`
	AutoMatchGraceMinutes    int     `yaml:"automatch_grace_minutes"`
	AutoMatchEveryMinutes    int     `yaml:"automatch_every_minutes"`
	SessionSweepEveryMinutes int     `yaml:"session_sweep_every_minutes"`
	MaxCandidates            int     `yaml:"max_candidates"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		ListenAddr:               DefaultListenAddr,
		DBPath:                   DefaultDBPath,
		MaxConns:                 DefaultMaxConns,
		SessionTTLMinutes:        DefaultSessionTTLMin,
		DuplicateWindowMinutes:   DefaultDuplicateWindow,
		SessionStartsPerHour:     DefaultSessionStartLimit,
		MaxRadiusKm:              DefaultMaxRadiusKm,
		AutoMatchGraceMinutes:    DefaultGraceMinutes,
		AutoMatchEveryMinutes:    DefaultAutoMatchMinutes,
		SessionSweepEveryMinutes: DefaultSweepMinutes,
		MaxCandidates:            DefaultMaxCandidates,
	}
}

// Load reads the YAML file at path, filling omitted fields with defaults.
// A missing file returns defaults without error; a malformed file does not.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyFloors()
	return cfg, nil
}

// applyFloors keeps zero/negative values from a sparse file from disabling
// core behavior.
func (c *Config) applyFloors() {
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if c.DBPath == "" {
		c.DBPath = DefaultDBPath
	}
	if c.MaxConns <= 0 {
		c.MaxConns = DefaultMaxConns
	}
	if c.SessionTTLMinutes <= 0 {
		c.SessionTTLMinutes = DefaultSessionTTLMin
	}
	if c.DuplicateWindowMinutes <= 0 {
		c.DuplicateWindowMinutes = DefaultDuplicateWindow
	}
	if c.SessionStartsPerHour <= 0 {
		c.SessionStartsPerHour = DefaultSessionStartLimit
	}
	if c.MaxRadiusKm <= 0 {
		c.MaxRadiusKm = DefaultMaxRadiusKm
	}
	if c.AutoMatchGraceMinutes <= 0 {
		c.AutoMatchGraceMinutes = DefaultGraceMinutes
	}
	if c.AutoMatchEveryMinutes <= 0 {
		c.AutoMatchEveryMinutes = DefaultAutoMatchMinutes
	}
	if c.SessionSweepEveryMinutes <= 0 {
		c.SessionSweepEveryMinutes = DefaultSweepMinutes
	}
	if c.MaxCandidates <= 0 {
		c.MaxCandidates = DefaultMaxCandidates
	}
}

// SessionTTL returns the session time-to-live as a duration.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMinutes) * time.Minute
}

// DuplicateWindow returns the duplicate-request recency window.
func (c *Config) DuplicateWindow() time.Duration {
	return time.Duration(c.DuplicateWindowMinutes) * time.Minute
}

// AutoMatchGrace returns how old a pending request must be before the batch
// reconciler will pick it up.
func (c *Config) AutoMatchGrace() time.Duration {
	return time.Duration(c.AutoMatchGraceMinutes) * time.Minute
}

// AutoMatchInterval returns the period of the background reconciler.
func (c *Config) AutoMatchInterval() time.Duration {
	return time.Duration(c.AutoMatchEveryMinutes) * time.Minute
}

// SessionSweepInterval returns the period of the expired-session sweeper.
func (c *Config) SessionSweepInterval() time.Duration {
	return time.Duration(c.SessionSweepEveryMinutes) * time.Minute
}
