package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
	_ "time/tzdata" // embedded zone database for booking.timezone

	"gopkg.in/yaml.v3"
)

// BackupConfig controls periodic SQLite snapshots.
type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	IntervalHours int    `yaml:"interval_hours"`
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
}

// Interval returns the snapshot period, one day by default.
func (b BackupConfig) Interval() time.Duration {
	if b.IntervalHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(b.IntervalHours) * time.Hour
}

type Config struct {
	Server struct {
		Address        string  `yaml:"address"`
		APIKey         string  `yaml:"api_key"`
		RateLimitRPS   float64 `yaml:"rate_limit_rps"`
		RateLimitBurst int     `yaml:"rate_limit_burst"`
	} `yaml:"server"`

	Database struct {
		Driver string `yaml:"driver"` // "sqlite" or "memory"
		Path   string `yaml:"path"`
	} `yaml:"database"`

	Backup BackupConfig `yaml:"backup"`

	Redis struct {
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Geocoding struct {
		APIKey          string `yaml:"api_key"`
		BaseURL         string `yaml:"base_url"`
		CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
	} `yaml:"geocoding"`

	Payment struct {
		WebhookURL string `yaml:"webhook_url"`
		APIKey     string `yaml:"api_key"`
	} `yaml:"payment"`

	Booking struct {
		Timezone    string `yaml:"timezone"`
		MaxAttempts int    `yaml:"max_attempts"`
	} `yaml:"booking"`

	Spots struct {
		ConfigPath            string `yaml:"config_path"`
		ReloadIntervalSeconds int    `yaml:"reload_interval_seconds"`
	} `yaml:"spots"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/spotshare.db"
	}
	if cfg.Backup.Path == "" {
		cfg.Backup.Path = "data/backups"
	}
	if cfg.Monitoring.HealthCheckPort == 0 {
		cfg.Monitoring.HealthCheckPort = 8090
	}
	if cfg.Monitoring.PrometheusPort == 0 {
		cfg.Monitoring.PrometheusPort = 9090
	}

	if _, err := cfg.Location(); err != nil {
		return nil, err
	}

	if cfg.Database.Driver == "sqlite" {
		if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
			return nil, err
		}
	}

	return &cfg, nil
}

// Location resolves booking.timezone; schedules are evaluated in this zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Booking.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Booking.Timezone)
	if err != nil {
		return nil, fmt.Errorf("booking.timezone: %w", err)
	}
	return loc, nil
}

func (c *Config) MaxAttempts() int {
	if c.Booking.MaxAttempts <= 0 {
		return 8
	}
	return c.Booking.MaxAttempts
}

func (c *Config) GeocodeCacheTTL() time.Duration {
	if c.Geocoding.CacheTTLSeconds <= 0 {
		return 0
	}
	return time.Duration(c.Geocoding.CacheTTLSeconds) * time.Second
}

func (c *Config) SpotsReloadInterval() time.Duration {
	if c.Spots.ReloadIntervalSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Spots.ReloadIntervalSeconds) * time.Second
}

// RateLimit returns requests per second and burst for the API, 0 meaning unlimited.
func (c *Config) RateLimit() (rps float64, burst int) {
	if c.Server.RateLimitRPS <= 0 {
		return 0, 0
	}
	burst = c.Server.RateLimitBurst
	if burst <= 0 {
		burst = int(c.Server.RateLimitRPS) + 1
	}
	return c.Server.RateLimitRPS, burst
}
