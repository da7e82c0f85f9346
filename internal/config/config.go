package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port                int     `yaml:"port"`
		AdminAPIKey         string  `yaml:"admin_api_key"`
		PublicRatePerSecond float64 `yaml:"public_rate_per_second"` // < 0 disables
		PublicBurst         int     `yaml:"public_burst"`
	} `yaml:"server"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Redis struct {
		Address                string `yaml:"address"`
		Password               string `yaml:"password"`
		DB                     int    `yaml:"db"`
		AvailabilityTTLSeconds int    `yaml:"availability_ttl_seconds"`
	} `yaml:"redis"`

	Payment struct {
		Provider          string  `yaml:"provider"` // "http" or "mock"
		BaseURL           string  `yaml:"base_url"`
		TokenURL          string  `yaml:"token_url"`
		ClientID          string  `yaml:"client_id"`
		ClientSecret      string  `yaml:"client_secret"`
		CallbackURL       string  `yaml:"callback_url"`
		ReturnURL         string  `yaml:"return_url"`
		TimeoutSeconds    int     `yaml:"timeout_seconds"`
		RequestsPerSecond float64 `yaml:"requests_per_second"`
	} `yaml:"payment"`

	Catalog struct {
		Path                  string `yaml:"path"`
		ReloadIntervalSeconds int    `yaml:"reload_interval_seconds"`
	} `yaml:"catalog"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Backup struct {
		Enabled       bool   `yaml:"enabled"`
		IntervalHours int    `yaml:"interval_hours"`
		Path          string `yaml:"path"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"backup"`

	Audit struct {
		Enabled       bool   `yaml:"enabled"`
		IntervalHours int    `yaml:"interval_hours"`
		Path          string `yaml:"path"`
	} `yaml:"audit"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // "console" or "json"
	} `yaml:"logging"`
}

// Load reads the YAML config at path. A .env file next to the working
// directory is loaded first so that ${ENV_VAR} placeholders can refer to it.
func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return Parse(data)
}

// Parse decodes config bytes, expanding ${ENV_VAR} placeholders and applying defaults.
func Parse(data []byte) (*Config, error) {
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 4000
	}
	// A negative rate turns the public limiter off.
	if c.Server.PublicRatePerSecond == 0 {
		c.Server.PublicRatePerSecond = 5
	}
	if c.Server.PublicBurst <= 0 {
		c.Server.PublicBurst = 10
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/courtbook.db"
	}
	if c.Payment.Provider == "" {
		c.Payment.Provider = "mock"
	}
	if c.Catalog.Path == "" {
		c.Catalog.Path = "configs/slots.yaml"
	}
	if c.Monitoring.HealthCheckPort == 0 {
		c.Monitoring.HealthCheckPort = 8090
	}
	if c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Backup.Path == "" {
		c.Backup.Path = "backups"
	}
	if c.Audit.Path == "" {
		c.Audit.Path = "exports"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// PaymentTimeout bounds every call to the payment provider.
func (c *Config) PaymentTimeout() time.Duration {
	if c.Payment.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Payment.TimeoutSeconds) * time.Second
}

func (c *Config) AvailabilityTTL() time.Duration {
	if c.Redis.AvailabilityTTLSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Redis.AvailabilityTTLSeconds) * time.Second
}

func (c *Config) CatalogReloadInterval() time.Duration {
	if c.Catalog.ReloadIntervalSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Catalog.ReloadIntervalSeconds) * time.Second
}

func (c *Config) BackupInterval() time.Duration {
	if c.Backup.IntervalHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Backup.IntervalHours) * time.Hour
}

func (c *Config) BackupRetention() time.Duration {
	if c.Backup.RetentionDays <= 0 {
		return 14 * 24 * time.Hour
	}
	return time.Duration(c.Backup.RetentionDays) * 24 * time.Hour
}

func (c *Config) AuditInterval() time.Duration {
	if c.Audit.IntervalHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Audit.IntervalHours) * time.Hour
}
