// internal/config/config.go - YAML configuration loading and validation
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Monitoring    MonitoringConfig    `yaml:"monitoring"`
	BusinessHours BusinessHoursConfig `yaml:"business_hours"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Logging       LoggingConfig       `yaml:"logging"`
	Prometheus    PrometheusConfig    `yaml:"prometheus"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`

	HeartbeatRetentionDays    int `yaml:"heartbeat_retention_days"`
	AlertRetentionDays        int `yaml:"alert_retention_days"`
	ServiceCheckRetentionDays int `yaml:"service_check_retention_days"`
}

type MonitoringConfig struct {
	HeartbeatSweepSeconds int `yaml:"heartbeat_sweep_seconds"`
	ServiceSweepSeconds   int `yaml:"service_sweep_seconds"`
	CleanupHours          int `yaml:"cleanup_hours"`
	PollWorkers           int `yaml:"poll_workers"`

	DefaultFrequencySeconds int `yaml:"default_frequency_seconds"`
	DefaultGraceSeconds     int `yaml:"default_grace_seconds"`
	DedupWindowSeconds      int `yaml:"dedup_window_seconds"`

	Internet InternetConfig `yaml:"internet"`
	Upstream UpstreamConfig `yaml:"upstream"`
}

type InternetConfig struct {
	Enabled         bool     `yaml:"enabled"`
	CheckURLs       []string `yaml:"check_urls"`
	IntervalSeconds int      `yaml:"interval_seconds"`
	TimeoutSeconds  int      `yaml:"timeout_seconds"`
}

// UpstreamConfig points at an external monitoring service that expects
// a periodic heartbeat from this process (e.g. a healthchecks.io check
// URL).
type UpstreamConfig struct {
	Enabled         bool   `yaml:"enabled"`
	URL             string `yaml:"url"`
	IntervalSeconds int    `yaml:"interval_seconds"`
	TimeoutSeconds  int    `yaml:"timeout_seconds"`
}

type BusinessHoursConfig struct {
	StartTime string `yaml:"start_time"`
	EndTime   string `yaml:"end_time"`
	Weekdays  []int  `yaml:"weekdays"`
	Timezone  string `yaml:"timezone"`
}

type NotificationsConfig struct {
	Discord DiscordConfig `yaml:"discord"`
}

type DiscordConfig struct {
	Enabled      bool   `yaml:"enabled"`
	WebhookURL   string `yaml:"webhook_url"`
	Username     string `yaml:"username"`
	MaxPerMinute int    `yaml:"max_per_minute"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

type PrometheusConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Load reads the configuration file, applies defaults, and validates.
// A missing file yields the defaults rather than an error.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.setDefaults()
	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Database.Path == "" {
		c.Database.Path = "watchtower.db"
	}
	if c.Database.HeartbeatRetentionDays == 0 {
		c.Database.HeartbeatRetentionDays = 30
	}
	if c.Database.AlertRetentionDays == 0 {
		c.Database.AlertRetentionDays = 90
	}
	if c.Database.ServiceCheckRetentionDays == 0 {
		c.Database.ServiceCheckRetentionDays = 30
	}
	if c.Monitoring.HeartbeatSweepSeconds == 0 {
		c.Monitoring.HeartbeatSweepSeconds = 60
	}
	if c.Monitoring.ServiceSweepSeconds == 0 {
		c.Monitoring.ServiceSweepSeconds = 60
	}
	if c.Monitoring.CleanupHours == 0 {
		c.Monitoring.CleanupHours = 24
	}
	if c.Monitoring.PollWorkers == 0 {
		c.Monitoring.PollWorkers = 5
	}
	if c.Monitoring.DefaultFrequencySeconds == 0 {
		c.Monitoring.DefaultFrequencySeconds = 300
	}
	if c.Monitoring.DefaultGraceSeconds == 0 {
		c.Monitoring.DefaultGraceSeconds = 60
	}
	if c.Monitoring.DedupWindowSeconds == 0 {
		c.Monitoring.DedupWindowSeconds = 300
	}
	if c.Monitoring.Internet.IntervalSeconds == 0 {
		c.Monitoring.Internet.IntervalSeconds = 300
	}
	if c.Monitoring.Internet.TimeoutSeconds == 0 {
		c.Monitoring.Internet.TimeoutSeconds = 10
	}
	if c.Monitoring.Upstream.IntervalSeconds == 0 {
		c.Monitoring.Upstream.IntervalSeconds = 300
	}
	if c.Monitoring.Upstream.TimeoutSeconds == 0 {
		c.Monitoring.Upstream.TimeoutSeconds = 10
	}
	if c.BusinessHours.StartTime == "" {
		c.BusinessHours.StartTime = "09:00"
	}
	if c.BusinessHours.EndTime == "" {
		c.BusinessHours.EndTime = "17:00"
	}
	if len(c.BusinessHours.Weekdays) == 0 {
		c.BusinessHours.Weekdays = []int{1, 2, 3, 4, 5}
	}
	if c.BusinessHours.Timezone == "" {
		c.BusinessHours.Timezone = "UTC"
	}
	if c.Notifications.Discord.Username == "" {
		c.Notifications.Discord.Username = "Watchtower"
	}
	if c.Notifications.Discord.MaxPerMinute == 0 {
		c.Notifications.Discord.MaxPerMinute = 10
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// applyEnv lets secrets come from the environment instead of the file.
func (c *Config) applyEnv() {
	if v := os.Getenv("WATCHTOWER_DISCORD_WEBHOOK"); v != "" {
		c.Notifications.Discord.WebhookURL = v
		c.Notifications.Discord.Enabled = true
	}
	if v := os.Getenv("WATCHTOWER_UPSTREAM_URL"); v != "" {
		c.Monitoring.Upstream.URL = v
		c.Monitoring.Upstream.Enabled = true
	}
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	if c.Notifications.Discord.Enabled && c.Notifications.Discord.WebhookURL == "" {
		return fmt.Errorf("discord notifications enabled but webhook_url is empty")
	}
	if c.Monitoring.Upstream.Enabled && c.Monitoring.Upstream.URL == "" {
		return fmt.Errorf("upstream monitoring enabled but url is empty")
	}
	if _, err := time.Parse("15:04", c.BusinessHours.StartTime); err != nil {
		return fmt.Errorf("invalid business_hours start_time %q", c.BusinessHours.StartTime)
	}
	if _, err := time.Parse("15:04", c.BusinessHours.EndTime); err != nil {
		return fmt.Errorf("invalid business_hours end_time %q", c.BusinessHours.EndTime)
	}
	for _, d := range c.BusinessHours.Weekdays {
		if d < 1 || d > 7 {
			return fmt.Errorf("business_hours weekday %d out of range (1-7)", d)
		}
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Logging.Format)
	}
	return nil
}

// ListenAddr is the host:port the HTTP server binds.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
