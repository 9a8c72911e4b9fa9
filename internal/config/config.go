package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone = "UTC"
	configPathEnv   = "REFURB_TRACKER_CONFIG"
	timezoneEnv     = "REFURB_TRACKER_TIMEZONE"
	logLevelEnv     = "LOG_LEVEL"
	databaseDSNEnv  = "DATABASE_DSN"
	webhookURLEnv   = "SLACK_WEBHOOK_URL"

	defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging       LoggingConfig      `yaml:"logging"`
	HTTP          HTTPConfig         `yaml:"http"`
	Timezone      string             `yaml:"timezone"`
	Database      DatabaseConfig     `yaml:"database"`
	Notifications NotificationConfig `yaml:"notifications"`
	Sites         []SiteConfig       `yaml:"sites"`

	location *time.Location `yaml:"-"`
}

// LoggingConfig selects slog level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// HTTPConfig tunes the listing page fetcher.
type HTTPConfig struct {
	Timeout           time.Duration `yaml:"timeout"`
	UserAgent         string        `yaml:"userAgent"`
	RequestsPerSecond float64       `yaml:"requestsPerSecond"`
	MaxBodyBytes      int64         `yaml:"maxBodyBytes"`
}

// DatabaseConfig describes the optional Postgres mirror; an empty DSN disables it.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// NotificationConfig encapsulates outbound channels.
type NotificationConfig struct {
	Webhook WebhookConfig `yaml:"webhook"`
}

// WebhookConfig points at a Slack-compatible incoming webhook.
type WebhookConfig struct {
	URL string `yaml:"url"`
}

// SiteConfig describes one listing page and the history file it feeds.
type SiteConfig struct {
	Name              string `yaml:"name"`
	URL               string `yaml:"url"`
	Source            string `yaml:"source"`
	HistoryPath       string `yaml:"historyPath"`
	ProductType       string `yaml:"productType"`
	ProductPattern    string `yaml:"productPattern"`
	BootstrapVariable string `yaml:"bootstrapVariable"`
	Label             string `yaml:"label"`

	// Strategies lists extraction strategies by name in the order they are
	// tried; empty means structured markup first, then the bootstrap blob.
	Strategies []string `yaml:"strategies"`
}

// Location resolves the configured timezone, which decides what "today" means.
func (c Config) Location() *time.Location {
	if c.location != nil {
		return c.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone()

	if len(cfg.Sites) == 0 {
		cfg.Sites = defaultConfig().Sites
	}
	for i := range cfg.Sites {
		cfg.Sites[i] = withSiteDefaults(cfg.Sites[i])
	}

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}

	if v := os.Getenv(timezoneEnv); v != "" {
		c.Timezone = v
	}

	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}

	if v := os.Getenv(webhookURLEnv); v != "" {
		c.Notifications.Webhook.URL = v
	}
}

func (c *Config) bindTimezone() {
	tz := c.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	c.location = loc
}

func mergeConfig(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}
	if override.Logging.Format != "" {
		base.Logging.Format = override.Logging.Format
	}

	if override.HTTP.Timeout > 0 {
		base.HTTP.Timeout = override.HTTP.Timeout
	}
	if override.HTTP.UserAgent != "" {
		base.HTTP.UserAgent = override.HTTP.UserAgent
	}
	if override.HTTP.RequestsPerSecond > 0 {
		base.HTTP.RequestsPerSecond = override.HTTP.RequestsPerSecond
	}
	if override.HTTP.MaxBodyBytes > 0 {
		base.HTTP.MaxBodyBytes = override.HTTP.MaxBodyBytes
	}

	if override.Timezone != "" {
		base.Timezone = override.Timezone
	}

	if override.Database.DSN != "" {
		base.Database = override.Database
	}

	if override.Notifications.Webhook.URL != "" {
		base.Notifications.Webhook.URL = override.Notifications.Webhook.URL
	}

	if len(override.Sites) > 0 {
		base.Sites = override.Sites
	}

	return base
}

func withSiteDefaults(site SiteConfig) SiteConfig {
	def := defaultSite()
	if site.Name == "" {
		site.Name = def.Name
	}
	if site.URL == "" {
		site.URL = def.URL
	}
	if site.Source == "" {
		site.Source = def.Source
	}
	if site.HistoryPath == "" {
		site.HistoryPath = "data/" + site.Name + "-history.json"
	}
	if site.ProductType == "" {
		site.ProductType = def.ProductType
	}
	if site.ProductPattern == "" {
		site.ProductPattern = def.ProductPattern
	}
	if site.BootstrapVariable == "" {
		site.BootstrapVariable = def.BootstrapVariable
	}
	if site.Label == "" {
		site.Label = def.Label
	}
	return site
}

func defaultSite() SiteConfig {
	return SiteConfig{
		Name:              "mac-mini",
		URL:               "https://www.apple.com/shop/refurbished/mac/mac-mini",
		Source:            "apple.com/shop/refurbished",
		HistoryPath:       "data/refurb-history.json",
		ProductType:       "Product",
		ProductPattern:    `mac\s*mini`,
		BootstrapVariable: "REFURB_GRID_BOOTSTRAP",
		Label:             "Mac Mini",
	}
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Logging: LoggingConfig{Level: "info", Format: "text"},
		HTTP: HTTPConfig{
			Timeout:           30 * time.Second,
			UserAgent:         defaultUserAgent,
			RequestsPerSecond: 0.5,
			MaxBodyBytes:      16 << 20,
		},
		Timezone: defaultTimezone,
		location: tz,
		Sites:    []SiteConfig{defaultSite()},
	}
}
