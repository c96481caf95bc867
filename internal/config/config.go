package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Huawei   HuaweiConfig  `yaml:"huawei"`
	Solis    SolisConfig   `yaml:"solis"`
	Alerts   AlertConfig   `yaml:"alerts,omitempty"`
	Collect  CollectConfig `yaml:"collect,omitempty"`
	LogLevel string        `yaml:"log_level,omitempty"` // debug, info, warn, error (default: info)
}

// HuaweiConfig holds FusionSolar API credentials
type HuaweiConfig struct {
	BaseURL    string `yaml:"base_url,omitempty"` // default: https://la5.fusionsolar.huawei.com
	Username   string `yaml:"username"`
	SystemCode string `yaml:"system_code"`
}

// SolisConfig holds SolisCloud API credentials
type SolisConfig struct {
	BaseURL   string `yaml:"base_url,omitempty"` // default: https://www.soliscloud.com:13333
	KeyID     string `yaml:"key_id"`
	KeySecret string `yaml:"key_secret"`
}

// AlertConfig holds the MQTT alert channel settings
type AlertConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"` // host:port
	Topic    string `yaml:"topic,omitempty"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
}

// CollectConfig holds tunables for the collection runs
type CollectConfig struct {
	PauseSeconds     float64 `yaml:"pause_seconds,omitempty"`      // delay between Solis per-inverter requests (default 1.0)
	BackoffSeconds   float64 `yaml:"backoff_seconds,omitempty"`    // delay before retrying a rate-limited page (default 10.0)
	RateLimitRetries int     `yaml:"rate_limit_retries,omitempty"` // retries per rate-limited page (default 3)
}

const (
	defaultHuaweiBaseURL = "https://la5.fusionsolar.huawei.com"
	defaultSolisBaseURL  = "https://www.soliscloud.com:13333"
)

// Load reads the config file and applies environment overrides for secrets.
func Load(configPath string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Missing file is fine; secrets may come entirely from the environment.
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("SOLARMON_HUAWEI_USERNAME"); v != "" {
		c.Huawei.Username = v
	}
	if v := os.Getenv("SOLARMON_HUAWEI_SYSTEM_CODE"); v != "" {
		c.Huawei.SystemCode = v
	}
	if v := os.Getenv("SOLARMON_SOLIS_KEY_ID"); v != "" {
		c.Solis.KeyID = v
	}
	if v := os.Getenv("SOLARMON_SOLIS_KEY_SECRET"); v != "" {
		c.Solis.KeySecret = v
	}
	if v := os.Getenv("SOLARMON_MQTT_PASSWORD"); v != "" {
		c.Alerts.Password = v
	}
}

func (c *Config) applyDefaults() {
	if c.Huawei.BaseURL == "" {
		c.Huawei.BaseURL = defaultHuaweiBaseURL
	}
	if c.Solis.BaseURL == "" {
		c.Solis.BaseURL = defaultSolisBaseURL
	}
	if c.Collect.PauseSeconds <= 0 {
		c.Collect.PauseSeconds = 1.0
	}
	if c.Collect.BackoffSeconds <= 0 {
		c.Collect.BackoffSeconds = 10.0
	}
	if c.Collect.RateLimitRetries <= 0 {
		c.Collect.RateLimitRetries = 3
	}
	if c.Alerts.Topic == "" {
		c.Alerts.Topic = "solarmon/alerts"
	}
}

// DefaultConfigPath returns the default config file path (local directory)
func DefaultConfigPath() string {
	return "config.yaml"
}
