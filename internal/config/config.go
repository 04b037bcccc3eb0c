package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port           string        `mapstructure:"port"`
	RedisURL       string        `mapstructure:"redis_url"`
	BaseURL        string        `mapstructure:"base_url"`
	AdminToken     string        `mapstructure:"admin_token"`
	LogLevel       string        `mapstructure:"log_level"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	SessionTTL    time.Duration `mapstructure:"session_ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`

	SimulateLatency bool   `mapstructure:"simulate_latency"`
	ScenariosFile   string `mapstructure:"scenarios_file"`
	NodeID          int64  `mapstructure:"node_id"`

	WebhookTimeout           time.Duration `mapstructure:"webhook_timeout"`
	WebhookWorkers           int           `mapstructure:"webhook_workers"`
	MaxQueueSize             int           `mapstructure:"max_queue_size"`
	WebhookMaxAttempts       int           `mapstructure:"webhook_max_attempts"`
	WebhookBaseDelay         time.Duration `mapstructure:"webhook_base_delay"`
	WebhookBackoffMultiplier float64       `mapstructure:"webhook_backoff_multiplier"`
}

var defaults = map[string]any{
	"port":            "8080",
	"redis_url":       "",
	"base_url":        "http://localhost:8080",
	"admin_token":     "",
	"log_level":       "info",
	"request_timeout": "2s",

	"session_ttl":    "30m",
	"sweep_interval": "1m",

	"simulate_latency": true,
	"scenarios_file":   "",
	"node_id":          1,

	"webhook_timeout":            "30s",
	"webhook_workers":            4,
	"max_queue_size":             1000,
	"webhook_max_attempts":       3,
	"webhook_base_delay":         "5s",
	"webhook_backoff_multiplier": 2.0,
}

// Load reads defaults, then the optional YAML file at path, then environment
// variables named after the keys (PORT, REDIS_URL, WEBHOOK_TIMEOUT, ...).
func Load(path string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.SessionTTL <= 0 {
		return fmt.Errorf("session_ttl must be positive")
	}
	if c.WebhookWorkers <= 0 {
		return fmt.Errorf("webhook_workers must be positive")
	}
	if c.MaxQueueSize <= 0 {
		return fmt.Errorf("max_queue_size must be positive")
	}
	if c.NodeID < 0 || c.NodeID > 1023 {
		return fmt.Errorf("node_id must be between 0 and 1023")
	}
	return nil
}
