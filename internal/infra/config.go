package infra

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"etf_cda/internal/domain"

	"gopkg.in/yaml.v3"
)

// Config holds the settings of one trader session.
// After LoadConfig, environment variables override sensitive or per-host values.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Trader struct {
		ID        string `yaml:"id"`
		IDInGroup int    `yaml:"id_in_group"`
	} `yaml:"trader"`

	Market struct {
		SessionConfig  string `yaml:"session_config"`
		RoundConfigDir string `yaml:"round_config_dir"`
		Round          int    `yaml:"round"`
		GroupID        int    `yaml:"group_id"`
	} `yaml:"market"`

	Feed struct {
		WSURL        string `yaml:"ws_url"`
		Token        string `yaml:"token"`
		InboxSize    int    `yaml:"inbox_size"`
		VerifyCounts bool   `yaml:"verify_counts"`
	} `yaml:"feed"`

	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`

	Logging struct {
		Level string `yaml:"level"`
		Dir   string `yaml:"dir"`
	} `yaml:"logging"`
}

// LoadConfig reads and parses the config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrConfigNotFound, path)
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	overrideWithEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Feed.InboxSize == 0 {
		c.Feed.InboxSize = 1024
	}
	if c.Trader.IDInGroup == 0 {
		c.Trader.IDInGroup = 1
	}
	if c.Market.Round == 0 {
		c.Market.Round = 1
	}
	if c.Logging.Dir == "" {
		c.Logging.Dir = "logs"
	}
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Trader.ID) == "" {
		return &domain.ConfigError{Field: "trader.id", Err: fmt.Errorf("trader id is required")}
	}
	if c.Trader.IDInGroup < 1 {
		return &domain.ConfigError{Field: "trader.id_in_group", Err: fmt.Errorf("must be >= 1, got %d", c.Trader.IDInGroup)}
	}
	if c.Market.SessionConfig == "" {
		return &domain.ConfigError{Field: "market.session_config", Err: fmt.Errorf("session config is required")}
	}
	if c.Market.Round < 1 {
		return &domain.ConfigError{Field: "market.round", Err: fmt.Errorf("must be >= 1, got %d", c.Market.Round)}
	}
	if c.Feed.WSURL != "" && !strings.HasPrefix(c.Feed.WSURL, "ws://") && !strings.HasPrefix(c.Feed.WSURL, "wss://") {
		return &domain.ConfigError{Field: "feed.ws_url", Err: fmt.Errorf("invalid websocket url: %s", c.Feed.WSURL)}
	}
	if c.Feed.InboxSize < 0 {
		return &domain.ConfigError{Field: "feed.inbox_size", Err: fmt.Errorf("must not be negative")}
	}
	return nil
}

// overrideWithEnv replaces values with environment variables when present.
func overrideWithEnv(cfg *Config) {
	if v := os.Getenv("ETF_TRADER_ID"); v != "" {
		cfg.Trader.ID = v
	}
	if v := os.Getenv("ETF_TRADER_ID_IN_GROUP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Trader.IDInGroup = n
		}
	}
	if v := os.Getenv("ETF_FEED_URL"); v != "" {
		cfg.Feed.WSURL = v
	}
	if v := os.Getenv("ETF_FEED_TOKEN"); v != "" {
		cfg.Feed.Token = v
	}
	if v := os.Getenv("ETF_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
}
