// Package config loads the bot configuration from YAML with
// environment overrides. API credentials are env-only so the YAML file
// can be committed without secrets.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/SpiceChicken/kiwoom-stock/internal/strategy"
)

// Config holds all application configuration.
type Config struct {
	Kiwoom struct {
		BaseURL   string `yaml:"base_url"`
		AppKey    string `yaml:"app_key"`
		SecretKey string `yaml:"secret_key"`
	} `yaml:"kiwoom"`
	Market struct {
		ProxyCode string `yaml:"proxy_code"` // index proxy for regime analysis
		MarketTp  string `yaml:"market_tp"`  // 001: KOSPI, 101: KOSDAQ
	} `yaml:"market"`
	Filters struct {
		ETFKeywords []string `yaml:"etf_keywords"`
		MaxStocks   int      `yaml:"max_stocks"`
	} `yaml:"filters"`
	Schedule struct {
		PollInterval    string `yaml:"poll_interval"`
		UniverseRefresh string `yaml:"universe_refresh"`
	} `yaml:"schedule"`
	Scoring struct {
		WeightMode string                 `yaml:"weight_mode"` // profile | dynamic
		Params     strategy.ScoringParams `yaml:"params"`
	} `yaml:"scoring"`
	Notify struct {
		WebhookURL string `yaml:"webhook_url"`
	} `yaml:"notify"`
	Metrics struct {
		Addr string `yaml:"addr"` // empty disables the listener
	} `yaml:"metrics"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Logging struct {
		Dir     string `yaml:"dir"`
		Console bool   `yaml:"console"`
		Debug   bool   `yaml:"debug"`
	} `yaml:"logging"`
	Regimes map[string]strategy.Profile `yaml:"regimes"`
}

// Load reads config from a YAML file, then applies environment variable
// overrides and defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	// Seed before unmarshal so a yaml block overrides only the keys it
	// names; omitted scoring constants keep their defaults.
	cfg.Scoring.Params = strategy.DefaultScoringParams()
	cfg.Logging.Console = true

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("KIWOOM_APPKEY"); v != "" {
		cfg.Kiwoom.AppKey = v
	}
	if v := os.Getenv("KIWOOM_SECRETKEY"); v != "" {
		cfg.Kiwoom.SecretKey = v
	}
	if v := os.Getenv("KIWOOM_BASE_URL"); v != "" {
		cfg.Kiwoom.BaseURL = v
	}
	if v := os.Getenv("WEBHOOK_URL"); v != "" {
		cfg.Notify.WebhookURL = v
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("POLL_INTERVAL"); v != "" {
		cfg.Schedule.PollInterval = v
	}

	// Defaults
	if cfg.Kiwoom.BaseURL == "" {
		cfg.Kiwoom.BaseURL = "https://api.kiwoom.com"
	}
	if cfg.Market.ProxyCode == "" {
		cfg.Market.ProxyCode = "069500" // KODEX 200
	}
	if cfg.Market.MarketTp == "" {
		cfg.Market.MarketTp = "001"
	}
	if len(cfg.Filters.ETFKeywords) == 0 {
		cfg.Filters.ETFKeywords = []string{"KODEX", "TIGER", "ACE", "SOL", "RISE", "HANARO", "PLUS"}
	}
	if cfg.Filters.MaxStocks == 0 {
		cfg.Filters.MaxStocks = 50
	}
	if cfg.Schedule.PollInterval == "" {
		cfg.Schedule.PollInterval = "60s"
	}
	if cfg.Schedule.UniverseRefresh == "" {
		cfg.Schedule.UniverseRefresh = "5m"
	}
	if cfg.Scoring.WeightMode == "" {
		cfg.Scoring.WeightMode = "profile"
	}
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "data/trades.db"
	}
	if cfg.Logging.Dir == "" {
		cfg.Logging.Dir = "logs"
	}
	if len(cfg.Regimes) == 0 {
		cfg.Regimes = map[string]strategy.Profile{"default": defaultProfile()}
	}
	if _, ok := cfg.Regimes["default"]; !ok {
		cfg.Regimes["default"] = defaultProfile()
	}

	return cfg, nil
}

// Validate checks that all required fields are set and parseable.
func (c *Config) Validate() error {
	if c.Kiwoom.AppKey == "" {
		return fmt.Errorf("kiwoom.app_key is required (KIWOOM_APPKEY)")
	}
	if c.Kiwoom.SecretKey == "" {
		return fmt.Errorf("kiwoom.secret_key is required (KIWOOM_SECRETKEY)")
	}
	if _, err := time.ParseDuration(c.Schedule.PollInterval); err != nil {
		return fmt.Errorf("schedule.poll_interval: %w", err)
	}
	if _, err := time.ParseDuration(c.Schedule.UniverseRefresh); err != nil {
		return fmt.Errorf("schedule.universe_refresh: %w", err)
	}
	if c.Filters.MaxStocks <= 0 {
		return fmt.Errorf("filters.max_stocks must be positive")
	}
	if m := c.Scoring.WeightMode; m != "profile" && m != "dynamic" {
		return fmt.Errorf("scoring.weight_mode must be profile or dynamic, got %q", m)
	}
	return nil
}

// PollInterval returns the parsed cycle interval. Call Validate first.
func (c *Config) PollInterval() time.Duration {
	d, _ := time.ParseDuration(c.Schedule.PollInterval)
	return d
}

// UniverseRefresh returns the parsed watchlist refresh cadence.
func (c *Config) UniverseRefresh() time.Duration {
	d, _ := time.ParseDuration(c.Schedule.UniverseRefresh)
	return d
}

// Profiles builds the validated per-regime profile set.
func (c *Config) Profiles() (*strategy.ProfileSet, error) {
	return strategy.NewProfileSet(c.Regimes)
}

// ScoringParams returns the scoring sensitivity constants, defaults
// merged with any yaml overrides.
func (c *Config) ScoringParams() strategy.ScoringParams {
	return c.Scoring.Params
}

// WeightMode maps the configured mode onto the scorer's enum.
func (c *Config) WeightMode() strategy.WeightMode {
	if c.Scoring.WeightMode == "dynamic" {
		return strategy.WeightModeDynamic
	}
	return strategy.WeightModeProfile
}

// defaultProfile mirrors the conservative fallback used when no regime
// configuration is provided: equal weights, strict entry bar.
func defaultProfile() strategy.Profile {
	return strategy.Profile{
		Weights:           strategy.Weights{Alpha: 0.25, Supply: 0.25, Vwap: 0.25, Trend: 0.25},
		Entry:             strategy.Thresholds{Strong: 85, Interest: 75, Alert: 70},
		MinScores:         strategy.MinScores{Alpha: 0, Supply: 0, Vwap: 0, Trend: 0},
		MomentumThreshold: 10,
		DecayRate:         0.15,
		TargetProfitRate:  0.025,
		StopLossRate:      -0.015,
		TotalLossLimit:    -5,
		DayTradeExitTime:  "15:30",
		EntryDeadline:     "14:30",
	}
}
