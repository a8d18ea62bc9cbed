// Package config exposes strongly typed application configuration structs loaded from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// ModeLive routes orders to the real venue with signed requests.
	ModeLive = "live"
	// ModePaper routes orders to the in-process simulated account.
	ModePaper = "paper"
)

// Environment variables consulted by ApplyEnv.
const (
	EnvAPIKey     = "BYBIT_API_KEY"
	EnvAPISecret  = "BYBIT_API_SECRET"
	EnvBaseURL    = "BYBIT_BASE_URL"
	EnvListenAddr = "BRIDGE_LISTEN_ADDR"
	EnvMode       = "BRIDGE_MODE"
	EnvLogLevel   = "LOG_LEVEL"
)

// App captures process-wide runtime settings such as name, listeners and logging level.
type App struct {
	Name        string `yaml:"name"`
	Env         string `yaml:"env"`
	ListenAddr  string `yaml:"listen_addr"`
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
}

// Exchange describes connectivity to the derivatives venue and the hardening knobs around it.
type Exchange struct {
	Name             string  `yaml:"name"`
	BaseURL          string  `yaml:"base_url"`
	APIKey           string  `yaml:"api_key"`
	APISecret        string  `yaml:"api_secret"`
	HeaderPrefix     string  `yaml:"header_prefix"`
	RecvWindowMs     int     `yaml:"recv_window_ms"`
	Category         string  `yaml:"category"`
	AccountType      string  `yaml:"account_type"`
	QuoteCoin        string  `yaml:"quote_coin"`
	TimeoutMs        int     `yaml:"timeout_ms"`
	MaxRetries       int     `yaml:"max_retries"`
	RetryInitialMs   int     `yaml:"retry_initial_ms"`
	RetryMaxMs       int     `yaml:"retry_max_ms"`
	RateLimitPerSec  float64 `yaml:"rate_limit_per_sec"`
	RateBurst        int     `yaml:"rate_burst"`
	FilterCacheTTLMs int     `yaml:"filter_cache_ttl_ms"`
	// StreamSymbols enables the public ticker stream for these symbols; empty disables it.
	StreamURL     string   `yaml:"stream_url"`
	StreamSymbols []string `yaml:"stream_symbols"`
	PriceMaxAgeMs int      `yaml:"price_max_age_ms"`
}

// Trading selects the venue mode and signal defaults.
type Trading struct {
	Mode            string `yaml:"mode"`
	DefaultLeverage int    `yaml:"default_leverage"`
	SignalTimeoutMs int    `yaml:"signal_timeout_ms"`
}

// Risk encodes the optional guard-rail on order size.
type Risk struct {
	MaxNotionalPerTrade float64 `yaml:"max_notional_per_trade"`
}

// Paper captures simulated-account settings used when Trading.Mode is paper.
type Paper struct {
	StartingBalance float64 `yaml:"starting_balance"`
	FillsPath       string  `yaml:"fills_path"`
}

// Journal configures the append-only execution log.
type Journal struct {
	Path string `yaml:"path"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App      App      `yaml:"app"`
	Exchange Exchange `yaml:"exchange"`
	Trading  Trading  `yaml:"trading"`
	Risk     Risk     `yaml:"risk"`
	Paper    Paper    `yaml:"paper"`
	Journal  Journal  `yaml:"journal"`
}

// Default returns a complete configuration for Bybit v5 linear perpetuals.
func Default() Config {
	return Config{
		App: App{
			Name:        "bybit-autobot",
			Env:         "dev",
			ListenAddr:  ":8000",
			MetricsAddr: ":9100",
			LogLevel:    "info",
		},
		Exchange: Exchange{
			Name:             "bybit",
			BaseURL:          "https://api.bybit.com",
			HeaderPrefix:     "X-BAPI-",
			RecvWindowMs:     5000,
			Category:         "linear",
			AccountType:      "UNIFIED",
			QuoteCoin:        "USDT",
			TimeoutMs:        10000,
			MaxRetries:       2,
			RetryInitialMs:   200,
			RetryMaxMs:       2000,
			RateLimitPerSec:  10,
			RateBurst:        5,
			FilterCacheTTLMs: 0,
			StreamURL:        "wss://stream.bybit.com/v5/public/linear",
			PriceMaxAgeMs:    10000,
		},
		Trading: Trading{
			Mode:            ModeLive,
			DefaultLeverage: 10,
			SignalTimeoutMs: 30000,
		},
		Paper: Paper{
			StartingBalance: 1000,
		},
	}
}

// Load reads a YAML file from disk on top of Default.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	config := Default()
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return &config, nil
}

// Save persists a Config struct to disk as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.App.ListenAddr == "" {
		return errors.New("app.listen_addr is required")
	}
	base := c.Exchange.BaseURL
	if !strings.HasPrefix(base, "https://") && !strings.HasPrefix(base, "http://") {
		return fmt.Errorf("invalid exchange.base_url: %q", base)
	}
	if c.Exchange.HeaderPrefix == "" {
		return errors.New("exchange.header_prefix is required")
	}
	if c.Exchange.RecvWindowMs <= 0 {
		return fmt.Errorf("exchange.recv_window_ms must be positive, got %d", c.Exchange.RecvWindowMs)
	}
	if c.Exchange.Category == "" || c.Exchange.AccountType == "" || c.Exchange.QuoteCoin == "" {
		return errors.New("exchange.category, exchange.account_type and exchange.quote_coin are required")
	}
	if c.Exchange.TimeoutMs <= 0 {
		return fmt.Errorf("exchange.timeout_ms must be positive, got %d", c.Exchange.TimeoutMs)
	}
	if c.Exchange.MaxRetries < 0 {
		return fmt.Errorf("exchange.max_retries must not be negative, got %d", c.Exchange.MaxRetries)
	}
	if c.Exchange.RateLimitPerSec <= 0 || c.Exchange.RateBurst <= 0 {
		return errors.New("exchange.rate_limit_per_sec and exchange.rate_burst must be positive")
	}
	if c.Exchange.FilterCacheTTLMs < 0 {
		return errors.New("exchange.filter_cache_ttl_ms must not be negative")
	}
	if len(c.Exchange.StreamSymbols) > 0 {
		if !strings.HasPrefix(c.Exchange.StreamURL, "wss://") && !strings.HasPrefix(c.Exchange.StreamURL, "ws://") {
			return fmt.Errorf("invalid exchange.stream_url: %q", c.Exchange.StreamURL)
		}
		if c.Exchange.PriceMaxAgeMs <= 0 {
			return errors.New("exchange.price_max_age_ms must be positive when streaming")
		}
	}
	switch c.Trading.Mode {
	case ModeLive, ModePaper:
	default:
		return fmt.Errorf("unknown trading.mode %q", c.Trading.Mode)
	}
	if c.Trading.DefaultLeverage < 1 {
		return fmt.Errorf("trading.default_leverage must be at least 1, got %d", c.Trading.DefaultLeverage)
	}
	if c.Trading.SignalTimeoutMs < 0 {
		return errors.New("trading.signal_timeout_ms must not be negative")
	}
	if c.Risk.MaxNotionalPerTrade < 0 {
		return errors.New("risk.max_notional_per_trade must not be negative")
	}
	if c.Trading.Mode == ModePaper && c.Paper.StartingBalance <= 0 {
		return errors.New("paper.starting_balance must be positive in paper mode")
	}
	return nil
}

// Timeout is the per-call exchange timeout.
func (e Exchange) Timeout() time.Duration { return time.Duration(e.TimeoutMs) * time.Millisecond }

// RecvWindow is the signed-request receive window.
func (e Exchange) RecvWindow() time.Duration { return time.Duration(e.RecvWindowMs) * time.Millisecond }

// RetryInitial is the first backoff interval for idempotent reads.
func (e Exchange) RetryInitial() time.Duration {
	return time.Duration(e.RetryInitialMs) * time.Millisecond
}

// RetryMax caps the backoff interval for idempotent reads.
func (e Exchange) RetryMax() time.Duration { return time.Duration(e.RetryMaxMs) * time.Millisecond }

// FilterCacheTTL is how long instrument filters may be reused; zero disables caching.
func (e Exchange) FilterCacheTTL() time.Duration {
	return time.Duration(e.FilterCacheTTLMs) * time.Millisecond
}

// PriceMaxAge is how long a streamed price stays usable.
func (e Exchange) PriceMaxAge() time.Duration {
	return time.Duration(e.PriceMaxAgeMs) * time.Millisecond
}

// SignalTimeout bounds the whole reconciliation chain for one signal; zero means no bound.
func (t Trading) SignalTimeout() time.Duration {
	return time.Duration(t.SignalTimeoutMs) * time.Millisecond
}
