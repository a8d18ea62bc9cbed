package config

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	path := filepath.Join("testdata", "config.yaml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.App.Name != "bybit-autobot-test" {
		t.Fatalf("unexpected App.Name: %s", cfg.App.Name)
	}
	if cfg.App.ListenAddr != ":8088" {
		t.Fatalf("unexpected App.ListenAddr: %s", cfg.App.ListenAddr)
	}
	if cfg.App.MetricsAddr != ":9100" {
		t.Fatalf("expected default metrics addr kept, got %s", cfg.App.MetricsAddr)
	}
	if cfg.Exchange.BaseURL != "https://api-testnet.bybit.com" {
		t.Fatalf("unexpected Exchange.BaseURL: %s", cfg.Exchange.BaseURL)
	}
	if cfg.Exchange.RecvWindowMs != 5000 {
		t.Fatalf("expected default recv window 5000, got %d", cfg.Exchange.RecvWindowMs)
	}
	if cfg.Exchange.Timeout() != 4*time.Second {
		t.Fatalf("unexpected timeout: %s", cfg.Exchange.Timeout())
	}
	if cfg.Exchange.MaxRetries != 3 {
		t.Fatalf("unexpected max retries: %d", cfg.Exchange.MaxRetries)
	}
	if cfg.Exchange.FilterCacheTTL() != time.Minute {
		t.Fatalf("unexpected filter cache ttl: %s", cfg.Exchange.FilterCacheTTL())
	}
	if cfg.Exchange.Category != "linear" || cfg.Exchange.AccountType != "UNIFIED" {
		t.Fatalf("expected linear/UNIFIED defaults, got %s/%s", cfg.Exchange.Category, cfg.Exchange.AccountType)
	}
	if cfg.Trading.Mode != ModePaper {
		t.Fatalf("unexpected trading mode: %s", cfg.Trading.Mode)
	}
	if cfg.Trading.DefaultLeverage != 5 {
		t.Fatalf("unexpected default leverage: %d", cfg.Trading.DefaultLeverage)
	}
	if cfg.Risk.MaxNotionalPerTrade != 2500 {
		t.Fatalf("unexpected max notional: %.2f", cfg.Risk.MaxNotionalPerTrade)
	}
	if cfg.Paper.StartingBalance != 5000 {
		t.Fatalf("unexpected starting balance: %.2f", cfg.Paper.StartingBalance)
	}
	if cfg.Journal.Path != "data/executions.jsonl" {
		t.Fatalf("unexpected journal path: %s", cfg.Journal.Path)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("fixture should validate: %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestSaveRoundTripKeepsMode(t *testing.T) {
	cfg := Default()
	cfg.Trading.Mode = ModePaper
	path := filepath.Join(t.TempDir(), "out.yaml")
	if err := Save(path, &cfg); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if loaded.Trading.Mode != ModePaper {
		t.Fatalf("expected paper mode after reload, got %s", loaded.Trading.Mode)
	}
	if err := Save(path, nil); err == nil {
		t.Fatalf("expected error saving nil config")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"default ok", func(*Config) {}, ""},
		{"bad url", func(c *Config) { c.Exchange.BaseURL = "ftp://x" }, "base_url"},
		{"zero recv window", func(c *Config) { c.Exchange.RecvWindowMs = 0 }, "recv_window_ms"},
		{"unknown mode", func(c *Config) { c.Trading.Mode = "yolo" }, "trading.mode"},
		{"zero leverage", func(c *Config) { c.Trading.DefaultLeverage = 0 }, "default_leverage"},
		{"negative retries", func(c *Config) { c.Exchange.MaxRetries = -1 }, "max_retries"},
		{"no rate", func(c *Config) { c.Exchange.RateLimitPerSec = 0 }, "rate_limit_per_sec"},
		{"stream over http", func(c *Config) {
			c.Exchange.StreamSymbols = []string{"BTCUSDT"}
			c.Exchange.StreamURL = "https://stream.bybit.com"
		}, "stream_url"},
		{"paper without cash", func(c *Config) {
			c.Trading.Mode = ModePaper
			c.Paper.StartingBalance = 0
		}, "starting_balance"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.want == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}

func TestApplyEnvOverridesSecrets(t *testing.T) {
	t.Setenv(EnvAPIKey, " key-from-env ")
	t.Setenv(EnvAPISecret, "secret-from-env")
	t.Setenv(EnvBaseURL, "https://api-demo.bybit.com/")
	t.Setenv(EnvMode, "PAPER")

	cfg := Default()
	cfg.Exchange.APIKey = "file-key"
	ApplyEnv(&cfg)

	if cfg.Exchange.APIKey != "key-from-env" {
		t.Fatalf("expected env key, got %q", cfg.Exchange.APIKey)
	}
	if cfg.Exchange.BaseURL != "https://api-demo.bybit.com" {
		t.Fatalf("expected trimmed base url, got %q", cfg.Exchange.BaseURL)
	}
	if cfg.Trading.Mode != ModePaper {
		t.Fatalf("expected lower-cased mode, got %q", cfg.Trading.Mode)
	}

	creds, err := cfg.Credentials()
	if err != nil {
		t.Fatalf("Credentials returned error: %v", err)
	}
	if creds.APIKey() != "key-from-env" || string(creds.Secret()) != "secret-from-env" {
		t.Fatalf("unexpected credentials %s", creds)
	}
}

func TestCredentialsRequired(t *testing.T) {
	if _, err := NewCredentials("key", " "); !errors.Is(err, ErrMissingCredentials) {
		t.Fatalf("expected ErrMissingCredentials, got %v", err)
	}
	if _, err := NewCredentials("", "secret"); !errors.Is(err, ErrMissingCredentials) {
		t.Fatalf("expected ErrMissingCredentials, got %v", err)
	}
	creds, err := NewCredentials("abcdefgh", "s3cr3t")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(creds.String(), "s3cr3t") || strings.Contains(creds.String(), "abcdefgh") {
		t.Fatalf("String leaked credentials: %s", creds)
	}
	if (Credentials{}).String() != "credentials(none)" {
		t.Fatalf("unexpected zero String")
	}
}
