package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// ApplyEnv loads a local .env (best-effort) and lets environment values override the file.
// Secrets are expected to arrive this way rather than through YAML.
func ApplyEnv(cfg *Config) {
	_ = godotenv.Load() // best-effort

	if v := getEnv(EnvAPIKey); v != "" {
		cfg.Exchange.APIKey = v
	}
	if v := getEnv(EnvAPISecret); v != "" {
		cfg.Exchange.APISecret = v
	}
	if v := getEnv(EnvBaseURL); v != "" {
		cfg.Exchange.BaseURL = strings.TrimSuffix(v, "/")
	}
	if v := getEnv(EnvListenAddr); v != "" {
		cfg.App.ListenAddr = v
	}
	if v := getEnv(EnvMode); v != "" {
		cfg.Trading.Mode = strings.ToLower(v)
	}
	if v := getEnv(EnvLogLevel); v != "" {
		cfg.App.LogLevel = v
	}
}

func getEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}
