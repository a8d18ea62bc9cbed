// Binary bridge serves the signal webhook and routes orders to Bybit (or the paper venue).
package main

import (
	"context"
	"flag"
	"os"
	ossignal "os/signal"
	"syscall"

	"github.com/Grigoriy-art/bybit-autobot/internal/app"
	"github.com/Grigoriy-art/bybit-autobot/internal/config"
	"github.com/Grigoriy-art/bybit-autobot/internal/metrics"
	"github.com/Grigoriy-art/bybit-autobot/internal/util"
	"github.com/Grigoriy-art/bybit-autobot/internal/webhook"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config (defaults are used when empty)")
	flag.Parse()

	boot := util.NewLogger("info")
	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			boot.Fatal().Err(err).Msg("load config")
		}
		cfg = *loaded
	}
	config.ApplyEnv(&cfg)

	log := util.NewLogger(cfg.App.LogLevel).With().Str("app", cfg.App.Name).Logger()

	bridge, err := app.New(&cfg, log)
	if err != nil {
		log.Error().Err(err).Str("mode", cfg.Trading.Mode).Msg("startup failed")
		os.Exit(1)
	}
	defer func() {
		if err := bridge.Close(); err != nil {
			log.Error().Err(err).Msg("close")
		}
	}()

	if cfg.App.MetricsAddr != "" {
		_ = metrics.Serve(cfg.App.MetricsAddr)
		log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")
	}

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	bridge.Start(ctx, log)

	srv := webhook.New(bridge.Router, log, webhook.WithDefaultLeverage(cfg.Trading.DefaultLeverage))
	if err := srv.ListenAndServe(ctx, cfg.App.ListenAddr); err != nil {
		log.Error().Err(err).Msg("webhook stopped")
		return
	}
	log.Info().Msg("shutting down")
}
