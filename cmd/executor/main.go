// Binary executor runs a single signal through the configured venue and prints
// the same JSON the webhook would answer with.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/Grigoriy-art/bybit-autobot/internal/app"
	"github.com/Grigoriy-art/bybit-autobot/internal/config"
	"github.com/Grigoriy-art/bybit-autobot/internal/execution"
	"github.com/Grigoriy-art/bybit-autobot/internal/signal"
	"github.com/Grigoriy-art/bybit-autobot/internal/util"
	"github.com/Grigoriy-art/bybit-autobot/internal/webhook"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config (defaults are used when empty)")
	raw := flag.String("json", "", "raw signal body; overrides the individual flags")
	symbol := flag.String("symbol", "", "symbol, e.g. BTCUSDT")
	side := flag.String("side", "", "BUY or SELL")
	qty := flag.String("qty", "", "explicit quantity")
	price := flag.String("price", "", "reference price for sizing")
	leverage := flag.Int("leverage", 0, "leverage (defaults to trading.default_leverage)")
	flag.Parse()

	log := util.NewLogger("info")
	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatal().Err(err).Msg("load config")
		}
		cfg = *loaded
	}
	config.ApplyEnv(&cfg)
	log = util.NewLogger(cfg.App.LogLevel)

	body := []byte(*raw)
	if len(body) == 0 {
		var err error
		body, err = buildBody(*symbol, *side, *qty, *price, *leverage)
		if err != nil {
			log.Fatal().Err(err).Msg("build signal")
		}
	}

	sig, err := signal.Parse(body, cfg.Trading.DefaultLeverage)
	if err != nil {
		emit(webhook.ParseFailure(err))
		os.Exit(1)
	}

	bridge, err := app.New(&cfg, log)
	if err != nil {
		log.Fatal().Err(err).Str("mode", cfg.Trading.Mode).Msg("startup failed")
	}
	defer bridge.Close()

	ctx := execution.WithRequestID(context.Background(), "cli")
	out, err := bridge.Router.Handle(ctx, sig)
	emit(webhook.BuildResponse(out, err))
	if bridge.Paper != nil {
		emit(bridge.Paper.Snapshot())
	}
	if err != nil {
		_ = bridge.Close()
		os.Exit(1)
	}
}

func buildBody(symbol, side, qty, price string, leverage int) ([]byte, error) {
	payload := map[string]any{"symbol": symbol, "side": side}
	if qty != "" {
		if _, err := strconv.ParseFloat(qty, 64); err != nil {
			return nil, fmt.Errorf("qty: %w", err)
		}
		payload["qty"] = qty
	}
	if price != "" {
		if _, err := strconv.ParseFloat(price, 64); err != nil {
			return nil, fmt.Errorf("price: %w", err)
		}
		payload["price"] = price
	}
	if leverage > 0 {
		payload["leverage"] = leverage
	}
	return json.Marshal(payload)
}

func emit(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return
	}
	fmt.Println(string(out))
}
