// Package app assembles the venue, executor and router from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Grigoriy-art/bybit-autobot/internal/config"
	"github.com/Grigoriy-art/bybit-autobot/internal/exchange"
	"github.com/Grigoriy-art/bybit-autobot/internal/execution"
	"github.com/Grigoriy-art/bybit-autobot/internal/paper"
	"github.com/Grigoriy-art/bybit-autobot/internal/risk"
	"github.com/Grigoriy-art/bybit-autobot/internal/router"
)

// App is a wired bridge. Close releases journals and wipes the signer's secret.
type App struct {
	Router   *router.Router
	Executor *execution.Executor
	Ledger   *execution.Ledger
	// Paper is set only in paper mode.
	Paper *paper.Account

	signer  *exchange.Signer
	stream  *exchange.TickerStream
	closers []io.Closer
}

// New builds the live or paper stack described by cfg. In live mode the API
// secret is cleared from cfg once the signer holds its own copy.
func New(cfg *config.Config, log zerolog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &App{Ledger: execution.NewLedger(64)}

	clientOpts := []exchange.Option{
		exchange.WithBaseURL(cfg.Exchange.BaseURL),
		exchange.WithTimeout(cfg.Exchange.Timeout()),
		exchange.WithRetryPolicy(exchange.RetryPolicy{
			MaxRetries:      cfg.Exchange.MaxRetries,
			InitialInterval: cfg.Exchange.RetryInitial(),
			MaxInterval:     cfg.Exchange.RetryMax(),
		}),
		exchange.WithRateLimit(cfg.Exchange.RateLimitPerSec, cfg.Exchange.RateBurst),
		exchange.WithAccount(cfg.Exchange.Category, cfg.Exchange.AccountType, cfg.Exchange.QuoteCoin),
	}

	// market serves filters and prices for both modes; orders never go through it.
	market := func(client *exchange.Client) exchange.MarketData {
		var m exchange.MarketData = exchange.NewFilterCache(client, cfg.Exchange.FilterCacheTTL())
		if len(cfg.Exchange.StreamSymbols) > 0 {
			a.stream = exchange.NewTickerStream(cfg.Exchange.StreamSymbols, m, log,
				exchange.WithStreamURL(cfg.Exchange.StreamURL),
				exchange.WithPriceMaxAge(cfg.Exchange.PriceMaxAge()),
			)
			m = a.stream
		}
		return m
	}

	var venue interface {
		router.Venue
		execution.OrderPlacer
	}
	switch cfg.Trading.Mode {
	case config.ModeLive:
		creds, err := cfg.Credentials()
		if err != nil {
			return nil, err
		}
		signer, err := exchange.NewSigner(creds,
			exchange.WithRecvWindow(cfg.Exchange.RecvWindow()),
			exchange.WithHeaderPrefix(cfg.Exchange.HeaderPrefix),
		)
		if err != nil {
			return nil, err
		}
		a.signer = signer
		cfg.Exchange.APISecret = ""
		client := exchange.NewClient(log, append(clientOpts, exchange.WithSigner(signer))...)
		venue = liveVenue{Client: client, market: market(client)}
		log.Info().Str("base_url", cfg.Exchange.BaseURL).Str("quote_coin", client.QuoteCoin()).Str("credentials", creds.String()).Msg("live venue ready")

	case config.ModePaper:
		// Public market data only; no credentials needed.
		client := exchange.NewClient(log, clientOpts...)
		var opts []paper.Option
		if cfg.Paper.FillsPath != "" {
			f, err := openAppend(cfg.Paper.FillsPath)
			if err != nil {
				return nil, fmt.Errorf("open paper fills: %w", err)
			}
			a.closers = append(a.closers, f)
			opts = append(opts, paper.WithFillLog(f))
		}
		a.Paper = paper.NewAccount(
			decimal.NewFromFloat(cfg.Paper.StartingBalance),
			market(client),
			opts...,
		)
		venue = a.Paper
		log.Info().Float64("starting_balance", cfg.Paper.StartingBalance).Msg("paper venue ready")
	}

	recorders := execution.MultiRecorder{a.Ledger}
	if cfg.Journal.Path != "" {
		journal, err := execution.NewJSONLRecorder(cfg.Journal.Path)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("open journal: %w", err)
		}
		a.closers = append(a.closers, journal)
		recorders = append(recorders, journal)
	}

	a.Executor = execution.NewExecutor(venue, recorders, log)
	a.Router = router.New(venue, a.Executor, log,
		router.WithLimits(risk.Limits{MaxNotionalPerTrade: cfg.Risk.MaxNotionalPerTrade}),
		router.WithTimeout(cfg.Trading.SignalTimeout()),
	)
	return a, nil
}

// Start launches background market data, if configured. It returns immediately.
func (a *App) Start(ctx context.Context, log zerolog.Logger) {
	if a.stream == nil {
		return
	}
	go func() {
		if err := a.stream.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("ticker stream stopped")
		}
	}()
}

// Close flushes journals and wipes the signer's secret.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	a.closers = nil
	a.signer.Wipe()
	return errors.Join(errs...)
}

// liveVenue reads market data through the cache (and stream) and everything else from the client.
type liveVenue struct {
	*exchange.Client
	market exchange.MarketData
}

func (v liveVenue) SymbolFilters(ctx context.Context, symbol string) (execution.SymbolFilters, error) {
	return v.market.SymbolFilters(ctx, symbol)
}

func (v liveVenue) LastPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return v.market.LastPrice(ctx, symbol)
}

func openAppend(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}
