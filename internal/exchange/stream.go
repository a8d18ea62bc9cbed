package exchange

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Grigoriy-art/bybit-autobot/internal/execution"
	"github.com/Grigoriy-art/bybit-autobot/internal/metrics"
)

const (
	// DefaultStreamURL is the Bybit v5 public stream for linear contracts.
	DefaultStreamURL = "wss://stream.bybit.com/v5/public/linear"

	defaultPriceMaxAge = 10 * time.Second
	streamPingEvery    = 20 * time.Second
	streamReadTimeout  = 60 * time.Second
)

type streamRequest struct {
	Op   string   `json:"op"`
	Args []string `json:"args,omitempty"`
}

type streamMessage struct {
	Topic string `json:"topic"`
	Type  string `json:"type"`
	Ts    int64  `json:"ts"`
	Data  struct {
		Symbol    string `json:"symbol"`
		LastPrice string `json:"lastPrice"`
	} `json:"data"`
	// Control replies (subscribe, pong) carry these instead.
	Op      string `json:"op"`
	Success *bool  `json:"success"`
	RetMsg  string `json:"ret_msg"`
}

type streamPrice struct {
	price decimal.Decimal
	at    time.Time
}

// TickerStream keeps last prices for a fixed symbol set from the public
// websocket and answers LastPrice from them while fresh. Stale or unknown
// symbols, and all filter lookups, go to the fallback.
type TickerStream struct {
	url      string
	symbols  []string
	fallback MarketData
	maxAge   time.Duration
	log      zerolog.Logger
	now      func() time.Time

	mu     sync.RWMutex
	prices map[string]streamPrice
}

// StreamOption configures a TickerStream.
type StreamOption func(*TickerStream)

// WithStreamURL overrides the websocket endpoint (testnet, httptest).
func WithStreamURL(url string) StreamOption {
	return func(s *TickerStream) {
		if url != "" {
			s.url = url
		}
	}
}

// WithPriceMaxAge sets how old a streamed price may be before the fallback is used.
func WithPriceMaxAge(d time.Duration) StreamOption {
	return func(s *TickerStream) {
		if d > 0 {
			s.maxAge = d
		}
	}
}

// NewTickerStream tracks symbols (deduplicated, upper-cased) on top of fallback.
func NewTickerStream(symbols []string, fallback MarketData, log zerolog.Logger, opts ...StreamOption) *TickerStream {
	s := &TickerStream{
		url:      DefaultStreamURL,
		fallback: fallback,
		maxAge:   defaultPriceMaxAge,
		log:      log,
		now:      time.Now,
		prices:   make(map[string]streamPrice),
	}
	unique := make(map[string]struct{}, len(symbols))
	for _, sym := range symbols {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym != "" {
			unique[sym] = struct{}{}
		}
	}
	for sym := range unique {
		s.symbols = append(s.symbols, sym)
	}
	sort.Strings(s.symbols)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SymbolFilters passes through.
func (s *TickerStream) SymbolFilters(ctx context.Context, symbol string) (execution.SymbolFilters, error) {
	return s.fallback.SymbolFilters(ctx, symbol)
}

// LastPrice serves the streamed price when fresh.
func (s *TickerStream) LastPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	s.mu.RLock()
	p, ok := s.prices[symbol]
	s.mu.RUnlock()
	if ok && s.now().Sub(p.at) < s.maxAge {
		return p.price, nil
	}
	return s.fallback.LastPrice(ctx, symbol)
}

// Run keeps the subscription alive, reconnecting with backoff, until ctx is cancelled.
func (s *TickerStream) Run(ctx context.Context) error {
	if len(s.symbols) == 0 {
		return errors.New("ticker stream requires at least one symbol")
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = 30 * time.Second

	for {
		start := s.now()
		err := s.consume(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if s.now().Sub(start) > time.Minute {
			bo.Reset()
		}
		wait := bo.NextBackOff()
		s.log.Warn().Err(err).Dur("backoff", wait).Msg("ticker stream disconnected, retrying")
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *TickerStream) consume(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	args := make([]string, len(s.symbols))
	for i, sym := range s.symbols {
		args[i] = "tickers." + sym
	}
	if err := conn.WriteJSON(streamRequest{Op: "subscribe", Args: args}); err != nil {
		return err
	}
	s.log.Info().Strs("symbols", s.symbols).Msg("ticker stream connected")

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(streamReadTimeout))

	// Bybit expects an application-level ping; writes are serialized through this goroutine only.
	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go func() {
		ticker := time.NewTicker(streamPingEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteJSON(streamRequest{Op: "ping"}); err != nil {
					s.log.Warn().Err(err).Msg("ticker stream ping failed")
					return
				}
			case <-pingCtx.Done():
				_ = conn.Close()
				return
			}
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(streamReadTimeout))
		s.handle(message)
	}
}

func (s *TickerStream) handle(message []byte) {
	var msg streamMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		s.log.Warn().Err(err).Msg("failed to decode stream message")
		return
	}
	if msg.Op != "" {
		if msg.Success != nil && !*msg.Success {
			s.log.Error().Str("op", msg.Op).Str("ret_msg", msg.RetMsg).Msg("stream request rejected")
		}
		return
	}
	if !strings.HasPrefix(msg.Topic, "tickers.") || msg.Data.LastPrice == "" {
		// Deltas omit unchanged fields.
		return
	}
	px, err := decimal.NewFromString(msg.Data.LastPrice)
	if err != nil || !px.IsPositive() {
		s.log.Warn().Str("last_price", msg.Data.LastPrice).Msg("invalid price from stream")
		return
	}
	symbol := msg.Data.Symbol
	if symbol == "" {
		symbol = strings.TrimPrefix(msg.Topic, "tickers.")
	}
	s.mu.Lock()
	s.prices[symbol] = streamPrice{price: px, at: s.now()}
	s.mu.Unlock()
	metrics.TickerUpdatesTotal.WithLabelValues(symbol).Inc()
}
