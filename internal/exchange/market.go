package exchange

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Grigoriy-art/bybit-autobot/internal/execution"
)

// ErrNoInstrument is returned when the venue does not list the symbol.
var ErrNoInstrument = errors.New("instrument not found")

type instrumentsResult struct {
	Category string            `json:"category"`
	List     []instrumentEntry `json:"list"`
}

type instrumentEntry struct {
	Symbol        string `json:"symbol"`
	Status        string `json:"status"`
	LotSizeFilter struct {
		QtyStep          string `json:"qtyStep"`
		MinOrderQty      string `json:"minOrderQty"`
		MaxOrderQty      string `json:"maxOrderQty"`
		MinNotionalValue string `json:"minNotionalValue"`
	} `json:"lotSizeFilter"`
}

type tickersResult struct {
	Category string `json:"category"`
	List     []struct {
		Symbol    string `json:"symbol"`
		LastPrice string `json:"lastPrice"`
		MarkPrice string `json:"markPrice"`
	} `json:"list"`
}

// SymbolFilters fetches the lot-size rules for symbol from the public instruments endpoint.
func (c *Client) SymbolFilters(ctx context.Context, symbol string) (execution.SymbolFilters, error) {
	query := url.Values{}
	query.Set("category", c.category)
	query.Set("symbol", symbol)

	var res instrumentsResult
	if err := c.get(ctx, pathInstrumentsInfo, query, false, &res); err != nil {
		return execution.SymbolFilters{}, err
	}
	if len(res.List) == 0 {
		return execution.SymbolFilters{}, fmt.Errorf("%w: %s", ErrNoInstrument, symbol)
	}
	lot := res.List[0].LotSizeFilter

	step, err := parseDecimal("qtyStep", lot.QtyStep)
	if err != nil {
		return execution.SymbolFilters{}, err
	}
	minQty, err := parseDecimal("minOrderQty", lot.MinOrderQty)
	if err != nil {
		return execution.SymbolFilters{}, err
	}
	minNotional, err := parseDecimal("minNotionalValue", lot.MinNotionalValue)
	if err != nil {
		return execution.SymbolFilters{}, err
	}
	return execution.SymbolFilters{QtyStep: step, MinQty: minQty, MinNotional: minNotional}, nil
}

// LastPrice reads the latest traded price from the public tickers endpoint.
func (c *Client) LastPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	query := url.Values{}
	query.Set("category", c.category)
	query.Set("symbol", symbol)

	var res tickersResult
	if err := c.get(ctx, pathTickers, query, false, &res); err != nil {
		return decimal.Zero, err
	}
	if len(res.List) == 0 {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrNoInstrument, symbol)
	}
	price, err := parseDecimal("lastPrice", res.List[0].LastPrice)
	if err != nil {
		return decimal.Zero, err
	}
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("%s: non-positive last price %s", pathTickers, price)
	}
	return price, nil
}

// parseDecimal treats an absent field as zero.
func parseDecimal(field, raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse %s %q: %w", field, raw, err)
	}
	return d, nil
}

// MarketData is the read-only market surface the cache decorates.
type MarketData interface {
	SymbolFilters(ctx context.Context, symbol string) (execution.SymbolFilters, error)
	LastPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

type cachedFilters struct {
	filters   execution.SymbolFilters
	fetchedAt time.Time
}

// FilterCache reuses instrument filters for at most ttl. Prices are never cached.
type FilterCache struct {
	src MarketData
	ttl time.Duration
	now func() time.Time

	mu      sync.RWMutex
	entries map[string]cachedFilters
}

// NewFilterCache wraps src; ttl <= 0 disables caching.
func NewFilterCache(src MarketData, ttl time.Duration) *FilterCache {
	return &FilterCache{src: src, ttl: ttl, now: time.Now, entries: make(map[string]cachedFilters)}
}

// SymbolFilters serves from cache while fresh, otherwise refetches.
func (f *FilterCache) SymbolFilters(ctx context.Context, symbol string) (execution.SymbolFilters, error) {
	if f.ttl <= 0 {
		return f.src.SymbolFilters(ctx, symbol)
	}
	f.mu.RLock()
	entry, ok := f.entries[symbol]
	f.mu.RUnlock()
	if ok && f.now().Sub(entry.fetchedAt) < f.ttl {
		return entry.filters, nil
	}

	filters, err := f.src.SymbolFilters(ctx, symbol)
	if err != nil {
		return execution.SymbolFilters{}, err
	}
	f.mu.Lock()
	f.entries[symbol] = cachedFilters{filters: filters, fetchedAt: f.now()}
	f.mu.Unlock()
	return filters, nil
}

// LastPrice passes through.
func (f *FilterCache) LastPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return f.src.LastPrice(ctx, symbol)
}
