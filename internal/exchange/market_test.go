package exchange

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Grigoriy-art/bybit-autobot/internal/execution"
)

type countingMarket struct {
	filterCalls int
	priceCalls  int
	err         error
}

func (m *countingMarket) SymbolFilters(ctx context.Context, symbol string) (execution.SymbolFilters, error) {
	m.filterCalls++
	if m.err != nil {
		return execution.SymbolFilters{}, m.err
	}
	return execution.SymbolFilters{QtyStep: decimal.NewFromInt(1), MinQty: decimal.NewFromInt(1), MinNotional: decimal.NewFromInt(5)}, nil
}

func (m *countingMarket) LastPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	m.priceCalls++
	return decimal.NewFromInt(2), nil
}

func TestFilterCacheTTL(t *testing.T) {
	src := &countingMarket{}
	cache := NewFilterCache(src, time.Minute)
	now := time.Unix(1_700_000_000, 0)
	cache.now = func() time.Time { return now }

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := cache.SymbolFilters(ctx, "SUIUSDT"); err != nil {
			t.Fatalf("SymbolFilters: %v", err)
		}
	}
	if src.filterCalls != 1 {
		t.Fatalf("expected one upstream call while fresh, got %d", src.filterCalls)
	}

	if _, err := cache.SymbolFilters(ctx, "BTCUSDT"); err != nil {
		t.Fatalf("SymbolFilters: %v", err)
	}
	if src.filterCalls != 2 {
		t.Fatalf("symbols must be cached independently, got %d calls", src.filterCalls)
	}

	now = now.Add(time.Minute)
	if _, err := cache.SymbolFilters(ctx, "SUIUSDT"); err != nil {
		t.Fatalf("SymbolFilters: %v", err)
	}
	if src.filterCalls != 3 {
		t.Fatalf("expected refetch after ttl, got %d calls", src.filterCalls)
	}

	for i := 0; i < 2; i++ {
		if _, err := cache.LastPrice(ctx, "SUIUSDT"); err != nil {
			t.Fatalf("LastPrice: %v", err)
		}
	}
	if src.priceCalls != 2 {
		t.Fatalf("prices must not be cached, got %d calls", src.priceCalls)
	}
}

func TestFilterCacheDisabledAndErrors(t *testing.T) {
	src := &countingMarket{}
	cache := NewFilterCache(src, 0)
	ctx := context.Background()
	_, _ = cache.SymbolFilters(ctx, "SUIUSDT")
	_, _ = cache.SymbolFilters(ctx, "SUIUSDT")
	if src.filterCalls != 2 {
		t.Fatalf("ttl 0 should always fetch, got %d calls", src.filterCalls)
	}

	failing := &countingMarket{err: ErrNoInstrument}
	cache = NewFilterCache(failing, time.Minute)
	for i := 0; i < 2; i++ {
		if _, err := cache.SymbolFilters(ctx, "NOPEUSDT"); !errors.Is(err, ErrNoInstrument) {
			t.Fatalf("expected ErrNoInstrument, got %v", err)
		}
	}
	if failing.filterCalls != 2 {
		t.Fatalf("errors must not be cached, got %d calls", failing.filterCalls)
	}
}

func TestSideMapping(t *testing.T) {
	if s, err := toVenueSide(execution.Buy); err != nil || s != "Buy" {
		t.Fatalf("BUY -> %q, %v", s, err)
	}
	if s, err := toVenueSide(execution.Sell); err != nil || s != "Sell" {
		t.Fatalf("SELL -> %q, %v", s, err)
	}
	if _, err := toVenueSide("HOLD"); err == nil {
		t.Fatalf("expected error for unknown side")
	}
	if p, err := fromVenuePositionSide("Buy"); err != nil || p != execution.Long {
		t.Fatalf("Buy -> %q, %v", p, err)
	}
	if p, err := fromVenuePositionSide("Sell"); err != nil || p != execution.Short {
		t.Fatalf("Sell -> %q, %v", p, err)
	}
	if _, err := fromVenuePositionSide("None"); err == nil {
		t.Fatalf("expected error for unknown position side")
	}
}
