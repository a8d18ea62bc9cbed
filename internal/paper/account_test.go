package paper

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/Grigoriy-art/bybit-autobot/internal/execution"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type staticMarket struct {
	prices map[string]decimal.Decimal
}

func (m *staticMarket) SymbolFilters(ctx context.Context, symbol string) (execution.SymbolFilters, error) {
	return execution.SymbolFilters{QtyStep: dec("1"), MinQty: dec("1"), MinNotional: dec("5")}, nil
}

func (m *staticMarket) LastPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return m.prices[symbol], nil
}

func order(side execution.Side, qty string, reduceOnly bool) execution.Order {
	return execution.Order{Symbol: "SUIUSDT", Side: side, Qty: dec(qty), ReduceOnly: reduceOnly, OrderLinkID: "l"}
}

func TestOpenAndReadPosition(t *testing.T) {
	market := &staticMarket{prices: map[string]decimal.Decimal{"SUIUSDT": dec("2")}}
	acct := NewAccount(dec("1000"), market)
	ctx := context.Background()

	res, err := acct.PlaceOrder(ctx, order(execution.Sell, "100", false))
	if err != nil {
		t.Fatalf("PlaceOrder returned error: %v", err)
	}
	if !res.Accepted() || res.OrderID == "" || len(res.Raw) == 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	pos, _ := acct.Position(ctx, "SUIUSDT")
	if pos == nil || pos.Side != execution.Short || !pos.Size.Equal(dec("100")) {
		t.Fatalf("unexpected position %+v", pos)
	}
}

func TestCloseRealizesPnL(t *testing.T) {
	market := &staticMarket{prices: map[string]decimal.Decimal{"SUIUSDT": dec("2")}}
	acct := NewAccount(dec("1000"), market)
	ctx := context.Background()

	if _, err := acct.PlaceOrder(ctx, order(execution.Buy, "100", false)); err != nil {
		t.Fatalf("PlaceOrder returned error: %v", err)
	}
	if _, err := acct.PlaceOrder(ctx, order(execution.Buy, "100", false)); err != nil {
		t.Fatalf("PlaceOrder returned error: %v", err)
	}
	market.prices["SUIUSDT"] = dec("2.5")

	res, err := acct.PlaceOrder(ctx, order(execution.Sell, "500", true))
	if err != nil || !res.Accepted() {
		t.Fatalf("close failed: %+v %v", res, err)
	}
	if pos, _ := acct.Position(ctx, "SUIUSDT"); pos != nil {
		t.Fatalf("reduce-only close should be clamped to the position, got %+v", pos)
	}
	if !acct.RealizedPnL().Equal(dec("100")) {
		t.Fatalf("expected realized 100, got %s", acct.RealizedPnL())
	}
	bal, _ := acct.AvailableBalance(ctx)
	if !bal.Equal(dec("1100")) {
		t.Fatalf("expected balance 1100, got %s", bal)
	}
	fills := acct.Fills()
	if len(fills) != 3 || !fills[2].Qty.Equal(dec("200")) || !fills[2].ReduceOnly {
		t.Fatalf("unexpected fills %+v", fills)
	}
}

func TestShortLossAndFlip(t *testing.T) {
	market := &staticMarket{prices: map[string]decimal.Decimal{"SUIUSDT": dec("2")}}
	acct := NewAccount(dec("1000"), market)
	ctx := context.Background()

	_, _ = acct.PlaceOrder(ctx, order(execution.Sell, "10", false))
	market.prices["SUIUSDT"] = dec("3")
	if _, err := acct.PlaceOrder(ctx, order(execution.Buy, "15", false)); err != nil {
		t.Fatalf("PlaceOrder returned error: %v", err)
	}
	if !acct.RealizedPnL().Equal(dec("-10")) {
		t.Fatalf("expected realized -10, got %s", acct.RealizedPnL())
	}
	snap := acct.Snapshot()
	pos := snap.Positions["SUIUSDT"]
	if pos.Side != execution.Long || !pos.Size.Equal(dec("5")) || !pos.AvgPrice.Equal(dec("3")) {
		t.Fatalf("unexpected flipped position %+v", pos)
	}
	if !snap.Cash.Equal(dec("990")) || !snap.StartingCash.Equal(dec("1000")) || snap.Fills != 2 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestReduceOnlyRejections(t *testing.T) {
	market := &staticMarket{prices: map[string]decimal.Decimal{"SUIUSDT": dec("2")}}
	acct := NewAccount(dec("1000"), market)
	ctx := context.Background()

	res, err := acct.PlaceOrder(ctx, order(execution.Sell, "1", true))
	if err != nil {
		t.Fatalf("PlaceOrder returned error: %v", err)
	}
	if res.Accepted() || res.RetCode != retCodeReduceOnly {
		t.Fatalf("reduce-only on a flat book must be rejected, got %+v", res)
	}

	_, _ = acct.PlaceOrder(ctx, order(execution.Buy, "5", false))
	res, _ = acct.PlaceOrder(ctx, order(execution.Buy, "1", true))
	if res.Accepted() {
		t.Fatalf("reduce-only that increases exposure must be rejected")
	}
	if len(acct.Fills()) != 1 {
		t.Fatalf("rejected orders must not fill")
	}
}

func TestNoMarket(t *testing.T) {
	acct := NewAccount(dec("1000"), nil)
	if _, err := acct.PlaceOrder(context.Background(), order(execution.Buy, "1", false)); err != ErrNoMarket {
		t.Fatalf("expected ErrNoMarket, got %v", err)
	}
}

func TestFillLog(t *testing.T) {
	var buf bytes.Buffer
	market := &staticMarket{prices: map[string]decimal.Decimal{"SUIUSDT": dec("2")}}
	acct := NewAccount(dec("1000"), market, WithFillLog(&buf))
	if _, err := acct.PlaceOrder(context.Background(), order(execution.Buy, "3", false)); err != nil {
		t.Fatalf("PlaceOrder returned error: %v", err)
	}
	line := buf.String()
	if strings.Count(line, "\n") != 1 || !strings.Contains(line, `"symbol":"SUIUSDT"`) || !strings.Contains(line, `"qty":"3"`) {
		t.Fatalf("unexpected fill log %q", line)
	}
}
