// Package paper simulates the venue for dry runs: a net-position futures account
// that fills market orders at the last traded price.
package paper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Grigoriy-art/bybit-autobot/internal/execution"
)

// Bybit codes reused so paper answers look like the real venue's.
const (
	retCodeOK          = 0
	retCodeReduceOnly  = 110017
	retCodeInvalidSide = 10001
)

// ErrNoMarket is returned when the account has no price source.
var ErrNoMarket = errors.New("paper account has no market data")

// Market supplies instrument filters and fill prices.
type Market interface {
	SymbolFilters(ctx context.Context, symbol string) (execution.SymbolFilters, error)
	LastPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// Fill is one simulated execution.
type Fill struct {
	Time        time.Time       `json:"time"`
	OrderID     string          `json:"order_id"`
	OrderLinkID string          `json:"order_link_id"`
	Symbol      string          `json:"symbol"`
	Side        execution.Side  `json:"side"`
	Qty         decimal.Decimal `json:"qty"`
	Price       decimal.Decimal `json:"price"`
	ReduceOnly  bool            `json:"reduce_only"`
	Realized    decimal.Decimal `json:"realized"`
}

// positionState holds a signed net quantity: positive is long, negative short.
type positionState struct {
	Qty      decimal.Decimal
	AvgPrice decimal.Decimal
}

// Account tracks virtual margin, realized PnL, and per-symbol net positions.
// Margin is not reserved per position; the available balance is starting
// balance plus realized PnL.
type Account struct {
	market  Market
	now     func() time.Time
	fillLog *json.Encoder

	mu           sync.Mutex
	startingCash decimal.Decimal
	cash         decimal.Decimal
	realizedPnL  decimal.Decimal
	positions    map[string]positionState
	fills        []Fill
}

// PositionSnapshot exposes a read-only view of a single symbol position.
type PositionSnapshot struct {
	Side     execution.PositionSide `json:"side"`
	Size     decimal.Decimal        `json:"size"`
	AvgPrice decimal.Decimal        `json:"avg_price"`
}

// Snapshot is a consistent copy of the account state.
type Snapshot struct {
	StartingCash decimal.Decimal             `json:"starting_cash"`
	Cash         decimal.Decimal             `json:"cash"`
	RealizedPnL  decimal.Decimal             `json:"realized_pnl"`
	Positions    map[string]PositionSnapshot `json:"positions"`
	Fills        int                         `json:"fills"`
}

// Option configures an Account.
type Option func(*Account)

// WithFillLog appends every fill to w as a JSON line.
func WithFillLog(w io.Writer) Option {
	return func(a *Account) {
		if w != nil {
			a.fillLog = json.NewEncoder(w)
		}
	}
}

// NewAccount constructs an account with starting margin, priced by market.
func NewAccount(startingCash decimal.Decimal, market Market, opts ...Option) *Account {
	a := &Account{
		market:       market,
		now:          time.Now,
		startingCash: startingCash,
		cash:         startingCash,
		positions:    make(map[string]positionState),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Position returns the open position on symbol, or nil when flat.
func (a *Account) Position(ctx context.Context, symbol string) (*execution.Position, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	state, ok := a.positions[symbol]
	if !ok || state.Qty.IsZero() {
		return nil, nil
	}
	side := execution.Long
	if state.Qty.IsNegative() {
		side = execution.Short
	}
	return &execution.Position{Symbol: symbol, Side: side, Size: state.Qty.Abs()}, nil
}

// AvailableBalance reports free margin.
func (a *Account) AvailableBalance(ctx context.Context) (decimal.Decimal, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cash, nil
}

// SymbolFilters delegates to the market.
func (a *Account) SymbolFilters(ctx context.Context, symbol string) (execution.SymbolFilters, error) {
	if a.market == nil {
		return execution.SymbolFilters{}, ErrNoMarket
	}
	return a.market.SymbolFilters(ctx, symbol)
}

// LastPrice delegates to the market.
func (a *Account) LastPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if a.market == nil {
		return decimal.Zero, ErrNoMarket
	}
	return a.market.LastPrice(ctx, symbol)
}

// PlaceOrder fills a market order at the last price. Rejections come back as a
// 200 with a non-zero retCode, the way the venue reports them.
func (a *Account) PlaceOrder(ctx context.Context, order execution.Order) (execution.Result, error) {
	if !order.Qty.IsPositive() {
		return execution.Result{}, fmt.Errorf("quantity must be positive, got %s", order.Qty)
	}
	var delta decimal.Decimal
	switch order.Side {
	case execution.Buy:
		delta = order.Qty
	case execution.Sell:
		delta = order.Qty.Neg()
	default:
		return reply(retCodeInvalidSide, "unknown order side", "", order.OrderLinkID)
	}
	price, err := a.LastPrice(ctx, order.Symbol)
	if err != nil {
		return execution.Result{}, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	state := a.positions[order.Symbol]
	if order.ReduceOnly {
		if state.Qty.IsZero() || state.Qty.Sign() == delta.Sign() {
			return reply(retCodeReduceOnly, "current position is zero, cannot fix reduce-only order qty", "", order.OrderLinkID)
		}
		if delta.Abs().GreaterThan(state.Qty.Abs()) {
			delta = state.Qty.Neg()
		}
	}

	realized := decimal.Zero
	newQty := state.Qty.Add(delta)
	switch {
	case state.Qty.IsZero() || state.Qty.Sign() == delta.Sign():
		// Opening or adding: blend the entry price.
		notional := state.AvgPrice.Mul(state.Qty.Abs()).Add(price.Mul(delta.Abs()))
		state = positionState{Qty: newQty, AvgPrice: notional.Div(newQty.Abs())}
	default:
		closed := decimal.Min(delta.Abs(), state.Qty.Abs())
		realized = price.Sub(state.AvgPrice).Mul(closed)
		if state.Qty.IsNegative() {
			realized = realized.Neg()
		}
		switch {
		case newQty.IsZero():
			state = positionState{}
		case newQty.Sign() == state.Qty.Sign():
			state.Qty = newQty
		default:
			state = positionState{Qty: newQty, AvgPrice: price}
		}
	}
	a.realizedPnL = a.realizedPnL.Add(realized)
	a.cash = a.cash.Add(realized)
	if state.Qty.IsZero() {
		delete(a.positions, order.Symbol)
	} else {
		a.positions[order.Symbol] = state
	}

	orderID := uuid.NewString()
	fill := Fill{
		Time:        a.now().UTC(),
		OrderID:     orderID,
		OrderLinkID: order.OrderLinkID,
		Symbol:      order.Symbol,
		Side:        order.Side,
		Qty:         delta.Abs(),
		Price:       price,
		ReduceOnly:  order.ReduceOnly,
		Realized:    realized,
	}
	a.fills = append(a.fills, fill)
	if a.fillLog != nil {
		_ = a.fillLog.Encode(fill)
	}
	return reply(retCodeOK, "OK", orderID, order.OrderLinkID)
}

// Fills returns a copy of all simulated executions.
func (a *Account) Fills() []Fill {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Fill, len(a.fills))
	copy(out, a.fills)
	return out
}

// RealizedPnL returns total closed-trade profit and loss.
func (a *Account) RealizedPnL() decimal.Decimal {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.realizedPnL
}

// Snapshot returns a copy of balances and positions.
func (a *Account) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	positions := make(map[string]PositionSnapshot, len(a.positions))
	for sym, pos := range a.positions {
		side := execution.Long
		if pos.Qty.IsNegative() {
			side = execution.Short
		}
		positions[sym] = PositionSnapshot{Side: side, Size: pos.Qty.Abs(), AvgPrice: pos.AvgPrice}
	}
	return Snapshot{StartingCash: a.startingCash, Cash: a.cash, RealizedPnL: a.realizedPnL, Positions: positions, Fills: len(a.fills)}
}

type replyResult struct {
	OrderID     string `json:"orderId"`
	OrderLinkID string `json:"orderLinkId"`
}

type replyEnvelope struct {
	RetCode int         `json:"retCode"`
	RetMsg  string      `json:"retMsg"`
	Result  replyResult `json:"result"`
	Time    int64       `json:"time"`
}

// reply shapes a result like a Bybit order/create response.
func reply(code int, msg, orderID, linkID string) (execution.Result, error) {
	raw, err := json.Marshal(replyEnvelope{
		RetCode: code,
		RetMsg:  msg,
		Result:  replyResult{OrderID: orderID, OrderLinkID: linkID},
		Time:    time.Now().UnixMilli(),
	})
	if err != nil {
		return execution.Result{}, err
	}
	return execution.Result{
		HTTPStatus:  http.StatusOK,
		RetCode:     code,
		RetMsg:      msg,
		OrderID:     orderID,
		OrderLinkID: linkID,
		Raw:         raw,
	}, nil
}
