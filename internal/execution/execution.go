// Package execution handles order lifecycle and interaction with venues.
package execution

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Grigoriy-art/bybit-autobot/internal/metrics"
)

// Side enumerates order directions used by the executor.
type Side string

const (
	// Buy indicates a long order.
	Buy Side = "BUY"
	// Sell indicates a short order.
	Sell Side = "SELL"
)

// ParseSide accepts any casing of BUY/SELL.
func ParseSide(s string) (Side, bool) {
	switch Side(strings.ToUpper(strings.TrimSpace(s))) {
	case Buy:
		return Buy, true
	case Sell:
		return Sell, true
	}
	return "", false
}

// Opposite flips the direction.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// PositionSide is the direction of open exposure.
type PositionSide string

const (
	Long  PositionSide = "Long"
	Short PositionSide = "Short"
)

// Conflicts reports whether an order on side would have to close this exposure first.
func (p PositionSide) Conflicts(side Side) bool {
	return (p == Long && side == Sell) || (p == Short && side == Buy)
}

// ClosingSide is the order direction that reduces this exposure.
func (p PositionSide) ClosingSide() Side {
	if p == Long {
		return Sell
	}
	return Buy
}

// Position is the account's open exposure on one symbol. Size is always positive.
type Position struct {
	Symbol string
	Side   PositionSide
	Size   decimal.Decimal
}

// SymbolFilters are the venue's per-instrument trading rules.
type SymbolFilters struct {
	QtyStep     decimal.Decimal
	MinQty      decimal.Decimal
	MinNotional decimal.Decimal
}

// Order represents a market placement request the executor can process.
type Order struct {
	Symbol      string
	Side        Side
	Qty         decimal.Decimal
	ReduceOnly  bool
	OrderLinkID string
}

// Result is the venue's answer to an order, kept verbatim in Raw.
type Result struct {
	HTTPStatus  int
	RetCode     int
	RetMsg      string
	OrderID     string
	OrderLinkID string
	Raw         json.RawMessage
}

// Accepted is true when the venue took the order (2xx and retCode 0).
func (r Result) Accepted() bool {
	return r.HTTPStatus >= 200 && r.HTTPStatus < 300 && r.RetCode == 0
}

// OrderPlacer submits market orders to a venue.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, order Order) (Result, error)
}

// Report is one journal line per order attempt.
type Report struct {
	Time        time.Time       `json:"time"`
	RequestID   string          `json:"request_id,omitempty"`
	Symbol      string          `json:"symbol"`
	Side        Side            `json:"side"`
	Qty         decimal.Decimal `json:"qty"`
	ReduceOnly  bool            `json:"reduce_only"`
	OrderLinkID string          `json:"order_link_id"`
	OrderID     string          `json:"order_id,omitempty"`
	HTTPStatus  int             `json:"http_status,omitempty"`
	RetCode     int             `json:"ret_code"`
	RetMsg      string          `json:"ret_msg,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// Recorder captures order reports for later inspection.
type Recorder interface {
	Record(Report)
}

type requestIDKey struct{}

// WithRequestID tags ctx so reports can be correlated with the inbound signal.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the id set by WithRequestID, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// Executor submits orders through a venue, counting and journaling every attempt.
type Executor struct {
	placer   OrderPlacer
	recorder Recorder
	log      zerolog.Logger
	now      func() time.Time
	newID    func() string
}

// NewExecutor wires a venue and logger; recorder may be nil.
func NewExecutor(placer OrderPlacer, recorder Recorder, log zerolog.Logger) *Executor {
	return &Executor{
		placer:   placer,
		recorder: recorder,
		log:      log,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Submit places one market order. The order is never retried here: a lost response
// must not turn into a duplicate fill.
func (executor *Executor) Submit(ctx context.Context, order Order) (Result, error) {
	if !order.Qty.IsPositive() {
		return Result{}, fmt.Errorf("order quantity must be positive, got %s", order.Qty)
	}
	if order.OrderLinkID == "" {
		order.OrderLinkID = executor.newID()
	}
	reduceOnly := "false"
	if order.ReduceOnly {
		reduceOnly = "true"
	}
	metrics.OrdersTotal.WithLabelValues(order.Symbol, string(order.Side), reduceOnly).Inc()

	result, err := executor.placer.PlaceOrder(ctx, order)

	report := Report{
		Time:        executor.now().UTC(),
		RequestID:   RequestID(ctx),
		Symbol:      order.Symbol,
		Side:        order.Side,
		Qty:         order.Qty,
		ReduceOnly:  order.ReduceOnly,
		OrderLinkID: order.OrderLinkID,
		OrderID:     result.OrderID,
		HTTPStatus:  result.HTTPStatus,
		RetCode:     result.RetCode,
		RetMsg:      result.RetMsg,
	}
	if err != nil {
		report.Error = err.Error()
	}
	if executor.recorder != nil {
		executor.recorder.Record(report)
	}

	evt := executor.log.Info()
	if err != nil || !result.Accepted() {
		evt = executor.log.Warn().Err(err)
	}
	evt.Str("sym", order.Symbol).
		Str("side", string(order.Side)).
		Str("qty", order.Qty.String()).
		Bool("reduce_only", order.ReduceOnly).
		Str("order_link_id", order.OrderLinkID).
		Int("http_status", result.HTTPStatus).
		Int("ret_code", result.RetCode).
		Str("ret_msg", result.RetMsg).
		Msg("submit order")

	return result, err
}
