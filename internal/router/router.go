// Package router reconciles one trade signal against the venue: it closes an
// opposing position, sizes the new order and submits it.
package router

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Grigoriy-art/bybit-autobot/internal/execution"
	"github.com/Grigoriy-art/bybit-autobot/internal/metrics"
	"github.com/Grigoriy-art/bybit-autobot/internal/risk"
	"github.com/Grigoriy-art/bybit-autobot/internal/signal"
)

// Stage names the step of the chain that failed.
type Stage string

const (
	StageValidate Stage = "validate"
	StagePosition Stage = "position"
	StageClose    Stage = "close"
	StageFilters  Stage = "filters"
	StageBalance  Stage = "balance"
	StagePrice    Stage = "price"
	StageSize     Stage = "size"
	StageOpen     Stage = "open"
)

// ErrOrderRejected marks an order the venue answered but did not accept.
var ErrOrderRejected = errors.New("order rejected by exchange")

// StageError wraps a failure with the stage it happened in. Details, when set,
// is passed back to the webhook caller verbatim.
type StageError struct {
	Stage   Stage
	Err     error
	Details any
}

func (e *StageError) Error() string { return fmt.Sprintf("%s: %v", e.Stage, e.Err) }

func (e *StageError) Unwrap() error { return e.Err }

// Venue is the read side of the exchange the router consults.
type Venue interface {
	Position(ctx context.Context, symbol string) (*execution.Position, error)
	SymbolFilters(ctx context.Context, symbol string) (execution.SymbolFilters, error)
	LastPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	AvailableBalance(ctx context.Context) (decimal.Decimal, error)
}

// Submitter places orders; *execution.Executor satisfies it.
type Submitter interface {
	Submit(ctx context.Context, order execution.Order) (execution.Result, error)
}

// Outcome describes what Handle did for a signal.
type Outcome struct {
	Close *execution.Result
	Open  execution.Result
	Qty   decimal.Decimal
}

// Flipped reports whether an opposing position was closed first.
func (o Outcome) Flipped() bool { return o.Close != nil }

// Router runs the reconcile chain. It holds no per-signal state.
type Router struct {
	venue   Venue
	orders  Submitter
	limits  risk.Limits
	timeout time.Duration
	log     zerolog.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithLimits applies a per-trade notional cap.
func WithLimits(l risk.Limits) Option {
	return func(r *Router) { r.limits = l }
}

// WithTimeout bounds the whole chain for one signal; zero leaves it to the caller's context.
func WithTimeout(d time.Duration) Option {
	return func(r *Router) { r.timeout = d }
}

// New wires a router.
func New(venue Venue, orders Submitter, log zerolog.Logger, opts ...Option) *Router {
	r := &Router{venue: venue, orders: orders, log: log}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handle validates sig, closes any conflicting position with a reduce-only
// order for its full size, then opens in the signal's direction. Calls run
// strictly in sequence and the first failure aborts the rest.
func (r *Router) Handle(ctx context.Context, sig signal.TradeSignal) (Outcome, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	log := r.log.With().
		Str("request_id", execution.RequestID(ctx)).
		Str("sym", sig.Symbol).
		Str("side", string(sig.Side)).
		Int("leverage", sig.Leverage).
		Logger()

	var out Outcome
	fail := func(stage Stage, err error, details any) (Outcome, error) {
		log.Error().Err(err).Str("stage", string(stage)).Msg("signal failed")
		return out, &StageError{Stage: stage, Err: err, Details: details}
	}

	if err := sig.Validate(); err != nil {
		return fail(StageValidate, err, nil)
	}

	pos, err := r.venue.Position(ctx, sig.Symbol)
	if err != nil {
		return fail(StagePosition, err, nil)
	}
	if pos != nil && pos.Side.Conflicts(sig.Side) {
		closeRes, err := r.orders.Submit(ctx, execution.Order{
			Symbol:     sig.Symbol,
			Side:       pos.Side.ClosingSide(),
			Qty:        pos.Size,
			ReduceOnly: true,
		})
		if err != nil {
			return fail(StageClose, err, nil)
		}
		if !closeRes.Accepted() {
			return fail(StageClose, rejection(closeRes), closeRes.Raw)
		}
		out.Close = &closeRes
		metrics.PositionFlipsTotal.WithLabelValues(sig.Symbol).Inc()
		log.Info().Str("closed", string(pos.Side)).Str("size", pos.Size.String()).Msg("closed opposing position")
	}

	qty, err := r.quantity(ctx, sig)
	if err != nil {
		var se *StageError
		if errors.As(err, &se) {
			return fail(se.Stage, se.Err, nil)
		}
		return fail(StageSize, err, nil)
	}
	out.Qty = qty

	openRes, err := r.orders.Submit(ctx, execution.Order{Symbol: sig.Symbol, Side: sig.Side, Qty: qty})
	out.Open = openRes
	if err == nil && openRes.HTTPStatus >= 200 && openRes.HTTPStatus < 300 {
		// A 2xx with a non-zero retCode is still handed back as the venue's answer.
		return out, nil
	}
	if err == nil {
		err = rejection(openRes)
	}
	if out.Close != nil {
		return fail(StageOpen, fmt.Errorf("position closed but open failed: %w", err), map[string]any{
			"close": out.Close.Raw,
			"open":  openRes.Raw,
		})
	}
	return fail(StageOpen, err, openRes.Raw)
}

// quantity returns the explicit signal quantity or sizes one from balance and leverage.
func (r *Router) quantity(ctx context.Context, sig signal.TradeSignal) (decimal.Decimal, error) {
	if sig.HasQty() {
		qty := sig.Qty.Decimal
		if sig.HasPrice() && !r.limits.Allow(qty.Mul(sig.Price.Decimal)) {
			return decimal.Zero, fmt.Errorf("%w: %s", risk.ErrNotionalLimit, qty.Mul(sig.Price.Decimal))
		}
		return qty, nil
	}

	filters, err := r.venue.SymbolFilters(ctx, sig.Symbol)
	if err != nil {
		return decimal.Zero, &StageError{Stage: StageFilters, Err: err}
	}
	balance, err := r.venue.AvailableBalance(ctx)
	if err != nil {
		return decimal.Zero, &StageError{Stage: StageBalance, Err: err}
	}
	price := sig.Price.Decimal
	if !sig.HasPrice() {
		price, err = r.venue.LastPrice(ctx, sig.Symbol)
		if err != nil {
			return decimal.Zero, &StageError{Stage: StagePrice, Err: err}
		}
	}

	qty, err := risk.ComputeQuantity(balance, sig.Leverage, price, filters)
	if err != nil {
		return decimal.Zero, err
	}
	if !r.limits.Allow(qty.Mul(price)) {
		return decimal.Zero, fmt.Errorf("%w: %s", risk.ErrNotionalLimit, qty.Mul(price))
	}
	return qty, nil
}

func rejection(res execution.Result) error {
	if res.RetMsg != "" {
		return fmt.Errorf("%w: HTTP %d retCode %d: %s", ErrOrderRejected, res.HTTPStatus, res.RetCode, res.RetMsg)
	}
	return fmt.Errorf("%w: HTTP %d", ErrOrderRejected, res.HTTPStatus)
}
