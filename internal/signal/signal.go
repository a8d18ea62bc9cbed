// Package signal standardizes the inbound webhook payload into a validated trade signal.
package signal

import (
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/Grigoriy-art/bybit-autobot/internal/execution"
)

const (
	// DefaultLeverage applies when neither the payload nor the caller supplies one.
	DefaultLeverage = 10
	// MaxLeverage is the highest multiplier any Bybit linear contract accepts.
	MaxLeverage = 200
)

var (
	// ErrInvalidJSON marks a body that is not JSON at all.
	ErrInvalidJSON = errors.New("invalid json")
	// ErrInvalidSignal marks well-formed JSON that does not describe a usable signal.
	ErrInvalidSignal = errors.New("invalid signal format")
)

// ParseError carries the kind of rejection plus a human-readable detail.
type ParseError struct {
	Kind   error
	Detail string
}

func (e *ParseError) Error() string { return e.Kind.Error() + ": " + e.Detail }

func (e *ParseError) Unwrap() error { return e.Kind }

// TradeSignal is one validated instruction. Qty and Price are optional.
type TradeSignal struct {
	Symbol   string
	Side     execution.Side
	Qty      decimal.NullDecimal
	Price    decimal.NullDecimal
	Leverage int
}

// payload mirrors the webhook body; numbers may arrive quoted.
type payload struct {
	Symbol   string              `json:"symbol"`
	Side     string              `json:"side"`
	Qty      decimal.NullDecimal `json:"qty"`
	Price    decimal.NullDecimal `json:"price"`
	Leverage decimal.NullDecimal `json:"leverage"`
}

// Parse decodes and validates a webhook body. defaultLeverage <= 0 falls back to DefaultLeverage.
func Parse(body []byte, defaultLeverage int) (TradeSignal, error) {
	if !json.Valid(body) {
		var v any
		detail := "malformed body"
		if err := json.Unmarshal(body, &v); err != nil {
			detail = err.Error()
		}
		return TradeSignal{}, &ParseError{Kind: ErrInvalidJSON, Detail: detail}
	}

	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		return TradeSignal{}, &ParseError{Kind: ErrInvalidSignal, Detail: err.Error()}
	}

	if defaultLeverage <= 0 {
		defaultLeverage = DefaultLeverage
	}
	sig := TradeSignal{
		Symbol:   NormalizeSymbol(p.Symbol),
		Qty:      p.Qty,
		Price:    p.Price,
		Leverage: defaultLeverage,
	}
	if side, ok := execution.ParseSide(p.Side); ok {
		sig.Side = side
	}
	if p.Leverage.Valid {
		if !p.Leverage.Decimal.IsInteger() || !p.Leverage.Decimal.IsPositive() {
			return TradeSignal{}, &ParseError{Kind: ErrInvalidSignal, Detail: fmt.Sprintf("leverage must be a positive integer, got %s", p.Leverage.Decimal)}
		}
		// Checked on the decimal so oversized values cannot wrap in the int conversion.
		if p.Leverage.Decimal.GreaterThan(decimal.NewFromInt(MaxLeverage)) {
			return TradeSignal{}, &ParseError{Kind: ErrInvalidSignal, Detail: fmt.Sprintf("leverage must be at most %d, got %s", MaxLeverage, p.Leverage.Decimal)}
		}
		sig.Leverage = int(p.Leverage.Decimal.IntPart())
	}
	if err := sig.Validate(); err != nil {
		return TradeSignal{}, err
	}
	return sig, nil
}

// NormalizeSymbol trims and upper-cases a venue symbol.
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Validate enforces the invariants every signal must satisfy before any venue call.
func (s TradeSignal) Validate() error {
	if s.Symbol == "" {
		return &ParseError{Kind: ErrInvalidSignal, Detail: "symbol is required"}
	}
	for _, r := range s.Symbol {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') && r != '-' {
			return &ParseError{Kind: ErrInvalidSignal, Detail: fmt.Sprintf("symbol %q has unexpected characters", s.Symbol)}
		}
	}
	if s.Side != execution.Buy && s.Side != execution.Sell {
		return &ParseError{Kind: ErrInvalidSignal, Detail: "side must be BUY or SELL"}
	}
	if s.Leverage < 1 || s.Leverage > MaxLeverage {
		return &ParseError{Kind: ErrInvalidSignal, Detail: fmt.Sprintf("leverage must be between 1 and %d, got %d", MaxLeverage, s.Leverage)}
	}
	if s.Qty.Valid && !s.Qty.Decimal.IsPositive() {
		return &ParseError{Kind: ErrInvalidSignal, Detail: "qty must be positive"}
	}
	if s.Price.Valid && !s.Price.Decimal.IsPositive() {
		return &ParseError{Kind: ErrInvalidSignal, Detail: "price must be positive"}
	}
	return nil
}

// HasQty reports whether the sender fixed the order size.
func (s TradeSignal) HasQty() bool { return s.Qty.Valid }

// HasPrice reports whether the sender supplied a reference price.
func (s TradeSignal) HasPrice() bool { return s.Price.Valid }
