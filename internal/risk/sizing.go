package risk

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Grigoriy-art/bybit-autobot/internal/execution"
)

var (
	// ErrBelowMinNotional rejects orders the venue would refuse for being too small.
	ErrBelowMinNotional = errors.New("order notional below exchange minimum")
	// ErrNotionalLimit rejects orders above the configured per-trade cap.
	ErrNotionalLimit = errors.New("order notional above per-trade limit")
	// ErrSizingInput rejects non-positive balance, leverage, price or step.
	ErrSizingInput = errors.New("invalid sizing input")
)

// ComputeQuantity sizes a market order from margin and leverage:
// raw = balance*leverage/price, rounded to the nearest qty step, floored at the minimum quantity.
// The result is rejected when its notional is below the instrument minimum.
func ComputeQuantity(balance decimal.Decimal, leverage int, price decimal.Decimal, filters execution.SymbolFilters) (decimal.Decimal, error) {
	switch {
	case !balance.IsPositive():
		return decimal.Zero, fmt.Errorf("%w: balance %s", ErrSizingInput, balance)
	case leverage < 1:
		return decimal.Zero, fmt.Errorf("%w: leverage %d", ErrSizingInput, leverage)
	case !price.IsPositive():
		return decimal.Zero, fmt.Errorf("%w: price %s", ErrSizingInput, price)
	case !filters.QtyStep.IsPositive():
		return decimal.Zero, fmt.Errorf("%w: qty step %s", ErrSizingInput, filters.QtyStep)
	}

	raw := balance.Mul(decimal.NewFromInt(int64(leverage))).Div(price)
	qty := RoundToStep(raw, filters.QtyStep)
	if qty.LessThan(filters.MinQty) {
		qty = filters.MinQty
	}
	if err := CheckMinNotional(qty, price, filters); err != nil {
		return decimal.Zero, err
	}
	return qty, nil
}

// RoundToStep rounds qty to the nearest multiple of step (half away from zero).
func RoundToStep(qty, step decimal.Decimal) decimal.Decimal {
	if !step.IsPositive() {
		return qty
	}
	return qty.Div(step).Round(0).Mul(step)
}

// CheckMinNotional fails when qty*price is under the instrument minimum.
func CheckMinNotional(qty, price decimal.Decimal, filters execution.SymbolFilters) error {
	notional := qty.Mul(price)
	if notional.LessThan(filters.MinNotional) {
		return fmt.Errorf("%w: %s < %s", ErrBelowMinNotional, notional, filters.MinNotional)
	}
	return nil
}
