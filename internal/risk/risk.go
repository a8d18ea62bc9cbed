// Package risk holds order sizing and the per-trade notional guard.
package risk

import "github.com/shopspring/decimal"

// Limits caps how much notional a single order may carry. Zero disables the cap.
type Limits struct {
	MaxNotionalPerTrade float64
}

// Allow reports whether notional fits under the cap.
func (l Limits) Allow(notional decimal.Decimal) bool {
	if l.MaxNotionalPerTrade <= 0 {
		return true
	}
	return notional.LessThanOrEqual(decimal.NewFromFloat(l.MaxNotionalPerTrade))
}
