package exchange

import (
	"context"
	"fmt"
	"net/url"

	"github.com/shopspring/decimal"

	"github.com/Grigoriy-art/bybit-autobot/internal/execution"
)

type positionListResult struct {
	Category string          `json:"category"`
	List     []positionEntry `json:"list"`
}

type positionEntry struct {
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	Size        string `json:"size"`
	AvgPrice    string `json:"avgPrice"`
	PositionIdx int    `json:"positionIdx"`
}

// Position returns the open position on symbol, or nil when flat.
func (c *Client) Position(ctx context.Context, symbol string) (*execution.Position, error) {
	query := url.Values{}
	query.Set("category", c.category)
	query.Set("symbol", symbol)

	var res positionListResult
	if err := c.get(ctx, pathPositionList, query, true, &res); err != nil {
		return nil, err
	}

	// One-way mode reports a single entry; hedge mode reports one per side,
	// so skip empty legs rather than trusting the first row blindly.
	for _, entry := range res.List {
		if entry.Size == "" {
			continue
		}
		size, err := decimal.NewFromString(entry.Size)
		if err != nil {
			return nil, fmt.Errorf("%s: parse size %q: %w", pathPositionList, entry.Size, err)
		}
		if !size.IsPositive() {
			continue
		}
		side, err := fromVenuePositionSide(entry.Side)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", pathPositionList, err)
		}
		return &execution.Position{Symbol: symbol, Side: side, Size: size}, nil
	}
	return nil, nil
}
