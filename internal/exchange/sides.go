package exchange

import (
	"fmt"

	"github.com/Grigoriy-art/bybit-autobot/internal/execution"
)

// Bybit spells sides "Buy"/"Sell"; internally they are execution.Buy/Sell and
// Long/Short. These are the only places the two vocabularies meet.

func toVenueSide(side execution.Side) (string, error) {
	switch side {
	case execution.Buy:
		return "Buy", nil
	case execution.Sell:
		return "Sell", nil
	}
	return "", fmt.Errorf("unknown order side %q", side)
}

func fromVenuePositionSide(side string) (execution.PositionSide, error) {
	switch side {
	case "Buy":
		return execution.Long, nil
	case "Sell":
		return execution.Short, nil
	}
	return "", fmt.Errorf("unknown position side %q", side)
}
