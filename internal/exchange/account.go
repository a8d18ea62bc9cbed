package exchange

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrCoinNotFound is returned when the wallet has no entry for the quote coin.
var ErrCoinNotFound = errors.New("quote coin not found in wallet")

type walletBalanceResult struct {
	List []struct {
		AccountType string `json:"accountType"`
		Coin        []struct {
			Coin                string `json:"coin"`
			Equity              string `json:"equity"`
			WalletBalance       string `json:"walletBalance"`
			AvailableToWithdraw string `json:"availableToWithdraw"`
		} `json:"coin"`
	} `json:"list"`
}

// AvailableBalance returns the available quote-coin balance of the configured account.
func (c *Client) AvailableBalance(ctx context.Context) (decimal.Decimal, error) {
	query := url.Values{}
	query.Set("accountType", c.accountType)

	var res walletBalanceResult
	if err := c.get(ctx, pathWalletBalance, query, true, &res); err != nil {
		return decimal.Zero, err
	}
	for _, account := range res.List {
		for _, coin := range account.Coin {
			if !strings.EqualFold(coin.Coin, c.quoteCoin) {
				continue
			}
			raw := coin.AvailableToWithdraw
			if raw == "" {
				raw = coin.WalletBalance
			}
			balance, err := parseDecimal("availableToWithdraw", raw)
			if err != nil {
				return decimal.Zero, fmt.Errorf("%s: %w", pathWalletBalance, err)
			}
			return balance, nil
		}
	}
	return decimal.Zero, fmt.Errorf("%w: %s", ErrCoinNotFound, c.quoteCoin)
}
