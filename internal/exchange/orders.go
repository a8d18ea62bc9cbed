package exchange

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/Grigoriy-art/bybit-autobot/internal/execution"
)

const (
	orderTypeMarket   = "Market"
	timeInForceMarket = "GoodTillCancel"
)

// orderCreateRequest field order is the wire order; the marshaled bytes are
// signed and sent verbatim.
type orderCreateRequest struct {
	Category    string `json:"category"`
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	OrderType   string `json:"orderType"`
	Qty         string `json:"qty"`
	TimeInForce string `json:"timeInForce"`
	ReduceOnly  bool   `json:"reduceOnly,omitempty"`
	OrderLinkID string `json:"orderLinkId,omitempty"`
}

type orderCreateResult struct {
	OrderID     string `json:"orderId"`
	OrderLinkID string `json:"orderLinkId"`
}

// encodeOrder builds the exact body bytes for an order.
func (c *Client) encodeOrder(order execution.Order) ([]byte, error) {
	side, err := toVenueSide(order.Side)
	if err != nil {
		return nil, err
	}
	return json.Marshal(orderCreateRequest{
		Category:    c.category,
		Symbol:      order.Symbol,
		Side:        side,
		OrderType:   orderTypeMarket,
		Qty:         order.Qty.String(),
		TimeInForce: timeInForceMarket,
		ReduceOnly:  order.ReduceOnly,
		OrderLinkID: order.OrderLinkID,
	})
}

// PlaceOrder signs and submits a market order exactly once. Non-2xx answers are
// logged and returned with their decoded body rather than as errors; only
// transport failures and unreadable bodies are errors.
func (c *Client) PlaceOrder(ctx context.Context, order execution.Order) (execution.Result, error) {
	if c.signer == nil {
		return execution.Result{}, ErrUnsigned
	}
	payload, err := c.encodeOrder(order)
	if err != nil {
		return execution.Result{}, fmt.Errorf("%s: encode: %w", pathOrderCreate, err)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return execution.Result{}, fmt.Errorf("%s: rate limiter: %w", pathOrderCreate, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+pathOrderCreate, bytes.NewReader(payload))
	if err != nil {
		return execution.Result{}, fmt.Errorf("%s: build request: %w", pathOrderCreate, err)
	}
	c.signer.Sign(string(payload)).Apply(req.Header)

	status, body, err := c.do(req, pathOrderCreate)
	if err != nil {
		return execution.Result{}, err
	}

	result := execution.Result{HTTPStatus: status}
	if json.Valid(body) {
		result.Raw = body
		var env envelope
		if err := json.Unmarshal(body, &env); err == nil {
			result.RetCode = env.RetCode
			result.RetMsg = env.RetMsg
			var created orderCreateResult
			if len(env.Result) > 0 && json.Unmarshal(env.Result, &created) == nil {
				result.OrderID = created.OrderID
				result.OrderLinkID = created.OrderLinkID
			}
		}
	} else {
		if status >= 200 && status < 300 {
			return result, fmt.Errorf("%s: undecodable response: %s", pathOrderCreate, truncate(string(body), 256))
		}
		quoted, _ := json.Marshal(truncate(string(body), 1024))
		result.Raw = quoted
	}

	if status < 200 || status >= 300 {
		c.log.Warn().
			Int("http_status", status).
			Str("symbol", order.Symbol).
			RawJSON("body", result.Raw).
			Msg("order endpoint returned non-2xx")
	}
	return result, nil
}
