// Package exchange hosts the Bybit v5 REST connector: request signing, positions,
// orders, instrument filters and wallet balance.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/Grigoriy-art/bybit-autobot/internal/metrics"
)

const (
	// DefaultBaseURL is the Bybit mainnet REST host.
	DefaultBaseURL = "https://api.bybit.com"

	pathPositionList    = "/v5/position/list"
	pathOrderCreate     = "/v5/order/create"
	pathWalletBalance   = "/v5/account/wallet-balance"
	pathInstrumentsInfo = "/v5/market/instruments-info"
	pathTickers         = "/v5/market/tickers"

	// retCodeRateLimited is Bybit's "too many visits" code; safe to retry on reads.
	retCodeRateLimited = 10006

	defaultTimeout     = 10 * time.Second
	defaultCategory    = "linear"
	defaultAccountType = "UNIFIED"
	defaultQuoteCoin   = "USDT"
	maxResponseBytes   = 4 << 20
)

// ErrUnsigned is returned when a private endpoint is called on a client built without credentials.
var ErrUnsigned = errors.New("exchange client has no signer")

// APIError is a venue-side rejection: non-2xx HTTP or a non-zero retCode.
type APIError struct {
	Endpoint   string
	HTTPStatus int
	RetCode    int
	RetMsg     string
	Body       string
}

func (e *APIError) Error() string {
	if e.RetCode != 0 {
		return fmt.Sprintf("%s: retCode %d: %s", e.Endpoint, e.RetCode, e.RetMsg)
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.Endpoint, e.HTTPStatus, e.Body)
}

// Temporary reports whether retrying the same read could succeed.
func (e *APIError) Temporary() bool {
	return e.HTTPStatus == http.StatusTooManyRequests || e.HTTPStatus >= 500 || e.RetCode == retCodeRateLimited
}

// RetryPolicy bounds retries of idempotent reads. Order creation is never retried.
type RetryPolicy struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy retries a read twice with a short exponential backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 2, InitialInterval: 200 * time.Millisecond, MaxInterval: 2 * time.Second}
}

// envelope is the common Bybit v5 response wrapper.
type envelope struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
	Time    int64           `json:"time"`
}

// Client talks to one Bybit host. It keeps no per-request state and is safe for concurrent use.
type Client struct {
	baseURL     string
	category    string
	accountType string
	quoteCoin   string
	signer      *Signer
	http        *http.Client
	limiter     *rate.Limiter
	retry       RetryPolicy
	log         zerolog.Logger
}

// Option configures Client construction parameters.
type Option func(*Client)

// WithBaseURL points the client at another host (testnet, demo, httptest).
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = strings.TrimSuffix(baseURL, "/")
		}
	}
}

// WithSigner enables the private endpoints.
func WithSigner(s *Signer) Option {
	return func(c *Client) { c.signer = s }
}

// WithHTTPClient swaps the transport; its Timeout is kept as-is.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout sets the per-call timeout on a copy of the current http.Client,
// so a client passed to WithHTTPClient is left untouched.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			hc := *c.http
			hc.Timeout = d
			c.http = &hc
		}
	}
}

// WithRetryPolicy overrides the read retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) {
		if p.MaxRetries >= 0 {
			c.retry = p
		}
	}
}

// WithRateLimit paces outbound calls.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond > 0 && burst > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

// WithAccount sets the product category, wallet account type and quote coin.
func WithAccount(category, accountType, quoteCoin string) Option {
	return func(c *Client) {
		if category != "" {
			c.category = category
		}
		if accountType != "" {
			c.accountType = accountType
		}
		if quoteCoin != "" {
			c.quoteCoin = strings.ToUpper(quoteCoin)
		}
	}
}

// NewClient constructs a Bybit v5 client. Without WithSigner only public endpoints work.
func NewClient(log zerolog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:     DefaultBaseURL,
		category:    defaultCategory,
		accountType: defaultAccountType,
		quoteCoin:   defaultQuoteCoin,
		http:        &http.Client{Timeout: defaultTimeout},
		limiter:     rate.NewLimiter(rate.Limit(10), 5),
		retry:       DefaultRetryPolicy(),
		log:         log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// QuoteCoin is the settlement coin balances are read in.
func (c *Client) QuoteCoin() string { return c.quoteCoin }

// get performs an idempotent GET, retrying transient failures per the retry policy.
// Each attempt is re-signed so the timestamp stays inside the receive window.
func (c *Client) get(ctx context.Context, endpoint string, query url.Values, signed bool, out any) error {
	if signed && c.signer == nil {
		return ErrUnsigned
	}
	qs := query.Encode()

	bo := backoff.NewExponentialBackOff()
	if c.retry.InitialInterval > 0 {
		bo.InitialInterval = c.retry.InitialInterval
	}
	if c.retry.MaxInterval > 0 {
		bo.MaxInterval = c.retry.MaxInterval
	}

	operation := func() (struct{}, error) {
		err := c.getOnce(ctx, endpoint, qs, signed, out)
		if err != nil && !c.retryable(ctx, err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}
	notify := func(err error, wait time.Duration) {
		c.log.Warn().Err(err).Str("endpoint", endpoint).Dur("backoff", wait).Msg("exchange read failed, retrying")
	}

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(c.retry.MaxRetries+1)),
		backoff.WithNotify(notify),
	)
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		return permanent.Err
	}
	return err
}

func (c *Client) getOnce(ctx context.Context, endpoint, qs string, signed bool, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: rate limiter: %w", endpoint, err)
	}

	u := c.baseURL + endpoint
	if qs != "" {
		u += "?" + qs
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", endpoint, err)
	}
	req.Header.Set("Accept", "application/json")
	if signed {
		c.signer.Sign(qs).Apply(req.Header)
	}

	status, body, err := c.do(req, endpoint)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return &APIError{Endpoint: endpoint, HTTPStatus: status, Body: truncate(string(body), 512)}
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("%s: decode envelope: %w", endpoint, err)
	}
	if env.RetCode != 0 {
		return &APIError{Endpoint: endpoint, HTTPStatus: status, RetCode: env.RetCode, RetMsg: env.RetMsg}
	}
	if out == nil || len(env.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("%s: decode result: %w", endpoint, err)
	}
	return nil
}

// do sends req and reads the body, recording latency and status per endpoint.
func (c *Client) do(req *http.Request, endpoint string) (int, []byte, error) {
	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.ExchangeRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ExchangeRequestsTotal.WithLabelValues(endpoint, "error").Inc()
		return 0, nil, fmt.Errorf("%s: %w", endpoint, err)
	}
	defer resp.Body.Close()
	metrics.ExchangeRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("%s: read body: %w", endpoint, err)
	}
	return resp.StatusCode, body, nil
}

func (c *Client) retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
