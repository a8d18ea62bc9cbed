package exchange

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Grigoriy-art/bybit-autobot/internal/config"
)

const (
	// DefaultRecvWindow is the clock-skew tolerance sent with every signed request.
	DefaultRecvWindow = 5000 * time.Millisecond
	// DefaultHeaderPrefix is the Bybit v5 authentication header prefix.
	DefaultHeaderPrefix = "X-BAPI-"
)

// SignedRequest is the per-call authentication material. It is single-use: the
// venue rejects it once the timestamp falls outside the receive window.
type SignedRequest struct {
	APIKey     string
	Timestamp  string
	Signature  string
	RecvWindow string
	Payload    string
	prefix     string
}

// Headers returns the header set carrying key, timestamp, signature, receive window and content type.
func (r SignedRequest) Headers() http.Header {
	h := make(http.Header, 5)
	r.Apply(h)
	return h
}

// Apply writes the authentication headers onto h.
func (r SignedRequest) Apply(h http.Header) {
	h.Set(r.prefix+"API-KEY", r.APIKey)
	h.Set(r.prefix+"TIMESTAMP", r.Timestamp)
	h.Set(r.prefix+"SIGN", r.Signature)
	h.Set(r.prefix+"RECV-WINDOW", r.RecvWindow)
	h.Set("Content-Type", "application/json")
}

// Signer builds Bybit v5 HMAC-SHA256 authentication headers.
// The secret is held as []byte so it can be wiped on shutdown.
type Signer struct {
	apiKey     string
	secret     []byte
	recvWindow string
	prefix     string
	now        func() time.Time
}

// SignerOption tweaks a Signer.
type SignerOption func(*Signer)

// WithRecvWindow overrides the 5000 ms receive window.
func WithRecvWindow(d time.Duration) SignerOption {
	return func(s *Signer) {
		if d > 0 {
			s.recvWindow = strconv.FormatInt(d.Milliseconds(), 10)
		}
	}
}

// WithHeaderPrefix overrides the X-BAPI- header prefix.
func WithHeaderPrefix(prefix string) SignerOption {
	return func(s *Signer) {
		prefix = strings.TrimSpace(prefix)
		if prefix == "" {
			return
		}
		if !strings.HasSuffix(prefix, "-") {
			prefix += "-"
		}
		s.prefix = prefix
	}
}

// WithClock injects the timestamp source.
func WithClock(now func() time.Time) SignerOption {
	return func(s *Signer) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSigner binds the credentials. A zero Credentials value is a configuration error.
func NewSigner(creds config.Credentials, opts ...SignerOption) (*Signer, error) {
	if creds.APIKey() == "" || len(creds.Secret()) == 0 {
		return nil, config.ErrMissingCredentials
	}
	s := &Signer{
		apiKey:     creds.APIKey(),
		secret:     creds.Secret(),
		recvWindow: strconv.FormatInt(DefaultRecvWindow.Milliseconds(), 10),
		prefix:     DefaultHeaderPrefix,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Sign signs payload at the current time. payload is the exact JSON body for POST
// or the encoded query string for GET.
func (s *Signer) Sign(payload string) SignedRequest {
	return s.SignAt(s.now(), payload)
}

// SignAt is Sign with an explicit timestamp; output is deterministic.
func (s *Signer) SignAt(ts time.Time, payload string) SignedRequest {
	timestamp := strconv.FormatInt(ts.UnixMilli(), 10)
	canonical := timestamp + s.apiKey + s.recvWindow + payload
	return SignedRequest{
		APIKey:     s.apiKey,
		Timestamp:  timestamp,
		Signature:  computeHmacSha256Hex(s.secret, canonical),
		RecvWindow: s.recvWindow,
		Payload:    payload,
		prefix:     s.prefix,
	}
}

// Wipe zeroes the signer's own copy of the secret; the signer is unusable afterwards.
// String copies held elsewhere (config, Credentials) cannot be zeroed and are
// only released to the garbage collector once unreferenced.
func (s *Signer) Wipe() {
	if s == nil {
		return
	}
	for i := range s.secret {
		s.secret[i] = 0
	}
}

func computeHmacSha256Hex(secret []byte, payload string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
