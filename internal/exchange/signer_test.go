package exchange

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/Grigoriy-art/bybit-autobot/internal/config"
)

var hex64 = regexp.MustCompile(`^[0-9a-f]{64}$`)

func testCreds(t *testing.T) config.Credentials {
	t.Helper()
	creds, err := config.NewCredentials("test-key", "test-secret")
	if err != nil {
		t.Fatalf("NewCredentials: %v", err)
	}
	return creds
}

func TestComputeHmacSha256Hex(t *testing.T) {
	// RFC-style vector for HMAC-SHA256("key", "The quick brown fox jumps over the lazy dog").
	const expected = "f7bc83f430538424b13298e6aa6fb143ef4d59a14946175997479dbc2d1a3cd8"
	got := computeHmacSha256Hex([]byte("key"), "The quick brown fox jumps over the lazy dog")
	if got != expected {
		t.Fatalf("HMAC mismatch. expected %s, got %s", expected, got)
	}
}

func TestSignAtIsDeterministic(t *testing.T) {
	signer, err := NewSigner(testCreds(t))
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	ts := time.UnixMilli(1700000000000)
	payload := `{"category":"linear","symbol":"SUIUSDT"}`

	a := signer.SignAt(ts, payload)
	b := signer.SignAt(ts, payload)
	if a.Signature != b.Signature {
		t.Fatalf("signature not deterministic: %s vs %s", a.Signature, b.Signature)
	}
	if !hex64.MatchString(a.Signature) {
		t.Fatalf("expected 64 hex chars, got %q", a.Signature)
	}

	want := computeHmacSha256Hex([]byte("test-secret"), "1700000000000"+"test-key"+"5000"+payload)
	if a.Signature != want {
		t.Fatalf("canonical string mismatch: expected %s, got %s", want, a.Signature)
	}

	if c := signer.SignAt(ts, payload+" "); c.Signature == a.Signature {
		t.Fatalf("different payloads must not share a signature")
	}
}

func TestSignHeaders(t *testing.T) {
	now := time.UnixMilli(1712345678901)
	signer, err := NewSigner(testCreds(t), WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	headers := signer.Sign("category=linear&symbol=BTCUSDT").Headers()

	if headers.Get("X-BAPI-API-KEY") != "test-key" {
		t.Fatalf("unexpected api key header %q", headers.Get("X-BAPI-API-KEY"))
	}
	if headers.Get("X-BAPI-TIMESTAMP") != "1712345678901" {
		t.Fatalf("unexpected timestamp %q", headers.Get("X-BAPI-TIMESTAMP"))
	}
	if headers.Get("X-BAPI-RECV-WINDOW") != "5000" {
		t.Fatalf("unexpected recv window %q", headers.Get("X-BAPI-RECV-WINDOW"))
	}
	if !hex64.MatchString(headers.Get("X-BAPI-SIGN")) {
		t.Fatalf("unexpected signature %q", headers.Get("X-BAPI-SIGN"))
	}
	if headers.Get("Content-Type") != "application/json" {
		t.Fatalf("missing content type")
	}
}

func TestSignerOptions(t *testing.T) {
	signer, err := NewSigner(testCreds(t), WithHeaderPrefix("X-BYBIT-API"), WithRecvWindow(10*time.Second))
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	headers := signer.SignAt(time.UnixMilli(1), "").Headers()
	if headers.Get("X-BYBIT-API-SIGN") == "" {
		t.Fatalf("prefix option not applied: %v", headers)
	}
	if headers.Get("X-BYBIT-API-RECV-WINDOW") != "10000" {
		t.Fatalf("recv window option not applied: %v", headers)
	}
}

func TestNewSignerRequiresCredentials(t *testing.T) {
	if _, err := NewSigner(config.Credentials{}); !errors.Is(err, config.ErrMissingCredentials) {
		t.Fatalf("expected ErrMissingCredentials, got %v", err)
	}
}

func TestWipe(t *testing.T) {
	signer, err := NewSigner(testCreds(t))
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	before := signer.SignAt(time.UnixMilli(1), "x").Signature
	signer.Wipe()
	for _, b := range signer.secret {
		if b != 0 {
			t.Fatalf("secret not wiped")
		}
	}
	if signer.SignAt(time.UnixMilli(1), "x").Signature == before {
		t.Fatalf("wiped signer should not reproduce signatures")
	}
	var nilSigner *Signer
	nilSigner.Wipe()
}
