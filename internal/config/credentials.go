package config

import (
	"errors"
	"strings"
)

// ErrMissingCredentials is returned when the API key or secret is absent.
var ErrMissingCredentials = errors.New("api key and api secret are required")

// Credentials is the immutable API key pair handed to every signed call.
type Credentials struct {
	apiKey    string
	apiSecret string
}

// NewCredentials trims and validates a key pair.
func NewCredentials(apiKey, apiSecret string) (Credentials, error) {
	apiKey = strings.TrimSpace(apiKey)
	apiSecret = strings.TrimSpace(apiSecret)
	if apiKey == "" || apiSecret == "" {
		return Credentials{}, ErrMissingCredentials
	}
	return Credentials{apiKey: apiKey, apiSecret: apiSecret}, nil
}

// APIKey returns the public half of the pair.
func (c Credentials) APIKey() string { return c.apiKey }

// Secret returns a fresh copy of the signing secret.
func (c Credentials) Secret() []byte { return []byte(c.apiSecret) }

// IsZero reports whether the pair was never populated.
func (c Credentials) IsZero() bool { return c.apiKey == "" && c.apiSecret == "" }

// String never prints the secret.
func (c Credentials) String() string {
	if c.IsZero() {
		return "credentials(none)"
	}
	key := c.apiKey
	if len(key) > 4 {
		key = key[:4] + "***"
	}
	return "credentials(" + key + ")"
}

// Credentials builds the key pair from the loaded exchange section.
func (c *Config) Credentials() (Credentials, error) {
	return NewCredentials(c.Exchange.APIKey, c.Exchange.APISecret)
}
