package dispatch

import (
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Version is reported to the collector as sdk_version.
const Version = "0.1.0"

const (
	// APIKeyPrefix is the literal every API key starts with.
	APIKeyPrefix = "cw_"

	DefaultBaseURL       = "https://api.callwatch.dev"
	DefaultBatchSize     = 100
	DefaultFlushInterval = 5 * time.Second

	requestTimeout = 10 * time.Second
	maxErrorBody   = 4 << 10
)

// Config holds the client settings. Zero values take the defaults.
type Config struct {
	APIKey        string
	BaseURL       string
	AgentID       string
	FlushInterval time.Duration
	BatchSize     int
	Debug         bool
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = DefaultFlushInterval
	}
	return c
}

// Validate checks the API key format.
func (c Config) Validate() error {
	if !strings.HasPrefix(c.APIKey, APIKeyPrefix) || len(c.APIKey) == len(APIKeyPrefix) {
		return &ConfigError{Field: "api key", Reason: "must start with " + APIKeyPrefix}
	}
	return nil
}

// Option configures a Client at creation time.
type Option func(*Client)

// WithLogger sets the logger used for delivery diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithHTTPClient replaces the client's own HTTP client.
// It must not route through http.DefaultTransport when an interceptor
// is installed, or the client's sends would be intercepted too.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// newTransport returns a private transport so that the client's own
// traffic never passes through whatever sits in http.DefaultTransport.
func newTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
}
