package callwatch

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/callwatch/internal/dispatch"
	"github.com/ppiankov/callwatch/internal/intercept"
)

// Option configures a Client at creation time.
type Option func(*clientConfig)

type clientConfig struct {
	dispatch   dispatch.Config
	logger     *zap.Logger
	httpClient *http.Client
	intercept  intercept.Options
}

// WithBaseURL sets the collector URL.
func WithBaseURL(url string) Option {
	return func(c *clientConfig) { c.dispatch.BaseURL = url }
}

// WithAgentID sets a known agent id instead of registering.
func WithAgentID(id string) Option {
	return func(c *clientConfig) { c.dispatch.AgentID = id }
}

// WithFlushInterval sets how often buffered events are sent.
func WithFlushInterval(d time.Duration) Option {
	return func(c *clientConfig) { c.dispatch.FlushInterval = d }
}

// WithBatchSize sets the maximum events per batch, which is also the
// buffer size that triggers an early flush.
func WithBatchSize(n int) Option {
	return func(c *clientConfig) { c.dispatch.BatchSize = n }
}

// WithDebug enables debug logging.
func WithDebug(debug bool) Option {
	return func(c *clientConfig) {
		c.dispatch.Debug = debug
		c.intercept.Debug = debug
	}
}

// WithLogger sets the logger for the client and its interceptor.
func WithLogger(logger *zap.Logger) Option {
	return func(c *clientConfig) { c.logger = logger }
}

// WithHTTPClient replaces the client used to reach the collector and the
// policy endpoint. Requests sent through it are never intercepted, even
// when its transport is http.DefaultTransport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *clientConfig) { c.httpClient = hc }
}

// InterceptOption configures Intercept.
type InterceptOption func(*intercept.Options)

// WithEnforcement sets log, warn or block.
func WithEnforcement(mode Enforcement) InterceptOption {
	return func(o *intercept.Options) { o.Enforcement = mode }
}

// WithPolicyURL sets the policy decision endpoint.
func WithPolicyURL(url string) InterceptOption {
	return func(o *intercept.Options) { o.PolicyURL = url }
}

// WithExclude adds URL regexes that bypass interception entirely.
func WithExclude(patterns ...string) InterceptOption {
	return func(o *intercept.Options) { o.ExcludePatterns = append(o.ExcludePatterns, patterns...) }
}

// WithWarnFunc receives warn-mode denial messages instead of the default
// log line and stderr output.
func WithWarnFunc(fn func(msg string)) InterceptOption {
	return func(o *intercept.Options) { o.Warn = fn }
}
