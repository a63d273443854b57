// Package intercept wraps the process-wide HTTP transport so that every
// outbound call is tracked and, optionally, checked against a policy.
package intercept

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ppiankov/callwatch/internal/event"
	"github.com/ppiankov/callwatch/internal/exclude"
	"github.com/ppiankov/callwatch/internal/logging"
	"github.com/ppiankov/callwatch/internal/policy"
	"github.com/ppiankov/callwatch/internal/selfcall"
)

// Event names emitted per call. All events of one call share a call_id.
const (
	EventStarted   = "http.request.started"
	EventCompleted = "http.request.completed"
	EventErrored   = "http.request.errored"
	EventBlocked   = "http.request.blocked"
)

// Enforcement controls what happens when the policy denies a call.
type Enforcement string

const (
	EnforceLog   Enforcement = "log"   // record only, never evaluate
	EnforceWarn  Enforcement = "warn"  // evaluate, warn on deny, proceed
	EnforceBlock Enforcement = "block" // evaluate, fail the call on deny
)

// ParseEnforcement maps a mode name to an Enforcement. Empty means log.
func ParseEnforcement(s string) (Enforcement, error) {
	switch Enforcement(strings.ToLower(strings.TrimSpace(s))) {
	case "", EnforceLog:
		return EnforceLog, nil
	case EnforceWarn:
		return EnforceWarn, nil
	case EnforceBlock:
		return EnforceBlock, nil
	default:
		return "", &ConfigError{Field: "enforcement", Value: s, Reason: "must be log, warn or block"}
	}
}

// Tracker receives call events. *dispatch.Client satisfies it.
type Tracker interface {
	Track(ev event.Event) error
}

// PolicyEvaluator decides whether a described call may proceed.
type PolicyEvaluator interface {
	Evaluate(ctx context.Context, descriptor any) (policy.Result, error)
}

// sharedTransport is implemented by trackers that own a private HTTP client,
// letting policy calls skip interception.
type sharedTransport interface {
	HTTPClient() *http.Client
	APIKey() string
}

// Options configure an Interceptor.
type Options struct {
	Enforcement     Enforcement
	PolicyURL       string
	ExcludePatterns []string
	Debug           bool

	Logger    *zap.Logger
	Evaluator PolicyEvaluator // overrides PolicyURL
	Warn      func(msg string)
}

// Interceptor is an http.RoundTripper that records each call it forwards.
type Interceptor struct {
	client    Tracker
	mode      Enforcement
	evaluator PolicyEvaluator
	exclude   *exclude.Matcher
	debug     bool
	logger    *zap.Logger
	warn      func(string)

	mu   sync.RWMutex
	prev http.RoundTripper
}

// New builds an Interceptor. It does not install it.
func New(client Tracker, opts Options) (*Interceptor, error) {
	if client == nil {
		return nil, &ConfigError{Field: "client", Value: "<nil>", Reason: "a tracker is required"}
	}
	mode, err := ParseEnforcement(string(opts.Enforcement))
	if err != nil {
		return nil, err
	}
	matcher, err := exclude.New(opts.ExcludePatterns)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil && opts.Debug {
		logger, _ = logging.New("debug", true)
	}
	logger = logging.OrNop(logger).Named("intercept")

	i := &Interceptor{
		client:    client,
		mode:      mode,
		evaluator: opts.Evaluator,
		exclude:   matcher,
		debug:     opts.Debug,
		logger:    logger,
		warn:      opts.Warn,
	}
	if i.evaluator == nil && opts.PolicyURL != "" {
		var doer policy.Doer
		var apiKey string
		if st, ok := client.(sharedTransport); ok {
			doer, apiKey = st.HTTPClient(), st.APIKey()
		}
		i.evaluator = policy.NewEvaluator(opts.PolicyURL, doer, apiKey)
	}
	if i.warn == nil {
		i.warn = func(msg string) {
			logger.Warn(msg)
			fmt.Fprintln(os.Stderr, msg)
		}
	}
	return i, nil
}

// Mode returns the enforcement mode.
func (i *Interceptor) Mode() Enforcement { return i.mode }

// next is the transport calls are forwarded to: the one saved at Install,
// or the package default when i is used directly as a client transport.
func (i *Interceptor) next() http.RoundTripper {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.prev != nil {
		return i.prev
	}
	return baseTransport
}

var baseTransport = http.DefaultTransport

// RoundTrip implements http.RoundTripper.
// Calls sent by callwatch itself and excluded calls are forwarded before a
// descriptor is built, so their bodies are never read.
func (i *Interceptor) RoundTrip(req *http.Request) (*http.Response, error) {
	next := i.next()
	if selfcall.Marked(req.Context()) {
		return next.RoundTrip(req)
	}
	if u := (RequestURL{req}).urlString(); u != "" {
		if pattern, ok := i.exclude.Match(u); ok {
			if i.debug {
				i.logger.Debug("call excluded", zap.String("url", u), zap.String("pattern", pattern))
			}
			return next.RoundTrip(req)
		}
	}

	desc := describeHTTP(req)

	callID := uuid.NewString()
	start := time.Now()

	started := desc.payload()
	started["call_id"] = callID
	if sc := trace.SpanContextFromContext(req.Context()); sc.IsValid() {
		started["trace_id"] = sc.TraceID().String()
		started["span_id"] = sc.SpanID().String()
	}
	i.emit(event.APICall, EventStarted, started)

	if i.mode != EnforceLog && i.evaluator != nil {
		res, err := i.evaluator.Evaluate(req.Context(), desc)
		switch {
		case err != nil:
			i.logger.Warn("policy evaluation failed, allowing call",
				zap.String("method", desc.Method),
				zap.String("url", desc.URL),
				zap.Error(err),
			)
		case !res.Allowed() && i.mode == EnforceBlock:
			i.emit(event.Decision, EventBlocked, map[string]any{
				"call_id":  callID,
				"method":   desc.Method,
				"url":      desc.URL,
				"decision": string(res.Decision),
				"reasons":  reasonsPayload(res.Reasons),
			})
			if req.Body != nil {
				req.Body.Close()
			}
			return nil, &PolicyViolationError{Method: desc.Method, URL: desc.URL, Reasons: res.Reasons}
		case !res.Allowed():
			i.warn(fmt.Sprintf("callwatch: policy denied %s %s: %s", desc.Method, desc.URL, res.FirstReason()))
		}
	}

	resp, err := next.RoundTrip(req)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		i.emit(event.APICall, EventErrored, map[string]any{
			"call_id":     callID,
			"method":      desc.Method,
			"url":         desc.URL,
			"error":       err.Error(),
			"duration_ms": elapsed,
		})
		return nil, err
	}

	headers := map[string]any{}
	for _, h := range []string{"Content-Type", "Content-Length", "X-Request-Id"} {
		if v := resp.Header.Get(h); v != "" {
			headers[h] = v
		}
	}
	i.emit(event.APICall, EventCompleted, map[string]any{
		"call_id":     callID,
		"method":      desc.Method,
		"url":         desc.URL,
		"status":      resp.StatusCode,
		"status_text": http.StatusText(resp.StatusCode),
		"headers":     headers,
		"duration_ms": elapsed,
	})
	return resp, nil
}

// emit tracks an event. Tracking failures never affect the call.
func (i *Interceptor) emit(typ event.Type, name string, payload map[string]any) {
	ev, err := event.New(typ, name, payload, nil)
	if err == nil {
		err = i.client.Track(ev)
	}
	if err != nil && i.debug {
		i.logger.Debug("failed to track call event", zap.String("event", name), zap.Error(err))
	}
}

func reasonsPayload(reasons []string) []any {
	out := make([]any, len(reasons))
	for n, r := range reasons {
		out[n] = r
	}
	return out
}

func zapMode(m Enforcement) zap.Field {
	return zap.String("enforcement", string(m))
}
