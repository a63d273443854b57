package callwatch

import (
	"context"
	"fmt"
	"sync"

	"github.com/ppiankov/callwatch/internal/config"
	"github.com/ppiankov/callwatch/internal/dispatch"
	"github.com/ppiankov/callwatch/internal/intercept"
)

// Client buffers events and delivers them to the collector. It is safe for
// concurrent use.
type Client struct {
	d      *dispatch.Client
	cfg    clientConfig
	mu     sync.Mutex
	hooked *intercept.Interceptor
}

// New creates a Client. apiKey must start with "cw_".
func New(apiKey string, opts ...Option) (*Client, error) {
	cfg := clientConfig{dispatch: dispatch.Config{APIKey: apiKey}}
	return newClient(cfg, opts)
}

// NewFromConfig loads settings from a YAML file and CALLWATCH_* environment
// variables, then applies opts. An empty path reads ./callwatch.yaml when
// present. Interceptor settings from the file become Intercept defaults.
func NewFromConfig(path string, opts ...Option) (*Client, error) {
	loaded, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("callwatch: %w", err)
	}
	cfg := clientConfig{dispatch: loaded.Dispatch(), intercept: loaded.Intercept()}
	return newClient(cfg, opts)
}

func newClient(cfg clientConfig, opts []Option) (*Client, error) {
	for _, o := range opts {
		o(&cfg)
	}

	var dopts []dispatch.Option
	if cfg.logger != nil {
		dopts = append(dopts, dispatch.WithLogger(cfg.logger))
	}
	if cfg.httpClient != nil {
		dopts = append(dopts, dispatch.WithHTTPClient(cfg.httpClient))
	}
	d, err := dispatch.New(cfg.dispatch, dopts...)
	if err != nil {
		return nil, err
	}
	return &Client{d: d, cfg: cfg}, nil
}

// Track queues an event. It never blocks on the network.
func (c *Client) Track(ev Event) error {
	return c.d.Track(ev)
}

// TrackEvent builds and queues an event in one step.
func (c *Client) TrackEvent(typ EventType, name string, payload, metadata map[string]any) error {
	ev, err := NewEvent(typ, name, payload, metadata)
	if err != nil {
		return err
	}
	return c.d.Track(ev)
}

// Flush sends one batch now. Failures are logged and the batch is retried
// later.
func (c *Client) Flush(ctx context.Context) {
	c.d.Flush(ctx)
}

// RegisterAgent registers this process with the collector. The returned id
// is attached to every later event.
func (c *Client) RegisterAgent(ctx context.Context, name, framework string) (string, error) {
	return c.d.RegisterAgent(ctx, name, framework)
}

// Intercept installs HTTP interception on http.DefaultTransport. Options
// are applied over the client's configured defaults. Calling it again
// after a successful install returns the installed interceptor.
func (c *Client) Intercept(opts ...InterceptOption) (*Interceptor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hooked != nil {
		return c.hooked, nil
	}

	o := c.cfg.intercept
	o.ExcludePatterns = append([]string(nil), o.ExcludePatterns...)
	for _, fn := range opts {
		fn(&o)
	}
	if o.Logger == nil {
		o.Logger = c.d.Logger()
	}

	i, err := intercept.New(c.d, o)
	if err != nil {
		return nil, err
	}
	if err := i.Install(); err != nil {
		return nil, err
	}
	c.hooked = i
	return i, nil
}

// Close removes the interceptor, if any, then drains buffered events.
// Later calls are no-ops.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.hooked != nil {
		c.hooked.Uninstall()
		c.hooked = nil
	}
	c.mu.Unlock()
	return c.d.Close(ctx)
}

// QueueSize returns the number of undelivered events.
func (c *Client) QueueSize() int { return c.d.QueueSize() }

// AgentID returns the registered or configured agent id.
func (c *Client) AgentID() string { return c.d.AgentID() }
