// Package dispatch buffers events and ships them in batches to the collector.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/callwatch/internal/event"
	"github.com/ppiankov/callwatch/internal/logging"
	"github.com/ppiankov/callwatch/internal/queue"
	"github.com/ppiankov/callwatch/internal/selfcall"
)

const (
	registerPath = "/api/v1/agents/register"
	batchPath    = "/api/v1/events/batch"
)

// Client buffers events and delivers them in order.
// Track never blocks on the network; delivery happens on the flush ticker,
// when the buffer reaches BatchSize, or on Close.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
	queue  *queue.Queue

	// mu guards closed and agentID. Track holds it for reading across the
	// append so that no event slips in after Close has started draining.
	mu      sync.RWMutex
	closed  bool
	agentID string

	flushMu    sync.Mutex // one batch send in flight at a time
	flushing   atomic.Bool
	beforeIdle func() // test hook, runs as flushFull leaves its loop

	ctx     context.Context
	cancel  context.CancelFunc
	stopped chan struct{}

	sent     atomic.Uint64
	failed   atomic.Uint64
	requeued atomic.Uint64
}

// Stats are delivery counters for diagnostics.
type Stats struct {
	Sent     uint64 // events acknowledged by the collector
	Failed   uint64 // failed batch sends
	Requeued uint64 // events put back after a failed send
}

// New validates cfg, applies defaults and starts the flush ticker.
func New(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	c := &Client{
		cfg:     cfg,
		queue:   queue.New(),
		agentID: cfg.AgentID,
		stopped: make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	if c.logger == nil {
		logger, err := logging.New("", cfg.Debug)
		if err != nil {
			return nil, fmt.Errorf("callwatch: build logger: %w", err)
		}
		c.logger = logger
	}
	c.logger = c.logger.Named("dispatch")
	if c.http == nil {
		c.http = &http.Client{Timeout: requestTimeout, Transport: newTransport()}
	}

	c.ctx, c.cancel = context.WithCancel(context.Background())
	go c.run(cfg.FlushInterval)

	c.logger.Debug("client started",
		zap.String("base_url", cfg.BaseURL),
		zap.Int("batch_size", cfg.BatchSize),
		zap.Duration("flush_interval", cfg.FlushInterval),
	)
	return c, nil
}

// run is the periodic flush loop. It exits when Close cancels c.ctx;
// a goroutine does not keep the process alive on its own.
func (c *Client) run(interval time.Duration) {
	defer close(c.stopped)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.Flush(c.ctx)
		}
	}
}

// Track enriches a copy of ev with the agent identity and SDK version and
// queues it. Reaching BatchSize starts a background flush.
func (c *Client) Track(ev event.Event) error {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return ErrClosed
	}
	extra := map[string]any{"sdk_version": Version}
	if c.agentID != "" {
		extra["agent_id"] = c.agentID
	}
	n := c.queue.Append(ev.WithMetadata(extra))
	c.mu.RUnlock()

	if n >= c.cfg.BatchSize {
		c.startFlushFull()
	}
	return nil
}

// startFlushFull starts flushFull unless one is already running.
func (c *Client) startFlushFull() {
	if c.flushing.CompareAndSwap(false, true) {
		go c.flushFull()
	}
}

// flushFull sends full batches until the buffer drops below BatchSize or a
// send fails. A Track that filled a batch while the flag was still set
// found the CAS taken, so the length is checked again after clearing it.
func (c *Client) flushFull() {
	for c.queue.Len() >= c.cfg.BatchSize {
		if err := c.flush(c.ctx); err != nil {
			c.flushing.Store(false)
			return
		}
	}
	if c.beforeIdle != nil {
		c.beforeIdle()
	}
	c.flushing.Store(false)
	if c.queue.Len() >= c.cfg.BatchSize && c.ctx.Err() == nil {
		c.startFlushFull()
	}
}

// Flush sends up to BatchSize of the oldest pending events as one batch.
// A failed send puts the batch back at the head of the queue and is only
// logged.
func (c *Client) Flush(ctx context.Context) {
	_ = c.flush(ctx)
}

func (c *Client) flush(ctx context.Context) error {
	c.flushMu.Lock()
	defer c.flushMu.Unlock()

	// A cancelled background flush must not hold a batch while Close drains.
	if err := ctx.Err(); err != nil {
		return err
	}
	batch := c.queue.TakeHead(c.cfg.BatchSize)
	if len(batch) == 0 {
		return nil
	}

	if err := c.sendBatch(ctx, batch); err != nil {
		c.queue.RestoreHead(batch)
		c.failed.Add(1)
		c.requeued.Add(uint64(len(batch)))
		c.logger.Warn("event batch delivery failed, requeued",
			zap.Int("batch_size", len(batch)),
			zap.Int("queue_size", c.queue.Len()),
			zap.Error(err),
		)
		return err
	}

	c.sent.Add(uint64(len(batch)))
	c.logger.Debug("event batch delivered",
		zap.Int("batch_size", len(batch)),
		zap.Int("queue_size", c.queue.Len()),
	)
	return nil
}

func (c *Client) sendBatch(ctx context.Context, batch []event.Event) error {
	body, err := json.Marshal(map[string]any{"events": batch})
	if err != nil {
		return &DeliveryError{Err: fmt.Errorf("encode batch: %w", err)}
	}

	resp, err := c.post(ctx, c.cfg.BaseURL+batchPath, body)
	if err != nil {
		return &DeliveryError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &DeliveryError{StatusCode: resp.StatusCode, Body: string(text)}
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

// post sends an authenticated JSON POST. The request is marked so an
// installed interceptor passes it through even when the configured
// http.Client falls back to http.DefaultTransport.
func (c *Client) post(ctx context.Context, url string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(selfcall.Mark(ctx), http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	return c.http.Do(req)
}

// Close stops accepting events, stops the ticker and drains the queue.
// Draining stops at the first failed send; whatever remains is logged as
// dropped and stays visible through QueueSize. Calling Close again is a no-op.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	<-c.stopped

	// flush waits on flushMu, so a send that started before cancel has
	// finished (or requeued) by the time the queue length is read.
	for {
		if err := c.flush(ctx); err != nil || c.queue.Len() == 0 {
			break
		}
	}

	if n := c.queue.Len(); n > 0 {
		c.logger.Error("dropping undelivered events on close", zap.Int("dropped", n))
	}
	c.http.CloseIdleConnections()
	_ = c.logger.Sync()
	return nil
}

// QueueSize returns the number of events waiting to be sent.
func (c *Client) QueueSize() int {
	return c.queue.Len()
}

// AgentID returns the registered or configured agent identifier.
func (c *Client) AgentID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.agentID
}

// Closed reports whether Close has been called.
func (c *Client) Closed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// HTTPClient returns the client's private HTTP client. The policy
// evaluator shares it so that policy calls bypass interception.
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

// APIKey returns the configured bearer token.
func (c *Client) APIKey() string {
	return c.cfg.APIKey
}

// Stats returns delivery counters.
func (c *Client) Stats() Stats {
	return Stats{
		Sent:     c.sent.Load(),
		Failed:   c.failed.Load(),
		Requeued: c.requeued.Load(),
	}
}

// Logger returns the client's logger.
func (c *Client) Logger() *zap.Logger {
	return c.logger
}
