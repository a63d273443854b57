package alert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ppiankov/callwatch/internal/selfcall"
)

const (
	requestTimeout = 5 * time.Second
	maxRetries     = 3
)

var (
	httpClient   = &http.Client{Timeout: requestTimeout}
	retryBackoff = time.Second
)

// HookError is a non-2xx webhook response.
type HookError struct {
	URL        string
	StatusCode int
}

func (e *HookError) Error() string {
	return fmt.Sprintf("webhook %s answered HTTP %d", e.URL, e.StatusCode)
}

// Temporary reports whether another attempt may succeed.
func (e *HookError) Temporary() bool { return e.StatusCode >= 500 }

// Send delivers one alert. Network errors and 5xx answers are tried again,
// up to maxRetries attempts, waiting attempt*retryBackoff between them.
// A 4xx answer ends delivery at once.
func Send(ctx context.Context, cfg AlertConfig, ev AlertEvent) error {
	body, err := FormatPayload(cfg.Format, ev)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	ctx = selfcall.Mark(ctx)

	var last error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, time.Duration(attempt-1)*retryBackoff); err != nil {
				return err
			}
		}
		last = post(ctx, cfg, body)
		var he *HookError
		if last == nil || (errors.As(last, &he) && !he.Temporary()) {
			return last
		}
	}
	return fmt.Errorf("alert not delivered after %d attempts: %w", maxRetries, last)
}

func post(ctx context.Context, cfg AlertConfig, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &HookError{URL: cfg.URL, StatusCode: resp.StatusCode}
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
