package policy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ppiankov/callwatch/internal/selfcall"
)

const evaluateTimeout = 5 * time.Second

// Doer sends HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Evaluator asks a remote decision endpoint whether a call may proceed.
// It reports failures as errors; deciding what a failure means is the
// caller's job.
type Evaluator struct {
	url    string
	apiKey string
	doer   Doer
}

// NewEvaluator creates an Evaluator posting to url. A nil doer gets a
// client with its own transport.
func NewEvaluator(url string, doer Doer, apiKey string) *Evaluator {
	if doer == nil {
		doer = &http.Client{Timeout: evaluateTimeout, Transport: &http.Transport{Proxy: http.ProxyFromEnvironment}}
	}
	return &Evaluator{url: url, apiKey: apiKey, doer: doer}
}

// URL returns the decision endpoint.
func (e *Evaluator) URL() string { return e.url }

// Evaluate posts the request descriptor and decodes the decision.
func (e *Evaluator) Evaluate(ctx context.Context, descriptor any) (Result, error) {
	ctx, cancel := context.WithTimeout(selfcall.Mark(ctx), evaluateTimeout)
	defer cancel()

	body, err := json.Marshal(descriptor)
	if err != nil {
		return Result{}, fmt.Errorf("encode policy request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("create policy request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.doer.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("policy service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
		return Result{}, fmt.Errorf("policy service returned HTTP %d: %s", resp.StatusCode, text)
	}

	var res Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return Result{}, fmt.Errorf("decode policy response: %w", err)
	}
	return res, nil
}
