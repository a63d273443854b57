package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

// CheckResult is the outcome of a rate limit check.
type CheckResult struct {
	Exceeded bool
	Key      string
	Current  int
	Limit    int
	Reason   string
}

// Check compares the current count against the limit.
func Check(count int, limit *Limit) CheckResult {
	if !limit.Enabled() {
		return CheckResult{}
	}
	if count >= limit.MaxRequests {
		return CheckResult{
			Exceeded: true,
			Current:  count,
			Limit:    limit.MaxRequests,
			Reason: fmt.Sprintf("rate limit exceeded: %d/%d requests in %s window",
				count, limit.MaxRequests, limit.Window),
		}
	}
	return CheckResult{Current: count, Limit: limit.MaxRequests}
}

type window struct {
	start time.Time
	count int
}

// Limiter keeps one fixed window per key. It is safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	windows map[string]*window
}

// NewLimiter returns an empty Limiter.
func NewLimiter() *Limiter {
	return &Limiter{windows: make(map[string]*window)}
}

// Allow checks key against limit at now. A call within the limit is
// counted; an exceeding call is not.
func (l *Limiter) Allow(key string, limit *Limit, now time.Time) CheckResult {
	if !limit.Enabled() {
		return CheckResult{}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	w := l.windows[key]
	if w == nil || now.Sub(w.start) >= limit.Window {
		w = &window{start: now}
		l.windows[key] = w
	}

	res := Check(w.count, limit)
	res.Key = key
	if !res.Exceeded {
		w.count++
	}
	return res
}

// Reset forgets all counters.
func (l *Limiter) Reset() {
	l.mu.Lock()
	l.windows = make(map[string]*window)
	l.mu.Unlock()
}
