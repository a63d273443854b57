// Package ratelimit counts calls in fixed windows.
package ratelimit

import "time"

// Limit allows MaxRequests calls per Window. Zero values mean no limit.
type Limit struct {
	MaxRequests int           `yaml:"max_requests" json:"max_requests"`
	Window      time.Duration `yaml:"window"       json:"window"`
}

// Enabled reports whether the limit restricts anything.
func (l *Limit) Enabled() bool {
	return l != nil && l.MaxRequests > 0 && l.Window > 0
}
