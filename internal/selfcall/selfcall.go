// Package selfcall tags requests that callwatch itself sends (event
// batches, agent registration, policy checks, alert webhooks) so the
// interceptor forwards them without tracking or evaluating them.
package selfcall

import "context"

type markKey struct{}

// Mark returns a context whose requests the interceptor passes through.
func Mark(ctx context.Context) context.Context {
	return context.WithValue(ctx, markKey{}, true)
}

// Marked reports whether ctx was returned by Mark.
func Marked(ctx context.Context) bool {
	v, _ := ctx.Value(markKey{}).(bool)
	return v
}
