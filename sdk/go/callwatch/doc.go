// Package callwatch records the outbound HTTP calls and application events
// of a Go agent and ships them to a callwatch collector. Calls can
// optionally be checked against a remote policy and warned about or
// blocked when denied.
//
// Usage:
//
//	cw, err := callwatch.New("cw_live_...", callwatch.WithBaseURL("https://collector.internal"))
//	defer cw.Close(context.Background())
//
//	cw.Intercept(
//	    callwatch.WithEnforcement(callwatch.EnforceBlock),
//	    callwatch.WithPolicyURL("https://collector.internal/api/v1/policy/evaluate"),
//	    callwatch.WithExclude(`^https://telemetry\.`),
//	)
//	resp, err := http.Get("https://api.example.com/items") // recorded
//
//	cw.TrackEvent(callwatch.ToolCall, "search", map[string]any{"q": "weather"}, nil)
//
// Interception replaces http.DefaultTransport, so it covers every client
// that does not set its own Transport.
package callwatch
