package intercept

import (
	"errors"
	"fmt"
	"strings"
)

// ErrAlreadyInstalled is returned when a different interceptor already owns
// the global transport.
var ErrAlreadyInstalled = errors.New("callwatch: another interceptor is already installed")

// ConfigError reports an invalid interceptor option.
type ConfigError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("callwatch: invalid interceptor %s %q: %s", e.Field, e.Value, e.Reason)
}

// PolicyViolationError is returned from RoundTrip in block mode when the
// policy denies a call. The call never reaches the network.
type PolicyViolationError struct {
	Method  string
	URL     string
	Reasons []string
}

func (e *PolicyViolationError) Error() string {
	reason := "denied by policy"
	if len(e.Reasons) > 0 {
		reason = strings.Join(e.Reasons, "; ")
	}
	return fmt.Sprintf("callwatch: %s %s blocked: %s", e.Method, e.URL, reason)
}
