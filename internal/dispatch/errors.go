package dispatch

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by Track once the client has been closed.
var ErrClosed = errors.New("callwatch: client is closed")

// ConfigError reports an invalid client configuration.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("callwatch: invalid %s: %s", e.Field, e.Reason)
}

// RegistrationError carries the collector's response to a failed agent registration.
type RegistrationError struct {
	StatusCode int
	Body       string
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("callwatch: agent registration failed: HTTP %d: %s", e.StatusCode, e.Body)
}

// DeliveryError describes a failed batch send. Flush logs it and requeues
// the batch; it never reaches Track or Flush callers.
type DeliveryError struct {
	StatusCode int // zero when the request never got a response
	Body       string
	Err        error
}

func (e *DeliveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("event delivery failed: %v", e.Err)
	}
	return fmt.Sprintf("event delivery failed: HTTP %d: %s", e.StatusCode, e.Body)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
