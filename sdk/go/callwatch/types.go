package callwatch

import (
	"github.com/ppiankov/callwatch/internal/dispatch"
	"github.com/ppiankov/callwatch/internal/event"
	"github.com/ppiankov/callwatch/internal/intercept"
	"github.com/ppiankov/callwatch/internal/policy"
)

// Event is an immutable tracked event.
type Event = event.Event

// EventType is the closed set of event categories.
type EventType = event.Type

const (
	ToolCall   = event.ToolCall
	LLMInvoke  = event.LLMInvoke
	DataAccess = event.DataAccess
	APICall    = event.APICall
	FileWrite  = event.FileWrite
	Decision   = event.Decision
)

// NewEvent validates and builds an Event. Payload and metadata are copied.
func NewEvent(typ EventType, name string, payload, metadata map[string]any) (Event, error) {
	return event.New(typ, name, payload, metadata)
}

// Enforcement selects what a policy denial does to a call.
type Enforcement = intercept.Enforcement

const (
	EnforceLog   = intercept.EnforceLog
	EnforceWarn  = intercept.EnforceWarn
	EnforceBlock = intercept.EnforceBlock
)

// Interceptor is the installed transport wrapper.
type Interceptor = intercept.Interceptor

// PolicyResult is a policy decision with its reasons.
type PolicyResult = policy.Result

// Errors callers can match with errors.Is and errors.As.
var (
	ErrClosed           = dispatch.ErrClosed
	ErrAlreadyInstalled = intercept.ErrAlreadyInstalled
	ErrInvalidEventType = event.ErrInvalidType
	ErrEmptyEventName   = event.ErrEmptyName
)

type (
	ConfigError          = dispatch.ConfigError
	RegistrationError    = dispatch.RegistrationError
	DeliveryError        = dispatch.DeliveryError
	PolicyViolationError = intercept.PolicyViolationError
	InterceptConfigError = intercept.ConfigError
)
