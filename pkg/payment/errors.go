package payment

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorType is the canonical failure taxonomy shared by all backends. Codes
// a backend cannot map fall into ErrorTypeUnknown.
type ErrorType string

const (
	ErrorTypeNone              ErrorType = ""
	ErrorTypeNetwork           ErrorType = "network"
	ErrorTypeDeclined          ErrorType = "declined"
	ErrorTypeInvalidDetails    ErrorType = "invalid_details"
	ErrorTypeProviderError     ErrorType = "provider_error"
	ErrorTypeInsufficientFunds ErrorType = "insufficient_funds"
	ErrorTypeUnknown           ErrorType = "unknown"
)

// IsTransient reports whether the failure should stay in flight and be
// retried rather than surfaced as final.
func (t ErrorType) IsTransient() bool {
	return t == ErrorTypeNetwork || t == ErrorTypeProviderError
}

// Error wraps a provider failure with its canonical type so callers can
// branch on taxonomy without knowing the backend.
type Error struct {
	Type     ErrorType
	Provider string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%s): %v", e.Provider, e.Message, e.Type, e.Err)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Provider, e.Message, e.Type)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(provider string, errType ErrorType, message string, err error) *Error {
	return &Error{Type: errType, Provider: provider, Message: message, Err: err}
}

// classifyTransportError maps low-level call failures. Timeouts and broken
// connections are ambiguous outcomes: the charge may or may not have gone
// through, so they are typed as network and left in flight.
func classifyTransportError(err error) ErrorType {
	if err == nil {
		return ErrorTypeNone
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrorTypeNetwork
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrorTypeNetwork
	}
	return ErrorTypeUnknown
}

// TypeOf extracts the canonical error type from any error returned by a
// Provider, falling back to transport classification.
func TypeOf(err error) ErrorType {
	if err == nil {
		return ErrorTypeNone
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Type
	}
	return classifyTransportError(err)
}
