package services

import (
	"errors"
	"fmt"

	"renthub/internal/models"
	"renthub/pkg/payment"
)

// The engine's error taxonomy. Handlers map these onto HTTP statuses; the
// reconciliation sweep branches on them for retry decisions.

// ValidationError is bad input the caller can fix: overlapping dates in the
// request itself, an unknown promo code, a malformed amount. Never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// ConflictError means the caller lost a race: the vehicle was booked first,
// or a promo cap was exhausted at redemption time. Distinct from validation
// so clients know a retry with different parameters may succeed.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict: %s", e.Message)
}

func NewConflictError(message string) error {
	return &ConflictError{Message: message}
}

// InvariantViolation marks partial state the engine must never produce on
// its own: it is logged as fatal for the affected row and the row is flagged
// for manual review instead of being auto-advanced.
type InvariantViolation struct {
	Resource string
	ID       string
	Message  string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violation on %s %s: %s", e.Resource, e.ID, e.Message)
}

// PaymentDeclinedError is a terminal provider decline for one attempt. When a
// second provider is configured for another method, AlternativeMethod names
// it so the client can offer a fallback.
type PaymentDeclinedError struct {
	Type              payment.ErrorType
	Message           string
	AlternativeMethod models.PaymentMethod
}

func (e *PaymentDeclinedError) Error() string {
	return fmt.Sprintf("payment declined (%s): %s", e.Type, e.Message)
}

var (
	ErrBookingNotFound      = errors.New("booking not found")
	ErrVehicleNotFound      = errors.New("vehicle not found")
	ErrVehicleUnavailable   = NewConflictError("vehicle is not available for the requested window")
	ErrInvalidTransition    = errors.New("invalid booking state transition")
	ErrStaleEvent           = errors.New("stale event discarded")
	ErrTransactionNotFound  = errors.New("payment transaction not found")
	ErrRefundNotFound       = errors.New("deposit refund not found")
	ErrChargeNotFound       = errors.New("booking charge not found")
	ErrInsufficientBalance  = NewValidationError("amount", "requested amount exceeds available balance")
	ErrNoProviderConfigured = errors.New("no payment provider configured for method")
)

// IsConflict reports whether err is a lost-race conflict.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// IsValidation reports whether err is user-fixable input.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsProviderTransient reports whether err is an ambiguous provider outcome
// that the reconciliation sweep should retry.
func IsProviderTransient(err error) bool {
	return payment.TypeOf(err).IsTransient()
}

// IsProviderDeclined reports whether err is a terminal decline for the
// attempt (card declined, insufficient funds, bad details).
func IsProviderDeclined(err error) bool {
	switch payment.TypeOf(err) {
	case payment.ErrorTypeDeclined, payment.ErrorTypeInsufficientFunds, payment.ErrorTypeInvalidDetails:
		return true
	}
	return false
}
