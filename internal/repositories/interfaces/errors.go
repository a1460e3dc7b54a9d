package interfaces

import "errors"

// Sentinel errors shared by all repository implementations. Services map
// these onto the engine's error taxonomy.
var (
	ErrNotFound             = errors.New("record not found")
	ErrBookingConflict      = errors.New("overlapping booking exists")
	ErrPromoCapExceeded     = errors.New("promo code total usage cap exceeded")
	ErrPromoUserCapExceeded = errors.New("promo code per-user usage cap exceeded")
	ErrAlreadyPaidOut       = errors.New("booking already covered by a payout")
	ErrDuplicateReference   = errors.New("duplicate reference")
)
