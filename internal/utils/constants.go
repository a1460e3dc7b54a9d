package utils

import "time"

const (
	AppName = "RentHub"

	DefaultCurrency = "USD"

	// Pagination
	DefaultPageSize = 20
	MaxPageSize     = 100
	MinPageSize     = 1

	// Response statuses
	StatusSuccess = "success"
	StatusError   = "error"

	// Booking constraints
	MinRentalDuration = 24 * time.Hour
	MaxRentalDuration = 90 * 24 * time.Hour
	MaxAdvanceBooking = 365 * 24 * time.Hour

	// Error messages
	ErrValidationFailed = "Validation failed"
	ErrInternalServer   = "Internal server error"
	ErrUnauthorized     = "Unauthorized"
	ErrForbidden        = "Forbidden"
	ErrNotFound         = "Resource not found"
	ErrConflict         = "Conflict"
)
