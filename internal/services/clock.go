package services

import "time"

// Clock abstracts time for the services so scheduler behavior (refund due
// dates, backoff windows, payout cycles) can be tested deterministically.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// NewClock returns the wall clock.
func NewClock() Clock { return realClock{} }
