package utils

import (
	"math"
	"time"
)

// RoundMoney rounds an amount half-up to the currency's minor unit
// (2 decimal places). Every stored monetary field goes through this so
// breakdown identities hold exactly.
func RoundMoney(amount float64) float64 {
	return math.Round(amount*100) / 100
}

// Clamp bounds v into [min, max]. A max of zero means unbounded above.
func Clamp(v, min, max float64) float64 {
	if min > 0 && v < min {
		v = min
	}
	if max > 0 && v > max {
		v = max
	}
	return v
}

// RentalDays returns the rental duration in whole days, rounding partial
// days up.
func RentalDays(pickupAt, returnAt time.Time) int {
	hours := returnAt.Sub(pickupAt).Hours()
	if hours <= 0 {
		return 0
	}
	return int(math.Ceil(hours / 24))
}
