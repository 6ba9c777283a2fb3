package util

import (
	"math/rand/v2"
	"time"
)

// --------------------------------------------------------------------------
// Timing Helpers
// --------------------------------------------------------------------------

// Jitter returns base plus a random extra of up to factor*base.
// A zero or negative factor returns base unchanged.
func Jitter(base time.Duration, factor float64) time.Duration {
	if base <= 0 || factor <= 0 {
		return base
	}
	extra := time.Duration(float64(base) * factor * rand.Float64())
	return base + extra
}
