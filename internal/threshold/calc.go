// Package threshold resolves the declarative two-tier performance budget
// into concrete numeric pass/fail boundaries and applies tolerance buffers.
package threshold

import (
	"fmt"
	"math"
)

// Rounding controls whether an effective boundary is snapped to an integer.
// Integer rounding is used for counter metrics (render counts), where a
// fractional boundary is meaningless.
type Rounding int

const (
	// RoundNone keeps the exact boundary.
	RoundNone Rounding = iota
	// RoundInteger ceils a max boundary and floors a min boundary.
	RoundInteger
)

// Effective returns the buffered boundary for a lower-is-better metric:
// threshold * (1 + bufferPct/100), optionally ceiled.
//
// This is the single point where malformed threshold configuration is
// caught before it can produce a silently wrong verdict.
func Effective(threshold, bufferPct float64, round Rounding) (float64, error) {
	if err := validate(threshold, bufferPct); err != nil {
		return 0, err
	}
	v := threshold * (1 + bufferPct/100)
	if round == RoundInteger {
		v = math.Ceil(v)
	}
	return v, nil
}

// EffectiveMin returns the buffered boundary for a higher-is-better metric:
// threshold * (1 - bufferPct/100), optionally floored.
func EffectiveMin(threshold, bufferPct float64, round Rounding) (float64, error) {
	if err := validate(threshold, bufferPct); err != nil {
		return 0, err
	}
	v := threshold * (1 - bufferPct/100)
	if round == RoundInteger {
		v = math.Floor(v)
	}
	return v, nil
}

func validate(threshold, bufferPct float64) error {
	if threshold < 0 {
		return fmt.Errorf("threshold must not be negative, got %v", threshold)
	}
	if bufferPct < 0 || bufferPct > 100 {
		return fmt.Errorf("buffer percentage must be between 0 and 100, got %v", bufferPct)
	}
	return nil
}
