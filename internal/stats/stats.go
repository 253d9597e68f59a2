// Package stats computes the aggregate statistics a test run is judged on:
// means, interpolated percentiles, and population standard deviation over
// per-iteration samples, with per-subject breakdowns.
package stats

import (
	"fmt"
	"math"
	"sort"
)

// Percentile returns the p-th percentile of values using linear
// interpolation between the bracketing ranked positions
// (rank = p/100 * (n-1) over the ascending-sorted input).
//
// An empty input yields 0; a single value is returned as-is for any valid p.
func Percentile(values []float64, p float64) (float64, error) {
	if p < 0 || p > 100 {
		return 0, fmt.Errorf("percentile must be between 0 and 100, got %v", p)
	}
	switch len(values) {
	case 0:
		return 0, nil
	case 1:
		return values[0], nil
	}

	sorted := append([]float64{}, values...)
	sort.Float64s(sorted)

	rank := p / 100 * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower], nil
	}

	frac := rank - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower]), nil
}

// Mean returns the arithmetic mean, 0 for an empty input.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// StdDev returns the population standard deviation, 0 for fewer than
// two values.
func StdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := Mean(values)
	sumSq := 0.0
	for _, v := range values {
		d := v - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(values)))
}
