package stats

import (
	"math"
	"testing"
)

func TestPercentile(t *testing.T) {
	values := []float64{10, 20, 30, 40, 50}

	tests := []struct {
		name     string
		values   []float64
		p        float64
		expected float64
	}{
		{"median of five", values, 50, 30},
		{"p95 interpolates", values, 95, 48},
		{"p0 is minimum", values, 0, 10},
		{"p100 is maximum", values, 100, 50},
		{"single value", []float64{42}, 95, 42},
		{"empty input", nil, 50, 0},
		{"unsorted input", []float64{50, 10, 40, 20, 30}, 50, 30},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Percentile(tt.values, tt.p)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("Percentile(%v, %v) = %v, want %v", tt.values, tt.p, got, tt.expected)
			}
		})
	}
}

func TestPercentileRejectsOutOfRange(t *testing.T) {
	for _, p := range []float64{-1, 101} {
		if _, err := Percentile([]float64{1, 2}, p); err == nil {
			t.Errorf("Percentile(_, %v) expected error, got none", p)
		}
	}
}

func TestMean(t *testing.T) {
	if got := Mean([]float64{100, 200}); got != 150 {
		t.Errorf("Mean = %v, want 150", got)
	}
	if got := Mean(nil); got != 0 {
		t.Errorf("Mean(nil) = %v, want 0", got)
	}
}

func TestStdDev(t *testing.T) {
	// Population standard deviation of the classic sample.
	got := StdDev([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	if math.Abs(got-2) > 1e-9 {
		t.Errorf("StdDev = %v, want 2", got)
	}
}

func TestStdDevDegenerate(t *testing.T) {
	if got := StdDev([]float64{5}); got != 0 {
		t.Errorf("StdDev of one value = %v, want 0", got)
	}
	if got := StdDev(nil); got != 0 {
		t.Errorf("StdDev(nil) = %v, want 0", got)
	}
}
