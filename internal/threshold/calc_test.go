package threshold

import (
	"strings"
	"testing"
)

func TestEffective(t *testing.T) {
	tests := []struct {
		name      string
		threshold float64
		buffer    float64
		round     Rounding
		expected  float64
	}{
		{"twenty percent headroom", 100, 20, RoundNone, 120},
		{"zero buffer", 100, 0, RoundNone, 100},
		{"integer metric rounds up", 5, 10, RoundInteger, 6},
		{"integer metric exact", 10, 10, RoundInteger, 11},
		{"full buffer doubles", 50, 100, RoundNone, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Effective(tt.threshold, tt.buffer, tt.round)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("Effective(%v, %v) = %v, want %v", tt.threshold, tt.buffer, got, tt.expected)
			}
		})
	}
}

func TestEffectiveMin(t *testing.T) {
	tests := []struct {
		name      string
		threshold float64
		buffer    float64
		round     Rounding
		expected  float64
	}{
		{"twenty percent slack", 100, 20, RoundNone, 80},
		{"zero buffer", 60, 0, RoundNone, 60},
		{"integer metric rounds down", 5, 10, RoundInteger, 4},
		{"full buffer floors at zero", 50, 100, RoundNone, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EffectiveMin(tt.threshold, tt.buffer, tt.round)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("EffectiveMin(%v, %v) = %v, want %v", tt.threshold, tt.buffer, got, tt.expected)
			}
		})
	}
}

func TestEffectiveValidation(t *testing.T) {
	if _, err := Effective(-1, 10, RoundNone); err == nil {
		t.Error("negative threshold: expected error")
	}
	if _, err := Effective(100, -5, RoundNone); err == nil {
		t.Error("negative buffer: expected error")
	}
	if _, err := Effective(100, 101, RoundNone); err == nil {
		t.Error("buffer above 100: expected error")
	}
	if _, err := EffectiveMin(100, 150, RoundNone); err == nil {
		t.Error("EffectiveMin buffer above 100: expected error")
	}
}

func TestBuffersValidate(t *testing.T) {
	if err := DefaultBuffers().Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}

	b := DefaultBuffers()
	b.HeapGrowth = 120
	err := b.Validate()
	if err == nil {
		t.Fatal("expected error for out-of-range buffer")
	}
	if want := `buffer "heapGrowth"`; !strings.Contains(err.Error(), want) {
		t.Errorf("error %q does not name the offending field", err)
	}
}
