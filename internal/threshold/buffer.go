package threshold

import "fmt"

// Buffers holds the per-metric tolerance percentages applied on top of raw
// thresholds. The direction of each buffer is fixed by the metric's nature
// (additive for lower-is-better, subtractive for higher-is-better) and is
// not user-configurable.
type Buffers struct {
	Duration   float64 `yaml:"duration" json:"duration"`
	Renders    float64 `yaml:"renders" json:"renders"`
	FPS        float64 `yaml:"fps" json:"fps"`
	HeapGrowth float64 `yaml:"heapGrowth" json:"heapGrowth"`
	Vitals     float64 `yaml:"vitals" json:"vitals"`
	Audit      float64 `yaml:"audit" json:"audit"`
}

// DefaultBuffers returns the buffers applied when the user configures none.
func DefaultBuffers() Buffers {
	return Buffers{
		Duration:   10,
		Renders:    0,
		FPS:        10,
		HeapGrowth: 10,
		Vitals:     10,
		Audit:      5,
	}
}

// Validate rejects any buffer outside [0, 100], naming the offending field.
func (b Buffers) Validate() error {
	fields := []struct {
		name  string
		value float64
	}{
		{"duration", b.Duration},
		{"renders", b.Renders},
		{"fps", b.FPS},
		{"heapGrowth", b.HeapGrowth},
		{"vitals", b.Vitals},
		{"audit", b.Audit},
	}
	for _, f := range fields {
		if f.value < 0 || f.value > 100 {
			return fmt.Errorf("buffer %q must be between 0 and 100, got %v", f.name, f.value)
		}
	}
	return nil
}
