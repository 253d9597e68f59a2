package stats

// SubjectSample is one iteration's measurement for a named subject
// (typically a component id).
type SubjectSample struct {
	Duration float64 `json:"duration"` // milliseconds
	Renders  int     `json:"renders"`
}

// IterationResult is the raw outcome of one workload execution.
type IterationResult struct {
	Duration      float64                  `json:"duration"` // milliseconds
	Renders       int                      `json:"renders"`
	FPS           *float64                 `json:"fps,omitempty"`
	HeapGrowthPct *float64                 `json:"heapGrowthPct,omitempty"`
	Subjects      map[string]SubjectSample `json:"subjects,omitempty"`
}

// Distribution carries the variance statistics for one metric. It is only
// present when at least two effective iterations back it.
type Distribution struct {
	P50    float64 `json:"p50"`
	P95    float64 `json:"p95"`
	P99    float64 `json:"p99"`
	StdDev float64 `json:"stdDev"`
}

// SubjectStats is the aggregate for one subject across iterations.
type SubjectStats struct {
	Samples      int     `json:"samples"`
	MeanDuration float64 `json:"meanDuration"`
	MeanRenders  float64 `json:"meanRenders"`
	DurationP50  float64 `json:"durationP50"`
	DurationP95  float64 `json:"durationP95"`
	DurationP99  float64 `json:"durationP99"`
}

// Metrics is the aggregate across all iterations of a run.
//
// Iterations always holds the full history, including a discarded warmup
// pass; every derived statistic is computed over the effective iterations
// only.
type Metrics struct {
	Iterations      []IterationResult `json:"iterations"`
	Effective       int               `json:"effective"`
	WarmupDiscarded bool              `json:"warmupDiscarded"`

	MeanDuration      float64  `json:"meanDuration"`
	MeanRenders       float64  `json:"meanRenders"`
	MeanFPS           *float64 `json:"meanFps,omitempty"`
	MeanHeapGrowthPct *float64 `json:"meanHeapGrowthPct,omitempty"`

	Duration *Distribution `json:"durationDistribution,omitempty"`
	Renders  *Distribution `json:"rendersDistribution,omitempty"`

	Subjects map[string]SubjectStats `json:"subjects,omitempty"`
}

// Aggregate folds N iteration results into run-level metrics.
//
// When warmup is set and more than one result exists, the first result is
// excluded from every mean, percentile and standard deviation but kept in
// the returned history. Percentiles and standard deviation require at least
// two effective iterations; with exactly one, only the means are carried.
// Subjects present in fewer than two effective iterations are excluded.
func Aggregate(results []IterationResult, warmup bool) *Metrics {
	m := &Metrics{Iterations: results}

	effective := results
	if warmup && len(results) > 1 {
		effective = results[1:]
		m.WarmupDiscarded = true
	}
	m.Effective = len(effective)
	if len(effective) == 0 {
		return m
	}

	durations := make([]float64, len(effective))
	renders := make([]float64, len(effective))
	var fps, heap []float64
	for i, r := range effective {
		durations[i] = r.Duration
		renders[i] = float64(r.Renders)
		if r.FPS != nil {
			fps = append(fps, *r.FPS)
		}
		if r.HeapGrowthPct != nil {
			heap = append(heap, *r.HeapGrowthPct)
		}
	}

	m.MeanDuration = Mean(durations)
	m.MeanRenders = Mean(renders)
	if len(fps) > 0 {
		v := Mean(fps)
		m.MeanFPS = &v
	}
	if len(heap) > 0 {
		v := Mean(heap)
		m.MeanHeapGrowthPct = &v
	}

	if len(effective) >= 2 {
		m.Duration = distribution(durations)
		m.Renders = distribution(renders)
	}

	m.Subjects = aggregateSubjects(effective)
	return m
}

// distribution computes the percentile set and stddev for one sample slice.
// The inputs are validated percentiles, so the errors cannot fire.
func distribution(values []float64) *Distribution {
	p50, _ := Percentile(values, 50)
	p95, _ := Percentile(values, 95)
	p99, _ := Percentile(values, 99)
	return &Distribution{P50: p50, P95: p95, P99: p99, StdDev: StdDev(values)}
}

// aggregateSubjects builds per-subject breakdowns over the effective
// iterations. A subject seen in exactly one iteration is silently dropped;
// a single sample has no distribution worth judging.
func aggregateSubjects(effective []IterationResult) map[string]SubjectStats {
	durations := map[string][]float64{}
	renders := map[string][]float64{}
	for _, r := range effective {
		for name, s := range r.Subjects {
			durations[name] = append(durations[name], s.Duration)
			renders[name] = append(renders[name], float64(s.Renders))
		}
	}

	out := map[string]SubjectStats{}
	for name, d := range durations {
		if len(d) < 2 {
			continue
		}
		p50, _ := Percentile(d, 50)
		p95, _ := Percentile(d, 95)
		p99, _ := Percentile(d, 99)
		out[name] = SubjectStats{
			Samples:      len(d),
			MeanDuration: Mean(d),
			MeanRenders:  Mean(renders[name]),
			DurationP50:  p50,
			DurationP95:  p95,
			DurationP99:  p99,
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
