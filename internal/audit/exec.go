package audit

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/tidwall/gjson"
)

// ExecAuditor invokes an external audit runner binary (lighthouse-
// compatible flags, JSON report on stdout) and extracts its category
// scores.
type ExecAuditor struct {
	// Binary is the audit runner executable.
	Binary string

	// ExtraArgs are appended verbatim to every invocation.
	ExtraArgs []string

	Logger *slog.Logger
}

func (a *ExecAuditor) Audit(ctx context.Context, req Request) (Scores, error) {
	args := []string{
		req.URL,
		"--output=json",
		"--quiet",
		"--chrome-flags=--headless",
		fmt.Sprintf("--form-factor=%s", req.FormFactor),
	}
	if len(req.Categories) > 0 {
		args = append(args, "--only-categories="+strings.Join(req.Categories, ","))
	}
	if len(req.SkipAudits) > 0 {
		args = append(args, "--skip-audits="+strings.Join(req.SkipAudits, ","))
	}
	if req.Throttling.RTTMs > 0 || req.Throttling.ThroughputKbps > 0 {
		args = append(args,
			fmt.Sprintf("--throttling.rttMs=%g", req.Throttling.RTTMs),
			fmt.Sprintf("--throttling.throughputKbps=%g", req.Throttling.ThroughputKbps),
		)
	}
	if req.Throttling.CPUSlowdownMultiplier > 1 {
		args = append(args,
			fmt.Sprintf("--throttling.cpuSlowdownMultiplier=%g", req.Throttling.CPUSlowdownMultiplier))
	}
	args = append(args, a.ExtraArgs...)

	logger := a.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("running page audit", "binary", a.Binary, "url", req.URL)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, a.Binary, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("audit runner failed: %w (stderr: %s)",
			err, strings.TrimSpace(stderr.String()))
	}

	return ParseReport(stdout.Bytes(), req.Categories)
}

// ParseReport extracts per-category scores from an audit JSON report.
// The report scores categories 0-1; the engine judges on 0-100. A null
// score stays nil.
func ParseReport(report []byte, categories []string) (Scores, error) {
	root := gjson.ParseBytes(report)
	cats := root.Get("categories")
	if !cats.Exists() {
		return nil, fmt.Errorf("audit report has no categories section")
	}

	scores := Scores{}
	want := map[string]bool{}
	for _, c := range categories {
		want[c] = true
	}

	cats.ForEach(func(key, value gjson.Result) bool {
		id := key.String()
		if len(want) > 0 && !want[id] {
			return true
		}
		score := value.Get("score")
		if !score.Exists() || score.Type == gjson.Null {
			scores[id] = nil
			return true
		}
		v := score.Float() * 100
		scores[id] = &v
		return true
	})
	return scores, nil
}
