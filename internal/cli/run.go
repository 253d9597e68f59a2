package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/perfgate/perfgate/internal/audit"
	"github.com/perfgate/perfgate/internal/browser"
	"github.com/perfgate/perfgate/internal/config"
	"github.com/perfgate/perfgate/internal/output"
	"github.com/perfgate/perfgate/internal/probe"
	"github.com/perfgate/perfgate/internal/runner"
	"github.com/perfgate/perfgate/internal/threshold"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a performance test from a configuration file",
	Long: `Execute a browser performance test described by a YAML configuration.
The default workload navigates to the configured URL and waits for the
load event; measurements, throttling and budget checks come from the
config.

  perfgate run --config perf.yaml --control-url ws://127.0.0.1:9222

The command exits nonzero when the workload fails or a budget assertion
does.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPerfTest(cmd)
	},
}

func init() {
	runCmd.Flags().StringP("config", "c", "", "path to the test configuration file (required)")
	runCmd.Flags().String("control-url", "", "browser debug endpoint, e.g. ws://127.0.0.1:9222 (required)")
	runCmd.Flags().String("url", "", "override the configured page URL")
	runCmd.Flags().String("env", "", "override the configured environment")
	runCmd.Flags().StringP("output", "o", "", "write the run artifact to this path")
	runCmd.Flags().StringP("format", "f", string(output.FormatText), "report format: text or json (json prints the run artifact)")
	runCmd.Flags().BoolP("verbose", "v", false, "show passing assertions too")
	runCmd.Flags().Bool("no-color", false, "disable colored output")
	_ = runCmd.MarkFlagRequired("config")
	_ = runCmd.MarkFlagRequired("control-url")
}

func runPerfTest(cmd *cobra.Command) error {
	configFile, _ := cmd.Flags().GetString("config")
	controlURL, _ := cmd.Flags().GetString("control-url")
	urlOverride, _ := cmd.Flags().GetString("url")
	envOverride, _ := cmd.Flags().GetString("env")
	artifactPath, _ := cmd.Flags().GetString("output")
	formatFlag, _ := cmd.Flags().GetString("format")
	verbose, _ := cmd.Flags().GetBool("verbose")
	noColor, _ := cmd.Flags().GetBool("no-color")
	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		noColor = true
	}

	format, err := output.ParseFormat(formatFlag)
	if err != nil {
		return err
	}

	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if urlOverride != "" {
		cfg.URL = urlOverride
	}
	if envOverride != "" {
		cfg.Environment = envOverride
	}
	if cfg.URL == "" {
		return fmt.Errorf("no page URL: set url in the config or pass --url")
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := slog.Default()

	b, err := browser.Connect(ctx, controlURL)
	if err != nil {
		return fmt.Errorf("connecting to browser: %w", err)
	}
	defer b.Close()

	page, err := browser.OpenPage(b, "about:blank", logger)
	if err != nil {
		return fmt.Errorf("opening page: %w", err)
	}

	opts := optionsFromConfig(cfg, artifactPath)
	r, err := runner.New(page, probe.NewDefaultRegistry(logger), opts, logger)
	if err != nil {
		return err
	}

	report, runErr := r.Run(ctx, func(ctx context.Context) error {
		return page.Navigate(ctx, cfg.URL)
	})

	if report != nil {
		switch format {
		case output.FormatJSON:
			if report.Artifact != nil {
				fmt.Println(string(report.Artifact))
			}
		default:
			formatter := output.NewFormatter(verbose, noColor)
			fmt.Print(formatter.FormatReport(report))
		}
	}

	return runErr
}

// optionsFromConfig maps the file configuration onto runner options.
func optionsFromConfig(cfg *config.TestConfig, artifactPath string) runner.Options {
	buffers := threshold.DefaultBuffers()
	if cfg.Buffers != nil {
		buffers = *cfg.Buffers
	}

	opts := runner.Options{
		Name:               cfg.Name,
		Environment:        cfg.Environment,
		OverrideTierActive: cfg.Environment == config.EnvironmentOverride,
		Iterations:         cfg.Iterations,
		Warmup:             cfg.Warmup,
		CPUThrottleRate:    cfg.CPUThrottleRate,
		Network:            cfg.Network.Conditions(),
		TrackFPS:           cfg.TrackFPS,
		TrackHeap:          cfg.TrackHeap,
		TrackVitals:        cfg.TrackVitals,
		Trace:              cfg.Trace.Enabled,
		TraceCategories:    cfg.Trace.Categories,
		TraceExportPath:    cfg.Trace.ExportPath,
		Thresholds:         cfg.Thresholds,
		Buffers:            buffers,
		ArtifactPath:       artifactPath,
	}

	if cfg.Audit != nil {
		opts.Audit = &runner.AuditOptions{
			Auditor:    &audit.ExecAuditor{Binary: cfg.Audit.Binary},
			Categories: cfg.Audit.Categories,
			FormFactor: cfg.Audit.FormFactor,
			SkipAudits: cfg.Audit.SkipAudits,
			Warmup:     cfg.Audit.Warmup,
		}
	}
	return opts
}
