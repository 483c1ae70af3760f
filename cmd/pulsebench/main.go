package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pulsebench/pulsebench/internal/config"
	"github.com/pulsebench/pulsebench/internal/dashboard"
	"github.com/pulsebench/pulsebench/internal/logging"
	"github.com/pulsebench/pulsebench/internal/metrics"
	"github.com/pulsebench/pulsebench/internal/output"
	"github.com/pulsebench/pulsebench/internal/runner"
	"github.com/pulsebench/pulsebench/internal/scenario"
	"github.com/pulsebench/pulsebench/internal/session"
	"github.com/pulsebench/pulsebench/internal/threshold"
	"github.com/pulsebench/pulsebench/internal/tracing"
)

const (
	progressInterval = time.Second
	shutdownTimeout  = 5 * time.Second
	reportTimeout    = 10 * time.Second
)

// Exit codes.
const (
	exitPass      = 0
	exitViolation = 1
	exitFatal     = 2
)

func main() {
	err := run(os.Args[1:], os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(exitCode(err))
}

func exitCode(err error) int {
	if err == nil {
		return exitPass
	}
	var violation *session.ThresholdViolation
	if errors.As(err, &violation) {
		return exitViolation
	}
	return exitFatal
}

func run(args []string, stdout io.Writer) error {
	loader := config.NewLoader()
	cfg, err := loader.Load(args)
	if err != nil {
		if errors.Is(err, config.ErrHelpRequested) {
			return nil
		}
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	thresholds, err := threshold.ParseMultiple(cfg.Thresholds)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogJSON)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	tp, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelShutdown()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown", zap.Error(err))
		}
	}()

	provider, err := buildAuthProvider(cfg)
	if err != nil {
		return err
	}
	if provider != nil {
		defer provider.Close()
	}

	messages, err := buildMessages(cfg)
	if err != nil {
		return err
	}
	defer messages.Close()

	runID := output.NewRunID()
	logger = logger.With(zap.String("run_id", runID))
	reg := metrics.NewRegistry()

	env := scenario.Env{
		Registry:  reg,
		Logger:    logger,
		Tracer:    tp.Tracer(),
		Propagate: tp.ShouldPropagate(),
		Auth:      provider,
		Reconnect: runner.ReconnectPolicy(cfg.Reconnect.Attempts, cfg.Reconnect.Base, cfg.Reconnect.Max),
	}
	if messages != nil {
		env.Messages = messages
	}

	factory, err := newScenarioFactory(cfg, env)
	if err != nil {
		return err
	}
	defer factory.Close()

	manager, err := runner.NewManager(runner.Options{
		Stages:        toRunnerStages(cfg.Stages),
		StartTarget:   cfg.StartVUs,
		NewScenario:   factory.New,
		PollInterval:  cfg.PollInterval,
		GracefulStop:  cfg.GracefulStop,
		FailurePause:  cfg.FailurePause,
		IterationRate: cfg.Rate,
		ArrivalModel:  toRunnerArrivalModel(cfg.Arrival.Model),
		Registry:      reg,
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	var dash *dashboard.Dashboard
	if cfg.Dashboard {
		dash, err = dashboard.New(reg, dashboardConfig(cfg, manager, factory.latencyMetric), cancel)
		if err != nil {
			return err
		}
	}

	progressOut := io.Discard
	if !cfg.Quiet && !cfg.Dashboard && !cfg.JSONOutput && !cfg.YAMLOutput {
		progressOut = stdout
	}
	progress := output.NewProgressReporter(reg, progressInterval, progressOut)

	logger.Info("run starting",
		zap.String("protocol", string(cfg.Protocol)),
		zap.String("target", cfg.TargetURL),
		zap.Int("peak_vus", manager.Plan().MaxVUs()),
		zap.Duration("planned", manager.Plan().Duration()),
	)

	// Metrics start counting from here, not from setup.
	reg.Reset()
	progress.Start()

	runCtx, stopRun := context.WithCancel(ctx)
	defer stopRun()
	g, gctx := errgroup.WithContext(runCtx)

	var result runner.Result
	g.Go(func() error {
		defer stopRun()
		res, err := manager.Run(gctx)
		result = res
		return err
	})
	if cfg.MetricsAddr != "" {
		g.Go(func() error { return serveMetrics(gctx, cfg.MetricsAddr, reg, logger) })
	}
	if dash != nil {
		g.Go(func() error { return dash.Run(gctx) })
	}
	runErr := g.Wait()

	progress.Stop()
	if progressOut != io.Discard {
		fmt.Fprintln(progressOut)
	}
	reg.Freeze()

	logger.Info("run finished",
		zap.Duration("duration", result.Duration),
		zap.Int64("iterations", result.Iterations),
		zap.Int64("errors", result.Errors),
		zap.Bool("interrupted", result.Interrupted),
	)

	snap := reg.Snapshot()
	results := threshold.NewEvaluator(thresholds).Evaluate(snap)
	report := output.BuildReport(output.Metadata{
		RunID:    runID,
		Protocol: string(cfg.Protocol),
		Target:   cfg.TargetURL,
	}, snap, result, results)
	report.History = progress.History()

	if err := writeReports(stdout, cfg, reg, report); err != nil {
		return err
	}

	if runErr != nil {
		return runErr
	}
	return threshold.Verdict(results)
}

func writeReports(stdout io.Writer, cfg *config.Config, reg *metrics.Registry, report output.Report) error {
	switch {
	case cfg.JSONOutput:
		if err := output.PrintJSONReport(stdout, report); err != nil {
			return err
		}
	case cfg.YAMLOutput:
		if err := output.PrintYAMLReport(stdout, report); err != nil {
			return err
		}
	default:
		output.PrintReport(stdout, report)
		if cfg.Protocol == config.ProtocolGRPC {
			output.PrintBenchSummary(stdout, reg.Trend(scenario.MetricGRPCMessageRTT).Live(),
				report.Counters[scenario.MetricGRPCTimeouts], report.Duration)
		}
	}

	// Report files are written even when the run was interrupted.
	ctx, cancel := context.WithTimeout(context.Background(), reportTimeout)
	defer cancel()
	if cfg.HTMLOutput != "" {
		if err := output.WriteReportFile(ctx, cfg.HTMLOutput, output.FormatHTML, report); err != nil {
			return err
		}
	}
	if cfg.ReportFile != "" {
		if err := output.WriteReportFile(ctx, cfg.ReportFile, "", report); err != nil {
			return err
		}
	}
	return nil
}

func dashboardConfig(cfg *config.Config, manager *runner.Manager, latencyMetric string) dashboard.TestConfig {
	return dashboard.TestConfig{
		TargetURL:     cfg.TargetURL,
		Protocol:      string(cfg.Protocol),
		Preset:        cfg.Preset,
		Stages:        manager.Plan().Stages(),
		PeakVUs:       manager.Plan().MaxVUs(),
		Rate:          cfg.Rate,
		Arrival:       string(cfg.Arrival.Model),
		ConfigFile:    cfg.ConfigFile,
		LatencyMetric: latencyMetric,
	}
}

func toRunnerStages(stages []config.Stage) []runner.Stage {
	out := make([]runner.Stage, len(stages))
	for i, s := range stages {
		out[i] = runner.Stage{Duration: s.Duration, Target: s.Target}
	}
	return out
}

func toRunnerArrivalModel(model config.ArrivalModel) runner.ArrivalModel {
	switch model {
	case config.ArrivalModelPoisson:
		return runner.ArrivalModelPoisson
	default:
		return runner.ArrivalModelUniform
	}
}
