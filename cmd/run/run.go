// Package run is a subcommand of the root command. It launches every workload
// of the catalog a number of times, collects the run logs and telemetry and
// prints the aggregated counters.
package run

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"benchrun/internal/aggregate"
	"benchrun/internal/common"
	"benchrun/internal/launch"
	"benchrun/internal/metrics"
	"benchrun/internal/plan"
	"benchrun/internal/progress"
	"benchrun/internal/schedule"
	"benchrun/internal/util"
)

const cmdName = "run"

var examples = []string{
	fmt.Sprintf("  Run every workload 5 times, one at a time:          $ %s %s sequential 0", common.AppName, cmdName),
	fmt.Sprintf("  Overlap runs under the runtime-under-test:          $ %s %s overlapped 1 --concurrency 4", common.AppName, cmdName),
	fmt.Sprintf("  Count cache misses with perf and write a CSV:       $ %s %s sequential 0 --telemetry perf --format csv", common.AppName, cmdName),
	fmt.Sprintf("  Pass arguments to every workload:                   $ %s %s sequential 0 -- 16 4", common.AppName, cmdName),
}

const useLine = "<sequential|overlapped> <0|1> [flags] [-- workload args...]"

var Cmd = &cobra.Command{
	Use:           cmdName + " " + useLine,
	Short:         "Run the workloads and summarize their telemetry",
	Example:       strings.Join(examples, "\n"),
	RunE:          runCmd,
	PreRunE:       validateFlags,
	GroupID:       "primary",
	Args:          cobra.MinimumNArgs(2),
	SilenceErrors: true,
}

var (
	flagRepetitions      int
	flagConcurrency      int
	flagStaggerMin       float64
	flagStaggerMax       float64
	flagTimeout          float64
	flagRuntime          string
	flagRuntimeArgs      []string
	flagPrometheusServer string
	flagNoProgress       bool

	catalogOptions   common.CatalogOptions
	telemetryOptions common.TelemetryOptions
	outputOptions    common.OutputOptions
)

const (
	flagRepetitionsName      = "repetitions"
	flagConcurrencyName      = "concurrency"
	flagStaggerMinName       = "stagger-min"
	flagStaggerMaxName       = "stagger-max"
	flagTimeoutName          = "timeout"
	flagRuntimeName          = "runtime"
	flagRuntimeArgsName      = "runtime-args"
	flagPrometheusServerName = "prometheus-server"
	flagNoProgressName       = "no-progress"
)

// DefaultRuntime is the runtime-under-test binary used when the second argument is 1.
const DefaultRuntime = "build/thanos"

// parsed positional arguments
var (
	mode          plan.ExecutionMode
	useRuntime    bool
	workloadArgs  []string
	timeout       time.Duration
	minStagger    time.Duration
	maxStagger    time.Duration
	runtimeBinary string
)

func init() {
	Cmd.Flags().IntVar(&flagRepetitions, flagRepetitionsName, 5, "")
	Cmd.Flags().IntVar(&flagConcurrency, flagConcurrencyName, 10, "")
	Cmd.Flags().Float64Var(&flagStaggerMin, flagStaggerMinName, 0, "")
	Cmd.Flags().Float64Var(&flagStaggerMax, flagStaggerMaxName, 5, "")
	Cmd.Flags().Float64Var(&flagTimeout, flagTimeoutName, 3600, "")
	Cmd.Flags().StringVar(&flagRuntime, flagRuntimeName, DefaultRuntime, "")
	Cmd.Flags().StringSliceVar(&flagRuntimeArgs, flagRuntimeArgsName, []string{"-v", "0"}, "")
	Cmd.Flags().StringVar(&flagPrometheusServer, flagPrometheusServerName, "", "")
	Cmd.Flags().BoolVar(&flagNoProgress, flagNoProgressName, false, "")
	catalogOptions.AddFlags(Cmd)
	telemetryOptions.AddFlags(Cmd)
	outputOptions.AddFlags(Cmd)

	Cmd.SetUsageFunc(common.UsageFunc(useLine, getFlagGroups))
}

func getFlagGroups() []common.FlagGroup {
	var groups []common.FlagGroup
	groups = append(groups, common.FlagGroup{
		GroupName: "Run Options",
		Flags: []common.Flag{
			{Name: flagRepetitionsName, Help: "number of runs of each workload"},
			{Name: flagConcurrencyName, Help: "maximum number of runs in flight in overlapped mode"},
			{Name: flagStaggerMinName, Help: "minimum delay in seconds between launches in overlapped mode"},
			{Name: flagStaggerMaxName, Help: "maximum delay in seconds between launches in overlapped mode"},
			{Name: flagTimeoutName, Help: "seconds after which a run is terminated and marked failed, 0 to disable"},
			{Name: flagNoProgressName, Help: "do not show progress on stderr"},
		},
	})
	groups = append(groups, common.FlagGroup{
		GroupName: "Runtime Options",
		Flags: []common.Flag{
			{Name: flagRuntimeName, Help: "runtime-under-test binary, used when the second argument is 1"},
			{Name: flagRuntimeArgsName, Help: "arguments passed to the runtime-under-test before the workload path"},
		},
	})
	groups = append(groups, catalogOptions.FlagGroup(), telemetryOptions.FlagGroup())
	output := outputOptions.FlagGroup()
	output.Flags = append(output.Flags, common.Flag{Name: flagPrometheusServerName, Help: "serve run metrics on this address, e.g., :9090, while the batch runs"})
	groups = append(groups, output)
	return groups
}

// splitArgs separates the positional arguments from the workload arguments after '--'.
func splitArgs(cmd *cobra.Command, args []string) (positional []string, extra []string) {
	dash := cmd.ArgsLenAtDash()
	if dash < 0 {
		return args, nil
	}
	return args[:dash], args[dash:]
}

func parseUseRuntime(s string) (bool, error) {
	switch strings.TrimSpace(s) {
	case "0":
		return false, nil
	case "1":
		return true, nil
	}
	return false, fmt.Errorf("second argument must be 0 or 1, got %q", s)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func validateFlags(cmd *cobra.Command, args []string) error {
	positional, extra := splitArgs(cmd, args)
	if len(positional) != 2 {
		return common.FlagValidationError(cmd, fmt.Sprintf("expected 2 arguments, mode and runtime toggle, got %d", len(positional)))
	}
	var err error
	if mode, err = plan.ParseMode(positional[0]); err != nil {
		return common.FlagValidationError(cmd, err.Error())
	}
	if useRuntime, err = parseUseRuntime(positional[1]); err != nil {
		return common.FlagValidationError(cmd, err.Error())
	}
	workloadArgs = extra
	if flagRepetitions <= 0 {
		return common.FlagValidationError(cmd, fmt.Sprintf("--%s must be greater than 0", flagRepetitionsName))
	}
	if flagConcurrency <= 0 {
		return common.FlagValidationError(cmd, fmt.Sprintf("--%s must be greater than 0", flagConcurrencyName))
	}
	if flagStaggerMin < 0 || flagStaggerMax < 0 {
		return common.FlagValidationError(cmd, "stagger delays must be 0 or greater")
	}
	if flagStaggerMax < flagStaggerMin {
		return common.FlagValidationError(cmd, fmt.Sprintf("--%s must not be less than --%s", flagStaggerMaxName, flagStaggerMinName))
	}
	if flagTimeout < 0 {
		return common.FlagValidationError(cmd, fmt.Sprintf("--%s must be 0 or greater", flagTimeoutName))
	}
	timeout, minStagger, maxStagger = seconds(flagTimeout), seconds(flagStaggerMin), seconds(flagStaggerMax)
	if useRuntime {
		if flagRuntime == "" {
			return common.FlagValidationError(cmd, fmt.Sprintf("--%s is required when the runtime toggle is 1", flagRuntimeName))
		}
		runtimeBinary = flagRuntime
		if strings.ContainsRune(flagRuntime, os.PathSeparator) {
			if runtimeBinary, err = util.AbsPath(flagRuntime); err != nil {
				return common.FlagValidationError(cmd, err.Error())
			}
		}
	}
	if err := catalogOptions.Validate(cmd); err != nil {
		return err
	}
	if err := telemetryOptions.Validate(cmd); err != nil {
		return err
	}
	return outputOptions.Validate(cmd)
}

// Batch holds everything needed to run one batch.
type Batch struct {
	Descriptors []plan.RunDescriptor
	Scheduler   *schedule.Scheduler
	Parser      aggregate.SampleParser
	Derived     []aggregate.DerivedMetric
	Recorder    *metrics.Recorder
	Repetitions int
}

// Run schedules the batch and summarizes its results.
func (b *Batch) Run(ctx context.Context) ([]schedule.RunResult, aggregate.Summary) {
	start := time.Now()
	results := b.Scheduler.Run(ctx, b.Descriptors)
	wall := time.Since(start)
	if b.Recorder != nil {
		b.Recorder.ObserveResults(results)
	}
	summary := aggregate.Summarize(results, b.Parser, b.Derived...)
	summary.WallSeconds = wall.Seconds()
	summary.Repetitions = b.Repetitions
	return results, summary
}

// chainTransitions calls every non-nil function in order.
func chainTransitions(funcs ...schedule.TransitionFunc) schedule.TransitionFunc {
	return func(d plan.RunDescriptor, state schedule.State) {
		for _, f := range funcs {
			if f != nil {
				f(d, state)
			}
		}
	}
}

func runCmd(cmd *cobra.Command, args []string) error {
	appContext := common.GetAppContext(cmd)
	outputDir := appContext.OutputDir
	workloads, err := catalogOptions.Load()
	if err != nil {
		err = fmt.Errorf("failed to load workloads: %w", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		slog.Error(err.Error())
		cmd.SilenceUsage = true
		return err
	}
	descriptors, err := plan.Plan(workloads, flagRepetitions, mode, workloadArgs...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		slog.Error(err.Error())
		cmd.SilenceUsage = true
		return err
	}
	if err := common.CreateOutputDir(outputDir); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		slog.Error(err.Error())
		cmd.SilenceUsage = true
		return err
	}
	launcher := &launch.LocalLauncher{OutputDir: outputDir, Telemetry: telemetryOptions.Wrapper()}
	if useRuntime {
		launcher.Runtime = &launch.RuntimeUnderTest{Path: runtimeBinary, Args: flagRuntimeArgs}
	}
	slog.Info("starting batch",
		slog.String("mode", mode.String()),
		slog.Int("workloads", workloads.Len()),
		slog.Int("repetitions", flagRepetitions),
		slog.Bool("runtime", useRuntime),
		slog.String("telemetry", telemetryOptions.Kind().String()),
		slog.String("output", outputDir))

	recorder := metrics.NewRecorder()
	if flagPrometheusServer != "" {
		server, err := metrics.StartServer(flagPrometheusServer, recorder.Gatherer())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			slog.Error(err.Error())
			cmd.SilenceUsage = true
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				slog.Error("failed to stop prometheus server", slog.String("error", err.Error()))
			}
		}()
	}

	var spinner *progress.MultiSpinner
	var tracker *progress.Tracker
	if !flagNoProgress {
		spinner = progress.NewMultiSpinner()
		tracker = progress.NewTracker(spinner, descriptors)
	}
	onTransition := chainTransitions(recorder.Transition)
	if tracker != nil {
		onTransition = chainTransitions(recorder.Transition, tracker.Transition)
	}
	batch := &Batch{
		Descriptors: descriptors,
		Scheduler: &schedule.Scheduler{
			Launcher:       launcher,
			Mode:           mode,
			MaxConcurrency: flagConcurrency,
			MinStagger:     minStagger,
			MaxStagger:     maxStagger,
			Timeout:        timeout,
			OnTransition:   onTransition,
		},
		Parser:      telemetryOptions.Parser(),
		Derived:     telemetryOptions.DerivedMetrics(),
		Recorder:    recorder,
		Repetitions: flagRepetitions,
	}

	ctx, stop := common.SignalContext(context.Background())
	defer stop()
	if spinner != nil {
		spinner.Start()
	}
	_, summary := batch.Run(ctx)
	if spinner != nil {
		spinner.Finish()
		fmt.Fprintln(os.Stderr)
	}

	if err := outputOptions.Emit(cmd.OutOrStdout(), outputDir, summary, recorder); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		slog.Error(err.Error())
		cmd.SilenceUsage = true
		return err
	}
	slog.Info("batch finished",
		slog.Int("runs", summary.Runs),
		slog.Int("completed", summary.Completed),
		slog.Int("failed", summary.Failed),
		slog.Int("excluded", summary.Excluded),
		slog.Int("interrupted", summary.Interrupted),
		slog.Float64("wall_seconds", summary.WallSeconds))
	if ctx.Err() != nil {
		err := fmt.Errorf("batch interrupted")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cmd.SilenceUsage = true
		return err
	}
	if summary.LaunchFailures > 0 {
		err := fmt.Errorf("%d of %d runs could not be launched, see %s", summary.LaunchFailures, summary.Runs, logHint(appContext))
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cmd.SilenceUsage = true
		return err
	}
	return nil
}

func logHint(appContext common.AppContext) string {
	if appContext.LogFilePath != "" {
		return appContext.LogFilePath
	}
	return "the log"
}
