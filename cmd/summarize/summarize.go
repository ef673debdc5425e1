// Package summarize is a subcommand of the root command. It re-parses the run
// logs of an earlier batch and prints the aggregated counters without launching
// anything.
package summarize

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"benchrun/internal/aggregate"
	"benchrun/internal/catalog"
	"benchrun/internal/common"
	"benchrun/internal/launch"
	"benchrun/internal/metrics"
	"benchrun/internal/plan"
	"benchrun/internal/schedule"
	"benchrun/internal/util"
)

const cmdName = "summarize"

var examples = []string{
	fmt.Sprintf("  Summarize the logs of an earlier run:               $ %s %s benchrun_2025-01-01_10-00-00", common.AppName, cmdName),
	fmt.Sprintf("  Summarize perf counters and write all formats:      $ %s %s out --telemetry perf --format all", common.AppName, cmdName),
	fmt.Sprintf("  Only the workloads of a catalog, 5 runs each:       $ %s %s out --catalog npb.yaml --repetitions 5", common.AppName, cmdName),
}

const useLine = "<dir> [flags]"

var Cmd = &cobra.Command{
	Use:           cmdName + " " + useLine,
	Short:         "Summarize the run logs of an earlier batch",
	Example:       strings.Join(examples, "\n"),
	RunE:          runCmd,
	PreRunE:       validateFlags,
	GroupID:       "primary",
	Args:          cobra.ExactArgs(1),
	SilenceErrors: true,
}

var (
	flagRepetitions int

	catalogOptions   common.CatalogOptions
	telemetryOptions common.TelemetryOptions
	outputOptions    common.OutputOptions
)

const flagRepetitionsName = "repetitions"

func init() {
	Cmd.Flags().IntVar(&flagRepetitions, flagRepetitionsName, 0, "")
	catalogOptions.AddFlags(Cmd)
	telemetryOptions.AddFlags(Cmd)
	outputOptions.AddFlags(Cmd)

	Cmd.SetUsageFunc(common.UsageFunc(useLine, getFlagGroups))
}

func getFlagGroups() []common.FlagGroup {
	workloads := catalogOptions.FlagGroup()
	workloads.Flags = append(workloads.Flags, common.Flag{Name: flagRepetitionsName, Help: "expected runs per workload, missing logs count as runs that were not launched, 0 to use the logs found"})
	return []common.FlagGroup{workloads, telemetryOptions.FlagGroup(), outputOptions.FlagGroup()}
}

// useCatalog is true when the workloads come from the catalog flags instead of the log file names.
var useCatalog bool

func validateFlags(cmd *cobra.Command, args []string) error {
	exists, err := util.DirectoryExists(util.ExpandUser(args[0]))
	if err != nil {
		return common.FlagValidationError(cmd, fmt.Sprintf("run log directory %s: %v", args[0], err))
	}
	if !exists {
		return common.FlagValidationError(cmd, fmt.Sprintf("run log directory %s does not exist", args[0]))
	}
	if flagRepetitions < 0 {
		return common.FlagValidationError(cmd, fmt.Sprintf("--%s must be 0 or greater", flagRepetitionsName))
	}
	useCatalog = cmd.Flags().Changed(common.FlagBinDirName) || cmd.Flags().Changed(common.FlagCatalogName)
	if useCatalog {
		if err := catalogOptions.Validate(cmd); err != nil {
			return err
		}
	}
	if err := telemetryOptions.Validate(cmd); err != nil {
		return err
	}
	return outputOptions.Validate(cmd)
}

// stdoutLogRe matches the stdout log of one run, e.g., "bt.C.x.3_output".
var stdoutLogRe = regexp.MustCompile(`^(.+)\.(\d+)_output$`)

// findRuns maps executable names to the repetition indexes that have a stdout log in dir.
func findRuns(dir string) (map[string][]int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read run log directory %s", dir)
	}
	runs := make(map[string][]int)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		match := stdoutLogRe.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}
		rep, err := strconv.Atoi(match[2])
		if err != nil {
			continue
		}
		runs[match[1]] = append(runs[match[1]], rep)
	}
	for exe := range runs {
		slices.Sort(runs[exe])
	}
	return runs, nil
}

// workloadsFromRuns builds a catalog with one workload per executable that has logs.
func workloadsFromRuns(dir string, runs map[string][]int) (*catalog.Catalog, error) {
	exes := make([]string, 0, len(runs))
	for exe := range runs {
		exes = append(exes, exe)
	}
	sort.Strings(exes)
	workloads := make([]catalog.Workload, 0, len(exes))
	for _, exe := range exes {
		workloads = append(workloads, catalog.FromExecutable(filepath.Join(dir, exe), catalog.DefaultSuffix))
	}
	return catalog.New(workloads...)
}

// Collect rebuilds the run results of a finished batch from the logs in dir.
// With repetitions 0 every logged run of a workload is used. Otherwise exactly
// repetitions runs are expected per workload and a run without a stdout log
// is reported as one that could not be launched.
func Collect(dir string, c *catalog.Catalog, repetitions int, kind launch.TelemetryKind) ([]schedule.RunResult, error) {
	runs, err := findRuns(dir)
	if err != nil {
		return nil, err
	}
	var results []schedule.RunResult
	for _, w := range c.List() {
		reps := runs[w.ExecutableName()]
		if repetitions > 0 {
			reps = make([]int, repetitions)
			for i := range reps {
				reps[i] = i
			}
		}
		if len(reps) == 0 {
			slog.Warn("no run logs for workload", slog.String("workload", w.Name), slog.String("dir", dir))
		}
		for _, rep := range reps {
			d := plan.RunDescriptor{Workload: w, Repetition: rep, Mode: plan.Sequential, ExtraArgs: w.Args}
			results = append(results, collectRun(dir, d, kind))
		}
	}
	return results, nil
}

func collectRun(dir string, d plan.RunDescriptor, kind launch.TelemetryKind) schedule.RunResult {
	result := schedule.RunResult{Descriptor: d, State: schedule.Failed, ExitCode: -1}
	stdoutLog := launch.StdoutLogPath(dir, d)
	exists, err := util.FileExists(stdoutLog)
	if err != nil || !exists {
		if err == nil {
			err = fmt.Errorf("no stdout log %s", stdoutLog)
		}
		result.Err = &launch.LaunchError{RunID: d.ID(), Op: "find logs", Err: err}
		return result
	}
	handle := &launch.RunHandle{Descriptor: d, StdoutLogPath: stdoutLog}
	if kind != launch.TelemetryNone {
		handle.TelemetryLogPath = launch.TelemetryLogPath(dir, d, kind)
	}
	if info, err := os.Stat(stdoutLog); err == nil {
		handle.StartTime = info.ModTime()
	}
	result.Handle = handle
	result.State = schedule.Completed
	result.ExitCode = 0
	return result
}

func runCmd(cmd *cobra.Command, args []string) error {
	dir, err := util.AbsPath(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cmd.SilenceUsage = true
		return err
	}
	var workloads *catalog.Catalog
	if useCatalog {
		workloads, err = catalogOptions.Load()
	} else {
		var runs map[string][]int
		if runs, err = findRuns(dir); err == nil {
			workloads, err = workloadsFromRuns(dir, runs)
		}
	}
	if err == nil && workloads.Len() == 0 {
		err = fmt.Errorf("no run logs found in %s", dir)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		slog.Error(err.Error())
		cmd.SilenceUsage = true
		return err
	}
	results, err := Collect(dir, workloads, flagRepetitions, telemetryOptions.Kind())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		slog.Error(err.Error())
		cmd.SilenceUsage = true
		return err
	}
	summary := aggregate.Summarize(results, telemetryOptions.Parser(), telemetryOptions.DerivedMetrics()...)
	slog.Info("summarized run logs",
		slog.String("dir", dir),
		slog.Int("workloads", workloads.Len()),
		slog.Int("runs", summary.Runs),
		slog.Int("excluded", summary.Excluded))
	recorder := metrics.NewRecorder()
	if err := outputOptions.Emit(cmd.OutOrStdout(), dir, summary, recorder); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		slog.Error(err.Error())
		cmd.SilenceUsage = true
		return err
	}
	return nil
}
