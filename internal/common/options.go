package common

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/spf13/cobra"

	"benchrun/internal/aggregate"
	"benchrun/internal/catalog"
	"benchrun/internal/launch"
	"benchrun/internal/metrics"
	"benchrun/internal/report"
	"benchrun/internal/telemetry"
	"benchrun/internal/util"
)

// catalog flag names
const (
	FlagBinDirName  = "bin-dir"
	FlagCatalogName = "catalog"
)

// DefaultBinDir is where the NPB OpenMP build puts its executables.
const DefaultBinDir = "NPB3.4.2/NPB3.4-OMP/bin"

// CatalogOptions selects the workloads of a batch.
type CatalogOptions struct {
	BinDir      string
	CatalogFile string
}

func (o *CatalogOptions) AddFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.BinDir, FlagBinDirName, DefaultBinDir, "")
	cmd.Flags().StringVar(&o.CatalogFile, FlagCatalogName, "", "")
	cmd.MarkFlagsMutuallyExclusive(FlagBinDirName, FlagCatalogName)
}

func (o *CatalogOptions) FlagGroup() FlagGroup {
	return FlagGroup{
		GroupName: "Workload Options",
		Flags: []Flag{
			{Name: FlagBinDirName, Help: fmt.Sprintf("directory holding the workload executables (*%s)", catalog.DefaultSuffix)},
			{Name: FlagCatalogName, Help: "YAML file listing the workloads, overrides --" + FlagBinDirName},
		},
	}
}

func (o *CatalogOptions) Validate(cmd *cobra.Command) error {
	if o.CatalogFile != "" {
		exists, err := util.FileExists(util.ExpandUser(o.CatalogFile))
		if err != nil {
			return FlagValidationError(cmd, fmt.Sprintf("catalog %s: %v", o.CatalogFile, err))
		}
		if !exists {
			return FlagValidationError(cmd, fmt.Sprintf("catalog file %s does not exist", o.CatalogFile))
		}
		return nil
	}
	exists, err := util.DirectoryExists(util.ExpandUser(o.BinDir))
	if err != nil {
		return FlagValidationError(cmd, fmt.Sprintf("workload directory %s: %v", o.BinDir, err))
	}
	if !exists {
		return FlagValidationError(cmd, fmt.Sprintf("workload directory %s does not exist", o.BinDir))
	}
	return nil
}

// Load builds the catalog from the catalog file, or from the executables in the workload directory.
func (o *CatalogOptions) Load() (*catalog.Catalog, error) {
	if o.CatalogFile != "" {
		path, err := util.AbsPath(o.CatalogFile)
		if err != nil {
			return nil, err
		}
		return catalog.Load(path)
	}
	dir, err := util.AbsPath(o.BinDir)
	if err != nil {
		return nil, err
	}
	return catalog.Discover(dir, catalog.DefaultSuffix)
}

// telemetry flag names
const (
	FlagTelemetryName       = "telemetry"
	FlagPerfEventsName      = "perf-events"
	FlagPerfHeaderLinesName = "perf-header-lines"
)

// TelemetryOptions selects the profiling wrapper and how its output is parsed.
type TelemetryOptions struct {
	Telemetry       string
	PerfEvents      []string
	PerfHeaderLines int

	kind launch.TelemetryKind
}

func (o *TelemetryOptions) AddFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.Telemetry, FlagTelemetryName, launch.TelemetryNone.String(), "")
	cmd.Flags().StringSliceVar(&o.PerfEvents, FlagPerfEventsName, launch.DefaultPerfEvents, "")
	cmd.Flags().IntVar(&o.PerfHeaderLines, FlagPerfHeaderLinesName, telemetry.DefaultPerfHeaderLines, "")
}

func (o *TelemetryOptions) FlagGroup() FlagGroup {
	return FlagGroup{
		GroupName: "Telemetry Options",
		Flags: []Flag{
			{Name: FlagTelemetryName, Help: "profiling wrapper around each run, one of: none, perf, strace"},
			{Name: FlagPerfEventsName, Help: "perf events to count"},
			{Name: FlagPerfHeaderLinesName, Help: "number of lines before the counter rows in perf output"},
		},
	}
}

func (o *TelemetryOptions) Validate(cmd *cobra.Command) error {
	kind, err := launch.ParseTelemetryKind(o.Telemetry)
	if err != nil {
		return FlagValidationError(cmd, err.Error())
	}
	o.kind = kind
	if o.PerfHeaderLines < 0 {
		return FlagValidationError(cmd, fmt.Sprintf("--%s must be 0 or greater", FlagPerfHeaderLinesName))
	}
	if kind == launch.TelemetryPerf {
		if len(o.PerfEvents) == 0 {
			return FlagValidationError(cmd, fmt.Sprintf("--%s requires at least one event", FlagPerfEventsName))
		}
		for _, event := range o.PerfEvents {
			if strings.TrimSpace(event) == "" || strings.ContainsAny(event, " \t") {
				return FlagValidationError(cmd, fmt.Sprintf("invalid perf event name %q", event))
			}
		}
	}
	return nil
}

// Kind is the validated wrapper kind.
func (o *TelemetryOptions) Kind() launch.TelemetryKind {
	return o.kind
}

// Wrapper returns the launcher's telemetry wrapper, nil when none is requested.
func (o *TelemetryOptions) Wrapper() *launch.TelemetryWrapper {
	switch o.kind {
	case launch.TelemetryPerf:
		return launch.NewPerfWrapper(o.PerfEvents)
	case launch.TelemetryStrace:
		return launch.NewStraceWrapper()
	}
	return nil
}

// Parser returns a parser for runs launched with these options.
func (o *TelemetryOptions) Parser() *telemetry.Parser {
	p := telemetry.NewParser(o.kind, o.PerfEvents)
	p.HeaderLines = o.PerfHeaderLines
	return p
}

// DerivedMetrics returns the derived metrics that apply to the wrapper's counters.
func (o *TelemetryOptions) DerivedMetrics() []aggregate.DerivedMetric {
	if o.kind == launch.TelemetryPerf {
		return []aggregate.DerivedMetric{aggregate.MissRate()}
	}
	return nil
}

// output flag names
const (
	FlagFormatName             = "format"
	FlagPrometheusTextfileName = "prometheus-textfile"
)

// OutputOptions selects the summary files written at the end of a batch.
type OutputOptions struct {
	Formats            []string
	PrometheusTextfile string
}

func (o *OutputOptions) AddFlags(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&o.Formats, FlagFormatName, []string{}, "")
	cmd.Flags().StringVar(&o.PrometheusTextfile, FlagPrometheusTextfileName, "", "")
}

func (o *OutputOptions) FlagGroup() FlagGroup {
	return FlagGroup{
		GroupName: "Output Options",
		Flags: []Flag{
			{Name: FlagFormatName, Help: fmt.Sprintf("summary file format(s) to write to the output directory, choose from: %s", strings.Join(append([]string{report.FormatAll}, report.FormatOptions...), ", "))},
			{Name: FlagPrometheusTextfileName, Help: "write run metrics to this file in the Prometheus text format"},
		},
	}
}

func (o *OutputOptions) Validate(cmd *cobra.Command) error {
	formatOptions := append([]string{report.FormatAll}, report.FormatOptions...)
	valid := mapset.NewSet(formatOptions...)
	var formats []string
	for _, format := range o.Formats {
		format = strings.ToLower(strings.TrimSpace(format))
		if !valid.Contains(format) {
			return FlagValidationError(cmd, fmt.Sprintf("format options are: %s", strings.Join(formatOptions, ", ")))
		}
		if format == report.FormatAll {
			formats = append([]string{}, report.FormatOptions...)
			break
		}
		formats = util.UniqueAppend(formats, format)
	}
	o.Formats = formats
	return nil
}

// Emit prints the summary to w and writes the requested summary files and metrics.
func (o *OutputOptions) Emit(w io.Writer, outputDir string, summary aggregate.Summary, recorder *metrics.Recorder) error {
	if err := report.WriteSummary(w, summary); err != nil {
		return err
	}
	if len(o.Formats) > 0 {
		if err := CreateOutputDir(outputDir); err != nil {
			return err
		}
		paths, err := report.WriteFiles(outputDir, o.Formats, summary)
		if err != nil {
			return err
		}
		for _, path := range paths {
			slog.Info("created summary file", slog.String("path", path))
			fmt.Fprintf(os.Stderr, "Summary file: %s\n", path)
		}
	}
	if recorder == nil {
		return nil
	}
	recorder.SetSummary(summary)
	if o.PrometheusTextfile != "" {
		path, err := util.AbsPath(o.PrometheusTextfile)
		if err != nil {
			return err
		}
		if err := recorder.WriteTextfile(path); err != nil {
			return err
		}
	}
	return nil
}
