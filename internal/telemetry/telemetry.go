// Package telemetry extracts named counter values from the log and profiler
// output files of a run.
package telemetry

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/pkg/errors"

	"benchrun/internal/launch"
)

// Format selects the parse strategy for a file.
type Format int

const (
	// FormatTimeLine matches lines that start with a known label and takes the
	// final whitespace separated token as the value.
	FormatTimeLine Format = iota
	// FormatPerfTable reads 'perf stat' rows of count and event name.
	FormatPerfTable
	// FormatTraceSummary reads the cumulative seconds from the last line of
	// a 'strace -c' summary.
	FormatTraceSummary
)

func (f Format) String() string {
	switch f {
	case FormatTimeLine:
		return "time-line"
	case FormatPerfTable:
		return "perf-table"
	case FormatTraceSummary:
		return "trace-summary"
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// CounterSyscallSeconds is the counter produced by the trace summary strategy.
const CounterSyscallSeconds = "syscall-seconds"

// DefaultPerfHeaderLines is the number of lines 'perf stat -o' writes before
// the counter rows: the "# started on" line and a blank line.
const DefaultPerfHeaderLines = 2

// Label maps a line prefix to the counter it reports.
type Label struct {
	Prefix  string
	Counter string
}

// DefaultLabels are the NAS Parallel Benchmark report lines.
var DefaultLabels = []Label{
	{Prefix: "Time in seconds", Counter: "time"},
	{Prefix: "Mop/s total", Counter: "mops"},
}

// CounterSample is one counter value observed for a run.
type CounterSample struct {
	Run     *launch.RunHandle
	Counter string
	Value   float64
}

// Workload returns the workload the sample belongs to.
func (s CounterSample) Workload() string {
	return s.Run.Workload()
}

// ParseError reports a run whose telemetry could not be used.
type ParseError struct {
	RunID  string
	Path   string
	Format Format
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	msg := fmt.Sprintf("failed to parse %s output of run %s (%s): %s", e.Format, e.RunID, e.Path, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Parser turns run handles into counter samples.
type Parser struct {
	// Labels recognised in the stdout log. No stdout parsing when empty.
	Labels []Label
	// Kind of the telemetry wrapper output referenced by RunHandle.TelemetryLogPath.
	Telemetry launch.TelemetryKind
	// Events accepted in perf tables.
	Events mapset.Set[string]
	// HeaderLines skipped at the top of perf output.
	HeaderLines int
}

// NewParser returns a parser for runs launched with the given wrapper kind.
func NewParser(kind launch.TelemetryKind, events []string) *Parser {
	if len(events) == 0 {
		events = launch.DefaultPerfEvents
	}
	return &Parser{
		Labels:      DefaultLabels,
		Telemetry:   kind,
		Events:      mapset.NewSet(events...),
		HeaderLines: DefaultPerfHeaderLines,
	}
}

// source is one file of a run and the strategy that reads it.
type source struct {
	path   string
	format Format
}

func (p *Parser) sources(h *launch.RunHandle) []source {
	var sources []source
	if len(p.Labels) > 0 {
		sources = append(sources, source{h.StdoutLogPath, FormatTimeLine})
	}
	switch p.Telemetry {
	case launch.TelemetryPerf:
		sources = append(sources, source{h.TelemetryLogPath, FormatPerfTable})
	case launch.TelemetryStrace:
		sources = append(sources, source{h.TelemetryLogPath, FormatTraceSummary})
	}
	return sources
}

// Parse reads every source of the run. It fails with a *ParseError when any
// source is missing, truncated or holds no recognised line.
func (p *Parser) Parse(h *launch.RunHandle) ([]CounterSample, error) {
	runID := h.Descriptor.ID()
	sources := p.sources(h)
	if len(sources) == 0 {
		return nil, &ParseError{RunID: runID, Reason: "no telemetry sources configured"}
	}
	var samples []CounterSample
	for _, src := range sources {
		values, err := p.parseFile(src)
		if err != nil {
			var parseErr *ParseError
			if errors.As(err, &parseErr) {
				parseErr.RunID = runID
			}
			return nil, err
		}
		for _, v := range values {
			samples = append(samples, CounterSample{Run: h, Counter: v.counter, Value: v.value})
		}
	}
	slog.Debug("parsed run telemetry", slog.String("run", runID), slog.Int("samples", len(samples)))
	return samples, nil
}

type counterValue struct {
	counter string
	value   float64
}

func (p *Parser) parseFile(src source) ([]counterValue, error) {
	if src.path == "" {
		return nil, &ParseError{Path: src.path, Format: src.format, Reason: "no output file recorded"}
	}
	f, err := os.Open(src.path) // #nosec G304
	if err != nil {
		return nil, &ParseError{Path: src.path, Format: src.format, Reason: "cannot open", Err: err}
	}
	defer f.Close()
	values, err := p.parse(src.format, f)
	if err != nil {
		var parseErr *ParseError
		if errors.As(err, &parseErr) {
			parseErr.Path = src.path
			return nil, parseErr
		}
		return nil, &ParseError{Path: src.path, Format: src.format, Reason: "read failed", Err: err}
	}
	return values, nil
}

func (p *Parser) parse(format Format, r io.Reader) ([]counterValue, error) {
	lines, err := readLines(r)
	if err != nil {
		return nil, err
	}
	var values []counterValue
	switch format {
	case FormatTimeLine:
		values = parseTimeLines(lines, p.Labels)
	case FormatPerfTable:
		if len(lines) <= p.HeaderLines {
			return nil, &ParseError{Format: format, Reason: fmt.Sprintf("truncated, %d lines", len(lines))}
		}
		values = parsePerfTable(lines[p.HeaderLines:], p.Events)
	case FormatTraceSummary:
		values = parseTraceSummary(lines)
	default:
		return nil, &ParseError{Format: format, Reason: "unknown format"}
	}
	if len(values) == 0 {
		return nil, &ParseError{Format: format, Reason: "no recognised lines"}
	}
	return values, nil
}

func readLines(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}

// parseTimeLines returns one value per label found; when a label repeats the last one wins.
func parseTimeLines(lines []string, labels []Label) []counterValue {
	found := make(map[string]float64)
	var order []string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		for _, label := range labels {
			if !strings.HasPrefix(trimmed, label.Prefix) {
				continue
			}
			fields := strings.Fields(trimmed)
			v, err := strconv.ParseFloat(fields[len(fields)-1], 64)
			if err != nil {
				slog.Debug("labelled line without numeric value", slog.String("line", line))
				continue
			}
			if _, ok := found[label.Counter]; !ok {
				order = append(order, label.Counter)
			}
			found[label.Counter] = v
		}
	}
	values := make([]counterValue, 0, len(order))
	for _, c := range order {
		values = append(values, counterValue{c, found[c]})
	}
	return values
}

// parsePerfTable sums the counts of every row naming an accepted event. A row's
// count is the numeric field closest before the event name, which covers both
// the tab separated and the aligned human readable layouts, with or without a
// leading node or CPU column.
func parsePerfTable(lines []string, events mapset.Set[string]) []counterValue {
	sums := make(map[string]float64)
	var order []string
	for _, line := range lines {
		fields := splitRow(line)
		for i, field := range fields {
			if !events.Contains(field) {
				continue
			}
			count, ok := precedingCount(fields[:i])
			if !ok {
				break
			}
			if _, seen := sums[field]; !seen {
				order = append(order, field)
			}
			sums[field] += count
			break
		}
	}
	values := make([]counterValue, 0, len(order))
	for _, name := range order {
		values = append(values, counterValue{name, sums[name]})
	}
	return values
}

func precedingCount(fields []string) (float64, bool) {
	for i := len(fields) - 1; i >= 0; i-- {
		f := fields[i]
		if f == "" {
			continue
		}
		v, err := strconv.ParseFloat(strings.ReplaceAll(f, ",", ""), 64)
		if err != nil {
			// e.g. "<not counted>" or "<not supported>"
			return 0, false
		}
		return v, true
	}
	return 0, false
}

// parseTraceSummary reads the second field of the last non-blank line.
func parseTraceSummary(lines []string) []counterValue {
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.TrimSpace(lines[i]) == "" {
			continue
		}
		fields := splitRow(lines[i])
		var nonEmpty []string
		for _, f := range fields {
			if f != "" {
				nonEmpty = append(nonEmpty, f)
			}
		}
		if len(nonEmpty) < 2 {
			return nil
		}
		v, err := strconv.ParseFloat(nonEmpty[1], 64)
		if err != nil {
			return nil
		}
		return []counterValue{{CounterSyscallSeconds, v}}
	}
	return nil
}

// splitRow splits on tabs when the line has any, otherwise on runs of whitespace.
// Tab splitting keeps empty fields.
func splitRow(line string) []string {
	if strings.Contains(line, "\t") {
		fields := strings.Split(line, "\t")
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}
		return fields
	}
	return strings.Fields(line)
}
