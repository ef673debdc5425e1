package launch

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"strings"
)

// TelemetryKind identifies the profiling command that brackets a run.
type TelemetryKind int

const (
	TelemetryNone TelemetryKind = iota
	TelemetryPerf
	TelemetryStrace
)

func (k TelemetryKind) String() string {
	switch k {
	case TelemetryNone:
		return "none"
	case TelemetryPerf:
		return "perf"
	case TelemetryStrace:
		return "strace"
	}
	return fmt.Sprintf("TelemetryKind(%d)", int(k))
}

// Suffix is appended to the stdout log name to form the wrapper's output file name.
func (k TelemetryKind) Suffix() string {
	switch k {
	case TelemetryPerf:
		return "_perf"
	case TelemetryStrace:
		return "_strace"
	}
	return ""
}

// ParseTelemetryKind parses "none", "perf" or "strace".
func ParseTelemetryKind(s string) (TelemetryKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return TelemetryNone, nil
	case "perf":
		return TelemetryPerf, nil
	case "strace":
		return TelemetryStrace, nil
	}
	return TelemetryNone, fmt.Errorf("unknown telemetry wrapper %q, must be none, perf or strace", s)
}

// DefaultPerfEvents are the counters collected by the perf wrapper.
var DefaultPerfEvents = []string{"cache-references", "cache-misses"}

// DefaultPerfArgs aggregate counts per NUMA node across all CPUs.
var DefaultPerfArgs = []string{"--per-node", "-a"}

// TelemetryWrapper is an external profiling command prepended to a run's command line.
type TelemetryWrapper struct {
	Kind    TelemetryKind
	Command string   // defaults to the kind's name looked up on PATH
	Args    []string // extra arguments placed before the output option
	Events  []string // perf only
}

// NewPerfWrapper returns a 'perf stat' wrapper collecting events.
func NewPerfWrapper(events []string) *TelemetryWrapper {
	if len(events) == 0 {
		events = DefaultPerfEvents
	}
	return &TelemetryWrapper{
		Kind:   TelemetryPerf,
		Args:   append([]string(nil), DefaultPerfArgs...),
		Events: append([]string(nil), events...),
	}
}

// NewStraceWrapper returns a 'strace -c' syscall summary wrapper.
func NewStraceWrapper() *TelemetryWrapper {
	return &TelemetryWrapper{Kind: TelemetryStrace}
}

func (w *TelemetryWrapper) command() string {
	if w.Command != "" {
		return absIfPath(w.Command)
	}
	return w.Kind.String()
}

// Wrap returns argv bracketed by the wrapper, which writes its report to outputPath.
func (w *TelemetryWrapper) Wrap(outputPath string, argv []string) []string {
	var out []string
	switch w.Kind {
	case TelemetryPerf:
		out = append(out, w.command(), "stat")
		out = append(out, w.Args...)
		out = append(out, "-o", outputPath)
		if len(w.Events) > 0 {
			out = append(out, "-e", strings.Join(w.Events, ","))
		}
		out = append(out, "--")
	case TelemetryStrace:
		out = append(out, w.command(), "-c")
		out = append(out, w.Args...)
		out = append(out, "-o", outputPath)
	default:
		return argv
	}
	return append(out, argv...)
}
