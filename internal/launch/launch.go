// Package launch starts one external process per run descriptor, optionally
// bracketed by a telemetry wrapper, with its output redirected to per-run log files.
package launch

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"

	"benchrun/internal/plan"
)

const (
	stdoutSuffix = "_output"
	stderrSuffix = "_output_stderr"
)

// Process is a started run that can be awaited and forcibly terminated.
type Process interface {
	// Wait blocks until the process exits and releases its resources. A
	// process killed by a signal reports exit code -1. err is set only when
	// the exit status could not be collected.
	Wait() (exitCode int, err error)
	// Terminate kills the process and everything it started.
	Terminate() error
}

// RunHandle is the record of one launched run.
type RunHandle struct {
	Descriptor       plan.RunDescriptor
	Process          Process
	PID              int
	StdoutLogPath    string
	TelemetryLogPath string // empty when no telemetry wrapper is configured
	StartTime        time.Time
}

// Workload returns the name of the workload the run belongs to.
func (h *RunHandle) Workload() string {
	return h.Descriptor.Workload.Name
}

// Launcher starts runs.
type Launcher interface {
	Launch(d plan.RunDescriptor) (*RunHandle, error)
}

// LaunchError reports a run that could not be started.
type LaunchError struct {
	RunID string
	Op    string
	Err   error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("failed to launch %s: %s: %v", e.RunID, e.Op, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// RuntimeUnderTest is a scheduler binary that runs the workload on our behalf.
// It receives the workload path and arguments after its own arguments.
type RuntimeUnderTest struct {
	Path string
	Args []string
}

// LocalLauncher starts runs as local processes.
type LocalLauncher struct {
	OutputDir string            // where the per-run log files are created
	WorkDir   string            // working directory of launched processes, defaults to OutputDir
	Runtime   *RuntimeUnderTest // optional
	Telemetry *TelemetryWrapper // optional
}

// StdoutLogPath returns the path of the run's stdout log, "<exe>.<rep>_output".
func StdoutLogPath(outputDir string, d plan.RunDescriptor) string {
	return filepath.Join(outputDir, d.ID()+stdoutSuffix)
}

// StderrLogPath returns the path of the run's stderr log.
func StderrLogPath(outputDir string, d plan.RunDescriptor) string {
	return filepath.Join(outputDir, d.ID()+stderrSuffix)
}

// TelemetryLogPath returns the path of the wrapper output for the run,
// "<exe>.<rep>_output_perf" or "<exe>.<rep>_output_strace".
func TelemetryLogPath(outputDir string, d plan.RunDescriptor, kind TelemetryKind) string {
	return filepath.Join(outputDir, d.ID()+stdoutSuffix+kind.Suffix())
}

// Command returns the full command line for the run, without starting it.
func (l *LocalLauncher) Command(d plan.RunDescriptor) []string {
	exe, _ := filepath.Abs(d.Workload.Executable)
	var argv []string
	if l.Runtime != nil {
		argv = append(argv, absIfPath(l.Runtime.Path))
		argv = append(argv, l.Runtime.Args...)
	}
	argv = append(argv, exe)
	argv = append(argv, d.ExtraArgs...)
	if w := l.wrapper(); w != nil {
		argv = w.Wrap(TelemetryLogPath(l.OutputDir, d, w.Kind), argv)
	}
	return argv
}

func (l *LocalLauncher) wrapper() *TelemetryWrapper {
	if l.Telemetry == nil || l.Telemetry.Kind == TelemetryNone {
		return nil
	}
	return l.Telemetry
}

// Launch verifies the binaries, creates the run's log files and starts the process.
func (l *LocalLauncher) Launch(d plan.RunDescriptor) (*RunHandle, error) {
	runID := d.ID()
	if err := checkExecutable(d.Workload.Executable); err != nil {
		return nil, &LaunchError{RunID: runID, Op: "workload executable", Err: err}
	}
	if l.Runtime != nil {
		if _, err := exec.LookPath(l.Runtime.Path); err != nil {
			return nil, &LaunchError{RunID: runID, Op: "runtime executable", Err: err}
		}
	}
	wrapper := l.wrapper()
	if wrapper != nil {
		if _, err := exec.LookPath(wrapper.command()); err != nil {
			return nil, &LaunchError{RunID: runID, Op: "telemetry command", Err: err}
		}
	}
	handle := &RunHandle{
		Descriptor:    d,
		StdoutLogPath: StdoutLogPath(l.OutputDir, d),
	}
	var files []*os.File
	closeAll := func() {
		for _, f := range files {
			_ = f.Close()
		}
	}
	stdout, err := createLog(handle.StdoutLogPath)
	if err != nil {
		return nil, &LaunchError{RunID: runID, Op: "create stdout log", Err: err}
	}
	files = append(files, stdout)
	stderr, err := createLog(StderrLogPath(l.OutputDir, d))
	if err != nil {
		closeAll()
		return nil, &LaunchError{RunID: runID, Op: "create stderr log", Err: err}
	}
	files = append(files, stderr)
	if wrapper != nil {
		handle.TelemetryLogPath = TelemetryLogPath(l.OutputDir, d, wrapper.Kind)
		telemetryLog, err := createLog(handle.TelemetryLogPath)
		if err != nil {
			closeAll()
			return nil, &LaunchError{RunID: runID, Op: "create telemetry log", Err: err}
		}
		// the wrapper writes the file itself
		_ = telemetryLog.Close()
	}
	workDir := l.WorkDir
	if workDir == "" {
		workDir = l.OutputDir
	}
	argv := l.Command(d)
	proc, pid, err := startProcess(argv, workDir, stdout, stderr)
	if err != nil {
		closeAll()
		return nil, &LaunchError{RunID: runID, Op: "start", Err: err}
	}
	proc.files = files
	handle.Process = proc
	handle.PID = pid
	handle.StartTime = time.Now()
	slog.Debug("launched run", slog.String("run", runID), slog.Int("pid", pid), slog.String("cmd", proc.cmd.String()))
	return handle, nil
}

// absIfPath makes command names that contain a directory absolute, so that they
// do not depend on the working directory of the launched process. Bare names
// are left for PATH lookup.
func absIfPath(name string) string {
	if !strings.ContainsRune(name, filepath.Separator) {
		return name
	}
	if abs, err := filepath.Abs(name); err == nil {
		return abs
	}
	return name
}

func createLog(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644) // #nosec G302 G304
}

// checkExecutable verifies that path is a regular file with an execute bit set.
func checkExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return errors.Errorf("%s is not a regular file", path)
	}
	if info.Mode().Perm()&0111 == 0 {
		return errors.Wrap(fs.ErrPermission, path+" is not executable")
	}
	return nil
}
