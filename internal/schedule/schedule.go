// Package schedule runs planned descriptors through a launcher, either one at a
// time or overlapped with a bounded, jittered stagger, and records how each run ended.
package schedule

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"benchrun/internal/launch"
	"benchrun/internal/plan"
)

// State is the lifecycle state of a run.
type State int

const (
	Planned State = iota
	Launched
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case Planned:
		return "planned"
	case Launched:
		return "launched"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// TimeoutError reports a run that was terminated for exceeding its time limit.
type TimeoutError struct {
	RunID   string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("run %s exceeded timeout of %s and was terminated", e.RunID, e.Timeout)
}

// RunResult is the outcome of one descriptor.
type RunResult struct {
	Descriptor plan.RunDescriptor
	Handle     *launch.RunHandle // nil when the run could not be launched
	State      State
	ExitCode   int
	Duration   time.Duration
	Err        error // *launch.LaunchError, *TimeoutError, context error or wait error
}

// Launched reports whether a process was started for the run.
func (r RunResult) Launched() bool {
	return r.Handle != nil
}

// TransitionFunc is called on every state change of a run. It may be called
// from multiple goroutines in overlapped mode.
type TransitionFunc func(d plan.RunDescriptor, state State)

// Scheduler drives descriptors through a launcher.
type Scheduler struct {
	Launcher       launch.Launcher
	Mode           plan.ExecutionMode
	MaxConcurrency int           // overlapped mode only, values below 1 mean 1
	MinStagger     time.Duration // overlapped mode only
	MaxStagger     time.Duration // overlapped mode only
	Timeout        time.Duration // per run, 0 disables
	OnTransition   TransitionFunc

	// Rand draws stagger delays, defaults to the global generator.
	Rand *rand.Rand
	// Sleep waits for d or until ctx is done, defaults to a timer.
	Sleep func(ctx context.Context, d time.Duration) error

	randMu sync.Mutex
}

// Run launches every descriptor and returns one result per descriptor, in the
// order of descriptors. Failures of individual runs never stop the batch.
func (s *Scheduler) Run(ctx context.Context, descriptors []plan.RunDescriptor) []RunResult {
	results := make([]RunResult, len(descriptors))
	for i, d := range descriptors {
		results[i] = RunResult{Descriptor: d, State: Planned}
		s.transition(d, Planned)
	}
	switch s.Mode {
	case plan.Overlapped:
		s.runOverlapped(ctx, descriptors, results)
	default:
		s.runSequential(ctx, descriptors, results)
	}
	return results
}

func (s *Scheduler) runSequential(ctx context.Context, descriptors []plan.RunDescriptor, results []RunResult) {
	for i, d := range descriptors {
		if err := ctx.Err(); err != nil {
			s.fail(&results[i], err)
			continue
		}
		handle, ok := s.launch(&results[i])
		if !ok {
			continue
		}
		s.await(ctx, handle, &results[i])
	}
}

func (s *Scheduler) runOverlapped(ctx context.Context, descriptors []plan.RunDescriptor, results []RunResult) {
	limit := max(s.MaxConcurrency, 1)
	slots := make(chan struct{}, limit)
	for start := 0; start < len(descriptors); {
		// one batch per workload, descriptors of a workload are contiguous in a plan
		end := start + 1
		for end < len(descriptors) && descriptors[end].Workload.Name == descriptors[start].Workload.Name {
			end++
		}
		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			if i > start {
				if err := s.sleep(ctx, s.stagger()); err != nil {
					s.fail(&results[i], err)
					continue
				}
			}
			select {
			case slots <- struct{}{}:
			case <-ctx.Done():
				s.fail(&results[i], ctx.Err())
				continue
			}
			handle, ok := s.launch(&results[i])
			if !ok {
				<-slots
				continue
			}
			wg.Add(1)
			go func(handle *launch.RunHandle, result *RunResult) {
				defer wg.Done()
				defer func() { <-slots }()
				s.await(ctx, handle, result)
			}(handle, &results[i])
		}
		wg.Wait()
		slog.Debug("workload batch finished", slog.String("workload", descriptors[start].Workload.Name), slog.Int("runs", end-start))
		start = end
	}
}

// launch starts the run and records the transition. It returns false when the
// launch failed, in which case the result is already final.
func (s *Scheduler) launch(result *RunResult) (*launch.RunHandle, bool) {
	handle, err := s.Launcher.Launch(result.Descriptor)
	if err != nil {
		slog.Error("failed to launch run", slog.String("run", result.Descriptor.ID()), slog.String("error", err.Error()))
		s.fail(result, err)
		return nil, false
	}
	result.Handle = handle
	result.State = Launched
	s.transition(result.Descriptor, Launched)
	return handle, true
}

type waitResult struct {
	exitCode int
	err      error
}

// await blocks until the run exits, its timeout elapses or ctx is done. The
// process is always reaped before await returns.
func (s *Scheduler) await(ctx context.Context, handle *launch.RunHandle, result *RunResult) {
	runID := result.Descriptor.ID()
	done := make(chan waitResult, 1)
	go func() {
		code, err := handle.Process.Wait()
		done <- waitResult{code, err}
	}()
	var timeout <-chan time.Time
	if s.Timeout > 0 {
		timer := time.NewTimer(s.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}
	var wr waitResult
	var stopErr error
	select {
	case wr = <-done:
	case <-timeout:
		stopErr = &TimeoutError{RunID: runID, Timeout: s.Timeout}
		wr = s.terminate(handle, done)
	case <-ctx.Done():
		stopErr = ctx.Err()
		wr = s.terminate(handle, done)
	}
	result.Duration = time.Since(handle.StartTime)
	result.ExitCode = wr.exitCode
	switch {
	case stopErr != nil:
		result.Err = stopErr
	case wr.err != nil:
		result.Err = wr.err
	case wr.exitCode != 0:
		result.Err = fmt.Errorf("run %s exited with code %d", runID, wr.exitCode)
	}
	if result.Err != nil {
		slog.Warn("run failed", slog.String("run", runID), slog.Int("exitcode", wr.exitCode), slog.String("error", result.Err.Error()))
		result.State = Failed
	} else {
		slog.Debug("run completed", slog.String("run", runID), slog.Duration("duration", result.Duration))
		result.State = Completed
	}
	s.transition(result.Descriptor, result.State)
}

func (s *Scheduler) terminate(handle *launch.RunHandle, done <-chan waitResult) waitResult {
	if err := handle.Process.Terminate(); err != nil {
		slog.Error("failed to terminate run", slog.String("run", handle.Descriptor.ID()), slog.String("error", err.Error()))
	}
	return <-done
}

func (s *Scheduler) fail(result *RunResult, err error) {
	result.State = Failed
	result.Err = err
	s.transition(result.Descriptor, Failed)
}

func (s *Scheduler) transition(d plan.RunDescriptor, state State) {
	if s.OnTransition != nil {
		s.OnTransition(d, state)
	}
}

// stagger draws a delay uniformly from [MinStagger, MaxStagger].
func (s *Scheduler) stagger() time.Duration {
	lo, hi := s.MinStagger, s.MaxStagger
	if hi <= lo {
		return max(lo, 0)
	}
	s.randMu.Lock()
	defer s.randMu.Unlock()
	span := int64(hi - lo)
	var n int64
	if s.Rand != nil {
		n = s.Rand.Int64N(span + 1)
	} else {
		n = rand.Int64N(span + 1)
	}
	return lo + time.Duration(n)
}

func (s *Scheduler) sleep(ctx context.Context, d time.Duration) error {
	if s.Sleep != nil {
		return s.Sleep(ctx, d)
	}
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
