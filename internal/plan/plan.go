// Package plan expands a workload catalog into an ordered list of run descriptors.
package plan

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"strings"

	"benchrun/internal/catalog"
)

// ExecutionMode selects how the scheduler overlaps runs.
type ExecutionMode int

const (
	Sequential ExecutionMode = iota
	Overlapped
)

func (m ExecutionMode) String() string {
	switch m {
	case Sequential:
		return "sequential"
	case Overlapped:
		return "overlapped"
	}
	return fmt.Sprintf("ExecutionMode(%d)", int(m))
}

// ParseMode accepts the mode names and the numeric spellings used by the
// original run scripts (1 = sequential, 2 = parallel).
func ParseMode(s string) (ExecutionMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sequential", "seq", "1":
		return Sequential, nil
	case "overlapped", "parallel", "2":
		return Overlapped, nil
	}
	return Sequential, fmt.Errorf("unknown execution mode %q, must be sequential or overlapped", s)
}

// RunDescriptor describes one run: a workload repetition under an execution mode.
type RunDescriptor struct {
	Workload   catalog.Workload
	Repetition int
	Mode       ExecutionMode
	ExtraArgs  []string
}

// ID returns the run's file name stem, "<executable>.<repetition>".
// It is unique within a plan.
func (d RunDescriptor) ID() string {
	return fmt.Sprintf("%s.%d", d.Workload.ExecutableName(), d.Repetition)
}

// Plan emits repetitions descriptors per workload, indexed 0..repetitions-1,
// in catalog order. Each descriptor's ExtraArgs holds the workload's own args
// followed by extraArgs.
func Plan(c *catalog.Catalog, repetitions int, mode ExecutionMode, extraArgs ...string) ([]RunDescriptor, error) {
	if repetitions <= 0 {
		return nil, fmt.Errorf("repetitions must be greater than 0, got %d", repetitions)
	}
	if c == nil || c.Len() == 0 {
		return nil, fmt.Errorf("workload catalog is empty")
	}
	workloads := c.List()
	descriptors := make([]RunDescriptor, 0, len(workloads)*repetitions)
	for _, w := range workloads {
		for i := range repetitions {
			args := make([]string, 0, len(w.Args)+len(extraArgs))
			args = append(args, w.Args...)
			args = append(args, extraArgs...)
			descriptors = append(descriptors, RunDescriptor{
				Workload:   w,
				Repetition: i,
				Mode:       mode,
				ExtraArgs:  args,
			})
		}
	}
	return descriptors, nil
}
