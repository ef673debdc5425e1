package progress

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"log/slog"
	"sync"

	"benchrun/internal/plan"
	"benchrun/internal/schedule"
)

type runCounts struct {
	planned, launched, completed, failed int
}

func (c runCounts) String() string {
	return fmt.Sprintf("launched %d/%d, completed %d, failed %d", c.launched, c.planned, c.completed, c.failed)
}

// Tracker shows one spinner per workload with its run counts.
type Tracker struct {
	spinner *MultiSpinner
	mu      sync.Mutex
	counts  map[string]*runCounts
}

// NewTracker adds a spinner for every workload in descriptors.
func NewTracker(spinner *MultiSpinner, descriptors []plan.RunDescriptor) *Tracker {
	t := &Tracker{spinner: spinner, counts: make(map[string]*runCounts)}
	for _, d := range descriptors {
		name := d.Workload.Name
		if _, ok := t.counts[name]; !ok {
			t.counts[name] = &runCounts{}
			if err := spinner.AddSpinner(name); err != nil {
				slog.Error("failed to add spinner", slog.String("workload", name), slog.String("error", err.Error()))
			}
		}
	}
	return t
}

// Transition is a schedule.TransitionFunc.
func (t *Tracker) Transition(d plan.RunDescriptor, state schedule.State) {
	t.mu.Lock()
	c, ok := t.counts[d.Workload.Name]
	if !ok {
		t.mu.Unlock()
		return
	}
	switch state {
	case schedule.Planned:
		c.planned++
	case schedule.Launched:
		c.launched++
	case schedule.Completed:
		c.completed++
	case schedule.Failed:
		c.failed++
	}
	status := c.String()
	t.mu.Unlock()
	_ = t.spinner.Status(d.Workload.Name, status)
}
