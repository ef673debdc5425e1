package progress

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"benchrun/internal/catalog"
	"benchrun/internal/plan"
	"benchrun/internal/schedule"
)

func TestNewMultiSpinner(t *testing.T) {
	spinner := NewMultiSpinner()
	if spinner == nil {
		t.Fatal("failed to create a spinner")
	}
}

func TestMultiSpinner(t *testing.T) {
	var out bytes.Buffer
	spinner := NewMultiSpinnerTo(&out, false)
	require.NoError(t, spinner.AddSpinner("A"))
	require.NoError(t, spinner.AddSpinner("B"))
	assert.Error(t, spinner.AddSpinner("A"), "added spinner with same label")
	spinner.Start()

	assert.NoError(t, spinner.Status("A", "FOO"))
	assert.NoError(t, spinner.Status("B", "BAR"))
	assert.Error(t, spinner.Status("C", "WOOPS"), "updated status of non-existent spinner")
	spinner.Finish()
	// finishing twice is harmless
	spinner.Finish()

	assert.Contains(t, out.String(), "FOO")
	assert.Contains(t, out.String(), "BAR")
	assert.NotContains(t, out.String(), "\x1b[1A")
}

func TestTracker(t *testing.T) {
	var out bytes.Buffer
	spinner := NewMultiSpinnerTo(&out, false)
	var descriptors []plan.RunDescriptor
	for _, name := range []string{"bt.S", "cg.S"} {
		for rep := range 2 {
			descriptors = append(descriptors, plan.RunDescriptor{Workload: catalog.Workload{Name: name, Executable: name + ".x"}, Repetition: rep})
		}
	}
	tracker := NewTracker(spinner, descriptors)
	for _, d := range descriptors {
		tracker.Transition(d, schedule.Planned)
	}
	tracker.Transition(descriptors[0], schedule.Launched)
	tracker.Transition(descriptors[0], schedule.Completed)
	tracker.Transition(descriptors[1], schedule.Failed)
	// unknown workloads are ignored
	tracker.Transition(plan.RunDescriptor{Workload: catalog.Workload{Name: "x"}}, schedule.Launched)

	spinner.Start()
	spinner.Finish()
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "bt.S"))
	assert.Contains(t, lines[0], "launched 1/2, completed 1, failed 1")
	assert.Contains(t, lines[1], "launched 0/2, completed 0, failed 0")
}
