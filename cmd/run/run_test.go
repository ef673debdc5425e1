package run

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"benchrun/internal/aggregate"
	"benchrun/internal/common"
	"benchrun/internal/plan"
	"benchrun/internal/schedule"
)

// resetFlags restores every flag of Cmd to its default between executions.
func resetFlags(t *testing.T) {
	t.Helper()
	Cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			def := strings.TrimSuffix(strings.TrimPrefix(f.DefValue, "["), "]")
			values := []string{}
			if def != "" {
				values = strings.Split(def, ",")
			}
			require.NoError(t, sv.Replace(values))
		} else {
			require.NoError(t, f.Value.Set(f.DefValue))
		}
		f.Changed = false
	})
}

func execute(t *testing.T, outputDir string, args ...string) (string, error) {
	t.Helper()
	resetFlags(t)
	root := &cobra.Command{Use: "benchrun", SilenceErrors: true}
	root.AddGroup(&cobra.Group{ID: "primary", Title: "Commands:"})
	root.AddCommand(Cmd)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs(append([]string{cmdName}, args...))
	ctx := context.WithValue(context.Background(), common.AppContext{}, common.AppContext{OutputDir: outputDir})
	err := root.ExecuteContext(ctx)
	return out.String(), err
}

func writeWorkload(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("#!/bin/sh\n"+body), 0755)) // #nosec G306
}

func TestRunSequential(t *testing.T) {
	binDir := t.TempDir()
	outputDir := filepath.Join(t.TempDir(), "out")
	writeWorkload(t, binDir, "ep.S.x", `echo " Time in seconds =                     1.50"
echo " Mop/s total     =                   100.00"
`)
	out, err := execute(t, outputDir, "sequential", "0", "--bin-dir", binDir, "--repetitions", "2", "--no-progress", "--format", "json")
	require.NoError(t, err)
	assert.Contains(t, out, "ep.S time 1.5\n")
	assert.Contains(t, out, "ep.S mops 100\n")
	assert.Regexp(t, `# runs: 2 completed: 2 failed: 0 excluded: 0 wall-seconds: [0-9.]+ per-repetition: [0-9.]+\n$`, out)

	assert.FileExists(t, filepath.Join(outputDir, "ep.S.x.0_output"))
	assert.FileExists(t, filepath.Join(outputDir, "ep.S.x.1_output"))
	data, err := os.ReadFile(filepath.Join(outputDir, "summary.json"))
	require.NoError(t, err)
	var summary aggregate.Summary
	require.NoError(t, json.Unmarshal(data, &summary))
	assert.Equal(t, 2, summary.Completed)
	assert.Greater(t, summary.WallSeconds, 0.0)
	assert.Equal(t, 2, summary.Repetitions)
	require.Len(t, summary.Results, 2)
	for _, r := range summary.Results {
		assert.Equal(t, 2, r.SampleCount)
	}
}

func TestRunWorkloadArgs(t *testing.T) {
	binDir := t.TempDir()
	outputDir := t.TempDir()
	writeWorkload(t, binDir, "is.S.x", `echo "args: $@"
echo " Time in seconds = 0.25"
`)
	_, err := execute(t, outputDir, "overlapped", "0", "--bin-dir", binDir, "--repetitions", "1", "--stagger-max", "0", "--no-progress", "--", "16", "4")
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(outputDir, "is.S.x.0_output"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "args: 16 4\n")
}

func TestRunLaunchFailure(t *testing.T) {
	binDir := t.TempDir()
	outputDir := t.TempDir()
	writeWorkload(t, binDir, "cg.S.x", `echo " Time in seconds = 2.0"
`)
	out, err := execute(t, outputDir, "sequential", "1", "--bin-dir", binDir, "--repetitions", "1", "--no-progress",
		"--runtime", filepath.Join(binDir, "missing", "thanos"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 1 runs could not be launched")
	assert.Contains(t, out, "# runs: 1 completed: 0 failed: 1 excluded: 0 wall-seconds: ")
}

func TestRunValidation(t *testing.T) {
	binDir := t.TempDir()
	tests := [][]string{
		{"parallel", "0", "--bin-dir", binDir},
		{"sequential", "2", "--bin-dir", binDir},
		{"sequential", "0", "extra", "--bin-dir", binDir},
		{"sequential", "0", "--bin-dir", binDir, "--repetitions", "0"},
		{"overlapped", "0", "--bin-dir", binDir, "--concurrency", "0"},
		{"overlapped", "0", "--bin-dir", binDir, "--stagger-min", "3", "--stagger-max", "1"},
		{"sequential", "0", "--bin-dir", binDir, "--timeout=-1"},
		{"sequential", "0", "--bin-dir", filepath.Join(binDir, "missing")},
		{"sequential", "0", "--bin-dir", binDir, "--format", "pdf"},
	}
	for _, args := range tests {
		_, err := execute(t, t.TempDir(), args...)
		assert.Error(t, err, args)
	}
}

func TestRunEmptyCatalog(t *testing.T) {
	_, err := execute(t, t.TempDir(), "sequential", "0", "--bin-dir", t.TempDir(), "--no-progress")
	assert.Error(t, err)
}

func TestParseUseRuntime(t *testing.T) {
	v, err := parseUseRuntime("1")
	require.NoError(t, err)
	assert.True(t, v)
	v, err = parseUseRuntime("0")
	require.NoError(t, err)
	assert.False(t, v)
	_, err = parseUseRuntime("yes")
	assert.Error(t, err)
}

func TestChainTransitions(t *testing.T) {
	var got []string
	record := func(prefix string) schedule.TransitionFunc {
		return func(d plan.RunDescriptor, state schedule.State) {
			got = append(got, prefix+":"+state.String())
		}
	}
	f := chainTransitions(record("a"), nil, record("b"))
	f(plan.RunDescriptor{}, schedule.Launched)
	assert.Equal(t, []string{"a:" + schedule.Launched.String(), "b:" + schedule.Launched.String()}, got)
}
