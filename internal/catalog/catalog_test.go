package catalog

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsDuplicates(t *testing.T) {
	tests := []struct {
		name      string
		workloads []Workload
		wantErr   bool
	}{
		{
			name:      "unique",
			workloads: []Workload{{Name: "bt", Executable: "bt.C.x"}, {Name: "cg", Executable: "cg.C.x"}},
		},
		{
			name:      "duplicate name",
			workloads: []Workload{{Name: "bt", Executable: "bt.C.x"}, {Name: "bt", Executable: "bt.B.x"}},
			wantErr:   true,
		},
		{
			name:      "duplicate executable name",
			workloads: []Workload{{Name: "a", Executable: "x/bt.C.x"}, {Name: "b", Executable: "y/bt.C.x"}},
			wantErr:   true,
		},
		{
			name:      "missing name",
			workloads: []Workload{{Executable: "bt.C.x"}},
			wantErr:   true,
		},
		{
			name:      "missing executable",
			workloads: []Workload{{Name: "bt"}},
			wantErr:   true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.workloads...)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestListIsACopy(t *testing.T) {
	c, err := New(Workload{Name: "bt", Executable: "bt.C.x", Args: []string{"4"}})
	require.NoError(t, err)
	list := c.List()
	list[0].Name = "changed"
	list[0].Args[0] = "8"
	again := c.List()
	assert.Equal(t, "bt", again[0].Name)
	assert.Equal(t, []string{"4"}, again[0].Args)
}

func TestFromExecutable(t *testing.T) {
	w := FromExecutable("/opt/npb/bin/bt.C.x", ".x")
	assert.Equal(t, "bt.C", w.Name)
	assert.Equal(t, "C", w.Class)
	assert.Equal(t, "bt.C.x", w.ExecutableName())

	w = FromExecutable("memory.x", ".x")
	assert.Equal(t, "memory", w.Name)
	assert.Equal(t, "", w.Class)
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"sp.C.x", "bt.C.x", "dc.B.x", "README", "cg.C.x.0_output"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("#!/bin/sh\n"), 0755))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.x"), 0755))

	c, err := Discover(dir, DefaultSuffix)
	require.NoError(t, err)
	var names []string
	for _, w := range c.List() {
		names = append(names, w.Name)
	}
	assert.Equal(t, []string{"bt.C", "dc.B", "sp.C"}, names)
	w, ok := c.Lookup("dc.B")
	require.True(t, ok)
	assert.Equal(t, "B", w.Class)
	assert.Equal(t, filepath.Join(dir, "dc.B.x"), w.Executable)
}

func TestDiscoverMissingDirectory(t *testing.T) {
	_, err := Discover(filepath.Join(t.TempDir(), "missing"), DefaultSuffix)
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	content := `workloads:
  - name: bt
    executable: bin/bt.C.x
    class: C
    args: ["16", "4"]
  - executable: /abs/cg.B.x
`
	path := filepath.Join(dir, "workloads.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	c, err := Load(path)
	require.NoError(t, err)
	list := c.List()
	require.Len(t, list, 2)
	assert.Equal(t, Workload{Name: "bt", Executable: filepath.Join(dir, "bin/bt.C.x"), Class: "C", Args: []string{"16", "4"}}, list[0])
	assert.Equal(t, "cg.B", list[1].Name)
	assert.Equal(t, "B", list[1].Class)
	assert.Equal(t, "/abs/cg.B.x", list[1].Executable)
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	_, err := parse([]byte("workloads:\n  - name: bt\n    exe: bt.C.x\n"), "/")
	assert.Error(t, err)
}
