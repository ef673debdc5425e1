package util

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"os"
	"os/user"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandUser(t *testing.T) {
	usr, err := user.Current()
	require.NoError(t, err)
	tests := []struct {
		path     string
		expected string
	}{
		{"~", usr.HomeDir},
		{"~/npb/bin", filepath.Join(usr.HomeDir, "npb/bin")},
		{"~npb", "~npb"},
		{"/opt/npb", "/opt/npb"},
		{"relative/dir", "relative/dir"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, ExpandUser(tt.path), tt.path)
	}
}

func TestAbsPath(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	got, err := AbsPath("bin")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(wd, "bin"), got)
}

func TestFileAndDirectoryExists(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "catalog.yaml")
	require.NoError(t, os.WriteFile(file, []byte("workloads: []\n"), 0644))

	exists, err := FileExists(file)
	assert.NoError(t, err)
	assert.True(t, exists)
	exists, err = FileExists(filepath.Join(dir, "missing"))
	assert.NoError(t, err)
	assert.False(t, exists)
	_, err = FileExists(dir)
	assert.Error(t, err)

	exists, err = DirectoryExists(dir)
	assert.NoError(t, err)
	assert.True(t, exists)
	exists, err = DirectoryExists(filepath.Join(dir, "missing"))
	assert.NoError(t, err)
	assert.False(t, exists)
	_, err = DirectoryExists(file)
	assert.Error(t, err)
}

func TestCreateDirectoryIfNotExists(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	require.NoError(t, CreateDirectoryIfNotExists(dir, 0755))
	exists, err := DirectoryExists(dir)
	require.NoError(t, err)
	assert.True(t, exists)
	// second call is a no-op
	assert.NoError(t, CreateDirectoryIfNotExists(dir, 0755))

	file := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(file, nil, 0644))
	assert.Error(t, CreateDirectoryIfNotExists(file, 0755))
}

func TestUniqueAppend(t *testing.T) {
	s := UniqueAppend([]string{"txt"}, "csv")
	s = UniqueAppend(s, "txt")
	assert.Equal(t, []string{"txt", "csv"}, s)
}
