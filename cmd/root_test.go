package cmd

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"benchrun/internal/common"
)

func TestResolveOutputDir(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	dir, err := resolveOutputDir("", "2025-01-02_03-04-05")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(wd, common.AppName+"_2025-01-02_03-04-05"), dir)
	assert.NoDirExists(t, dir)

	requested := filepath.Join(t.TempDir(), "results")
	dir, err = resolveOutputDir(requested, "ignored")
	require.NoError(t, err)
	assert.Equal(t, requested, dir)
	assert.DirExists(t, dir)
}

func TestSyslogHandlerFormat(t *testing.T) {
	h := &SyslogHandler{logLeveler: slog.LevelWarn}
	r := slog.NewRecord(time.Now(), slog.LevelInfo, "run finished", 0)
	r.AddAttrs(slog.String("run", "bt.S.x.0"), slog.Int("exit", 0))
	assert.Equal(t, `level=INFO msg="run finished" run="bt.S.x.0" exit="0"`, h.format(r))
	assert.False(t, h.Enabled(t.Context(), slog.LevelInfo))
	assert.True(t, h.Enabled(t.Context(), slog.LevelError))
}

func TestCommandsRegistered(t *testing.T) {
	var names []string
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Contains(t, names, "run")
	assert.Contains(t, names, "summarize")
}
