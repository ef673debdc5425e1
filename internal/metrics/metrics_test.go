package metrics

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"benchrun/internal/aggregate"
	"benchrun/internal/catalog"
	"benchrun/internal/launch"
	"benchrun/internal/plan"
	"benchrun/internal/schedule"
)

func descriptor(name string, rep int) plan.RunDescriptor {
	return plan.RunDescriptor{Workload: catalog.Workload{Name: name, Executable: "/bin/" + name + ".x"}, Repetition: rep}
}

func TestTransitions(t *testing.T) {
	r := NewRecorder()
	d0, d1, d2 := descriptor("bt.S", 0), descriptor("bt.S", 1), descriptor("bt.S", 2)
	for _, d := range []plan.RunDescriptor{d0, d1, d2} {
		r.Transition(d, schedule.Planned)
	}
	r.Transition(d0, schedule.Launched)
	r.Transition(d1, schedule.Launched)
	assert.Equal(t, 2.0, testutil.ToFloat64(r.inFlight))

	r.Transition(d0, schedule.Completed)
	r.Transition(d1, schedule.Failed)
	// launch failure, never in flight
	r.Transition(d2, schedule.Failed)
	assert.Equal(t, 0.0, testutil.ToFloat64(r.inFlight))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.runs.WithLabelValues("bt.S", "completed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.runs.WithLabelValues("bt.S", "failed")))
}

func TestObserveResultsAndSummary(t *testing.T) {
	r := NewRecorder()
	d := descriptor("cg.S", 0)
	r.ObserveResults([]schedule.RunResult{
		{Descriptor: d, Handle: &launch.RunHandle{Descriptor: d}, State: schedule.Completed, Duration: 3 * time.Second},
		{Descriptor: descriptor("cg.S", 1), State: schedule.Failed},
	})
	assert.Equal(t, 1, testutil.CollectAndCount(r.duration))

	r.SetSummary(aggregate.Summary{Results: []aggregate.AggregateResult{
		{Workload: "cg.S", Counter: "time", Mean: 1.5},
		{Workload: "cg.S", Counter: "miss_rate", Mean: 0.25, Derived: true},
	}, WallSeconds: 42.5})
	assert.Equal(t, 1.5, testutil.ToFloat64(r.aggregate.WithLabelValues("cg.S", "time")))
	assert.Equal(t, 0.25, testutil.ToFloat64(r.aggregate.WithLabelValues("cg.S", "miss_rate")))
	assert.Equal(t, 42.5, testutil.ToFloat64(r.wallTime))
}

func TestWriteTextfile(t *testing.T) {
	r := NewRecorder()
	r.Transition(descriptor("ep.S", 0), schedule.Launched)
	r.Transition(descriptor("ep.S", 0), schedule.Completed)
	path := filepath.Join(t.TempDir(), "benchrun.prom")
	require.NoError(t, r.WriteTextfile(path))
	out, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(out), `benchrun_runs_total{state="completed",workload="ep.S"} 1`)

	assert.Error(t, r.WriteTextfile(filepath.Join(t.TempDir(), "missing", "benchrun.prom")))
}

func TestServer(t *testing.T) {
	r := NewRecorder()
	r.Transition(descriptor("is.S", 0), schedule.Launched)
	s, err := StartServer("127.0.0.1:0", r.Gatherer())
	require.NoError(t, err)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, s.Shutdown(ctx))
	}()

	resp, err := http.Get("http://" + s.Addr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "benchrun_runs_in_flight 1"))
}

func TestStartServerBadAddress(t *testing.T) {
	_, err := StartServer("not-an-address", NewRecorder().Gatherer())
	assert.Error(t, err)
}
