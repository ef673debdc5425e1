// Package metrics exposes batch progress and results as Prometheus metrics,
// served over HTTP while a batch runs and written to a textfile at the end.
package metrics

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"benchrun/internal/aggregate"
	"benchrun/internal/plan"
	"benchrun/internal/schedule"
)

const namespace = "benchrun"

// Recorder owns a registry with the batch metrics.
type Recorder struct {
	registry  *prometheus.Registry
	runs      *prometheus.CounterVec
	inFlight  prometheus.Gauge
	duration  *prometheus.HistogramVec
	aggregate *prometheus.GaugeVec
	wallTime  prometheus.Gauge

	mu       sync.Mutex
	launched map[string]bool
}

// NewRecorder returns a recorder with its own registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Runs that reached a final state.",
		}, []string{"workload", "state"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "runs_in_flight",
			Help:      "Runs launched and not yet finished.",
		}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall clock duration of launched runs.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 14),
		}, []string{"workload", "state"}),
		aggregate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "aggregate_value",
			Help:      "Mean of a counter or value of a derived metric across the runs of a workload.",
		}, []string{"workload", "counter"}),
		wallTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "batch_wall_seconds",
			Help:      "Wall clock time of the whole batch.",
		}),
		launched: make(map[string]bool),
	}
	r.registry.MustRegister(r.runs, r.inFlight, r.duration, r.aggregate, r.wallTime)
	return r
}

// Gatherer returns the registry.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.registry
}

// Transition is a schedule.TransitionFunc.
func (r *Recorder) Transition(d plan.RunDescriptor, state schedule.State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := d.ID()
	switch state {
	case schedule.Launched:
		r.launched[id] = true
		r.inFlight.Inc()
	case schedule.Completed, schedule.Failed:
		if r.launched[id] {
			delete(r.launched, id)
			r.inFlight.Dec()
		}
		r.runs.WithLabelValues(d.Workload.Name, state.String()).Inc()
	}
}

// ObserveResults records the durations of launched runs.
func (r *Recorder) ObserveResults(results []schedule.RunResult) {
	for _, res := range results {
		if !res.Launched() {
			continue
		}
		r.duration.WithLabelValues(res.Descriptor.Workload.Name, res.State.String()).Observe(res.Duration.Seconds())
	}
}

// SetSummary publishes the aggregate values.
func (r *Recorder) SetSummary(summary aggregate.Summary) {
	for _, res := range summary.Results {
		r.aggregate.WithLabelValues(res.Workload, res.Counter).Set(res.Mean)
	}
	if summary.WallSeconds > 0 {
		r.wallTime.Set(summary.WallSeconds)
	}
}

// WriteTextfile writes the registry in the text exposition format, for the
// node exporter textfile collector.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return errors.Wrapf(err, "failed to write prometheus textfile %s", path)
	}
	slog.Info("wrote prometheus textfile", slog.String("path", path))
	return nil
}

// Server serves /metrics for a gatherer.
type Server struct {
	server   *http.Server
	listener net.Listener
	done     chan struct{}
}

// StartServer listens on listenAddr and serves the gatherer in the background.
func StartServer(listenAddr string, g prometheus.Gatherer) (*Server, error) {
	listener, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to listen on %s", listenAddr)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	s := &Server{
		server: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 3 * time.Second,
		},
		listener: listener,
		done:     make(chan struct{}),
	}
	slog.Info("Starting Prometheus metrics server", slog.String("address", listener.Addr().String()))
	go func() {
		defer close(s.done)
		err := s.server.Serve(listener)
		if err != nil && err != http.ErrServerClosed {
			slog.Error("Prometheus HTTP server Serve error", slog.String("error", err.Error()))
		}
	}()
	return s, nil
}

// Addr is the address the server listens on.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Shutdown stops the server, waiting for in-flight scrapes until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.server.Shutdown(ctx)
	<-s.done
	return err
}
