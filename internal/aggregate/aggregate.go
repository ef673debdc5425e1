// Package aggregate reduces counter samples to per workload statistics and
// evaluates derived metrics over them.
package aggregate

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/casbin/govaluate"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"

	"benchrun/internal/launch"
	"benchrun/internal/schedule"
	"benchrun/internal/telemetry"
)

// AggregateResult is the reduction of all samples of one counter for one
// workload. Derived results carry SampleCount 0 and no spread.
type AggregateResult struct {
	Workload    string  `json:"workload"`
	Counter     string  `json:"counter"`
	Mean        float64 `json:"mean"`
	SampleCount int     `json:"samples"`
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
	StdDev      float64 `json:"stddev"`
	Derived     bool    `json:"derived"`
}

// DerivedMetric is an expression over the counter means of a workload.
// Counter names are referenced in brackets, e.g. [cache-misses].
type DerivedMetric struct {
	Name       string
	Expression string
	Evaluable  *govaluate.EvaluableExpression // parsed once by NewDerivedMetric
}

// NewDerivedMetric parses expression.
func NewDerivedMetric(name, expression string) (DerivedMetric, error) {
	evaluable, err := govaluate.NewEvaluableExpression(expression)
	if err != nil {
		return DerivedMetric{}, errors.Wrapf(err, "invalid expression for derived metric %s", name)
	}
	return DerivedMetric{Name: name, Expression: expression, Evaluable: evaluable}, nil
}

// MissRate is the cache miss ratio reported for perf runs.
func MissRate() DerivedMetric {
	m, err := NewDerivedMetric("miss_rate", "[cache-misses] / [cache-references]")
	if err != nil {
		panic(err)
	}
	return m
}

type groupKey struct {
	workload string
	counter  string
}

// Aggregate groups samples by workload and counter. Workloads and their
// counters keep the order in which they first appear; each workload's derived
// metrics follow its counters.
func Aggregate(samples []telemetry.CounterSample, derived ...DerivedMetric) []AggregateResult {
	groups := make(map[groupKey][]float64)
	counters := make(map[string][]string)
	var workloads []string
	for _, s := range samples {
		key := groupKey{s.Workload(), s.Counter}
		if _, ok := groups[key]; !ok {
			if _, seen := counters[key.workload]; !seen {
				workloads = append(workloads, key.workload)
			}
			counters[key.workload] = append(counters[key.workload], key.counter)
		}
		groups[key] = append(groups[key], s.Value)
	}

	var results []AggregateResult
	for _, workload := range workloads {
		means := make(map[string]float64)
		for _, counter := range counters[workload] {
			r := reduce(groupKey{workload, counter}, groups[groupKey{workload, counter}])
			means[counter] = r.Mean
			results = append(results, r)
		}
		for _, m := range derived {
			if d, ok := evaluate(m, workload, means); ok {
				results = append(results, d)
			}
		}
	}
	return results
}

func reduce(key groupKey, values stats.Float64Data) AggregateResult {
	r := AggregateResult{Workload: key.workload, Counter: key.counter, SampleCount: len(values)}
	// values is never empty, stats only errors on empty input
	r.Mean, _ = values.Mean()
	r.Min, _ = values.Min()
	r.Max, _ = values.Max()
	if len(values) > 1 {
		r.StdDev, _ = values.StandardDeviationSample()
	}
	return r
}

// evaluate returns the derived result when every referenced counter is
// present and the value is a finite number.
func evaluate(m DerivedMetric, workload string, means map[string]float64) (AggregateResult, bool) {
	variables := make(map[string]any)
	for _, name := range m.Evaluable.Vars() {
		v, ok := means[name]
		if !ok {
			slog.Debug("derived metric skipped, counter missing", slog.String("workload", workload), slog.String("metric", m.Name), slog.String("counter", name))
			return AggregateResult{}, false
		}
		variables[name] = v
	}
	result, err := evaluateExpression(m, variables)
	if err != nil {
		slog.Debug("derived metric evaluation failed", slog.String("workload", workload), slog.String("metric", m.Name), slog.String("error", err.Error()))
		return AggregateResult{}, false
	}
	value, ok := result.(float64)
	if !ok || math.IsNaN(value) || math.IsInf(value, 0) {
		slog.Debug("derived metric discarded", slog.String("workload", workload), slog.String("metric", m.Name), slog.Any("value", result))
		return AggregateResult{}, false
	}
	return AggregateResult{Workload: workload, Counter: m.Name, Mean: value, Min: value, Max: value, Derived: true}, true
}

// catches panics raised by the evaluator
func evaluateExpression(m DerivedMetric, variables map[string]any) (result any, err error) {
	defer func() {
		if errx := recover(); errx != nil {
			err = fmt.Errorf("%v", errx)
		}
	}()
	if result, err = m.Evaluable.Evaluate(variables); err != nil {
		err = fmt.Errorf("%v : %s : %s", err, m.Name, m.Expression)
	}
	return
}

// Summary is the outcome of a whole batch.
type Summary struct {
	Results        []AggregateResult `json:"results"`
	Runs           int               `json:"runs"`
	Completed      int               `json:"completed"`
	Failed         int               `json:"failed"`
	LaunchFailures int               `json:"launch_failures"`
	Excluded       int               `json:"excluded"` // completed runs whose telemetry did not parse
	Interrupted    int               `json:"interrupted"` // runs never launched because the batch was cancelled
	// wall clock time of the whole batch and the repetitions it ran, zero when
	// the summary was rebuilt from logs
	WallSeconds float64 `json:"wall_seconds,omitempty"`
	Repetitions int     `json:"repetitions,omitempty"`
}

// RepetitionSeconds is the batch wall time divided by the repetitions, zero when unknown.
func (s Summary) RepetitionSeconds() float64 {
	if s.WallSeconds <= 0 || s.Repetitions <= 0 {
		return 0
	}
	return s.WallSeconds / float64(s.Repetitions)
}

// SampleParser is satisfied by *telemetry.Parser.
type SampleParser interface {
	Parse(h *launch.RunHandle) ([]telemetry.CounterSample, error)
}

// Summarize parses every completed run and aggregates the samples. Failed
// runs that were launched are parsed for the debug log only.
func Summarize(results []schedule.RunResult, parser SampleParser, derived ...DerivedMetric) Summary {
	summary := Summary{Runs: len(results)}
	var samples []telemetry.CounterSample
	for _, r := range results {
		switch r.State {
		case schedule.Completed:
			summary.Completed++
			runSamples, err := parser.Parse(r.Handle)
			if err != nil {
				summary.Excluded++
				slog.Warn("run excluded from aggregation", slog.String("run", r.Descriptor.ID()), slog.String("error", err.Error()))
				continue
			}
			samples = append(samples, runSamples...)
		default:
			summary.Failed++
			if !r.Launched() {
				var launchErr *launch.LaunchError
				if errors.As(r.Err, &launchErr) {
					summary.LaunchFailures++
				} else {
					summary.Interrupted++
				}
				continue
			}
			if partial, err := parser.Parse(r.Handle); err == nil {
				slog.Debug("partial samples of failed run", slog.String("run", r.Descriptor.ID()), slog.Int("samples", len(partial)))
			}
		}
	}
	summary.Results = Aggregate(samples, derived...)
	return summary
}
