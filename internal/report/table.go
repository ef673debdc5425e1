package report

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"strconv"

	"benchrun/internal/aggregate"
)

// Field represents the values for a field in a table
type Field struct {
	Name   string
	Values []string
}

// TableValues is a named set of fields. Tables with rows show one column per
// field, the others one 'name: value' line per field.
type TableValues struct {
	Name    string
	HasRows bool
	Fields  []Field
	// Numeric marks fields whose values are rendered with digit grouping.
	Numeric map[string]bool
}

const (
	ResultsTableName = "Results"
	RunsTableName    = "Runs"
)

func summaryTables(summary aggregate.Summary) []TableValues {
	results := TableValues{
		Name:    ResultsTableName,
		HasRows: true,
		Fields: []Field{
			{Name: "Workload"},
			{Name: "Counter"},
			{Name: "Mean"},
			{Name: "Samples"},
			{Name: "Min"},
			{Name: "Max"},
			{Name: "StdDev"},
		},
		Numeric: map[string]bool{"Mean": true, "Min": true, "Max": true, "StdDev": true},
	}
	for _, r := range summary.Results {
		samples := strconv.Itoa(r.SampleCount)
		spread := []string{FormatValue(r.Min), FormatValue(r.Max), FormatValue(r.StdDev)}
		if r.Derived {
			samples = "derived"
			spread = []string{"", "", ""}
		}
		values := append([]string{r.Workload, r.Counter, FormatValue(r.Mean), samples}, spread...)
		for i := range results.Fields {
			results.Fields[i].Values = append(results.Fields[i].Values, values[i])
		}
	}
	runs := TableValues{
		Name: RunsTableName,
		Fields: []Field{
			{Name: "Runs", Values: []string{strconv.Itoa(summary.Runs)}},
			{Name: "Completed", Values: []string{strconv.Itoa(summary.Completed)}},
			{Name: "Failed", Values: []string{strconv.Itoa(summary.Failed)}},
			{Name: "Launch Failures", Values: []string{strconv.Itoa(summary.LaunchFailures)}},
			{Name: "Excluded", Values: []string{strconv.Itoa(summary.Excluded)}},
		},
	}
	return []TableValues{results, runs}
}
