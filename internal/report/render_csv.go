package report

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"bytes"
	"encoding/csv"
	"strconv"

	"benchrun/internal/aggregate"
)

var csvHeader = []string{"workload", "counter", "mean", "samples", "min", "max", "stddev", "derived"}

func createCsvReport(summary aggregate.Summary) (out []byte, err error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err = w.Write(csvHeader); err != nil {
		return
	}
	for _, r := range summary.Results {
		record := []string{
			r.Workload,
			r.Counter,
			FormatValue(r.Mean),
			strconv.Itoa(r.SampleCount),
			FormatValue(r.Min),
			FormatValue(r.Max),
			FormatValue(r.StdDev),
			strconv.FormatBool(r.Derived),
		}
		if err = w.Write(record); err != nil {
			return
		}
	}
	w.Flush()
	if err = w.Error(); err != nil {
		return
	}
	out = buf.Bytes()
	return
}
