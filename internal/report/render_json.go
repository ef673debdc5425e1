package report

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"encoding/json"

	"benchrun/internal/aggregate"
)

func createJsonReport(summary aggregate.Summary) (out []byte, err error) {
	if summary.Results == nil {
		summary.Results = []aggregate.AggregateResult{}
	}
	return json.MarshalIndent(summary, "", " ")
}
