package report

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"benchrun/internal/aggregate"
)

func testSummary() aggregate.Summary {
	return aggregate.Summary{
		Results: []aggregate.AggregateResult{
			{Workload: "bt.C", Counter: "time", Mean: 2.5, SampleCount: 4, Min: 2, Max: 3, StdDev: 0.5},
			{Workload: "cg.C", Counter: "cache-misses", Mean: 1234567.5, SampleCount: 2, Min: 1234567, Max: 1234568, StdDev: 0.7},
			{Workload: "cg.C", Counter: "cache-references", Mean: 10000000, SampleCount: 2, Min: 10000000, Max: 10000000},
			{Workload: "cg.C", Counter: "miss_rate", Mean: 0.12345675, Min: 0.12345675, Max: 0.12345675, Derived: true},
		},
		Runs:           10,
		Completed:      7,
		Failed:         3,
		LaunchFailures: 1,
		Excluded:       1,
	}
}

func TestWriteSummary(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSummary(&buf, testSummary()))
	assert.Equal(t, `bt.C time 2.5
cg.C cache-misses 1234567.5
cg.C cache-references 10000000
cg.C miss_rate 0.12345675
# runs: 10 completed: 7 failed: 3 excluded: 1
`, buf.String())
}

func TestWriteSummaryEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSummary(&buf, aggregate.Summary{Runs: 2, Failed: 2}))
	assert.Equal(t, "# runs: 2 completed: 0 failed: 2 excluded: 0\n", buf.String())
}

func TestWriteSummaryWallTime(t *testing.T) {
	var buf bytes.Buffer
	summary := aggregate.Summary{Runs: 4, Completed: 4, WallSeconds: 12.3456, Repetitions: 2}
	require.NoError(t, WriteSummary(&buf, summary))
	assert.Equal(t, "# runs: 4 completed: 4 failed: 0 excluded: 0 wall-seconds: 12.346 per-repetition: 6.173\n", buf.String())

	buf.Reset()
	summary.Repetitions = 0
	require.NoError(t, WriteSummary(&buf, summary))
	assert.Equal(t, "# runs: 4 completed: 4 failed: 0 excluded: 0 wall-seconds: 12.346\n", buf.String())
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "1000000", FormatValue(1e6))
	assert.Equal(t, "0.123456", FormatValue(0.123456))
	assert.Equal(t, "-3", FormatValue(-3))
}

func TestCreateText(t *testing.T) {
	out, err := Create(FormatTxt, testSummary())
	require.NoError(t, err)
	text := string(out)
	assert.Contains(t, text, "Results\n=======\n")
	assert.Contains(t, text, "1,234,567.5")
	assert.Contains(t, text, "10,000,000")
	assert.Contains(t, text, "derived")
	assert.Contains(t, text, "Launch Failures: 1\n")
}

func TestCreateTextNoResults(t *testing.T) {
	out, err := Create(FormatTxt, aggregate.Summary{Runs: 1, Failed: 1})
	require.NoError(t, err)
	assert.Contains(t, string(out), NoDataFound)
	assert.Regexp(t, `Failed:\s+1\n`, string(out))
}

func TestGroupDigits(t *testing.T) {
	p := newPrinter()
	assert.Equal(t, "1,234", groupDigits(p, "1234"))
	assert.Equal(t, "0.5", groupDigits(p, "0.5"))
	assert.Equal(t, "derived", groupDigits(p, "derived"))
}

func TestCreateCsv(t *testing.T) {
	out, err := Create(FormatCsv, testSummary())
	require.NoError(t, err)
	records, err := csv.NewReader(bytes.NewReader(out)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 5)
	assert.Equal(t, csvHeader, records[0])
	assert.Equal(t, []string{"bt.C", "time", "2.5", "4", "2", "3", "0.5", "false"}, records[1])
	assert.Equal(t, "true", records[4][7])
}

func TestCreateJson(t *testing.T) {
	out, err := Create(FormatJson, testSummary())
	require.NoError(t, err)
	var got aggregate.Summary
	require.NoError(t, json.Unmarshal(out, &got))
	assert.Equal(t, testSummary(), got)

	out, err = Create(FormatJson, aggregate.Summary{})
	require.NoError(t, err)
	assert.Contains(t, string(out), `"results": []`)
}

func TestCreateXlsx(t *testing.T) {
	out, err := Create(FormatXlsx, testSummary())
	require.NoError(t, err)
	f, err := excelize.OpenReader(bytes.NewReader(out))
	require.NoError(t, err)
	defer f.Close()
	cell := func(name string) string {
		v, err := f.GetCellValue(XlsxPrimarySheetName, name)
		require.NoError(t, err)
		return v
	}
	assert.Equal(t, ResultsTableName, cell("A1"))
	assert.Equal(t, "Workload", cell("A2"))
	assert.Equal(t, "bt.C", cell("A3"))
	assert.Equal(t, "time", cell("B3"))
	assert.Equal(t, "2.5", cell("C3"))
	assert.Equal(t, "4", cell("D3"))
}

func TestCreateUnknownFormat(t *testing.T) {
	_, err := Create("html", testSummary())
	assert.Error(t, err)
}

func TestWriteFiles(t *testing.T) {
	dir := t.TempDir()
	paths, err := WriteFiles(dir, FormatOptions, testSummary())
	require.NoError(t, err)
	require.Len(t, paths, len(FormatOptions))
	for i, format := range FormatOptions {
		assert.Equal(t, filepath.Join(dir, "summary."+format), paths[i])
		info, err := os.Stat(paths[i])
		require.NoError(t, err)
		assert.NotZero(t, info.Size())
	}

	_, err = WriteFiles(filepath.Join(dir, "missing"), []string{FormatTxt}, testSummary())
	assert.Error(t, err)
}
