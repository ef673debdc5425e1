// Package report renders a batch summary to standard output and to summary
// files in txt, csv, json and xlsx formats.
package report

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"benchrun/internal/aggregate"
)

const (
	FormatTxt  = "txt"
	FormatCsv  = "csv"
	FormatJson = "json"
	FormatXlsx = "xlsx"
	FormatAll  = "all"
)

const NoDataFound = "No data found."

var FormatOptions = []string{FormatTxt, FormatCsv, FormatJson, FormatXlsx}

// SummaryFileName is the base name of the summary files written to the output directory.
const SummaryFileName = "summary"

// FormatValue renders a value in decimal notation with the fewest digits that
// represent it exactly.
func FormatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// WriteSummary writes one '<workload> <counter> <value>' line per aggregate
// followed by a comment line with the run counts.
func WriteSummary(w io.Writer, summary aggregate.Summary) error {
	var sb strings.Builder
	for _, r := range summary.Results {
		fmt.Fprintf(&sb, "%s %s %s\n", r.Workload, r.Counter, FormatValue(r.Mean))
	}
	sb.WriteString(countsLine(summary) + "\n")
	_, err := io.WriteString(w, sb.String())
	return err
}

func countsLine(summary aggregate.Summary) string {
	line := fmt.Sprintf("# runs: %d completed: %d failed: %d excluded: %d",
		summary.Runs, summary.Completed, summary.Failed, summary.Excluded)
	if summary.WallSeconds > 0 {
		line += fmt.Sprintf(" wall-seconds: %s", FormatValue(roundMillis(summary.WallSeconds)))
		if perRep := summary.RepetitionSeconds(); perRep > 0 {
			line += fmt.Sprintf(" per-repetition: %s", FormatValue(roundMillis(perRep)))
		}
	}
	return line
}

func roundMillis(seconds float64) float64 {
	return math.Round(seconds*1000) / 1000
}

// Create renders the summary in the given format.
func Create(format string, summary aggregate.Summary) (out []byte, err error) {
	tables := summaryTables(summary)
	switch format {
	case FormatTxt:
		return createTextReport(tables)
	case FormatCsv:
		return createCsvReport(summary)
	case FormatJson:
		return createJsonReport(summary)
	case FormatXlsx:
		return createXlsxReport(tables)
	}
	return nil, fmt.Errorf("expected one of %s, got %s", strings.Join(FormatOptions, ", "), format)
}

// WriteFiles creates one summary file per format in outputDir and returns their paths.
func WriteFiles(outputDir string, formats []string, summary aggregate.Summary) (paths []string, err error) {
	for _, format := range formats {
		out, err := Create(format, summary)
		if err != nil {
			return paths, errors.Wrapf(err, "failed to create %s summary", format)
		}
		path := filepath.Join(outputDir, SummaryFileName+"."+format)
		if err := os.WriteFile(path, out, 0644); err != nil { // #nosec G306
			return paths, errors.Wrapf(err, "failed to write %s", path)
		}
		slog.Debug("wrote summary file", slog.String("path", path))
		paths = append(paths, path)
	}
	return paths, nil
}
