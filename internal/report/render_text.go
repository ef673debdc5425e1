package report

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func createTextReport(allTableValues []TableValues) (out []byte, err error) {
	var sb strings.Builder
	for _, tableValues := range allTableValues {
		sb.WriteString(fmt.Sprintf("%s\n", tableValues.Name))
		sb.WriteString(strings.Repeat("=", len(tableValues.Name)))
		sb.WriteString("\n")
		if len(tableValues.Fields) == 0 || len(tableValues.Fields[0].Values) == 0 {
			sb.WriteString(NoDataFound + "\n\n")
			continue
		}
		sb.WriteString(DefaultTextTableRendererFunc(tableValues))
		sb.WriteString("\n")
	}
	out = []byte(sb.String())
	return
}

func newPrinter() *message.Printer {
	return message.NewPrinter(language.English) // use printer to get commas at thousands
}

// groupDigits adds thousands separators to numeric values, e.g., 1234567.5 -> 1,234,567.5
func groupDigits(p *message.Printer, value string) string {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return value
	}
	decimals := 0
	if i := strings.IndexByte(value, '.'); i >= 0 {
		decimals = len(value) - i - 1
	}
	return p.Sprintf(fmt.Sprintf("%%.%df", decimals), v)
}

func DefaultTextTableRendererFunc(tableValues TableValues) string {
	p := newPrinter()
	fields := make([]Field, len(tableValues.Fields))
	for i, field := range tableValues.Fields {
		fields[i] = Field{Name: field.Name, Values: make([]string, len(field.Values))}
		for j, value := range field.Values {
			if tableValues.Numeric[field.Name] {
				value = groupDigits(p, value)
			}
			fields[i].Values[j] = value
		}
	}
	var sb strings.Builder
	if tableValues.HasRows { // print the field names as column headings across the top of the table
		// find the longest item per column -- can be the field name (column header) or a value
		maxFieldLen := make([]int, len(fields))
		for i, field := range fields {
			// the last column shouldn't occupy more space than the value
			if i == len(fields)-1 {
				continue
			}
			maxFieldLen[i] = len(field.Name)
			for _, val := range field.Values {
				maxFieldLen[i] = max(maxFieldLen[i], len(val))
			}
		}
		columnSpacing := 3
		var header, underline []string
		for i, field := range fields {
			header = append(header, fmt.Sprintf("%-*s", maxFieldLen[i]+columnSpacing, field.Name))
			underline = append(underline, fmt.Sprintf("%-*s", maxFieldLen[i]+columnSpacing, strings.Repeat("-", len(field.Name))))
		}
		sb.WriteString(strings.TrimRight(strings.Join(header, ""), " ") + "\n")
		sb.WriteString(strings.TrimRight(strings.Join(underline, ""), " ") + "\n")
		// print the rows
		numRows := len(fields[0].Values)
		for row := range numRows {
			var line strings.Builder
			for i, field := range fields {
				line.WriteString(fmt.Sprintf("%-*s", maxFieldLen[i]+columnSpacing, field.Values[row]))
			}
			sb.WriteString(strings.TrimRight(line.String(), " ") + "\n")
		}
	} else {
		// get the longest field name to format the table nicely
		maxFieldNameLen := 0
		for _, field := range fields {
			maxFieldNameLen = max(maxFieldNameLen, len(field.Name))
		}
		// print the field names followed by their value
		for _, field := range fields {
			var value string
			if len(field.Values) > 0 {
				value = field.Values[0]
			}
			sb.WriteString(fmt.Sprintf("%s%-*s %s\n", field.Name, maxFieldNameLen-len(field.Name)+1, ":", value))
		}
	}
	return sb.String()
}
