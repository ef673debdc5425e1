package report

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"

	"github.com/xuri/excelize/v2"
)

func cellName(col int, row int) (name string) {
	columnName, err := excelize.ColumnNumberToName(col)
	if err != nil {
		return
	}
	name, err = excelize.JoinCellName(columnName, row)
	if err != nil {
		return
	}
	return
}

// numeric cells are written as numbers so spreadsheets can compute on them
func getValueForCell(value string) any {
	if value == "" {
		return value
	}
	if v, err := strconv.ParseFloat(value, 64); err == nil {
		return v
	}
	return value
}

func renderXlsxTable(tableValues TableValues, f *excelize.File, sheetName string, row *int) {
	col := 1
	// print the table name
	tableNameStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{
			Bold: true,
		},
	})
	_ = f.SetCellValue(sheetName, cellName(col, *row), tableValues.Name)
	_ = f.SetCellStyle(sheetName, cellName(col, *row), cellName(col, *row), tableNameStyle)
	*row++
	if len(tableValues.Fields) == 0 || len(tableValues.Fields[0].Values) == 0 {
		_ = f.SetCellValue(sheetName, cellName(col, *row), NoDataFound)
		*row += 2
		return
	}
	DefaultXlsxTableRendererFunc(tableValues, f, sheetName, row)
	*row++
}

func DefaultXlsxTableRendererFunc(tableValues TableValues, f *excelize.File, sheetName string, row *int) {
	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{
			Bold: true,
		},
	})
	alignLeft, _ := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{
			Horizontal: "left",
		},
	})
	if tableValues.HasRows {
		// print the field names as column headings across the top of the table
		col := 1
		for _, field := range tableValues.Fields {
			_ = f.SetCellValue(sheetName, cellName(col, *row), field.Name)
			_ = f.SetCellStyle(sheetName, cellName(col, *row), cellName(col, *row), headerStyle)
			col++
		}
		*row++
		// print the rows
		tableRows := len(tableValues.Fields[0].Values)
		for tableRow := range tableRows {
			col = 1
			for _, field := range tableValues.Fields {
				_ = f.SetCellValue(sheetName, cellName(col, *row), getValueForCell(field.Values[tableRow]))
				_ = f.SetCellStyle(sheetName, cellName(col, *row), cellName(col, *row), alignLeft)
				col++
			}
			*row++
		}
	} else {
		// print the field name followed by its value
		for _, field := range tableValues.Fields {
			var fieldValue string
			if len(field.Values) > 0 {
				fieldValue = field.Values[0]
			}
			_ = f.SetCellValue(sheetName, cellName(1, *row), field.Name)
			_ = f.SetCellValue(sheetName, cellName(2, *row), getValueForCell(fieldValue))
			_ = f.SetCellStyle(sheetName, cellName(2, *row), cellName(2, *row), alignLeft)
			*row++
		}
	}
}

const XlsxPrimarySheetName = "Summary"

func createXlsxReport(allTableValues []TableValues) (out []byte, err error) {
	f := excelize.NewFile()
	defer f.Close()
	sheetName := XlsxPrimarySheetName
	_ = f.SetSheetName("Sheet1", sheetName)
	_ = f.SetColWidth(sheetName, "A", "A", 25)
	_ = f.SetColWidth(sheetName, "B", "G", 18)
	row := 1
	for _, tableValues := range allTableValues {
		renderXlsxTable(tableValues, f, sheetName, &row)
	}
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	if _, err = f.WriteTo(w); err != nil {
		err = fmt.Errorf("failed to write xlsx summary to buffer: %v", err)
		return
	}
	if err = w.Flush(); err != nil {
		return
	}
	out = buf.Bytes()
	return
}
