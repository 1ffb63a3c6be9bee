package services

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Sheet is a decoded spreadsheet: lower-cased header names and one cell map
// per data row, in file order. Blank rows are kept so row numbers stay stable.
type Sheet struct {
	Columns []string
	Rows    []map[string]string
}

// HasColumn reports whether the header contains name.
func (s Sheet) HasColumn(name string) bool {
	for _, column := range s.Columns {
		if column == name {
			return true
		}
	}
	return false
}

// DecodeSpreadsheet reads the first sheet of an .xlsx file or a .csv file.
// Failures are *SpreadsheetError.
func DecodeSpreadsheet(filename string, data []byte) (Sheet, error) {
	sheet, err := decodeSpreadsheet(filename, data)
	if err != nil {
		return Sheet{}, &SpreadsheetError{Err: err}
	}
	return sheet, nil
}

func decodeSpreadsheet(filename string, data []byte) (Sheet, error) {
	if len(data) == 0 {
		return Sheet{}, errors.New("empty spreadsheet")
	}

	lower := strings.ToLower(strings.TrimSpace(filename))
	switch {
	case strings.HasSuffix(lower, ".xlsx"):
		return decodeXLSX(data)
	case strings.HasSuffix(lower, ".csv"):
		return decodeCSV(data)
	case strings.HasSuffix(lower, ".xls"):
		return Sheet{}, errors.New("legacy .xls files are not supported, save as .xlsx")
	default:
		return Sheet{}, errors.New("invalid file format. Please upload .xlsx or .csv file")
	}
}

func decodeXLSX(data []byte) (Sheet, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return Sheet{}, fmt.Errorf("invalid xlsx file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return Sheet{}, errors.New("xlsx file has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return Sheet{}, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	return buildSheet(rows)
}

func decodeCSV(data []byte) (Sheet, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var rows [][]string
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Sheet{}, fmt.Errorf("invalid csv file: %w", err)
		}
		rows = append(rows, record)
	}
	return buildSheet(rows)
}

func buildSheet(rows [][]string) (Sheet, error) {
	if len(rows) == 0 {
		return Sheet{}, errors.New("spreadsheet has no header row")
	}

	header := rows[0]
	columns := make([]string, len(header))
	for i, name := range header {
		columns[i] = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\uFEFF")))
	}

	sheet := Sheet{Columns: columns, Rows: make([]map[string]string, 0, len(rows)-1)}
	for _, record := range rows[1:] {
		row := make(map[string]string, len(columns))
		for i, column := range columns {
			if column == "" || i >= len(record) {
				continue
			}
			row[column] = strings.TrimSpace(record[i])
		}
		sheet.Rows = append(sheet.Rows, row)
	}
	return sheet, nil
}
