package services

import (
	"errors"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestDecodeSpreadsheetCSV(t *testing.T) {
	data := []byte(" Name ,QUANTITY,cost_price,selling_price\nApples,10,1,2\n\nMilk,3\n")

	sheet, err := DecodeSpreadsheet("Stock.CSV", data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !sheet.HasColumn("name") || !sheet.HasColumn("quantity") {
		t.Fatalf("columns = %v, want lower-cased trimmed names", sheet.Columns)
	}
	if len(sheet.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(sheet.Rows))
	}
	if sheet.Rows[1]["name"] != "Milk" || sheet.Rows[1]["cost_price"] != "" {
		t.Fatalf("short row = %v", sheet.Rows[1])
	}
}

func TestDecodeSpreadsheetXLSX(t *testing.T) {
	f := excelize.NewFile()
	sheetName := f.GetSheetName(0)
	rows := [][]any{
		{"name", "quantity", "cost_price", "selling_price"},
		{"Apples", 10, 1.25, 2},
		{},
		{"Soap", 3, 0.5, 1},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("cell name: %v", err)
		}
		if len(row) == 0 {
			continue
		}
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			t.Fatalf("set row: %v", err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write xlsx: %v", err)
	}

	sheet, err := DecodeSpreadsheet("stock.xlsx", buf.Bytes())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(sheet.Rows) != 3 {
		t.Fatalf("rows = %d, want 3 including the blank row", len(sheet.Rows))
	}
	if sheet.Rows[0]["name"] != "Apples" || sheet.Rows[0]["cost_price"] != "1.25" {
		t.Fatalf("first row = %v", sheet.Rows[0])
	}
	if sheet.Rows[2]["name"] != "Soap" {
		t.Fatalf("third row = %v", sheet.Rows[2])
	}
}

func TestDecodeSpreadsheetRejects(t *testing.T) {
	for name, data := range map[string][]byte{
		"stock.xls":  []byte("legacy"),
		"stock.txt":  []byte("name\n"),
		"stock.xlsx": []byte("not a zip"),
		"empty.csv":  nil,
	} {
		if _, err := DecodeSpreadsheet(name, data); !errors.Is(err, ErrInvalidSpreadsheet) {
			t.Fatalf("decode %s error = %v, want ErrInvalidSpreadsheet", name, err)
		}
	}
}

func TestDecodeSpreadsheetCSVStripsByteOrderMark(t *testing.T) {
	data := []byte("\uFEFFname,quantity,cost_price,selling_price\nApples,10,1,2\n")

	sheet, err := DecodeSpreadsheet("export.csv", data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sheet.Columns[0] != "name" {
		t.Fatalf("first column = %q, want name", sheet.Columns[0])
	}
	if sheet.Rows[0]["name"] != "Apples" {
		t.Fatalf("row = %v", sheet.Rows[0])
	}
}
