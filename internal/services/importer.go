package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"math"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/voicetory/apiserver/types"
)

const (
	columnName         = "name"
	columnQuantity     = "quantity"
	columnCostPrice    = "cost_price"
	columnSellingPrice = "selling_price"
	columnTotalValue   = "total_value"
	columnProfit       = "profit"
)

var requiredColumns = []string{columnName, columnQuantity, columnCostPrice, columnSellingPrice}

// ObjectPutter is satisfied by *storage.Storage.
type ObjectPutter interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
}

// RowError is one rejected import row. Row is 1-based among the data rows.
// It encodes as the "Row N: message" string clients display.
type RowError struct {
	Row     int
	Message string
}

func (e RowError) String() string {
	return fmt.Sprintf("Row %d: %s", e.Row, e.Message)
}

func (e RowError) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

func (e *RowError) UnmarshalText(text []byte) error {
	rest, ok := strings.CutPrefix(string(text), "Row ")
	if !ok {
		return fmt.Errorf("invalid row error %q", text)
	}
	number, message, ok := strings.Cut(rest, ": ")
	if !ok {
		return fmt.Errorf("invalid row error %q", text)
	}
	row, err := strconv.Atoi(number)
	if err != nil {
		return fmt.Errorf("invalid row number in %q: %w", text, err)
	}
	e.Row = row
	e.Message = message
	return nil
}

// ImportReport summarizes a processed batch. A report is returned even when
// some rows failed.
type ImportReport struct {
	Imported int        `json:"imported"`
	Updated  int        `json:"updated"`
	Errors   []RowError `json:"errors"`
	Message  string     `json:"message"`
}

// ImportService merges spreadsheet rows into the ledger.
type ImportService struct {
	ledger  *LedgerService
	archive ObjectPutter
	now     func() time.Time
}

func NewImportService(ledger *LedgerService) *ImportService {
	return &ImportService{ledger: ledger, now: time.Now}
}

// ArchiveUploads stores every raw upload passed to ImportFile in archive.
func (s *ImportService) ArchiveUploads(archive ObjectPutter) {
	s.archive = archive
}

// ImportFile decodes an uploaded spreadsheet, archives it when configured and imports it.
func (s *ImportService) ImportFile(ctx context.Context, owner, filename string, data []byte) (ImportReport, error) {
	sheet, err := DecodeSpreadsheet(filename, data)
	if err != nil {
		return ImportReport{}, err
	}
	s.archiveUpload(ctx, owner, filename, data)
	return s.Import(ctx, owner, sheet)
}

// Import processes rows one at a time. An invalid row is reported and skipped;
// rows already applied stay applied.
func (s *ImportService) Import(ctx context.Context, owner string, sheet Sheet) (ImportReport, error) {
	var missing []string
	for _, column := range requiredColumns {
		if !sheet.HasColumn(column) {
			missing = append(missing, column)
		}
	}
	if len(missing) > 0 {
		return ImportReport{}, &MissingColumnsError{Columns: missing}
	}

	type candidate struct {
		number int
		cells  map[string]string
	}
	candidates := make([]candidate, 0, len(sheet.Rows))
	for i, cells := range sheet.Rows {
		if strings.TrimSpace(cells[columnName]) == "" || strings.TrimSpace(cells[columnQuantity]) == "" {
			continue
		}
		candidates = append(candidates, candidate{number: i + 1, cells: cells})
	}
	if len(candidates) == 0 {
		return ImportReport{}, ErrNoValidRows
	}

	existing, err := s.ledger.List(ctx, owner)
	if err != nil {
		return ImportReport{}, err
	}
	// normalized name -> stored display name. An empty owner lists every
	// scope, so only the rows of owner itself can be merged into.
	known := make(map[string]string, len(existing))
	for _, product := range existing {
		if product.OwnerID != owner {
			continue
		}
		known[NormalizeProductName(product.Name)] = product.Name
	}

	hasTotal := sheet.HasColumn(columnTotalValue)
	hasProfit := sheet.HasColumn(columnProfit)

	report := ImportReport{Errors: make([]RowError, 0)}
	for _, c := range candidates {
		row, rowErr := parseImportRow(c.cells, hasTotal, hasProfit)
		if rowErr != "" {
			report.Errors = append(report.Errors, RowError{Row: c.number, Message: rowErr})
			continue
		}

		normalized := NormalizeProductName(row.name)
		target, isUpdate := known[normalized]
		if !isUpdate {
			target = row.name
		}

		if _, err := s.ledger.Add(ctx, owner, target, row.quantity, &row.financials); err != nil {
			verb := "add"
			if isUpdate {
				verb = "update"
			}
			log.Printf("import: row %d for %q failed: %v", c.number, owner, err)
			report.Errors = append(report.Errors, RowError{
				Row:     c.number,
				Message: fmt.Sprintf("Failed to %s %s: %v", verb, row.name, err),
			})
			continue
		}

		if isUpdate {
			report.Updated++
		} else {
			report.Imported++
			known[normalized] = target
		}
	}

	report.Message = summarize(report)
	return report, nil
}

type importRow struct {
	name       string
	quantity   int
	financials types.Financials
}

func parseImportRow(cells map[string]string, hasTotal, hasProfit bool) (importRow, string) {
	name := strings.TrimSpace(cells[columnName])
	quantityValue, _ := parseNumber(cells[columnQuantity])
	quantity := int(quantityValue)
	cost, _ := parseNumber(cells[columnCostPrice])
	selling, _ := parseNumber(cells[columnSellingPrice])

	total := float64(quantity) * selling
	if hasTotal {
		if v, ok := parseNumber(cells[columnTotalValue]); ok {
			total = v
		}
	}
	profit := (selling - cost) * float64(quantity)
	if hasProfit {
		if v, ok := parseNumber(cells[columnProfit]); ok {
			profit = v
		}
	}

	if name == "" || quantity <= 0 || quantityValue > MaxQuantity {
		return importRow{}, "Invalid name or quantity"
	}
	if cost < 0 || selling < 0 || total < 0 || profit < 0 {
		return importRow{}, "Financial values cannot be negative"
	}
	if selling <= cost {
		return importRow{}, "Selling price should be greater than cost price"
	}

	return importRow{
		name:     name,
		quantity: quantity,
		financials: types.Financials{
			CostPrice:    &cost,
			SellingPrice: &selling,
			TotalValue:   &total,
			Profit:       &profit,
		},
	}, ""
}

// parseNumber accepts spreadsheet numbers such as "10", "10.0" or "1,250.50".
func parseNumber(raw string) (float64, bool) {
	raw = strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func summarize(report ImportReport) string {
	var parts []string
	if report.Imported > 0 {
		parts = append(parts, fmt.Sprintf("Imported %d new products", report.Imported))
	}
	if report.Updated > 0 {
		parts = append(parts, fmt.Sprintf("Updated %d existing products", report.Updated))
	}
	if len(report.Errors) > 0 {
		parts = append(parts, fmt.Sprintf("Encountered %d errors", len(report.Errors)))
	}
	if len(parts) == 0 {
		return "Nothing to import"
	}
	return strings.Join(parts, ", ")
}

func (s *ImportService) archiveUpload(ctx context.Context, owner, filename string, data []byte) {
	if s.archive == nil {
		return
	}
	scopeName := owner
	if scopeName == "" {
		scopeName = "global"
	}
	key := fmt.Sprintf("imports/%s/%s-%s", scopeName, s.now().UTC().Format("20060102T150405Z"), path.Base(filename))
	if err := s.archive.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentTypeFor(filename)); err != nil {
		log.Printf("import: archive %s failed: %v", key, err)
	}
}

func contentTypeFor(filename string) string {
	if strings.HasSuffix(strings.ToLower(filename), ".csv") {
		return "text/csv"
	}
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}
