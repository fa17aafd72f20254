package parser

import (
	"fmt"
	"strings"

	"github.com/gpazo-prog/scraper-enargas/internal/models"
)

// ExtractOptions describe where the data sits inside an export.
type ExtractOptions struct {
	// HeaderRow is the zero-based row holding the region labels.
	HeaderRow int
	// HTMLTableIndex selects the table in markup exports. The portal emits a navigation
	// table first, so the data lives at index 1.
	HTMLTableIndex int
	// RequiredHeader must appear in the header row; it guards against layout changes on
	// the source site. Empty disables the check.
	RequiredHeader string
}

func DefaultExtractOptions() ExtractOptions {
	return ExtractOptions{HeaderRow: 0, HTMLTableIndex: 1, RequiredHeader: "Mes"}
}

type Extractor struct {
	opts ExtractOptions
}

func NewExtractor(opts ExtractOptions) *Extractor {
	return &Extractor{opts: opts}
}

// Extract parses the payload according to its classification and returns the normalized table.
// Every failure wraps models.ErrUnparseableTable.
func (e *Extractor) Extract(data []byte, kind models.PayloadKind) (*models.Table, error) {
	var (
		grid [][]string
		err  error
	)

	if kind == models.MarkupDisguised {
		grid, err = readHTMLTable(data, e.opts.HTMLTableIndex)
	} else {
		switch DetectSpreadsheetFormat(data) {
		case FormatXLS:
			grid, err = readXLS(data)
		case FormatXLSX:
			grid, err = readXLSX(data)
		default:
			err = fmt.Errorf("unrecognised spreadsheet container")
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrUnparseableTable, err)
	}

	table, err := buildTable(grid, e.opts.HeaderRow)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrUnparseableTable, err)
	}
	if err := checkLayout(table, e.opts.RequiredHeader); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrUnparseableTable, err)
	}
	return table, nil
}

func buildTable(grid [][]string, headerRow int) (*models.Table, error) {
	if headerRow >= len(grid) {
		return nil, fmt.Errorf("header row %d out of range (%d rows)", headerRow, len(grid))
	}

	header := make([]string, len(grid[headerRow]))
	for i, cell := range grid[headerRow] {
		header[i] = cleanCell(cell)
	}
	// Trailing blank header cells are formatting noise.
	for len(header) > 0 && header[len(header)-1] == "" {
		header = header[:len(header)-1]
	}
	if len(header) == 0 {
		return nil, fmt.Errorf("header row %d is empty", headerRow)
	}

	table := &models.Table{Header: header}
	for _, raw := range grid[headerRow+1:] {
		if isBlankRow(raw) {
			continue
		}
		row := make([]string, len(header))
		for i := range header {
			if i < len(raw) {
				row[i] = cleanCell(raw[i])
			}
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

func checkLayout(table *models.Table, requiredHeader string) error {
	if len(table.Header) < 2 {
		return fmt.Errorf("layout changed: expected a time column and region columns, got %v", table.Header)
	}
	if len(table.Rows) == 0 {
		return fmt.Errorf("table has a header but no data rows")
	}
	if requiredHeader == "" {
		return nil
	}
	for _, label := range table.Header {
		if strings.EqualFold(label, requiredHeader) {
			return nil
		}
	}
	return fmt.Errorf("layout changed: header %v lacks %q column", table.Header, requiredHeader)
}

func cleanCell(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
