package parser

import (
	"bytes"
	"fmt"
	"strconv"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// maxColspan bounds colspan expansion against hostile markup.
const maxColspan = 64

// readHTMLTable returns the cells of the index-th <table> in document order, nested tables
// included. Cells spanning several columns are repeated so rows stay aligned with the header.
func readHTMLTable(data []byte, index int) ([][]string, error) {
	if !utf8.Valid(data) {
		decoded, _, err := transform.Bytes(charmap.Windows1252.NewDecoder(), data)
		if err != nil {
			return nil, fmt.Errorf("decode windows-1252 markup: %w", err)
		}
		data = decoded
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse markup: %w", err)
	}

	tables := doc.Find("table")
	if tables.Length() == 0 {
		return nil, fmt.Errorf("markup contains no tables")
	}
	if index < 0 || index >= tables.Length() {
		return nil, fmt.Errorf("markup has %d tables, table index %d requested", tables.Length(), index)
	}
	table := tables.Eq(index)

	var grid [][]string
	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		// Rows of nested tables belong to those tables.
		if !tr.Closest("table").IsSelection(table) {
			return
		}
		var row []string
		tr.ChildrenFiltered("th, td").Each(func(_ int, cell *goquery.Selection) {
			span, err := strconv.Atoi(cell.AttrOr("colspan", "1"))
			if err != nil || span < 1 {
				span = 1
			}
			if span > maxColspan {
				span = maxColspan
			}
			text := cleanCell(cell.Text())
			for i := 0; i < span; i++ {
				row = append(row, text)
			}
		})
		grid = append(grid, row)
	})
	return grid, nil
}
