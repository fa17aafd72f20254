package parser

import (
	"bytes"

	"github.com/gpazo-prog/scraper-enargas/internal/models"
)

const sniffLen = 1024

var markupSignatures = [][]byte{
	[]byte("<html"),
	[]byte("<table"),
	[]byte("<!doctype html"),
}

// Classify tells a genuine spreadsheet from an HTML export saved with a spreadsheet
// extension. Only the first KiB is inspected.
func Classify(data []byte) models.PayloadKind {
	head := data
	if len(head) > sniffLen {
		head = head[:sniffLen]
	}
	head = bytes.ToLower(head)
	for _, sig := range markupSignatures {
		if bytes.Contains(head, sig) {
			return models.MarkupDisguised
		}
	}
	return models.Spreadsheet
}

type SpreadsheetFormat int

const (
	FormatUnknown SpreadsheetFormat = iota
	FormatXLS
	FormatXLSX
)

var (
	oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
	zipMagic = []byte{'P', 'K', 0x03, 0x04}
)

// DetectSpreadsheetFormat picks the binary container by magic bytes; the portal names
// everything .xls regardless of content.
func DetectSpreadsheetFormat(data []byte) SpreadsheetFormat {
	switch {
	case bytes.HasPrefix(data, oleMagic):
		return FormatXLS
	case bytes.HasPrefix(data, zipMagic):
		return FormatXLSX
	default:
		return FormatUnknown
	}
}
