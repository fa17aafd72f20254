package parser

import (
	"fmt"
	"os"

	"github.com/gpazo-prog/scraper-enargas/internal/models"
	"github.com/gpazo-prog/scraper-enargas/pkg/checksum"
)

// Export is one downloaded file read from disk and decoded into a table.
type Export struct {
	Kind     models.PayloadKind
	Table    *models.Table
	Checksum string
}

// ReadExport loads the file at path, classifies the payload and extracts its table.
// The checksum is filled even when extraction fails so the file can still be recorded.
func (e *Extractor) ReadExport(path string) (*Export, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}

	export := &Export{
		Kind:     Classify(data),
		Checksum: checksum.CalculateCheckSum(data),
	}
	table, err := e.Extract(data, export.Kind)
	if err != nil {
		return export, fmt.Errorf("file %s (%s): %w", path, export.Kind, err)
	}
	export.Table = table
	return export, nil
}
