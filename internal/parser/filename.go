package parser

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/gpazo-prog/scraper-enargas/internal/models"
)

var filenamePattern = regexp.MustCompile(`(?i)^([a-z-]+)-(\d{8})-(\d{6})\.xlsx?$`)

// DecodeFilename recovers the practice key and retrieval timestamp from an export name such
// as conversiones-20250425-085057.xls. Directory components are ignored.
func DecodeFilename(name string) (models.ParsedFilename, error) {
	base := filepath.Base(name)
	m := filenamePattern.FindStringSubmatch(base)
	if m == nil {
		return models.ParsedFilename{}, fmt.Errorf("%w: %q does not match <practice>-<YYYYMMDD>-<HHMMSS>.xls[x]", models.ErrMalformedFilename, base)
	}

	retrieval, err := time.Parse("20060102", m[2])
	if err != nil {
		return models.ParsedFilename{}, fmt.Errorf("%w: bad date in %q: %v", models.ErrMalformedFilename, base, err)
	}
	retrievedAt, err := time.Parse("20060102150405", m[2]+m[3])
	if err != nil {
		return models.ParsedFilename{}, fmt.Errorf("%w: bad time in %q: %v", models.ErrMalformedFilename, base, err)
	}

	return models.ParsedFilename{
		PracticeKey:   strings.ToLower(m[1]),
		RetrievalDate: retrieval,
		RetrievedAt:   retrievedAt,
	}, nil
}
