package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/gpazo-prog/scraper-enargas/internal/models"
	"github.com/shopspring/decimal"
)

var (
	dotThousands   = regexp.MustCompile(`^\d{1,3}(\.\d{3})+$`)
	commaThousands = regexp.MustCompile(`^\d{1,3}(,\d{3})+$`)
)

// ParseCount turns a raw cell into a cumulative count. Empty cells and "-" count as zero;
// fractional parts are truncated.
func ParseCount(raw string) (int64, error) {
	s := strings.ReplaceAll(raw, "\u00a0", "")
	s = strings.ReplaceAll(strings.TrimSpace(s), " ", "")
	if s == "" || s == "-" {
		return 0, nil
	}

	switch {
	case dotThousands.MatchString(s):
		s = strings.ReplaceAll(s, ".", "")
	case commaThousands.MatchString(s):
		s = strings.ReplaceAll(s, ",", "")
	default:
		s = strings.ReplaceAll(s, ",", ".")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", models.ErrInvalidCount, raw)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("%w: %q is negative", models.ErrInvalidCount, raw)
	}
	return d.IntPart(), nil
}
