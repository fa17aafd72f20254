// Package region maps the column labels found in exports to canonical jurisdiction names.
package region

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// builtinAliases covers the abbreviated and historical labels the portal has used.
var builtinAliases = map[string]string{
	"Capital Federal": "Ciudad Autónoma de Buenos Aires",
	"Sgo. del Estero": "Santiago del Estero",
	"T. del Fuego":    "Tierra del Fuego",
}

type Normalizer struct {
	aliases   map[string]string
	canonical map[string]string
}

// NewNormalizer builds a normalizer from the built-in aliases plus extra ones, which win on
// equal labels. Labels matching one of the canonical names up to case, accents and repeated
// whitespace are rewritten to that name's spelling.
func NewNormalizer(extra map[string]string, canonical ...string) *Normalizer {
	n := &Normalizer{
		aliases:   make(map[string]string, len(builtinAliases)+len(extra)),
		canonical: make(map[string]string, len(canonical)),
	}
	for raw, name := range builtinAliases {
		n.aliases[fold(raw)] = name
	}
	for raw, name := range extra {
		if k := fold(raw); k != "" && strings.TrimSpace(name) != "" {
			n.aliases[k] = collapse(name)
		}
	}
	for _, name := range canonical {
		n.canonical[fold(name)] = name
	}
	return n
}

// Normalize returns the canonical name for label. Unknown labels pass through trimmed.
func (n *Normalizer) Normalize(label string) string {
	clean := collapse(label)
	k := fold(clean)
	if name, ok := n.aliases[k]; ok {
		return name
	}
	if name, ok := n.canonical[k]; ok {
		return name
	}
	return clean
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func fold(s string) string {
	stripped, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), s)
	if err != nil {
		stripped = s
	}
	return strings.ToLower(collapse(stripped))
}
