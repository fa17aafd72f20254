package region

import (
	"testing"

	"github.com/gpazo-prog/scraper-enargas/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestNormalizer_Normalize(t *testing.T) {
	n := NewNormalizer(nil)

	t.Run("BuiltinAliases", func(t *testing.T) {
		assert.Equal(t, "Ciudad Autónoma de Buenos Aires", n.Normalize("Capital Federal"))
		assert.Equal(t, "Santiago del Estero", n.Normalize("Sgo. del Estero"))
		assert.Equal(t, "Tierra del Fuego", n.Normalize("T. del Fuego"))
	})

	t.Run("WhitespaceAndCase", func(t *testing.T) {
		assert.Equal(t, "Ciudad Autónoma de Buenos Aires", n.Normalize("  capital   FEDERAL "))
	})

	t.Run("PassThrough", func(t *testing.T) {
		assert.Equal(t, "Buenos Aires", n.Normalize("Buenos Aires"))
		assert.Equal(t, "Atlántida", n.Normalize(" Atlántida "))
	})
}

func TestNormalizer_CanonicalSpelling(t *testing.T) {
	n := NewNormalizer(nil, models.Jurisdictions[:]...)

	assert.Equal(t, "Córdoba", n.Normalize("Cordoba"))
	assert.Equal(t, "Río Negro", n.Normalize("RIO NEGRO"))
	assert.Equal(t, "Neuquén", n.Normalize("Neuquén"))
	assert.Equal(t, "Ciudad Autónoma de Buenos Aires", n.Normalize("Capital Federal"))
	assert.Equal(t, "Atlántida", n.Normalize("Atlántida"))
}

func TestNormalizer_ExtraAliases(t *testing.T) {
	n := NewNormalizer(map[string]string{
		"CABA":            "Ciudad Autónoma de Buenos Aires",
		"Capital Federal": "CABA override",
		"ignored":         "  ",
	})

	assert.Equal(t, "Ciudad Autónoma de Buenos Aires", n.Normalize("caba"))
	assert.Equal(t, "CABA override", n.Normalize("Capital Federal"))
	assert.Equal(t, "ignored", n.Normalize("ignored"))
	assert.Equal(t, "Santiago del Estero", n.Normalize("Sgo. del Estero"))
}
