package models

// TotalRegionName is the catalog name of TotalRegionID.
const TotalRegionName = "Total país"

// Jurisdictions are the real regions in id order: Jurisdictions[i] is seeded with id i+1.
var Jurisdictions = [MaxRealRegionID]string{
	"Buenos Aires",
	"Catamarca",
	"Chaco",
	"Chubut",
	"Ciudad Autónoma de Buenos Aires",
	"Córdoba",
	"Corrientes",
	"Entre Ríos",
	"Formosa",
	"Jujuy",
	"La Pampa",
	"La Rioja",
	"Mendoza",
	"Misiones",
	"Neuquén",
	"Río Negro",
	"Salta",
	"San Juan",
	"San Luis",
	"Santa Cruz",
	"Santa Fe",
	"Santiago del Estero",
	"Tierra del Fuego",
	"Tucumán",
}

// CatalogSeed is an entry inserted with a fixed id.
type CatalogSeed struct {
	ID   int
	Name string
}

// RegionSeed lists every region with its fixed id, the synthetic total last.
func RegionSeed() []CatalogSeed {
	seed := make([]CatalogSeed, 0, len(Jurisdictions)+1)
	for i, name := range Jurisdictions {
		seed = append(seed, CatalogSeed{ID: i + 1, Name: name})
	}
	return append(seed, CatalogSeed{ID: TotalRegionID, Name: TotalRegionName})
}
