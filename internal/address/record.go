package address

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/bagload/internal/geo"
)

// Fallback selects the value used for the municipality when no reference
// matches.
type Fallback string

const (
	// FallbackTown uses the feature's place name. This mirrors the records
	// already loaded by earlier runs.
	FallbackTown Fallback = "town"
	// FallbackMunicipality uses the feature's municipality name.
	FallbackMunicipality Fallback = "municipality"
)

// ParseFallback validates a fallback name; "" selects FallbackTown.
func ParseFallback(s string) (Fallback, error) {
	switch Fallback(strings.ToLower(strings.TrimSpace(s))) {
	case "", FallbackTown:
		return FallbackTown, nil
	case FallbackMunicipality:
		return FallbackMunicipality, nil
	default:
		return "", eris.Errorf("address: unknown municipality fallback %q", s)
	}
}

// Record is the canonical address written to staged files and the store.
// JSON names match the documents of the ADDRESS collection.
type Record struct {
	ID               string            `json:"_id"`
	BuildingNumber   string            `json:"buildingNumber"`
	Street           string            `json:"street"`
	Postcode         string            `json:"postcode"`
	Town             string            `json:"town"`
	Latitude         float64           `json:"latitude"`
	Longitude        float64           `json:"longitude"`
	Municipality     string            `json:"municipality"`
	HouseNumber      string            `json:"huisNummer"`
	HouseLetter      string            `json:"huisLetter"`
	Addition         string            `json:"toEvoeging"`
	StreetName       string            `json:"straatNaam"`
	PlaceName        string            `json:"woonplaats"`
	MunicipalityName string            `json:"gemeente"`
	Geometry         *geojson.Geometry `json:"geometry"`
}

// BuildingNumber joins the non-empty parts with "-" and uppercases the result,
// e.g. ("12", "a", "") → "12-A".
func BuildingNumber(number, letter, addition string) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{number, letter, addition} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.ToUpper(strings.Join(parts, "-"))
}

// canonicalizer builds records for one file. It owns a text caser, which is
// not safe for concurrent use, so each transform gets its own.
type canonicalizer struct {
	lookup      *Lookup
	reprojector geo.Reprojector
	fallback    Fallback
	upper       cases.Caser
}

func newCanonicalizer(lookup *Lookup, r geo.Reprojector, fb Fallback) *canonicalizer {
	if fb == "" {
		fb = FallbackTown
	}
	return &canonicalizer{
		lookup:      lookup,
		reprojector: r,
		fallback:    fb,
		upper:       cases.Upper(language.Dutch),
	}
}

func (c *canonicalizer) up(a Attr) string {
	if a == "" {
		return ""
	}
	return c.upper.String(norm.NFC.String(string(a)))
}

// record converts an eligible feature. ok is false when the feature has no
// usable geometry or properties.
func (c *canonicalizer) record(f Feature) (rec Record, ok bool, err error) {
	p := f.Properties
	if p == nil || f.Geometry == nil {
		return Record{}, false, nil
	}

	g, err := f.Geometry.Decode()
	if err != nil {
		return Record{}, false, eris.Wrapf(err, "address: decode geometry of %s", p.ID)
	}
	if err := c.reprojector.Reproject(g); err != nil {
		return Record{}, false, eris.Wrapf(err, "address: reproject %s", p.ID)
	}
	lon, lat, ok := geo.FirstXY(g)
	if !ok {
		return Record{}, false, nil
	}

	town, municipality := p.PlaceName, p.PlaceName
	if c.fallback == FallbackMunicipality {
		municipality = p.MunicipalityName
	}
	if ref, found := c.lookup.Find(string(p.PlaceName), string(p.MunicipalityName)); found {
		town, municipality = Attr(ref.TownCommon), Attr(ref.MunicipalCommon)
	}

	geometry := f.Geometry
	if c.reprojector.Enabled {
		if geometry, err = geojson.Encode(g); err != nil {
			return Record{}, false, eris.Wrapf(err, "address: encode geometry of %s", p.ID)
		}
	}

	return Record{
		ID:               string(p.ID),
		BuildingNumber:   BuildingNumber(string(p.HouseNumber), string(p.HouseLetter), string(p.Addition)),
		Street:           c.up(p.StreetName),
		Postcode:         c.up(p.Postcode),
		Town:             c.up(town),
		Latitude:         lat,
		Longitude:        lon,
		Municipality:     c.up(municipality),
		HouseNumber:      c.up(p.HouseNumber),
		HouseLetter:      c.up(p.HouseLetter),
		Addition:         c.up(p.Addition),
		StreetName:       string(p.StreetName),
		PlaceName:        string(p.PlaceName),
		MunicipalityName: string(p.MunicipalityName),
		Geometry:         geometry,
	}, true, nil
}
