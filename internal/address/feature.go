// Package address turns BAG address point features into canonical address
// records and stages them as JSON for bulk loading.
package address

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// Attribute values used by the BAG eligibility flags.
const (
	flagNo = "N"
)

// Attr is a feature attribute. Conversion tools emit DBF columns as JSON
// strings or numbers depending on the column type; both decode to their text
// form and null decodes to "".
type Attr string

// UnmarshalJSON accepts a string, number, boolean or null.
func (a *Attr) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
		*a = ""
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return eris.Wrap(err, "address: decode attribute")
		}
		*a = Attr(s)
	case b[0] == '{' || b[0] == '[':
		return eris.Errorf("address: attribute must be scalar, got %s", string(b))
	default:
		*a = Attr(b)
	}
	return nil
}

// String returns the attribute text.
func (a Attr) String() string { return string(a) }

// Properties is the fixed attribute schema of a nummeraanduiding feature.
// Only ID and the four eligibility fields matter for filtering; the rest are
// optional and default to "".
type Properties struct {
	ResearchStatus   Attr `json:"ONDERZOEK"`
	Inactive         Attr `json:"INACTIEF"`
	Postcode         Attr `json:"POSTCODE"`
	EndDate          Attr `json:"DATUM_EIND"`
	HouseNumber      Attr `json:"HUISNUMMER"`
	HouseLetter      Attr `json:"HUISLETTER"`
	Addition         Attr `json:"TOEVOEGING"`
	StreetName       Attr `json:"STRAATNAAM"`
	PlaceName        Attr `json:"WOONPLAATS"`
	MunicipalityName Attr `json:"GEM_NAAM"`
	ID               Attr `json:"NUMMER_ID"`
}

// Eligible reports whether the feature is a current, verified address:
// not under investigation, active, with a postcode and no end date.
func (p *Properties) Eligible() bool {
	return p.ResearchStatus == flagNo &&
		p.Inactive == flagNo &&
		p.Postcode != "" &&
		p.EndDate == ""
}

// Feature is one GeoJSON feature. Geometry is decoded lazily so ineligible
// features never pay for it.
type Feature struct {
	Properties *Properties       `json:"properties"`
	Geometry   *geojson.Geometry `json:"geometry"`
}

// Eligible reports whether the feature should produce a record.
func (f Feature) Eligible() bool {
	return f.Properties != nil && f.Properties.Eligible()
}

type featureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

// DecodeFeatures reads a GeoJSON FeatureCollection.
func DecodeFeatures(r io.Reader) ([]Feature, error) {
	var fc featureCollection
	if err := json.NewDecoder(r).Decode(&fc); err != nil {
		return nil, eris.Wrap(err, "address: decode feature collection")
	}
	if fc.Features == nil {
		return nil, eris.New("address: feature collection has no features array")
	}
	return fc.Features, nil
}
