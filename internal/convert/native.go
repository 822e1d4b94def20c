package convert

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"golang.org/x/text/encoding/charmap"

	"github.com/sells-group/bagload/internal/geo"
)

// Native converts shapefiles in-process. It needs no GDAL installation.
type Native struct {
	reprojector geo.Reprojector
}

// NewNative creates a Native converter. When project is set, RD New
// coordinates are reprojected to WGS84 while converting.
func NewNative(project bool) *Native {
	return &Native{reprojector: geo.NewReprojector(project)}
}

// Convert reads the shapefile src and its DBF attributes and writes a GeoJSON
// feature collection to dst. dst is replaced atomically.
func (n *Native) Convert(ctx context.Context, src, dst string) error {
	if !strings.EqualFold(filepath.Ext(src), ".shp") {
		return eris.Errorf("convert: %s is not a .shp file", src)
	}
	if _, err := os.Stat(src); err != nil {
		return eris.Wrapf(err, "convert: open %s", src)
	}

	r, err := shp.Open(src)
	if err != nil {
		return eris.Wrapf(err, "convert: open %s", src)
	}
	defer r.Close() //nolint:errcheck

	// The reader panics on attribute reads without a DBF.
	var fields []shp.Field
	if _, err := os.Stat(strings.TrimSuffix(src, filepath.Ext(src)) + ".dbf"); err == nil {
		fields = r.Fields()
	}

	fc := &geojson.FeatureCollection{}
	for r.Next() {
		if len(fc.Features)%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return eris.Wrapf(err, "convert: %s", src)
			}
		}

		idx, shape := r.Shape()
		g, err := toGeom(shape)
		if err != nil {
			return eris.Wrapf(err, "convert: shape %d of %s", idx, src)
		}
		if err := n.reprojector.Reproject(g); err != nil {
			return eris.Wrapf(err, "convert: reproject shape %d of %s", idx, src)
		}

		props := make(map[string]interface{}, len(fields))
		for i, f := range fields {
			props[f.String()] = attrValue(f, r.Attribute(i))
		}
		fc.Features = append(fc.Features, &geojson.Feature{Geometry: g, Properties: props})
	}
	if err := r.Err(); err != nil {
		return eris.Wrapf(err, "convert: read %s", src)
	}

	return writeCollection(dst, fc)
}

const ctxCheckEvery = 4096

// attrValue renders a DBF value as GeoJSON. Empty strings become null and
// numeric columns become numbers where they parse.
func attrValue(f shp.Field, raw string) interface{} {
	v := strings.TrimSpace(strings.TrimRight(raw, "\x00"))
	if v == "" {
		return nil
	}
	switch f.Fieldtype {
	case 'N', 'F':
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
		if fl, err := strconv.ParseFloat(v, 64); err == nil {
			return fl
		}
	}
	if !utf8.ValidString(v) {
		if dec, err := charmap.Windows1252.NewDecoder().String(v); err == nil {
			return dec
		}
	}
	return v
}

func toGeom(s shp.Shape) (geom.T, error) {
	switch s := s.(type) {
	case *shp.Null:
		return nil, nil
	case *shp.Point:
		return geom.NewPointFlat(geom.XY, []float64{s.X, s.Y}), nil
	case *shp.PointZ:
		return geom.NewPointFlat(geom.XY, []float64{s.X, s.Y}), nil
	case *shp.PointM:
		return geom.NewPointFlat(geom.XY, []float64{s.X, s.Y}), nil
	case *shp.MultiPoint:
		return geom.NewMultiPointFlat(geom.XY, flatPoints(s.Points)), nil
	case *shp.PolyLine:
		return lineString(s.Parts, s.Points), nil
	case *shp.PolyLineZ:
		return lineString(s.Parts, s.Points), nil
	case *shp.Polygon:
		return polygon(s.Parts, s.Points), nil
	case *shp.PolygonZ:
		return polygon(s.Parts, s.Points), nil
	default:
		return nil, eris.Errorf("unsupported shape type %T", s)
	}
}

func flatPoints(pts []shp.Point) []float64 {
	flat := make([]float64, 0, 2*len(pts))
	for _, p := range pts {
		flat = append(flat, p.X, p.Y)
	}
	return flat
}

// partEnds converts shapefile part start offsets into flat-coordinate end
// offsets.
func partEnds(parts []int32, numPoints int) []int {
	ends := make([]int, 0, len(parts))
	for i := range parts {
		end := numPoints
		if i+1 < len(parts) {
			end = int(parts[i+1])
		}
		ends = append(ends, 2*end)
	}
	return ends
}

func lineString(parts []int32, pts []shp.Point) geom.T {
	ends := partEnds(parts, len(pts))
	flat := flatPoints(pts)
	if len(ends) == 1 {
		return geom.NewLineStringFlat(geom.XY, flat)
	}
	return geom.NewMultiLineStringFlat(geom.XY, flat, ends)
}

// polygon groups rings into polygons. Shapefile outer rings run clockwise and
// holes counter-clockwise; a hole belongs to the outer ring before it.
func polygon(parts []int32, pts []shp.Point) geom.T {
	flat := flatPoints(pts)
	var (
		polys [][]int
		start int
	)
	for _, end := range partEnds(parts, len(pts)) {
		if signedArea(flat[start:end]) <= 0 || len(polys) == 0 {
			polys = append(polys, []int{end})
		} else {
			last := len(polys) - 1
			polys[last] = append(polys[last], end)
		}
		start = end
	}
	if len(polys) == 1 {
		return geom.NewPolygonFlat(geom.XY, flat, polys[0])
	}
	return geom.NewMultiPolygonFlat(geom.XY, flat, polys)
}

// signedArea is positive for counter-clockwise rings.
func signedArea(ring []float64) float64 {
	var a float64
	for i := 0; i+3 < len(ring); i += 2 {
		a += ring[i]*ring[i+3] - ring[i+2]*ring[i+1]
	}
	return a / 2
}

func writeCollection(dst string, fc *geojson.FeatureCollection) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".convert-*.tmp")
	if err != nil {
		return eris.Wrapf(err, "convert: create temp file for %s", dst)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	w := bufio.NewWriterSize(tmp, 1<<20)
	if err = json.NewEncoder(w).Encode(fc); err != nil {
		return eris.Wrapf(err, "convert: encode %s", dst)
	}
	if err = w.Flush(); err != nil {
		return eris.Wrapf(err, "convert: flush %s", dst)
	}
	if err = tmp.Close(); err != nil {
		return eris.Wrapf(err, "convert: close %s", dst)
	}
	if err = os.Rename(tmp.Name(), dst); err != nil {
		return eris.Wrapf(err, "convert: rename to %s", dst)
	}
	return nil
}
