// Package geo reprojects address geometries from the Dutch national grid
// (RD New) to WGS84 longitude/latitude.
package geo

import (
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// Reprojector converts geometries from RD New to WGS84. A disabled
// Reprojector passes coordinates through untouched; use it when the
// conversion tool has already projected the data.
type Reprojector struct {
	Enabled bool
}

// NewReprojector returns a Reprojector that reprojects only when enabled.
func NewReprojector(enabled bool) Reprojector {
	return Reprojector{Enabled: enabled}
}

// Reproject rewrites the XY ordinates of g in place. Any Z or M ordinates are
// left as they are. Nil and empty geometries are a no-op.
func (r Reprojector) Reproject(g geom.T) error {
	if !r.Enabled || g == nil {
		return nil
	}
	if gc, ok := g.(*geom.GeometryCollection); ok {
		for _, member := range gc.Geoms() {
			if err := r.Reproject(member); err != nil {
				return err
			}
		}
		return nil
	}
	flat := g.FlatCoords()
	stride := g.Stride()
	if stride < 2 {
		return nil
	}
	if len(flat)%stride != 0 {
		return eris.Errorf("geo: %d flat coords not a multiple of stride %d", len(flat), stride)
	}
	for i := 0; i < len(flat); i += stride {
		x, y := flat[i], flat[i+1]
		if !finite(x) || !finite(y) {
			return eris.Errorf("geo: non-finite coordinate (%v, %v)", x, y)
		}
		flat[i], flat[i+1] = RDToWGS84(x, y)
	}
	return nil
}

// Coord reprojects a single RD New pair, or returns it unchanged when disabled.
func (r Reprojector) Coord(x, y float64) (float64, float64) {
	if !r.Enabled {
		return x, y
	}
	return RDToWGS84(x, y)
}

// FirstXY returns the first coordinate pair of g.
func FirstXY(g geom.T) (x, y float64, ok bool) {
	if gc, isGC := g.(*geom.GeometryCollection); isGC {
		for _, member := range gc.Geoms() {
			if x, y, ok = FirstXY(member); ok {
				return x, y, true
			}
		}
		return 0, 0, false
	}
	if g == nil || g.Stride() < 2 {
		return 0, 0, false
	}
	flat := g.FlatCoords()
	if len(flat) < 2 {
		return 0, 0, false
	}
	return flat[0], flat[1], true
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
