// Package convert turns BAG shapefiles into GeoJSON feature collections.
package convert

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/bagload/internal/config"
)

const (
	rdNewSRS = "EPSG:28992"
	wgs84SRS = "EPSG:4326"
)

// Converter converts one shapefile into a GeoJSON feature collection.
type Converter interface {
	Convert(ctx context.Context, src, dst string) error
}

// New creates a Converter based on config. Coordinates are projected during
// conversion unless reprojection happens in-process while staging.
func New(cfg config.ExtractConfig) (Converter, error) {
	project := !cfg.ReprojectInProcess
	switch cfg.Converter {
	case "ogr2ogr", "":
		return NewOgr2Ogr(cfg.Ogr2OgrPath, cfg.SourceSRS, cfg.TargetSRS, project), nil
	case "native":
		if project && !rdNewToWGS84(cfg.SourceSRS, cfg.TargetSRS) {
			return nil, eris.Errorf("convert: native converter only projects %s to %s, got %s to %s",
				rdNewSRS, wgs84SRS, cfg.SourceSRS, cfg.TargetSRS)
		}
		return NewNative(project), nil
	default:
		return nil, eris.Errorf("convert: unknown converter %q", cfg.Converter)
	}
}

func rdNewToWGS84(src, dst string) bool {
	return (src == "" || strings.EqualFold(src, rdNewSRS)) &&
		(dst == "" || strings.EqualFold(dst, wgs84SRS))
}
