// Package extract runs the BAG address pipeline: convert shapefiles, stage
// canonical records in parallel and bulk load them into a store.
package extract

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// File name conventions inside the data directory.
const (
	ShapefilePattern   = "nummer*.shp"
	InterchangePattern = "nummer*.json"
	StagedPattern      = "staging_*.json"
)

// Discover returns the files in dir matching pattern, sorted by name.
func Discover(dir, pattern string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, eris.Wrapf(err, "extract: glob %s", pattern)
	}
	sort.Strings(files)
	return files, nil
}

// InterchangePath returns the GeoJSON path written next to a shapefile.
func InterchangePath(shapefile string) string {
	return strings.TrimSuffix(shapefile, filepath.Ext(shapefile)) + ".json"
}

// StagedPath returns the staged file path for an interchange file:
// staging_<name>.json in dataDir.
func StagedPath(dataDir, input string) string {
	return filepath.Join(dataDir, "staging_"+stem(input)+".json")
}

func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
