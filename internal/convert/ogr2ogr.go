package convert

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strings"

	"github.com/rotisserie/eris"
)

// Ogr2Ogr converts shapefiles with the GDAL ogr2ogr CLI tool.
type Ogr2Ogr struct {
	binPath   string
	sourceSRS string
	targetSRS string
	project   bool
}

// NewOgr2Ogr creates an Ogr2Ogr converter. If binPath is empty, "ogr2ogr" is
// used. When project is set the tool reprojects from sourceSRS to targetSRS.
func NewOgr2Ogr(binPath, sourceSRS, targetSRS string, project bool) *Ogr2Ogr {
	if binPath == "" {
		binPath = "ogr2ogr"
	}
	if sourceSRS == "" {
		sourceSRS = rdNewSRS
	}
	if targetSRS == "" {
		targetSRS = wgs84SRS
	}
	return &Ogr2Ogr{binPath: binPath, sourceSRS: sourceSRS, targetSRS: targetSRS, project: project}
}

func (o *Ogr2Ogr) args(src, dst string) []string {
	var args []string
	if o.project {
		args = append(args, "-s_srs", o.sourceSRS, "-t_srs", o.targetSRS)
	}
	return append(args,
		"-f", "GeoJSON", dst, src,
		"-emptyStrAsNull", "-skipfailures", "-relaxedFieldNameMatch",
	)
}

// Convert runs ogr2ogr on src and writes the GeoJSON output to dst. An
// existing dst is removed first; the GeoJSON driver will not overwrite it.
func (o *Ogr2Ogr) Convert(ctx context.Context, src, dst string) error {
	if err := os.Remove(dst); err != nil && !os.IsNotExist(err) {
		return eris.Wrapf(err, "convert: remove stale %s", dst)
	}

	cmd := exec.CommandContext(ctx, o.binPath, o.args(src, dst)...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return eris.Wrapf(err, "convert: ogr2ogr failed for %s: %s", src, strings.TrimSpace(stderr.String()))
	}
	return nil
}
