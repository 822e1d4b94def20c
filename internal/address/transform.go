package address

import (
	"bufio"
	"context"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/bagload/internal/geo"
)

// ctxCheckEvery is how many features are processed between context checks.
const ctxCheckEvery = 4096

// Result summarizes one transformed file.
type Result struct {
	Features int // features in the input collection
	Eligible int // features passing the eligibility filter
	Records  int // records written to the staged file
}

// Transformer converts interchange files into staged record files.
type Transformer struct {
	Lookup      *Lookup
	Reprojector geo.Reprojector
	Fallback    Fallback
}

// NewTransformer creates a Transformer. reproject enables in-process
// reprojection from RD New; leave it off when the conversion tool projected
// the data already.
func NewTransformer(lookup *Lookup, reproject bool, fallback Fallback) *Transformer {
	return &Transformer{
		Lookup:      lookup,
		Reprojector: geo.NewReprojector(reproject),
		Fallback:    fallback,
	}
}

// Transform reads the feature collection at filePath, keeps eligible
// features, canonicalizes them and writes the records to outputPath. Any
// error fails the whole file and no staged file is written.
func (t *Transformer) Transform(ctx context.Context, filePath, outputPath string) (Result, error) {
	var res Result

	f, err := os.Open(filePath)
	if err != nil {
		return res, eris.Wrapf(err, "address: open %s", filePath)
	}
	features, err := DecodeFeatures(bufio.NewReaderSize(f, 1<<20))
	_ = f.Close()
	if err != nil {
		return res, eris.Wrapf(err, "address: read %s", filePath)
	}
	res.Features = len(features)

	c := newCanonicalizer(t.Lookup, t.Reprojector, t.Fallback)
	records := make([]Record, 0, len(features))
	for i, feat := range features {
		if i%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return res, eris.Wrapf(err, "address: transform %s", filePath)
			}
		}
		if !feat.Eligible() {
			continue
		}
		res.Eligible++

		rec, ok, err := c.record(feat)
		if err != nil {
			return res, eris.Wrapf(err, "address: transform %s", filePath)
		}
		if ok {
			records = append(records, rec)
		}
	}

	if err := WriteStaged(outputPath, records); err != nil {
		return res, err
	}
	res.Records = len(records)

	zap.L().Debug("file transformed",
		zap.String("component", "address.transform"),
		zap.String("file", filepath.Base(filePath)),
		zap.Int("features", res.Features),
		zap.Int("eligible", res.Eligible),
		zap.Int("records", res.Records),
	)
	return res, nil
}
