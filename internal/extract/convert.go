package extract

import (
	"context"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/sells-group/bagload/internal/convert"
)

// ConvertAll converts each shapefile to GeoJSON next to it, one at a time.
// The first failure stops the stage with a *ConversionError.
func ConvertAll(ctx context.Context, conv convert.Converter, files []string) (int, error) {
	log := zap.L().With(zap.String("component", "extract.convert"))
	log.Info("converting shapefiles", zap.Int("files", len(files)))

	for i, file := range files {
		if err := ctx.Err(); err != nil {
			return i, &ConversionError{File: filepath.Base(file), Err: err}
		}
		if err := conv.Convert(ctx, file, InterchangePath(file)); err != nil {
			return i, &ConversionError{File: filepath.Base(file), Err: err}
		}
		log.Info("file converted",
			zap.String("file", filepath.Base(file)),
			zap.Int("index", i+1),
			zap.Int("files", len(files)),
		)
	}
	return len(files), nil
}
