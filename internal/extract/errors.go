package extract

import (
	"fmt"

	"github.com/rotisserie/eris"
)

// ErrStagePartialFailure halts the pipeline when any file failed to stage.
var ErrStagePartialFailure = eris.New("extract: one or more files failed to stage")

// ConversionError reports a shapefile the converter could not convert. It is
// fatal to the run.
type ConversionError struct {
	File string
	Err  error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("extract: convert %s: %v", e.File, e.Err)
}

func (e *ConversionError) Unwrap() error {
	return e.Err
}

// LoadError reports a chunk the store rejected. Loading stops at the first
// LoadError.
type LoadError struct {
	File  string
	Chunk int // zero-based chunk index within File
	Err   error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("extract: load %s chunk %d: %v", e.File, e.Chunk, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}
