package extract

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"github.com/zeebo/xxh3"
	"go.uber.org/zap"

	"github.com/sells-group/bagload/internal/address"
	"github.com/sells-group/bagload/internal/store"
)

// DefaultChunkSize is the number of records per bulk insert.
const DefaultChunkSize = 10000

// Loader bulk loads staged files into a store collection, one chunk at a
// time.
type Loader struct {
	store       store.Store
	collection  string
	chunkSize   int
	incremental bool
}

// NewLoader creates a Loader. With incremental set, staged files whose
// content matches their last successful load are skipped.
func NewLoader(st store.Store, collection string, chunkSize int, incremental bool) *Loader {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Loader{store: st, collection: collection, chunkSize: chunkSize, incremental: incremental}
}

// LoadAll loads files in order and returns the number of records inserted.
// The first failing chunk aborts the load with a *LoadError and no total.
func (l *Loader) LoadAll(ctx context.Context, files []string) (int64, error) {
	log := zap.L().With(
		zap.String("component", "extract.load"),
		zap.String("collection", l.collection),
	)

	if err := l.store.EnsureCollection(ctx, l.collection); err != nil {
		return 0, eris.Wrapf(err, "extract: ensure collection %s", l.collection)
	}

	var total int64
	for i, file := range files {
		n, skipped, err := l.loadFile(ctx, file)
		if err != nil {
			log.Error("load aborted",
				zap.String("file", filepath.Base(file)),
				zap.Int64("inserted_before_failure", total+n),
				zap.Error(err),
			)
			return 0, err
		}
		total += n

		log.Info("file loaded",
			zap.String("file", filepath.Base(file)),
			zap.Int("index", i+1),
			zap.Int("files", len(files)),
			zap.Int64("records", n),
			zap.Bool("skipped", skipped),
		)
	}
	return total, nil
}

func (l *Loader) loadFile(ctx context.Context, path string) (int64, bool, error) {
	name := filepath.Base(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false, &LoadError{File: name, Chunk: -1, Err: eris.Wrap(err, "read staged file")}
	}
	hash := strconv.FormatUint(xxh3.Hash(data), 16)

	if l.incremental {
		last, err := l.store.LastLoad(ctx, name)
		if err != nil {
			return 0, false, eris.Wrapf(err, "extract: load status for %s", name)
		}
		if last != nil && last.Hash == hash && last.Collection == l.collection {
			return 0, true, nil
		}
	}

	records, err := address.DecodeStaged(bytes.NewReader(data))
	if err != nil {
		return 0, false, &LoadError{File: name, Chunk: -1, Err: eris.Wrap(err, "decode staged file")}
	}

	var total int64
	for i, chunk := range Chunk(records, l.chunkSize) {
		if err := ctx.Err(); err != nil {
			return total, false, &LoadError{File: name, Chunk: i, Err: err}
		}
		stored, err := l.store.InsertMany(ctx, l.collection, chunk)
		if err != nil {
			return total, false, &LoadError{File: name, Chunk: i, Err: err}
		}
		total += int64(len(chunk))

		zap.L().Debug("chunk inserted",
			zap.String("component", "extract.load"),
			zap.String("file", name),
			zap.Int("chunk", i),
			zap.Int("records", len(chunk)),
			zap.Int64("stored", stored),
		)
	}

	err = l.store.RecordLoad(ctx, store.LoadEntry{
		File:       name,
		Collection: l.collection,
		Hash:       hash,
		Records:    total,
		LoadedAt:   time.Now().UTC(),
	})
	if err != nil {
		return total, false, eris.Wrapf(err, "extract: record load of %s", name)
	}
	return total, false, nil
}

// Chunk splits s into consecutive slices of at most size elements. The
// slices share s's backing array.
func Chunk[T any](s []T, size int) [][]T {
	if size <= 0 || len(s) == 0 {
		return nil
	}
	chunks := make([][]T, 0, (len(s)+size-1)/size)
	for start := 0; start < len(s); start += size {
		end := min(start+size, len(s))
		chunks = append(chunks, s[start:end:end])
	}
	return chunks
}
