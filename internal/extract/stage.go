package extract

import (
	"context"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/bagload/internal/address"
)

// DefaultMaxWorkers bounds parallel transform tasks when none is configured.
const DefaultMaxWorkers = 6

// FileTransformer stages one interchange file.
type FileTransformer interface {
	Transform(ctx context.Context, filePath, outputPath string) (address.Result, error)
}

// StageResult is the outcome of one staging run.
type StageResult struct {
	Succeeded int
	Failed    []string // base names of files that failed, sorted
}

// OK reports whether every file was staged.
func (r StageResult) OK() bool {
	return len(r.Failed) == 0
}

// Stats is a point-in-time view of the pool counters. Completed counts
// finished tasks, failures included.
type Stats struct {
	Total     int64
	Active    int64
	Pending   int64
	Completed int64
	Failed    int64
}

type counters struct {
	total, active, pending, completed, failed atomic.Int64
}

// Stager runs one FileTransformer task per file on a bounded worker pool.
type Stager struct {
	transformer FileTransformer
	dataDir     string
	maxWorkers  int
	counters    counters
	progress    time.Duration
}

// NewStager creates a Stager writing staged files to dataDir.
func NewStager(t FileTransformer, dataDir string, maxWorkers int) *Stager {
	if maxWorkers <= 0 {
		maxWorkers = DefaultMaxWorkers
	}
	return &Stager{
		transformer: t,
		dataDir:     dataDir,
		maxWorkers:  maxWorkers,
		progress:    2 * time.Second,
	}
}

// Stats returns the current pool counters.
func (s *Stager) Stats() Stats {
	return Stats{
		Total:     s.counters.total.Load(),
		Active:    s.counters.active.Load(),
		Pending:   s.counters.pending.Load(),
		Completed: s.counters.completed.Load(),
		Failed:    s.counters.failed.Load(),
	}
}

// RunAll transforms every file exactly once. A failing file is recorded in
// the result and never stops its siblings. Once ctx is cancelled the
// remaining files are marked failed without being transformed.
func (s *Stager) RunAll(ctx context.Context, files []string) StageResult {
	log := zap.L().With(zap.String("component", "extract.stage"))

	s.counters.total.Store(int64(len(files)))
	s.counters.pending.Store(int64(len(files)))
	s.counters.active.Store(0)
	s.counters.completed.Store(0)
	s.counters.failed.Store(0)

	log.Info("staging files",
		zap.Int("files", len(files)),
		zap.Int("max_workers", s.maxWorkers),
	)

	var (
		mu       sync.Mutex
		failed   []string
		progress = rate.Sometimes{Interval: s.progress}
	)

	var g errgroup.Group
	g.SetLimit(s.maxWorkers)

	for _, file := range files {
		file := file
		g.Go(func() error {
			s.counters.pending.Add(-1)
			s.counters.active.Add(1)

			name := filepath.Base(file)
			res, err := s.transform(ctx, file)

			s.counters.active.Add(-1)
			if err != nil {
				s.counters.failed.Add(1)
				mu.Lock()
				failed = append(failed, name)
				mu.Unlock()
				log.Error("file failed to stage", zap.String("file", name), zap.Error(err))
			} else {
				log.Info("file staged",
					zap.String("file", name),
					zap.Int("features", res.Features),
					zap.Int("records", res.Records),
				)
			}
			s.counters.completed.Add(1)

			progress.Do(func() {
				st := s.Stats()
				log.Info("staging progress",
					zap.Int64("active", st.Active),
					zap.Int64("pending", st.Pending),
					zap.Int64("completed", st.Completed),
					zap.Int64("total", st.Total),
				)
			})
			return nil
		})
	}
	_ = g.Wait()

	sort.Strings(failed)
	result := StageResult{Succeeded: len(files) - len(failed), Failed: failed}

	if result.OK() {
		log.Info("staging complete", zap.Int("succeeded", result.Succeeded))
	} else {
		log.Error("staging finished with failures",
			zap.Int("succeeded", result.Succeeded),
			zap.Strings("failed", result.Failed),
		)
	}
	return result
}

func (s *Stager) transform(ctx context.Context, file string) (address.Result, error) {
	if err := ctx.Err(); err != nil {
		return address.Result{}, err
	}
	return s.transformer.Transform(ctx, file, StagedPath(s.dataDir, file))
}
