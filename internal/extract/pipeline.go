package extract

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/bagload/internal/address"
	"github.com/sells-group/bagload/internal/config"
	"github.com/sells-group/bagload/internal/convert"
	"github.com/sells-group/bagload/internal/store"
)

// Options configures a Pipeline.
type Options struct {
	DataDir            string
	ReferenceFile      string
	MaxWorkers         int  // bounds parallel transform tasks
	ReprojectInProcess bool // reproject while staging instead of while converting
	ChunkSize          int  // records per bulk insert
	Collection         string
	Incremental        bool
	Fallback           address.Fallback
}

// OptionsFromConfig builds Options from the loaded configuration.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	fb, err := address.ParseFallback(cfg.Extract.MunicipalityFallback)
	if err != nil {
		return Options{}, err
	}
	return Options{
		DataDir:            cfg.Extract.DataDir,
		ReferenceFile:      cfg.Extract.ReferenceFile,
		MaxWorkers:         cfg.Extract.MaxWorkers,
		ReprojectInProcess: cfg.Extract.ReprojectInProcess,
		ChunkSize:          cfg.Extract.ChunkSize,
		Collection:         cfg.Store.Collection,
		Incremental:        cfg.Extract.Incremental,
		Fallback:           fb,
	}, nil
}

// Report summarizes one pipeline run.
type Report struct {
	RunID       string
	Converted   int
	Stage       StageResult
	Loaded      int64
	ConvertTime time.Duration
	StageTime   time.Duration
	LoadTime    time.Duration
}

// Pipeline sequences CONVERT, TRANSFORM_AND_STAGE and LOAD. Each stage runs
// only when the previous one succeeded.
type Pipeline struct {
	opts        Options
	converter   convert.Converter
	store       store.Store
	transformer FileTransformer
}

// New creates a Pipeline. conv may be nil when Convert is never called and
// st may be nil when Load is never called.
func New(opts Options, conv convert.Converter, st store.Store) *Pipeline {
	if opts.DataDir == "" {
		opts.DataDir = "."
	}
	return &Pipeline{opts: opts, converter: conv, store: st}
}

// Run executes all three stages and stops at the first stage that fails.
func (p *Pipeline) Run(ctx context.Context) (Report, error) {
	report := Report{RunID: uuid.New().String()}
	log := zap.L().With(
		zap.String("component", "extract.pipeline"),
		zap.String("run_id", report.RunID),
	)
	log.Info("pipeline started", zap.String("data_dir", p.opts.DataDir))

	start := time.Now()
	converted, err := p.Convert(ctx)
	report.Converted = converted
	report.ConvertTime = time.Since(start)
	if err != nil {
		log.Error("convert stage failed", zap.Error(err))
		return report, err
	}
	log.Info("convert stage complete",
		zap.Int("converted", converted),
		zap.Duration("elapsed", report.ConvertTime),
	)

	start = time.Now()
	res, err := p.Stage(ctx)
	report.Stage = res
	report.StageTime = time.Since(start)
	if err != nil {
		log.Error("stage failed, skipping load", zap.Error(err))
		return report, err
	}
	log.Info("stage complete",
		zap.Int("succeeded", res.Succeeded),
		zap.Duration("elapsed", report.StageTime),
	)

	start = time.Now()
	loaded, err := p.Load(ctx)
	report.Loaded = loaded
	report.LoadTime = time.Since(start)
	if err != nil {
		log.Error("load stage failed", zap.Error(err))
		return report, err
	}

	log.Info("pipeline complete",
		zap.Int64("loaded", loaded),
		zap.Duration("elapsed", report.ConvertTime+report.StageTime+report.LoadTime),
	)
	return report, nil
}

// Convert converts every shapefile in the data directory.
func (p *Pipeline) Convert(ctx context.Context) (int, error) {
	if p.converter == nil {
		return 0, eris.New("extract: no converter configured")
	}
	files, err := Discover(p.opts.DataDir, ShapefilePattern)
	if err != nil {
		return 0, err
	}
	return ConvertAll(ctx, p.converter, files)
}

// Stage transforms every interchange file in the data directory. Any failed
// file yields ErrStagePartialFailure along with the result.
func (p *Pipeline) Stage(ctx context.Context) (StageResult, error) {
	t, err := p.fileTransformer()
	if err != nil {
		return StageResult{}, err
	}
	files, err := Discover(p.opts.DataDir, InterchangePattern)
	if err != nil {
		return StageResult{}, err
	}
	if len(files) == 0 {
		zap.L().Warn("no interchange files to stage",
			zap.String("component", "extract.pipeline"),
			zap.String("data_dir", p.opts.DataDir),
		)
	}

	res := NewStager(t, p.opts.DataDir, p.opts.MaxWorkers).RunAll(ctx, files)
	if !res.OK() {
		return res, eris.Wrapf(ErrStagePartialFailure, "%d of %d files failed: %s",
			len(res.Failed), len(files), strings.Join(res.Failed, ", "))
	}
	return res, nil
}

// Load bulk loads every staged file in the data directory.
func (p *Pipeline) Load(ctx context.Context) (int64, error) {
	if p.store == nil {
		return 0, eris.New("extract: no store configured")
	}
	files, err := Discover(p.opts.DataDir, StagedPattern)
	if err != nil {
		return 0, err
	}
	return NewLoader(p.store, p.opts.Collection, p.opts.ChunkSize, p.opts.Incremental).LoadAll(ctx, files)
}

func (p *Pipeline) fileTransformer() (FileTransformer, error) {
	if p.transformer != nil {
		return p.transformer, nil
	}
	lookup, err := address.LoadLookup(p.opts.ReferenceFile)
	if err != nil {
		return nil, err
	}
	zap.L().Info("reference table loaded",
		zap.String("component", "extract.pipeline"),
		zap.Int("entries", lookup.Len()),
	)
	p.transformer = address.NewTransformer(lookup, p.opts.ReprojectInProcess, p.opts.Fallback)
	return p.transformer, nil
}
