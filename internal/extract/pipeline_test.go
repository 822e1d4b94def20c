package extract

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/bagload/internal/address"
	"github.com/sells-group/bagload/internal/config"
)

// fakeConverter writes a fixed interchange file for every shapefile.
type fakeConverter struct {
	features int
	err      error
	calls    []string
}

func (f *fakeConverter) Convert(_ context.Context, src, dst string) error {
	f.calls = append(f.calls, filepath.Base(src))
	if f.err != nil {
		return f.err
	}
	return writeFile(dst, interchangeBody(f.features))
}

func testOptions(t *testing.T, dir string) Options {
	t.Helper()
	return Options{
		DataDir:       dir,
		ReferenceFile: writeReference(t, dir),
		MaxWorkers:    2,
		ChunkSize:     4,
		Collection:    "address",
		Fallback:      address.FallbackTown,
	}
}

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, writeFile(path, ""))
}

func TestPipeline_StageValidAndMalformed(t *testing.T) {
	dir := t.TempDir()
	writeInterchange(t, dir, "nummer1.json", 10)
	require.NoError(t, writeFile(filepath.Join(dir, "nummer2.json"), `{"type":"FeatureCollection","features":[{`))

	p := New(testOptions(t, dir), nil, nil)
	res, err := p.Stage(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStagePartialFailure))
	assert.Contains(t, err.Error(), "nummer2.json")

	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, []string{"nummer2.json"}, res.Failed)

	staged, err := Discover(dir, StagedPattern)
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(dir, "staging_nummer1.json")}, staged)

	// Only the valid file's records reach the loader.
	st := newMemStore()
	total, err := NewLoader(st, "address", 10000, false).LoadAll(context.Background(), staged)
	require.NoError(t, err)
	assert.Equal(t, int64(10), total)
	assert.Len(t, st.records, 10)
	assert.Equal(t, "DELFT", st.records["1"].Town)
}

func TestPipeline_Run(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "nummer1.shp"))
	touch(t, filepath.Join(dir, "nummer2.shp"))
	conv := &fakeConverter{features: 6}
	st := newMemStore()

	report, err := New(testOptions(t, dir), conv, st).Run(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, 2, report.Converted)
	assert.Equal(t, StageResult{Succeeded: 2}, report.Stage)
	// Both files carry IDs 1..6; the loader counts what it submitted.
	assert.Equal(t, int64(12), report.Loaded)
	assert.Equal(t, []string{"nummer1.shp", "nummer2.shp"}, conv.calls)
	assert.Equal(t, []int{4, 2, 4, 2}, st.chunks)
	assert.Len(t, st.loads, 2)
}

func TestPipeline_Run_ConversionFailureHalts(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "nummer1.shp"))
	touch(t, filepath.Join(dir, "nummer2.shp"))
	conv := &fakeConverter{err: eris.New("ogr2ogr: exit status 1")}
	st := newMemStore()

	report, err := New(testOptions(t, dir), conv, st).Run(context.Background())
	require.Error(t, err)

	var ce *ConversionError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "nummer1.shp", ce.File)
	assert.Equal(t, 0, report.Converted)
	assert.Equal(t, []string{"nummer1.shp"}, conv.calls)
	assert.Empty(t, st.ensured)
}

func TestPipeline_Run_StageFailureSkipsLoad(t *testing.T) {
	dir := t.TempDir()
	writeInterchange(t, dir, "nummer1.json", 3)
	require.NoError(t, writeFile(filepath.Join(dir, "nummer2.json"), "not json"))
	st := newMemStore()

	report, err := New(testOptions(t, dir), &fakeConverter{}, st).Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStagePartialFailure)
	assert.Equal(t, []string{"nummer2.json"}, report.Stage.Failed)
	assert.Equal(t, int64(0), report.Loaded)
	assert.Empty(t, st.ensured)
	assert.Empty(t, st.chunks)
}

func TestPipeline_Run_LoadFailure(t *testing.T) {
	dir := t.TempDir()
	writeInterchange(t, dir, "nummer1.json", 9)
	st := newMemStore()
	st.failOnCall = 2

	report, err := New(testOptions(t, dir), &fakeConverter{}, st).Run(context.Background())
	require.Error(t, err)
	var le *LoadError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, 1, le.Chunk)
	assert.Equal(t, int64(0), report.Loaded)
	assert.Equal(t, []int{4, 4}, st.chunks)
}

func TestPipeline_MissingCollaborators(t *testing.T) {
	p := New(Options{DataDir: t.TempDir()}, nil, nil)

	_, err := p.Convert(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no converter configured")

	_, err = p.Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no store configured")

	_, err = p.Stage(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read reference file")
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := &config.Config{}
	cfg.Store.Collection = "adres"
	cfg.Extract.DataDir = "/data"
	cfg.Extract.ReferenceFile = "ref.json"
	cfg.Extract.MaxWorkers = 4
	cfg.Extract.ChunkSize = 500
	cfg.Extract.ReprojectInProcess = true
	cfg.Extract.Incremental = true
	cfg.Extract.MunicipalityFallback = "municipality"

	opts, err := OptionsFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, Options{
		DataDir:            "/data",
		ReferenceFile:      "ref.json",
		MaxWorkers:         4,
		ReprojectInProcess: true,
		ChunkSize:          500,
		Collection:         "adres",
		Incremental:        true,
		Fallback:           address.FallbackMunicipality,
	}, opts)

	cfg.Extract.MunicipalityFallback = "province"
	_, err = OptionsFromConfig(cfg)
	assert.Error(t, err)
}

func TestFileNames(t *testing.T) {
	assert.Equal(t, "/data/nummer1.json", InterchangePath("/data/nummer1.shp"))
	assert.Equal(t, "/out/staging_nummer1.json", StagedPath("/out", "/data/nummer1.json"))

	dir := t.TempDir()
	for _, name := range []string{"nummer2.json", "nummer1.json", "staging_nummer1.json", "other.json"} {
		touch(t, filepath.Join(dir, name))
	}
	files, err := Discover(dir, InterchangePattern)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "nummer1.json"), filepath.Join(dir, "nummer2.json")}, files)
}
