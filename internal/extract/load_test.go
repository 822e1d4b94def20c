package extract

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/bagload/internal/store"
)

func TestChunk(t *testing.T) {
	tests := []struct {
		name string
		n    int
		size int
		want []int
	}{
		{"exact", 20, 10, []int{10, 10}},
		{"remainder", 25, 10, []int{10, 10, 5}},
		{"smaller than size", 3, 10, []int{3}},
		{"empty", 0, 10, nil},
		{"bad size", 5, 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := make([]int, tt.n)
			var got []int
			for _, c := range Chunk(s, tt.size) {
				got = append(got, len(c))
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoader_ChunksInOrder(t *testing.T) {
	dir := t.TempDir()
	file := writeStagedRecords(t, dir, "staging_nummer1.json", "a", 25000)
	st := newMemStore()

	total, err := NewLoader(st, "address", 10000, false).LoadAll(context.Background(), []string{file})
	require.NoError(t, err)
	assert.Equal(t, int64(25000), total)
	assert.Equal(t, []int{10000, 10000, 5000}, st.chunks)
	assert.Len(t, st.records, 25000)
	assert.Equal(t, []string{"address"}, st.ensured)

	entry, ok := st.loads["staging_nummer1.json"]
	require.True(t, ok)
	assert.Equal(t, int64(25000), entry.Records)
	assert.Equal(t, "address", entry.Collection)
	assert.NotEmpty(t, entry.Hash)
}

func TestLoader_FailFastOnSecondChunk(t *testing.T) {
	dir := t.TempDir()
	first := writeStagedRecords(t, dir, "staging_nummer1.json", "a", 25000)
	second := writeStagedRecords(t, dir, "staging_nummer2.json", "b", 10)
	st := newMemStore()
	st.failOnCall = 2

	total, err := NewLoader(st, "address", 10000, false).LoadAll(context.Background(), []string{first, second})
	require.Error(t, err)
	assert.Equal(t, int64(0), total)

	var le *LoadError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, "staging_nummer1.json", le.File)
	assert.Equal(t, 1, le.Chunk)
	assert.Contains(t, err.Error(), "bulk write rejected")

	// No third chunk, no second file.
	assert.Equal(t, []int{10000, 10000}, st.chunks)
	assert.Empty(t, st.loads)
}

func TestLoader_MalformedStagedFile(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "staging_bad.json")
	require.NoError(t, writeFile(bad, `[{"_id":`))

	_, err := NewLoader(newMemStore(), "address", 10, false).LoadAll(context.Background(), []string{bad})
	require.Error(t, err)
	var le *LoadError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, -1, le.Chunk)
	assert.Contains(t, err.Error(), "decode staged file")
}

func TestLoader_IncrementalSkipsUnchanged(t *testing.T) {
	dir := t.TempDir()
	file := writeStagedRecords(t, dir, "staging_nummer1.json", "a", 15)
	st := newMemStore()
	l := NewLoader(st, "address", 10, true)

	total, err := l.LoadAll(context.Background(), []string{file})
	require.NoError(t, err)
	assert.Equal(t, int64(15), total)
	assert.Equal(t, []int{10, 5}, st.chunks)

	total, err = l.LoadAll(context.Background(), []string{file})
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)
	assert.Equal(t, []int{10, 5}, st.chunks, "unchanged file is not reloaded")

	// Changed content is loaded again.
	writeStagedRecords(t, dir, "staging_nummer1.json", "a", 16)
	total, err = l.LoadAll(context.Background(), []string{file})
	require.NoError(t, err)
	assert.Equal(t, int64(16), total)
}

func TestLoader_NonIncrementalReloads(t *testing.T) {
	dir := t.TempDir()
	file := writeStagedRecords(t, dir, "staging_nummer1.json", "a", 3)
	st := newMemStore()
	l := NewLoader(st, "address", 10, false)

	for i := 0; i < 2; i++ {
		total, err := l.LoadAll(context.Background(), []string{file})
		require.NoError(t, err)
		assert.Equal(t, int64(3), total)
	}
	assert.Equal(t, []int{3, 3}, st.chunks)
}

func TestLoader_Cancelled(t *testing.T) {
	dir := t.TempDir()
	file := writeStagedRecords(t, dir, "staging_nummer1.json", "a", 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	st := newMemStore()
	_, err := NewLoader(st, "address", 10, false).LoadAll(ctx, []string{file})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, st.chunks)
}

func TestLoader_SQLiteStore(t *testing.T) {
	dir := t.TempDir()
	file := writeStagedRecords(t, dir, "staging_nummer1.json", "a", 25)

	st, err := store.NewSQLite(filepath.Join(dir, "bag.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	total, err := NewLoader(st, "address", 10, true).LoadAll(context.Background(), []string{file})
	require.NoError(t, err)
	assert.Equal(t, int64(25), total)

	status, err := st.LoadStatus(context.Background())
	require.NoError(t, err)
	require.Len(t, status, 1)
	assert.Equal(t, "staging_nummer1.json", status[0].File)
	assert.Equal(t, int64(25), status[0].Records)

	total, err = NewLoader(st, "address", 10, true).LoadAll(context.Background(), []string{file})
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)
}
