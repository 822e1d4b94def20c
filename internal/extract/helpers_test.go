package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/bagload/internal/address"
	"github.com/sells-group/bagload/internal/store"
)

// memStore is an in-memory store.Store recording every InsertMany call.
type memStore struct {
	mu         sync.Mutex
	ensured    []string
	chunks     []int
	records    map[string]address.Record
	loads      map[string]store.LoadEntry
	failOnCall int // 1-based InsertMany call that fails; 0 never fails
}

func newMemStore() *memStore {
	return &memStore{
		records: make(map[string]address.Record),
		loads:   make(map[string]store.LoadEntry),
	}
}

func (m *memStore) EnsureCollection(_ context.Context, collection string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensured = append(m.ensured, collection)
	return nil
}

func (m *memStore) InsertMany(_ context.Context, _ string, records []address.Record) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks = append(m.chunks, len(records))
	if m.failOnCall == len(m.chunks) {
		return 0, eris.New("bulk write rejected")
	}
	for _, r := range records {
		m.records[r.ID] = r
	}
	return int64(len(records)), nil
}

func (m *memStore) LastLoad(_ context.Context, file string) (*store.LoadEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.loads[file]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (m *memStore) RecordLoad(_ context.Context, entry store.LoadEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads[entry.File] = entry
	return nil
}

func (m *memStore) LoadStatus(_ context.Context) ([]store.LoadEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]store.LoadEntry, 0, len(m.loads))
	for _, e := range m.loads {
		out = append(out, e)
	}
	return out, nil
}

func (m *memStore) Migrate(context.Context) error { return nil }
func (m *memStore) Close() error                  { return nil }

// feature renders one eligible nummeraanduiding feature.
func feature(id string, x, y float64) string {
	return fmt.Sprintf(`{"type":"Feature","properties":{"NUMMER_ID":%q,"ONDERZOEK":"N","INACTIEF":"N","POSTCODE":"2611AA","DATUM_EIND":null,"HUISNUMMER":%s,"HUISLETTER":null,"TOEVOEGING":null,"STRAATNAAM":"Markt","WOONPLAATS":"Delft","GEM_NAAM":"Delft"},"geometry":{"type":"Point","coordinates":[%g,%g]}}`,
		id, id, x, y)
}

// interchangeBody renders a feature collection of n eligible features.
func interchangeBody(n int) string {
	features := make([]string, n)
	for i := range features {
		features[i] = feature(fmt.Sprintf("%d", i+1), 4.36, 52.01)
	}
	return `{"type":"FeatureCollection","features":[` + strings.Join(features, ",") + `]}`
}

func writeInterchange(t *testing.T, dir, name string, n int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, writeFile(path, interchangeBody(n)))
	return path
}

func writeReference(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "woonplaats-gemeente.json")
	body := `[{"town":"DELFT","municipal":"DELFT","townCommon":"Delft","municipalCommon":"Delft"}]`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

// writeStagedRecords stages n records with IDs prefix-1..prefix-n.
func writeStagedRecords(t *testing.T, dir, name, prefix string, n int) string {
	t.Helper()
	records := make([]address.Record, n)
	for i := range records {
		records[i] = address.Record{ID: fmt.Sprintf("%s-%d", prefix, i+1), Postcode: "2611AA"}
	}
	path := filepath.Join(dir, name)
	require.NoError(t, address.WriteStaged(path, records))
	return path
}

func writeFile(path, body string) error {
	return os.WriteFile(path, []byte(body), 0o644)
}
