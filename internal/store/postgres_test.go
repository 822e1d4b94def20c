package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/bagload/internal/address"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func pointRecord(t *testing.T, id string, lon, lat float64) address.Record {
	t.Helper()
	g, err := geojson.Encode(geom.NewPointFlat(geom.XY, []float64{lon, lat}))
	require.NoError(t, err)
	return address.Record{ID: id, Postcode: "1012JS", Latitude: lat, Longitude: lon, Geometry: g}
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE EXTENSION IF NOT EXISTS postgis`).WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_EnsureCollection(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "bag"."address"`).WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.EnsureCollection(context.Background(), "address"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_EnsureCollection_InvalidName(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	err := s.EnsureCollection(context.Background(), "address; DROP TABLE x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid collection name")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertMany(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	records := []address.Record{
		pointRecord(t, "a", 4.89, 52.37),
		pointRecord(t, "b", 5.12, 52.09),
		pointRecord(t, "a", 4.90, 52.38),
	}

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_upsert_bag_address"}, addressColumns).WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "bag"."address"`).WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := s.InsertMany(context.Background(), "address", records)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertMany_Error(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin().WillReturnError(fmt.Errorf("connection refused"))

	_, err := s.InsertMany(context.Background(), "address", []address.Record{pointRecord(t, "a", 4.89, 52.37)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: insert into address")
	assert.Contains(t, err.Error(), "begin tx")
}

func TestAddressRow_EWKB(t *testing.T) {
	rec := pointRecord(t, "a", 4.89, 52.37)
	row, err := addressRow(&rec)
	require.NoError(t, err)
	require.Len(t, row, len(addressColumns))

	wkb, ok := row[len(row)-1].([]byte)
	require.True(t, ok)
	g, err := ewkb.Unmarshal(wkb)
	require.NoError(t, err)
	assert.Equal(t, []float64{4.89, 52.37}, g.FlatCoords())
}

func TestAddressRow_NoGeometry(t *testing.T) {
	row, err := addressRow(&address.Record{ID: "a"})
	require.NoError(t, err)
	assert.Nil(t, row[len(row)-1])
}

func TestPostgresStore_LastLoad(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	loadedAt := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT file, collection, hash, records, loaded_at FROM bag.load_status WHERE file = \$1`).
		WithArgs("staging_nummer1.json").
		WillReturnRows(pgxmock.NewRows([]string{"file", "collection", "hash", "records", "loaded_at"}).
			AddRow("staging_nummer1.json", "address", "abc123", int64(42), loadedAt))

	e, err := s.LastLoad(context.Background(), "staging_nummer1.json")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, "abc123", e.Hash)
	assert.Equal(t, int64(42), e.Records)
	assert.Equal(t, loadedAt, e.LoadedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LastLoad_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM bag.load_status WHERE file = \$1`).
		WithArgs("staging_new.json").
		WillReturnError(pgx.ErrNoRows)

	e, err := s.LastLoad(context.Background(), "staging_new.json")
	require.NoError(t, err)
	assert.Nil(t, e)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RecordLoad(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	entry := LoadEntry{File: "staging_a.json", Collection: "address", Hash: "ff", Records: 3, LoadedAt: time.Now()}

	mock.ExpectExec(`INSERT INTO bag.load_status`).
		WithArgs(entry.File, entry.Collection, entry.Hash, entry.Records, entry.LoadedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.RecordLoad(context.Background(), entry))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LoadStatus(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`FROM bag.load_status ORDER BY file`).
		WillReturnRows(pgxmock.NewRows([]string{"file", "collection", "hash", "records", "loaded_at"}).
			AddRow("staging_a.json", "address", "01", int64(10), now).
			AddRow("staging_b.json", "address", "02", int64(20), now))

	entries, err := s.LoadStatus(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "staging_b.json", entries[1].File)
	assert.Equal(t, int64(20), entries[1].Records)
	assert.NoError(t, mock.ExpectationsWereMet())
}
