package store

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/sells-group/bagload/internal/address"
	"github.com/sells-group/bagload/internal/db"
)

// Schema holds the address tables and the load log.
const Schema = "bag"

// PostgresStore implements Store on PostGIS using a pgx pool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg db.PoolConfig) (*PostgresStore, error) {
	pool, err := db.Connect(ctx, connString, poolCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// addressColumns is the COPY column order produced by addressRow.
var addressColumns = []string{
	"id", "building_number", "street", "postcode", "town", "latitude", "longitude",
	"municipality", "huis_nummer", "huis_letter", "toevoeging", "straat_naam",
	"woonplaats", "gemeente", "geometry",
}

const postgresMigration = `
CREATE EXTENSION IF NOT EXISTS postgis;
CREATE SCHEMA IF NOT EXISTS bag;

CREATE TABLE IF NOT EXISTS bag.load_status (
	file       TEXT PRIMARY KEY,
	collection TEXT NOT NULL,
	hash       TEXT NOT NULL,
	records    BIGINT NOT NULL,
	loaded_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);`

// collectionDDL creates the address table. geometry holds EWKB; geom is
// derived from it for spatial queries.
const collectionDDL = `
CREATE TABLE IF NOT EXISTS %[1]s (
	id              TEXT PRIMARY KEY,
	building_number TEXT NOT NULL DEFAULT '',
	street          TEXT NOT NULL DEFAULT '',
	postcode        TEXT NOT NULL DEFAULT '',
	town            TEXT NOT NULL DEFAULT '',
	latitude        DOUBLE PRECISION NOT NULL,
	longitude       DOUBLE PRECISION NOT NULL,
	municipality    TEXT NOT NULL DEFAULT '',
	huis_nummer     TEXT NOT NULL DEFAULT '',
	huis_letter     TEXT NOT NULL DEFAULT '',
	toevoeging      TEXT NOT NULL DEFAULT '',
	straat_naam     TEXT NOT NULL DEFAULT '',
	woonplaats      TEXT NOT NULL DEFAULT '',
	gemeente        TEXT NOT NULL DEFAULT '',
	geometry        BYTEA,
	geom            geometry(Geometry, 4326)
	                GENERATED ALWAYS AS (ST_SetSRID(ST_GeomFromEWKB(geometry), 4326)) STORED,
	loaded_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS %[2]s ON %[1]s USING gist (geom);
CREATE INDEX IF NOT EXISTS %[3]s ON %[1]s (postcode, building_number);`

// Migrate creates the schema and the load log.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// EnsureCollection creates the address table for collection if needed.
func (s *PostgresStore) EnsureCollection(ctx context.Context, collection string) error {
	if err := validCollection(collection); err != nil {
		return err
	}
	ddl := fmt.Sprintf(collectionDDL,
		pgx.Identifier{Schema, collection}.Sanitize(),
		pgx.Identifier{"idx_" + collection + "_geom"}.Sanitize(),
		pgx.Identifier{"idx_" + collection + "_postcode"}.Sanitize(),
	)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return eris.Wrapf(err, "postgres: ensure collection %s", collection)
	}
	return nil
}

// InsertMany upserts records through a temp table in one transaction.
func (s *PostgresStore) InsertMany(ctx context.Context, collection string, records []address.Record) (int64, error) {
	if err := validCollection(collection); err != nil {
		return 0, err
	}
	records = dedupe(records)

	rows := make([][]any, len(records))
	for i := range records {
		row, err := addressRow(&records[i])
		if err != nil {
			return 0, err
		}
		rows[i] = row
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        Schema + "." + collection,
		Columns:      addressColumns,
		ConflictKeys: []string{"id"},
	}, rows)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: insert into %s", collection)
	}
	return n, nil
}

func addressRow(r *address.Record) ([]any, error) {
	var wkb []byte
	if r.Geometry != nil {
		g, err := r.Geometry.Decode()
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: decode geometry of %s", r.ID)
		}
		if wkb, err = ewkb.Marshal(g, binary.LittleEndian); err != nil {
			return nil, eris.Wrapf(err, "postgres: encode geometry of %s", r.ID)
		}
	}
	return []any{
		r.ID, r.BuildingNumber, r.Street, r.Postcode, r.Town, r.Latitude, r.Longitude,
		r.Municipality, r.HouseNumber, r.HouseLetter, r.Addition, r.StreetName,
		r.PlaceName, r.MunicipalityName, wkb,
	}, nil
}

// LastLoad returns the load log entry for file, or nil if it was never loaded.
func (s *PostgresStore) LastLoad(ctx context.Context, file string) (*LoadEntry, error) {
	var e LoadEntry
	err := s.pool.QueryRow(ctx,
		`SELECT file, collection, hash, records, loaded_at FROM bag.load_status WHERE file = $1`,
		file,
	).Scan(&e.File, &e.Collection, &e.Hash, &e.Records, &e.LoadedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: last load of %s", file)
	}
	return &e, nil
}

// RecordLoad upserts the load log entry for entry.File.
func (s *PostgresStore) RecordLoad(ctx context.Context, entry LoadEntry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO bag.load_status (file, collection, hash, records, loaded_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (file) DO UPDATE SET
			collection = EXCLUDED.collection,
			hash = EXCLUDED.hash,
			records = EXCLUDED.records,
			loaded_at = EXCLUDED.loaded_at`,
		entry.File, entry.Collection, entry.Hash, entry.Records, entry.LoadedAt,
	)
	return eris.Wrapf(err, "postgres: record load of %s", entry.File)
}

// LoadStatus lists the load log ordered by file name.
func (s *PostgresStore) LoadStatus(ctx context.Context) ([]LoadEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT file, collection, hash, records, loaded_at FROM bag.load_status ORDER BY file`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load status")
	}
	defer rows.Close()

	var entries []LoadEntry
	for rows.Next() {
		var e LoadEntry
		if err := rows.Scan(&e.File, &e.Collection, &e.Hash, &e.Records, &e.LoadedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan load status")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: iterate load status")
}
