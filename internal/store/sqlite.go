package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/bagload/internal/address"
)

// SQLiteStore implements Store using modernc.org/sqlite. Geometry is kept as
// GeoJSON text.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS load_status (
	file       TEXT PRIMARY KEY,
	collection TEXT NOT NULL,
	hash       TEXT NOT NULL,
	records    INTEGER NOT NULL,
	loaded_at  DATETIME NOT NULL
);
`

const sqliteCollectionDDL = `
CREATE TABLE IF NOT EXISTS %[1]s (
	id              TEXT PRIMARY KEY,
	building_number TEXT NOT NULL DEFAULT '',
	street          TEXT NOT NULL DEFAULT '',
	postcode        TEXT NOT NULL DEFAULT '',
	town            TEXT NOT NULL DEFAULT '',
	latitude        REAL NOT NULL,
	longitude       REAL NOT NULL,
	municipality    TEXT NOT NULL DEFAULT '',
	huis_nummer     TEXT NOT NULL DEFAULT '',
	huis_letter     TEXT NOT NULL DEFAULT '',
	toevoeging      TEXT NOT NULL DEFAULT '',
	straat_naam     TEXT NOT NULL DEFAULT '',
	woonplaats      TEXT NOT NULL DEFAULT '',
	gemeente        TEXT NOT NULL DEFAULT '',
	geometry        TEXT
);

CREATE INDEX IF NOT EXISTS idx_%[2]s_postcode ON %[1]s (postcode, building_number);
`

// Migrate creates the load log.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// EnsureCollection creates the address table for collection if needed.
func (s *SQLiteStore) EnsureCollection(ctx context.Context, collection string) error {
	if err := validCollection(collection); err != nil {
		return err
	}
	ddl := fmt.Sprintf(sqliteCollectionDDL, quoteIdent(collection), collection)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return eris.Wrapf(err, "sqlite: ensure collection %s", collection)
	}
	return nil
}

// InsertMany upserts records in one transaction.
func (s *SQLiteStore) InsertMany(ctx context.Context, collection string, records []address.Record) (int64, error) {
	if err := validCollection(collection); err != nil {
		return 0, err
	}
	records = dedupe(records)
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, sqliteUpsertSQL(collection))
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: prepare insert into %s", collection)
	}
	defer stmt.Close() //nolint:errcheck

	var n int64
	for i := range records {
		r := &records[i]
		var geometry any
		if r.Geometry != nil {
			b, err := json.Marshal(r.Geometry)
			if err != nil {
				return 0, eris.Wrapf(err, "sqlite: marshal geometry of %s", r.ID)
			}
			geometry = string(b)
		}
		res, err := stmt.ExecContext(ctx,
			r.ID, r.BuildingNumber, r.Street, r.Postcode, r.Town, r.Latitude, r.Longitude,
			r.Municipality, r.HouseNumber, r.HouseLetter, r.Addition, r.StreetName,
			r.PlaceName, r.MunicipalityName, geometry,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert %s into %s", r.ID, collection)
		}
		affected, _ := res.RowsAffected()
		n += affected
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit tx")
	}
	return n, nil
}

func sqliteUpsertSQL(collection string) string {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(addressColumns)), ", ")
	sets := make([]string, 0, len(addressColumns)-1)
	for _, c := range addressColumns[1:] {
		sets = append(sets, fmt.Sprintf("%s = excluded.%s", c, c))
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(id) DO UPDATE SET %s",
		quoteIdent(collection),
		strings.Join(addressColumns, ", "),
		placeholders,
		strings.Join(sets, ", "),
	)
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// LastLoad returns the load log entry for file, or nil if it was never loaded.
func (s *SQLiteStore) LastLoad(ctx context.Context, file string) (*LoadEntry, error) {
	var e LoadEntry
	err := s.db.QueryRowContext(ctx,
		`SELECT file, collection, hash, records, loaded_at FROM load_status WHERE file = ?`, file,
	).Scan(&e.File, &e.Collection, &e.Hash, &e.Records, &e.LoadedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: last load of %s", file)
	}
	return &e, nil
}

// RecordLoad upserts the load log entry for entry.File.
func (s *SQLiteStore) RecordLoad(ctx context.Context, entry LoadEntry) error {
	loadedAt := entry.LoadedAt
	if loadedAt.IsZero() {
		loadedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO load_status (file, collection, hash, records, loaded_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(file) DO UPDATE SET
			collection = excluded.collection,
			hash = excluded.hash,
			records = excluded.records,
			loaded_at = excluded.loaded_at`,
		entry.File, entry.Collection, entry.Hash, entry.Records, loadedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: record load of %s", entry.File)
}

// LoadStatus lists the load log ordered by file name.
func (s *SQLiteStore) LoadStatus(ctx context.Context) ([]LoadEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT file, collection, hash, records, loaded_at FROM load_status ORDER BY file`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load status")
	}
	defer rows.Close() //nolint:errcheck

	var entries []LoadEntry
	for rows.Next() {
		var e LoadEntry
		if err := rows.Scan(&e.File, &e.Collection, &e.Hash, &e.Records, &e.LoadedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan load status")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: iterate load status")
}
