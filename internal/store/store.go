// Package store persists canonical address records and the per-file load log.
package store

import (
	"context"
	"regexp"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/bagload/internal/address"
	"github.com/sells-group/bagload/internal/config"
	"github.com/sells-group/bagload/internal/db"
)

// LoadEntry records the last successful load of one staged file.
type LoadEntry struct {
	File       string    `json:"file" bson:"_id"`
	Collection string    `json:"collection" bson:"collection"`
	Hash       string    `json:"hash" bson:"hash"`
	Records    int64     `json:"records" bson:"records"`
	LoadedAt   time.Time `json:"loaded_at" bson:"loaded_at"`
}

// Store defines the persistence interface for the bulk loader.
type Store interface {
	// Collections
	EnsureCollection(ctx context.Context, collection string) error
	// InsertMany upserts records by ID as one atomic write. Duplicate IDs
	// within one call collapse to the last occurrence.
	InsertMany(ctx context.Context, collection string, records []address.Record) (int64, error)

	// Load log
	LastLoad(ctx context.Context, file string) (*LoadEntry, error)
	RecordLoad(ctx context.Context, entry LoadEntry) error
	LoadStatus(ctx context.Context) ([]LoadEntry, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// New opens the backend selected by cfg.Driver.
func New(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL, db.PoolConfig{MaxConns: cfg.MaxConns, MinConns: cfg.MinConns})
	case "sqlite":
		dsn := cfg.DatabaseURL
		if dsn == "" {
			dsn = "bagload.db"
		}
		return NewSQLite(dsn)
	case "mongo":
		return NewMongo(ctx, cfg.DatabaseURL, cfg.Database)
	default:
		return nil, eris.Errorf("store: unsupported driver %q", cfg.Driver)
	}
}

var collectionName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// validCollection rejects names that cannot be used unquoted as a table name.
func validCollection(name string) error {
	if !collectionName.MatchString(name) {
		return eris.Errorf("store: invalid collection name %q", name)
	}
	return nil
}

// dedupe keeps the last record for each ID at the position it was first seen.
func dedupe(records []address.Record) []address.Record {
	idx := make(map[string]int, len(records))
	out := make([]address.Record, 0, len(records))
	for _, r := range records {
		if i, ok := idx[r.ID]; ok {
			out[i] = r
			continue
		}
		idx[r.ID] = len(out)
		out = append(out, r)
	}
	return out
}
