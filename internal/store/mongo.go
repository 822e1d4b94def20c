package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/sells-group/bagload/internal/address"
)

const (
	mongoLoadStatus     = "load_status"
	mongoConnectTimeout = 10 * time.Second
)

// MongoStore implements Store on a MongoDB database. Address documents keep
// the record's JSON field names with a GeoJSON geometry.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewMongo connects to uri and selects database.
func NewMongo(ctx context.Context, uri, database string) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(ctx, mongoConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, eris.Wrap(err, "mongo: connect")
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, eris.Wrap(err, "mongo: ping")
	}
	return &MongoStore{client: client, db: client.Database(database)}, nil
}

// Migrate is a no-op; MongoDB creates collections on first write.
func (s *MongoStore) Migrate(context.Context) error {
	return nil
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	if s.client == nil {
		return nil
	}
	return eris.Wrap(s.client.Disconnect(context.Background()), "mongo: disconnect")
}

// EnsureCollection creates the geometry and postcode indexes.
func (s *MongoStore) EnsureCollection(ctx context.Context, collection string) error {
	if err := validCollection(collection); err != nil {
		return err
	}
	_, err := s.db.Collection(collection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "geometry", Value: "2dsphere"}}},
		{Keys: bson.D{{Key: "postcode", Value: 1}, {Key: "buildingNumber", Value: 1}}},
	})
	return eris.Wrapf(err, "mongo: ensure collection %s", collection)
}

// geoJSONDoc is a GeoJSON geometry as a BSON document.
type geoJSONDoc struct {
	Type        string `bson:"type"`
	Coordinates any    `bson:"coordinates"`
}

type addressDoc struct {
	ID               string      `bson:"_id"`
	BuildingNumber   string      `bson:"buildingNumber"`
	Street           string      `bson:"street"`
	Postcode         string      `bson:"postcode"`
	Town             string      `bson:"town"`
	Latitude         float64     `bson:"latitude"`
	Longitude        float64     `bson:"longitude"`
	Municipality     string      `bson:"municipality"`
	HouseNumber      string      `bson:"huisNummer"`
	HouseLetter      string      `bson:"huisLetter"`
	Addition         string      `bson:"toEvoeging"`
	StreetName       string      `bson:"straatNaam"`
	PlaceName        string      `bson:"woonplaats"`
	MunicipalityName string      `bson:"gemeente"`
	Geometry         *geoJSONDoc `bson:"geometry,omitempty"`
}

func toAddressDoc(r *address.Record) (addressDoc, error) {
	doc := addressDoc{
		ID:               r.ID,
		BuildingNumber:   r.BuildingNumber,
		Street:           r.Street,
		Postcode:         r.Postcode,
		Town:             r.Town,
		Latitude:         r.Latitude,
		Longitude:        r.Longitude,
		Municipality:     r.Municipality,
		HouseNumber:      r.HouseNumber,
		HouseLetter:      r.HouseLetter,
		Addition:         r.Addition,
		StreetName:       r.StreetName,
		PlaceName:        r.PlaceName,
		MunicipalityName: r.MunicipalityName,
	}
	if r.Geometry != nil && r.Geometry.Coordinates != nil {
		var coords any
		if err := json.Unmarshal(*r.Geometry.Coordinates, &coords); err != nil {
			return addressDoc{}, eris.Wrapf(err, "mongo: geometry of %s", r.ID)
		}
		doc.Geometry = &geoJSONDoc{Type: r.Geometry.Type, Coordinates: coords}
	}
	return doc, nil
}

// InsertMany upserts records with one unordered bulk write of replace models.
func (s *MongoStore) InsertMany(ctx context.Context, collection string, records []address.Record) (int64, error) {
	if err := validCollection(collection); err != nil {
		return 0, err
	}
	records = dedupe(records)
	if len(records) == 0 {
		return 0, nil
	}

	models := make([]mongo.WriteModel, 0, len(records))
	for i := range records {
		doc, err := toAddressDoc(&records[i])
		if err != nil {
			return 0, err
		}
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.D{{Key: "_id", Value: doc.ID}}).
			SetReplacement(doc).
			SetUpsert(true))
	}

	res, err := s.db.Collection(collection).BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return 0, eris.Wrapf(err, "mongo: insert into %s", collection)
	}
	return res.MatchedCount + res.UpsertedCount, nil
}

// LastLoad returns the load log entry for file, or nil if it was never loaded.
func (s *MongoStore) LastLoad(ctx context.Context, file string) (*LoadEntry, error) {
	var e LoadEntry
	err := s.db.Collection(mongoLoadStatus).FindOne(ctx, bson.D{{Key: "_id", Value: file}}).Decode(&e)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "mongo: last load of %s", file)
	}
	return &e, nil
}

// RecordLoad upserts the load log entry for entry.File.
func (s *MongoStore) RecordLoad(ctx context.Context, entry LoadEntry) error {
	_, err := s.db.Collection(mongoLoadStatus).ReplaceOne(ctx,
		bson.D{{Key: "_id", Value: entry.File}}, entry, options.Replace().SetUpsert(true))
	return eris.Wrapf(err, "mongo: record load of %s", entry.File)
}

// LoadStatus lists the load log ordered by file name.
func (s *MongoStore) LoadStatus(ctx context.Context) ([]LoadEntry, error) {
	cur, err := s.db.Collection(mongoLoadStatus).Find(ctx, bson.D{},
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, eris.Wrap(err, "mongo: load status")
	}
	var entries []LoadEntry
	if err := cur.All(ctx, &entries); err != nil {
		return nil, eris.Wrap(err, "mongo: decode load status")
	}
	return entries, nil
}
