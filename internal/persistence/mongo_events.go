package persistence

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/petrijr/scrapeflow/pkg/api"
)

// MongoEventStore stores run events as documents, one per event.
type MongoEventStore struct {
	coll *mongo.Collection
}

var _ EventStore = (*MongoEventStore)(nil)

type mongoEventDoc struct {
	eventRecord `bson:",inline"`
	Output      []byte `bson:"output,omitempty"`
}

// NewMongoEventStore creates a Mongo-backed event store.
// dbName defaults to "scrapeflow" if empty, collName defaults to "run_events".
func NewMongoEventStore(client *mongo.Client, dbName, collName string) *MongoEventStore {
	if dbName == "" {
		dbName = "scrapeflow"
	}
	if collName == "" {
		collName = "run_events"
	}
	return &MongoEventStore{
		coll: client.Database(dbName).Collection(collName),
	}
}

// EnsureIndexes creates the (run_id, seq) index used by ListEvents.
func (s *MongoEventStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "run_id", Value: 1}, {Key: "seq", Value: 1}},
	})
	return err
}

func (s *MongoEventStore) AppendEvent(ctx context.Context, ev api.Event) error {
	rec, err := toRecord(ev)
	if err != nil {
		return err
	}
	_, err = s.coll.InsertOne(ctx, mongoEventDoc{eventRecord: rec, Output: rec.Output})
	return err
}

func (s *MongoEventStore) ListEvents(ctx context.Context, runID string) ([]api.Event, error) {
	opts := options.Find().SetSort(bson.D{{Key: "seq", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.coll.Find(ctx, bson.M{"run_id": runID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []api.Event
	for cur.Next(ctx) {
		var doc mongoEventDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		doc.eventRecord.Output = doc.Output
		ev, err := doc.event()
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, cur.Err()
}
