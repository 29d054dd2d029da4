package etl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BartekS5/nyc-taxi-etl/pkg/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoCheckpointStore keeps one document per pipeline, keyed by name.
type MongoCheckpointStore struct {
	Client     *mongo.Client
	Database   string
	Collection string
}

type mongoCheckpoint struct {
	Pipeline        string    `bson:"_id"`
	LastLoadedMonth string    `bson:"last_loaded_month"`
	LastLoadedAt    time.Time `bson:"last_loaded_at"`
}

func NewMongoCheckpointStore(client *mongo.Client, database, collection string) *MongoCheckpointStore {
	return &MongoCheckpointStore{Client: client, Database: database, Collection: collection}
}

func (m *MongoCheckpointStore) coll() *mongo.Collection {
	return m.Client.Database(m.Database).Collection(m.Collection)
}

func (m *MongoCheckpointStore) Read(ctx context.Context, pipeline string) (*models.Checkpoint, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var doc mongoCheckpoint
	err := m.coll().FindOne(ctx, bson.M{"_id": pipeline}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, models.NewError(models.KindTransientIO, fmt.Errorf("reading checkpoint: %w", err))
	}
	return checkpointFromDoc(doc)
}

func checkpointFromDoc(doc mongoCheckpoint) (*models.Checkpoint, error) {
	if doc.LastLoadedMonth == "" {
		return nil, nil
	}
	p, err := models.ParsePartition(doc.LastLoadedMonth)
	if err != nil {
		return nil, models.NewError(models.KindInvalidState,
			fmt.Errorf("checkpoint of %s holds %q: %w", doc.Pipeline, doc.LastLoadedMonth, err))
	}
	return &models.Checkpoint{Pipeline: doc.Pipeline, Partition: p, LoadedAt: doc.LastLoadedAt.UTC()}, nil
}

// Commit upserts the pipeline document. A single-document update is atomic,
// so readers see either the previous or the new checkpoint.
func (m *MongoCheckpointStore) Commit(ctx context.Context, pipeline string, p models.Partition, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	filter := bson.M{"_id": pipeline}
	update := bson.M{"$set": bson.M{
		"last_loaded_month": p.String(),
		"last_loaded_at":    at.UTC(),
	}}
	_, err := m.coll().UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return models.NewError(models.KindTransientIO, fmt.Errorf("writing checkpoint: %w", err))
	}
	return nil
}
