package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	apperrors "github.com/minoad/docuparse/internal/errors"
)

// MongoWriter stores records in a collection using the key as _id
type MongoWriter struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// NewMongoWriter connects to uri and selects database.collection
func NewMongoWriter(ctx context.Context, uri, database, collection string) (*MongoWriter, error) {
	if uri == "" {
		return nil, fmt.Errorf("mongo URI is required")
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	return newMongoWriter(client, client.Database(database).Collection(collection)), nil
}

func newMongoWriter(client *mongo.Client, coll *mongo.Collection) *MongoWriter {
	return &MongoWriter{client: client, coll: coll}
}

func (m *MongoWriter) Name() string { return "mongo" }

func (m *MongoWriter) Exists(ctx context.Context, key string) (bool, error) {
	n, err := m.coll.CountDocuments(ctx, bson.M{"_id": key}, options.Count().SetLimit(1))
	if err != nil {
		return false, apperrors.NewStorageFailedError(key, m.Name(), err)
	}
	return n > 0, nil
}

// WriteData inserts without force and relies on the _id index to reject an
// existing key. With force the record is replaced, or inserted if absent.
func (m *MongoWriter) WriteData(ctx context.Context, payload Payload, force bool) (bool, error) {
	key, doc, err := singleEntry(payload)
	if err != nil {
		return false, err
	}
	record := withID(key, doc)

	if force {
		_, err := m.coll.ReplaceOne(ctx, bson.M{"_id": key}, record, options.Replace().SetUpsert(true))
		if err != nil {
			return false, apperrors.NewStorageFailedError(key, m.Name(), err)
		}
		return true, nil
	}

	if _, err := m.coll.InsertOne(ctx, record); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, apperrors.NewStorageFailedError(key, m.Name(), err)
	}
	return true, nil
}

func (m *MongoWriter) Read(ctx context.Context, key string) (Document, bool, error) {
	var doc bson.M
	err := m.coll.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apperrors.NewStorageFailedError(key, m.Name(), err)
	}
	return Document(doc), true, nil
}

func (m *MongoWriter) Count(ctx context.Context) (int64, error) {
	n, err := m.coll.EstimatedDocumentCount(ctx)
	if err != nil {
		return 0, apperrors.NewStorageFailedError("", m.Name(), err)
	}
	return n, nil
}

func (m *MongoWriter) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}
