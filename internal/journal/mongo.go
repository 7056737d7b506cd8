package journal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const collectionName = "dispatches"

func ConnectMongoDB(ctx context.Context, uri, database string) (*mongo.Database, error) {
	clientOpts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetMaxPoolSize(20)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return client.Database(database), nil
}

type MongoJournal struct {
	collection *mongo.Collection
}

func NewMongoJournal(db *mongo.Database) *MongoJournal {
	return &MongoJournal{collection: db.Collection(collectionName)}
}

func (m *MongoJournal) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "completed_at", Value: -1}}},
		{Keys: bson.D{{Key: "order_ids", Value: 1}}},
	}

	if _, err := m.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

func (m *MongoJournal) Record(ctx context.Context, e Entry) error {
	if _, err := m.collection.InsertOne(ctx, e); err != nil {
		return fmt.Errorf("failed to record dispatch: %w", err)
	}
	return nil
}

func (m *MongoJournal) List(ctx context.Context, limit int) ([]Entry, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "completed_at", Value: -1}}).
		SetLimit(int64(normaliseLimit(limit)))

	cur, err := m.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list dispatches: %w", err)
	}
	defer cur.Close(ctx)

	entries := make([]Entry, 0)
	if err := cur.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode dispatches: %w", err)
	}
	return entries, nil
}

func (m *MongoJournal) Get(ctx context.Context, dispatchID string) (*Entry, error) {
	var e Entry
	err := m.collection.FindOne(ctx, bson.M{"_id": dispatchID}).Decode(&e)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrDispatchNotFound
		}
		return nil, fmt.Errorf("failed to get dispatch: %w", err)
	}
	return &e, nil
}

// Close disconnects the underlying client.
func (m *MongoJournal) Close(ctx context.Context) error {
	return m.collection.Database().Client().Disconnect(ctx)
}
