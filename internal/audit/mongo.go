// Package audit stores order events in MongoDB.
package audit

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"griff_shop/internal/queue"
)

// Entry is one audit document; the event id doubles as the document id so
// redelivered events collapse into one entry.
type Entry struct {
	ID         string    `bson:"_id" json:"id"`
	Service    string    `bson:"service" json:"service"`
	Action     string    `bson:"action" json:"action"`
	EntityID   string    `bson:"entity_id" json:"entity_id"`
	Data       bson.M    `bson:"data" json:"data"`
	OccurredAt time.Time `bson:"occurred_at" json:"occurred_at"`
	CreatedAt  time.Time `bson:"created_at" json:"created_at"`
}

// Config points at the audit collection.
type Config struct {
	URI        string
	Database   string
	Collection string
}

type MongoRepository struct {
	client     *mongo.Client
	collection *mongo.Collection
}

func NewMongoRepository(ctx context.Context, cfg Config) (*MongoRepository, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	repo := &MongoRepository{
		client:     client,
		collection: client.Database(cfg.Database).Collection(cfg.Collection),
	}
	if err := repo.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return repo, nil
}

func (m *MongoRepository) ensureIndexes(ctx context.Context) error {
	_, err := m.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "entity_id", Value: 1}, {Key: "occurred_at", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("mongo create index: %w", err)
	}
	return nil
}

// Ping checks the connection; the health endpoint reports it.
func (m *MongoRepository) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, nil)
}

func (m *MongoRepository) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// Record implements queue.AuditSink. Duplicate event ids are treated as success.
func (m *MongoRepository) Record(ctx context.Context, ev queue.OrderEvent) error {
	_, err := m.collection.InsertOne(ctx, EntryFromEvent(ev))
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("mongo insert audit: %w", err)
	}
	return nil
}

// History returns the newest entries for an order, newest first.
func (m *MongoRepository) History(ctx context.Context, orderID uint, limit int64) ([]Entry, error) {
	filter := bson.M{"entity_id": entityID(orderID)}
	opts := options.Find().SetSort(bson.D{{Key: "occurred_at", Value: -1}}).SetLimit(limit)

	cursor, err := m.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo find audit: %w", err)
	}
	defer cursor.Close(ctx)

	out := []Entry{}
	if err = cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("mongo decode audit: %w", err)
	}
	return out, nil
}

// EntryFromEvent maps an order event onto an audit document.
func EntryFromEvent(ev queue.OrderEvent) Entry {
	return Entry{
		ID:       ev.EventID,
		Service:  "griff-order",
		Action:   string(ev.Type),
		EntityID: entityID(ev.OrderID),
		Data: bson.M{
			"user_id": ev.UserID,
			"from":    ev.From,
			"to":      ev.To,
			"amount":  ev.Amount,
			"source":  ev.Source,
		},
		OccurredAt: ev.OccurredAt,
		CreatedAt:  time.Now().UTC(),
	}
}

func entityID(orderID uint) string {
	return fmt.Sprintf("order:%d", orderID)
}
