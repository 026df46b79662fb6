package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ayukmesoh/storekeeper/internal/domain"
)

// MongoNotificationRepository implements domain.NotificationRepository
type MongoNotificationRepository struct {
	collection *mongo.Collection
}

func NewMongoNotificationRepository(db *mongo.Database) *MongoNotificationRepository {
	coll := db.Collection("notifications")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, _ = coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "shop_id", Value: 1}, {Key: "created_at", Value: -1}}},
	})

	return &MongoNotificationRepository{
		collection: coll,
	}
}

func (r *MongoNotificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	n.CreatedAt = time.Now().UTC()

	doc := *n
	doc.ID = ""
	result, err := r.collection.InsertOne(ctx, &doc)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		n.ID = oid.Hex()
	}
	return nil
}

func (r *MongoNotificationRepository) GetByShop(ctx context.Context, shopID string, limit int64) ([]*domain.Notification, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}

	cursor, err := r.collection.Find(ctx, bson.M{"shop_id": shopID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer cursor.Close(ctx)

	var notifications []*domain.Notification
	if err := cursor.All(ctx, &notifications); err != nil {
		return nil, fmt.Errorf("failed to decode notifications: %w", err)
	}
	return notifications, nil
}
