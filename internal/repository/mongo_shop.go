package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ayukmesoh/storekeeper/internal/domain"
)

// MongoShopRepository implements domain.ShopRepository
type MongoShopRepository struct {
	collection *mongo.Collection
}

func NewMongoShopRepository(db *mongo.Database) *MongoShopRepository {
	coll := db.Collection("shops")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, _ = coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "owner_id", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}}},
	})

	return &MongoShopRepository{
		collection: coll,
	}
}

func (r *MongoShopRepository) Create(ctx context.Context, shop *domain.Shop) error {
	now := time.Now().UTC()
	shop.CreatedAt = now
	shop.UpdatedAt = now
	if shop.Status == "" {
		shop.Status = domain.ShopStatusActive
	}

	doc := *shop
	doc.ID = ""
	result, err := r.collection.InsertOne(ctx, &doc)
	if err != nil {
		return fmt.Errorf("failed to create shop: %w", err)
	}
	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		shop.ID = oid.Hex()
	}
	return nil
}

func (r *MongoShopRepository) GetByID(ctx context.Context, id string) (*domain.Shop, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid shop id", domain.ErrValidation)
	}

	var shop domain.Shop
	if err := r.collection.FindOne(ctx, bson.M{"_id": objID}).Decode(&shop); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get shop: %w", err)
	}
	return &shop, nil
}

func (r *MongoShopRepository) GetByOwnerID(ctx context.Context, ownerID string) ([]*domain.Shop, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"owner_id": ownerID})
	if err != nil {
		return nil, fmt.Errorf("failed to list shops by owner: %w", err)
	}
	defer cursor.Close(ctx)

	var shops []*domain.Shop
	if err := cursor.All(ctx, &shops); err != nil {
		return nil, fmt.Errorf("failed to decode shops: %w", err)
	}
	return shops, nil
}

func (r *MongoShopRepository) GetAll(ctx context.Context) ([]*domain.Shop, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list shops: %w", err)
	}
	defer cursor.Close(ctx)

	var shops []*domain.Shop
	if err := cursor.All(ctx, &shops); err != nil {
		return nil, fmt.Errorf("failed to decode shops: %w", err)
	}
	return shops, nil
}

func (r *MongoShopRepository) Update(ctx context.Context, shop *domain.Shop) error {
	objID, err := primitive.ObjectIDFromHex(shop.ID)
	if err != nil {
		return fmt.Errorf("%w: invalid shop id", domain.ErrValidation)
	}

	shop.UpdatedAt = time.Now().UTC()
	update := bson.M{
		"$set": bson.M{
			"name":        shop.Name,
			"phone":       shop.Phone,
			"email":       shop.Email,
			"description": shop.Description,
			"logo_url":    shop.LogoURL,
			"updated_at":  shop.UpdatedAt,
		},
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": objID}, update)
	if err != nil {
		return fmt.Errorf("failed to update shop: %w", err)
	}
	if result.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *MongoShopRepository) SetStatus(ctx context.Context, id string, status string) error {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: invalid shop id", domain.ErrValidation)
	}

	update := bson.M{
		"$set": bson.M{
			"status":     status,
			"updated_at": time.Now().UTC(),
		},
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": objID}, update)
	if err != nil {
		return fmt.Errorf("failed to set shop status: %w", err)
	}
	if result.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}
