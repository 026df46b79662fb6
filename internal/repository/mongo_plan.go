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

// MongoPlanRepository implements domain.PlanRepository
type MongoPlanRepository struct {
	collection *mongo.Collection
}

func NewMongoPlanRepository(db *mongo.Database) *MongoPlanRepository {
	coll := db.Collection("plans")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, _ = coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "name", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "is_active", Value: 1}}},
	})

	return &MongoPlanRepository{
		collection: coll,
	}
}

func (r *MongoPlanRepository) Create(ctx context.Context, plan *domain.Plan) error {
	now := time.Now().UTC()
	plan.CreatedAt = now
	plan.UpdatedAt = now

	doc := *plan
	doc.ID = ""
	result, err := r.collection.InsertOne(ctx, &doc)
	if err != nil {
		return fmt.Errorf("failed to create plan: %w", err)
	}
	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		plan.ID = oid.Hex()
	}
	return nil
}

func (r *MongoPlanRepository) GetByID(ctx context.Context, id string) (*domain.Plan, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid plan id", domain.ErrValidation)
	}

	var plan domain.Plan
	if err := r.collection.FindOne(ctx, bson.M{"_id": objID}).Decode(&plan); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	return &plan, nil
}

func (r *MongoPlanRepository) GetByName(ctx context.Context, name string) (*domain.Plan, error) {
	var plan domain.Plan
	if err := r.collection.FindOne(ctx, bson.M{"name": name}).Decode(&plan); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get plan by name: %w", err)
	}
	return &plan, nil
}

func (r *MongoPlanRepository) GetActivePlans(ctx context.Context) ([]*domain.Plan, error) {
	opts := options.Find().SetSort(bson.D{{Key: "price", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{"is_active": true}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list active plans: %w", err)
	}
	defer cursor.Close(ctx)

	var plans []*domain.Plan
	if err := cursor.All(ctx, &plans); err != nil {
		return nil, fmt.Errorf("failed to decode plans: %w", err)
	}
	return plans, nil
}

func (r *MongoPlanRepository) Update(ctx context.Context, plan *domain.Plan) error {
	objID, err := primitive.ObjectIDFromHex(plan.ID)
	if err != nil {
		return fmt.Errorf("%w: invalid plan id", domain.ErrValidation)
	}

	plan.UpdatedAt = time.Now().UTC()
	update := bson.M{
		"$set": bson.M{
			"name":        plan.Name,
			"description": plan.Description,
			"type":        plan.Type,
			"price":       plan.Price,
			"currency":    plan.Currency,
			"is_active":   plan.IsActive,
			"updated_at":  plan.UpdatedAt,
		},
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": objID}, update)
	if err != nil {
		return fmt.Errorf("failed to update plan: %w", err)
	}
	if result.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}
