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

// MongoSubscriptionRepository implements domain.SubscriptionRepository.
// The aggregate is one document per subscription with the history embedded;
// Save replaces the whole document guarded by a version compare-and-swap.
type MongoSubscriptionRepository struct {
	collection *mongo.Collection
}

// NewMongoSubscriptionRepository creates a new subscription repository
func NewMongoSubscriptionRepository(db *mongo.Database) *MongoSubscriptionRepository {
	coll := db.Collection("subscriptions")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, _ = coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "shop_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "dates.end_date", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "dates.trial_ends_at", Value: 1}}},
	})

	return &MongoSubscriptionRepository{
		collection: coll,
	}
}

func (r *MongoSubscriptionRepository) Create(ctx context.Context, sub *domain.Subscription) error {
	if sub.Version == 0 {
		sub.Version = 1
	}

	doc := *sub
	doc.ID = ""
	result, err := r.collection.InsertOne(ctx, &doc)
	if err != nil {
		return fmt.Errorf("failed to create subscription: %w", storeErr(err))
	}
	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		sub.ID = oid.Hex()
	}
	return nil
}

func (r *MongoSubscriptionRepository) FindByID(ctx context.Context, id string) (*domain.Subscription, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid subscription id", domain.ErrValidation)
	}

	var sub domain.Subscription
	if err := r.collection.FindOne(ctx, bson.M{"_id": objID, "deleted": bson.M{"$ne": true}}).Decode(&sub); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get subscription: %w", storeErr(err))
	}
	return &sub, nil
}

func (r *MongoSubscriptionRepository) FindByShop(ctx context.Context, shopID string) ([]*domain.Subscription, error) {
	filter := bson.M{"shop_id": shopID, "deleted": bson.M{"$ne": true}}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	return r.find(ctx, filter, opts)
}

func (r *MongoSubscriptionRepository) FindCurrentByShop(ctx context.Context, shopID string) (*domain.Subscription, error) {
	filter := bson.M{"shop_id": shopID, "deleted": bson.M{"$ne": true}}
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})

	var sub domain.Subscription
	if err := r.collection.FindOne(ctx, filter, opts).Decode(&sub); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get current subscription: %w", storeErr(err))
	}
	return &sub, nil
}

func (r *MongoSubscriptionRepository) FindTrialsEndingBy(ctx context.Context, cutoff time.Time) ([]*domain.Subscription, error) {
	filter := bson.M{
		"status":                         domain.StatusTrial,
		"deleted":                        bson.M{"$ne": true},
		"renewal_settings.reminder_sent": false,
		"dates.trial_ends_at":            bson.M{"$lte": cutoff},
	}
	return r.find(ctx, filter)
}

func (r *MongoSubscriptionRepository) FindExpiringBy(ctx context.Context, cutoff time.Time) ([]*domain.Subscription, error) {
	filter := bson.M{
		"status":                         domain.StatusActive,
		"deleted":                        bson.M{"$ne": true},
		"renewal_settings.reminder_sent": false,
		"dates.end_date":                 bson.M{"$lte": cutoff},
	}
	return r.find(ctx, filter)
}

func (r *MongoSubscriptionRepository) FindRenewalCandidates(ctx context.Context, cutoff time.Time) ([]*domain.Subscription, error) {
	filter := bson.M{
		"status":                      bson.M{"$in": []domain.SubscriptionStatus{domain.StatusActive, domain.StatusPastDue}},
		"deleted":                     bson.M{"$ne": true},
		"renewal_settings.auto_renew": true,
		"dates.end_date":              bson.M{"$lte": cutoff},
	}
	return r.find(ctx, filter)
}

// FindExpiredActive returns lapsed subscriptions due for deactivation.
// Auto-renewing subscriptions stay out of this scan until the renewal job
// has demoted them to past_due; lapsed trials are always included.
func (r *MongoSubscriptionRepository) FindExpiredActive(ctx context.Context, now time.Time) ([]*domain.Subscription, error) {
	filter := bson.M{
		"status":         bson.M{"$in": []domain.SubscriptionStatus{domain.StatusTrial, domain.StatusActive, domain.StatusPastDue}},
		"deleted":        bson.M{"$ne": true},
		"dates.end_date": bson.M{"$lt": now},
		"$or": []bson.M{
			{"renewal_settings.auto_renew": false},
			{"status": domain.StatusPastDue},
		},
	}
	return r.find(ctx, filter)
}

// Save replaces the document only when the stored version still matches
// expectedVersion. A concurrent writer who got there first leaves us with
// ErrConflict; the caller reloads and retries.
func (r *MongoSubscriptionRepository) Save(ctx context.Context, sub *domain.Subscription, expectedVersion int64) error {
	objID, err := primitive.ObjectIDFromHex(sub.ID)
	if err != nil {
		return fmt.Errorf("%w: invalid subscription id", domain.ErrValidation)
	}

	doc := *sub
	doc.ID = ""
	doc.Version = expectedVersion + 1

	filter := bson.M{"_id": objID, "version": expectedVersion}
	result, err := r.collection.ReplaceOne(ctx, filter, &doc)
	if err != nil {
		return fmt.Errorf("failed to save subscription: %w", storeErr(err))
	}
	if result.MatchedCount == 0 {
		// Distinguish a lost race from a missing document.
		count, err := r.collection.CountDocuments(ctx, bson.M{"_id": objID})
		if err != nil {
			return fmt.Errorf("failed to save subscription: %w", storeErr(err))
		}
		if count == 0 {
			return domain.ErrNotFound
		}
		return domain.ErrConflict
	}

	sub.Version = doc.Version
	return nil
}

func (r *MongoSubscriptionRepository) find(ctx context.Context, filter bson.M, opts ...*options.FindOptions) ([]*domain.Subscription, error) {
	cursor, err := r.collection.Find(ctx, filter, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", storeErr(err))
	}
	defer cursor.Close(ctx)

	var subs []*domain.Subscription
	if err := cursor.All(ctx, &subs); err != nil {
		return nil, fmt.Errorf("failed to decode subscriptions: %w", storeErr(err))
	}
	return subs, nil
}

// storeErr tags driver-level connectivity failures so batch callers can tell
// a dead store from a bad document.
func storeErr(err error) error {
	if mongo.IsTimeout(err) || mongo.IsNetworkError(err) || errors.Is(err, mongo.ErrClientDisconnected) {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return err
}
