package repository

import (
	"context"
	"time"

	"github.com/ayukmesoh/storekeeper/internal/domain"
)

const planCacheTTL = 10 * time.Minute

// CachedPlanRepository wraps MongoPlanRepository with Redis caching. The
// plan catalog is small and nearly static, so every read path is cached.
type CachedPlanRepository struct {
	mongo *MongoPlanRepository
	cache *RedisCacheRepository
}

// NewCachedPlanRepository creates a new cached plan repository
func NewCachedPlanRepository(mongo *MongoPlanRepository, cache *RedisCacheRepository) *CachedPlanRepository {
	return &CachedPlanRepository{
		mongo: mongo,
		cache: cache,
	}
}

// GetByID retrieves a plan by ID with caching
func (r *CachedPlanRepository) GetByID(ctx context.Context, id string) (*domain.Plan, error) {
	key := planByIDKeyPrefix + id

	var plan domain.Plan
	if err := r.cache.Get(ctx, key, &plan); err == nil {
		return &plan, nil
	}

	result, err := r.mongo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	// Store in cache (ignore cache errors)
	_ = r.cache.Set(ctx, key, result, planCacheTTL)

	return result, nil
}

// GetByName retrieves a plan by its unique name with caching
func (r *CachedPlanRepository) GetByName(ctx context.Context, name string) (*domain.Plan, error) {
	key := planByNameKeyPrefix + name

	var plan domain.Plan
	if err := r.cache.Get(ctx, key, &plan); err == nil {
		return &plan, nil
	}

	result, err := r.mongo.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}

	_ = r.cache.Set(ctx, key, result, planCacheTTL)

	return result, nil
}

// GetActivePlans retrieves the purchasable catalog with caching
func (r *CachedPlanRepository) GetActivePlans(ctx context.Context) ([]*domain.Plan, error) {
	var plans []*domain.Plan
	if err := r.cache.Get(ctx, activePlansKey, &plans); err == nil {
		return plans, nil
	}

	result, err := r.mongo.GetActivePlans(ctx)
	if err != nil {
		return nil, err
	}

	_ = r.cache.Set(ctx, activePlansKey, result, planCacheTTL)

	return result, nil
}

// Create creates a plan and invalidates the catalog cache
func (r *CachedPlanRepository) Create(ctx context.Context, plan *domain.Plan) error {
	if err := r.mongo.Create(ctx, plan); err != nil {
		return err
	}

	_ = r.cache.Delete(ctx, activePlansKey)
	return nil
}

// Update updates a plan and invalidates its caches
func (r *CachedPlanRepository) Update(ctx context.Context, plan *domain.Plan) error {
	if err := r.mongo.Update(ctx, plan); err != nil {
		return err
	}

	_ = r.cache.Delete(ctx,
		planByIDKeyPrefix+plan.ID,
		planByNameKeyPrefix+plan.Name,
		activePlansKey,
	)
	return nil
}
