package domain

import (
	"context"
	"time"
)

// DefaultCurrency is the platform billing currency (smallest unit, no
// decimals for XAF).
const DefaultCurrency = "XAF"

// Plan represents a purchasable subscription offering in the catalog
type Plan struct {
	ID          string    `bson:"_id,omitempty" json:"id"`
	Name        string    `bson:"name" json:"name"`
	Description string    `bson:"description,omitempty" json:"description,omitempty"`
	Type        PlanType  `bson:"type" json:"type"`
	Price       int64     `bson:"price" json:"price"` // Price in smallest currency unit
	Currency    string    `bson:"currency" json:"currency"`
	IsActive    bool      `bson:"is_active" json:"is_active"`
	CreatedAt   time.Time `bson:"created_at,omitempty" json:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at,omitempty" json:"updated_at"`
}

// PlanRepository defines operations for managing the plan catalog
type PlanRepository interface {
	Create(ctx context.Context, plan *Plan) error
	GetByID(ctx context.Context, id string) (*Plan, error)
	GetByName(ctx context.Context, name string) (*Plan, error)
	GetActivePlans(ctx context.Context) ([]*Plan, error)
	Update(ctx context.Context, plan *Plan) error
}
