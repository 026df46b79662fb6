package domain

import (
	"context"
	"time"
)

// Shop statuses mirror the subscription lifecycle at the tenant level.
const (
	ShopStatusActive    = "active"
	ShopStatusSuspended = "suspended"
)

// Shop represents a merchant tenant on the platform
type Shop struct {
	ID          string    `bson:"_id,omitempty" json:"id"`
	Name        string    `bson:"name" json:"name"`
	OwnerID     string    `bson:"owner_id" json:"owner_id"`
	Phone       string    `bson:"phone,omitempty" json:"phone,omitempty"` // mobile-money payer number
	Email       string    `bson:"email,omitempty" json:"email,omitempty"`
	Status      string    `bson:"status" json:"status"`
	Description string    `bson:"description,omitempty" json:"description,omitempty"`
	LogoURL     string    `bson:"logo_url,omitempty" json:"logo_url,omitempty"`
	CreatedAt   time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at" json:"updated_at"`
}

// ShopRepository defines operations for managing shops. SetStatus is the
// gateway the billing engine uses to keep tenant flags consistent with the
// subscription state.
type ShopRepository interface {
	Create(ctx context.Context, shop *Shop) error
	GetByID(ctx context.Context, id string) (*Shop, error)
	GetByOwnerID(ctx context.Context, ownerID string) ([]*Shop, error)
	GetAll(ctx context.Context) ([]*Shop, error)
	Update(ctx context.Context, shop *Shop) error
	SetStatus(ctx context.Context, id string, status string) error
}
