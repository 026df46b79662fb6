package domain

import (
	"context"
	"time"
)

// Product represents an item in a shop's catalog
type Product struct {
	ID          string    `bson:"_id,omitempty" json:"id"`
	ShopID      string    `bson:"shop_id" json:"shop_id"`
	Name        string    `bson:"name" json:"name"`
	Description string    `bson:"description,omitempty" json:"description,omitempty"`
	Price       int64     `bson:"price" json:"price"` // smallest currency unit
	Currency    string    `bson:"currency" json:"currency"`
	Quantity    int       `bson:"quantity" json:"quantity"`
	IsActive    bool      `bson:"is_active" json:"is_active"`
	CreatedAt   time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at" json:"updated_at"`
}

// ProductRepository defines operations for managing products
type ProductRepository interface {
	Create(ctx context.Context, product *Product) error
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByShop(ctx context.Context, shopID string) ([]*Product, error)
	Update(ctx context.Context, product *Product) error
	Delete(ctx context.Context, id string) error
}
