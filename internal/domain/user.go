package domain

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Role constants
const (
	RoleOwner      = "owner"       // Shop owner
	RoleStaff      = "staff"       // Shop staff member
	RoleSuperAdmin = "super_admin" // Platform operator - no shop restriction
)

// User represents an account with one or more roles
type User struct {
	ID        string    `bson:"_id,omitempty" json:"id"`
	Email     string    `bson:"email" json:"email"`
	Name      string    `bson:"name" json:"name"`
	Phone     string    `bson:"phone,omitempty" json:"phone,omitempty"`
	Roles     []string  `bson:"roles" json:"roles"`
	ShopID    string    `bson:"shop_id,omitempty" json:"shop_id,omitempty"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// HasRole checks if user has a specific role
func (u *User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// StoreKeeperClaims are the JWT claims carried by API tokens.
type StoreKeeperClaims struct {
	UserID string   `json:"user_id"`
	Roles  []string `json:"roles"`
	ShopID string   `json:"shop_id,omitempty"`
	jwt.RegisteredClaims
}

// UserRepository defines operations for managing accounts
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByShop(ctx context.Context, shopID string) ([]*User, error)
	Update(ctx context.Context, user *User) error
	Delete(ctx context.Context, id string) error
}
