package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ayukmesoh/storekeeper/internal/domain"
	"github.com/ayukmesoh/storekeeper/internal/middleware"
)

// AccountHandler manages user accounts. Owners manage their shop's staff;
// platform operators can touch any account.
type AccountHandler struct {
	users domain.UserRepository
}

// NewAccountHandler creates a new account handler
func NewAccountHandler(users domain.UserRepository) *AccountHandler {
	return &AccountHandler{users: users}
}

// CreateAccountRequest is the body for creating a staff account.
type CreateAccountRequest struct {
	Email string   `json:"email"`
	Name  string   `json:"name"`
	Phone string   `json:"phone"`
	Roles []string `json:"roles"`
}

// Create adds a staff account to the caller's shop.
// POST /api/shops/:shopId/accounts
func (h *AccountHandler) Create(c *fiber.Ctx) error {
	var req CreateAccountRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.Email == "" || req.Name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "email and name are required",
		})
	}

	roles := req.Roles
	if len(roles) == 0 {
		roles = []string{domain.RoleStaff}
	}
	for _, role := range roles {
		switch role {
		case domain.RoleOwner, domain.RoleStaff:
		default:
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "role must be owner or staff",
			})
		}
	}

	now := time.Now().UTC()
	user := &domain.User{
		Email:     req.Email,
		Name:      req.Name,
		Phone:     req.Phone,
		Roles:     roles,
		ShopID:    c.Params("shopId"),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.users.Create(c.Context(), user); err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(user)
}

// List returns the shop's accounts.
// GET /api/shops/:shopId/accounts
func (h *AccountHandler) List(c *fiber.Ctx) error {
	users, err := h.users.GetByShop(c.Context(), c.Params("shopId"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{
		"accounts": users,
		"count":    len(users),
	})
}

// Get returns one account in the shop.
// GET /api/shops/:shopId/accounts/:id
func (h *AccountHandler) Get(c *fiber.Ctx) error {
	user, err := h.loadScoped(c)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(user)
}

// UpdateAccountRequest carries a partial account update. Nil fields are
// untouched.
type UpdateAccountRequest struct {
	Name  *string  `json:"name"`
	Phone *string  `json:"phone"`
	Roles []string `json:"roles"`
}

// Update applies a partial update to an account.
// PUT /api/shops/:shopId/accounts/:id
func (h *AccountHandler) Update(c *fiber.Ctx) error {
	var req UpdateAccountRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	user, err := h.loadScoped(c)
	if err != nil {
		return writeError(c, err)
	}

	if req.Name != nil {
		user.Name = *req.Name
	}
	if req.Phone != nil {
		user.Phone = *req.Phone
	}
	if len(req.Roles) > 0 {
		for _, role := range req.Roles {
			switch role {
			case domain.RoleOwner, domain.RoleStaff:
			default:
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "role must be owner or staff",
				})
			}
		}
		user.Roles = req.Roles
	}
	user.UpdatedAt = time.Now().UTC()

	if err := h.users.Update(c.Context(), user); err != nil {
		return writeError(c, err)
	}
	return c.JSON(user)
}

// Delete removes an account. Owners cannot delete themselves, so a shop
// always keeps at least its owner.
// DELETE /api/shops/:shopId/accounts/:id
func (h *AccountHandler) Delete(c *fiber.Ctx) error {
	user, err := h.loadScoped(c)
	if err != nil {
		return writeError(c, err)
	}
	if user.ID == middleware.GetUserID(c) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Cannot delete your own account",
		})
	}

	if err := h.users.Delete(c.Context(), user.ID); err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{
		"message": "Account deleted",
	})
}

// loadScoped fetches the account and checks it belongs to the shop in the
// route.
func (h *AccountHandler) loadScoped(c *fiber.Ctx) (*domain.User, error) {
	user, err := h.users.GetByID(c.Context(), c.Params("id"))
	if err != nil {
		return nil, err
	}
	if user.ShopID != c.Params("shopId") {
		return nil, domain.ErrNotFound
	}
	return user, nil
}
