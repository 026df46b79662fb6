package handler

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ayukmesoh/storekeeper/internal/domain"
	"github.com/ayukmesoh/storekeeper/internal/middleware"
	"github.com/ayukmesoh/storekeeper/internal/service"
)

// defaultTrialPlanName is the catalog name of the plan every new shop starts
// on. The seed tool creates it.
const defaultTrialPlanName = "Free Trial"

// ShopHandler handles shop onboarding and management. Onboarding creates the
// shop together with its trial subscription, so a shop is never without a
// billing lifecycle.
type ShopHandler struct {
	shops     domain.ShopRepository
	lifecycle *service.LifecycleService
}

// NewShopHandler creates a new shop handler
func NewShopHandler(shops domain.ShopRepository, lifecycle *service.LifecycleService) *ShopHandler {
	return &ShopHandler{
		shops:     shops,
		lifecycle: lifecycle,
	}
}

// OnboardRequest is the body for creating a shop.
type OnboardRequest struct {
	Name        string `json:"name"`
	Phone       string `json:"phone"`
	Email       string `json:"email"`
	Description string `json:"description"`
}

// Onboard creates a shop for the authenticated owner and starts its trial.
// POST /api/shops
func (h *ShopHandler) Onboard(c *fiber.Ctx) error {
	var req OnboardRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.Name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "name is required",
		})
	}

	now := time.Now().UTC()
	shop := &domain.Shop{
		Name:        req.Name,
		OwnerID:     middleware.GetUserID(c),
		Phone:       req.Phone,
		Email:       req.Email,
		Status:      domain.ShopStatusActive,
		Description: req.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := h.shops.Create(c.Context(), shop); err != nil {
		return writeError(c, err)
	}

	sub, err := h.lifecycle.StartTrial(c.Context(), shop.ID, defaultTrialPlanName)
	if err != nil {
		log.Printf("[Shop] Shop %s created but trial start failed: %v", shop.ID, err)
		return writeError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"shop":         shop,
		"subscription": sub,
	})
}

// Get returns one shop.
// GET /api/shops/:shopId
func (h *ShopHandler) Get(c *fiber.Ctx) error {
	shop, err := h.shops.GetByID(c.Context(), c.Params("shopId"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(shop)
}

// GetMine lists the shops owned by the authenticated user.
// GET /api/shops
func (h *ShopHandler) GetMine(c *fiber.Ctx) error {
	shops, err := h.shops.GetByOwnerID(c.Context(), middleware.GetUserID(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{
		"shops": shops,
		"count": len(shops),
	})
}

// ListAll lists every shop on the platform. Operator only.
// GET /api/admin/shops
func (h *ShopHandler) ListAll(c *fiber.Ctx) error {
	shops, err := h.shops.GetAll(c.Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{
		"shops": shops,
		"count": len(shops),
	})
}

// UpdateShopRequest carries a partial shop update. Nil fields are untouched.
type UpdateShopRequest struct {
	Name        *string `json:"name"`
	Phone       *string `json:"phone"`
	Email       *string `json:"email"`
	Description *string `json:"description"`
	LogoURL     *string `json:"logo_url"`
}

// Update applies a partial update to a shop. The status field is owned by
// the billing engine and cannot be set here.
// PUT /api/shops/:shopId
func (h *ShopHandler) Update(c *fiber.Ctx) error {
	var req UpdateShopRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	shop, err := h.shops.GetByID(c.Context(), c.Params("shopId"))
	if err != nil {
		return writeError(c, err)
	}

	if req.Name != nil {
		shop.Name = *req.Name
	}
	if req.Phone != nil {
		shop.Phone = *req.Phone
	}
	if req.Email != nil {
		shop.Email = *req.Email
	}
	if req.Description != nil {
		shop.Description = *req.Description
	}
	if req.LogoURL != nil {
		shop.LogoURL = *req.LogoURL
	}
	shop.UpdatedAt = time.Now().UTC()

	if err := h.shops.Update(c.Context(), shop); err != nil {
		return writeError(c, err)
	}
	return c.JSON(shop)
}
