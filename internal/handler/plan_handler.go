package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ayukmesoh/storekeeper/internal/domain"
)

// PlanHandler handles the platform-wide plan catalog. Reads are public to
// authenticated users; writes are operator only.
type PlanHandler struct {
	plans domain.PlanRepository
}

// NewPlanHandler creates a new plan handler
func NewPlanHandler(plans domain.PlanRepository) *PlanHandler {
	return &PlanHandler{plans: plans}
}

// ListActive returns the purchasable catalog.
// GET /api/plans
func (h *PlanHandler) ListActive(c *fiber.Ctx) error {
	plans, err := h.plans.GetActivePlans(c.Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{
		"plans": plans,
		"count": len(plans),
	})
}

// Get returns one plan.
// GET /api/plans/:id
func (h *PlanHandler) Get(c *fiber.Ctx) error {
	plan, err := h.plans.GetByID(c.Context(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(plan)
}

// CreatePlanRequest is the body for adding a catalog plan.
type CreatePlanRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Type        domain.PlanType `json:"type"`
	Price       int64           `json:"price"`
	Currency    string          `json:"currency"`
}

// Create adds a plan to the catalog. Operator only.
// POST /api/admin/plans
func (h *PlanHandler) Create(c *fiber.Ctx) error {
	var req CreatePlanRequest
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
	switch req.Type {
	case domain.PlanTrial, domain.PlanMonthly, domain.PlanYearly:
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "type must be trial, monthly or yearly",
		})
	}
	if req.Price < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "price must not be negative",
		})
	}

	currency := req.Currency
	if currency == "" {
		currency = domain.DefaultCurrency
	}

	now := time.Now().UTC()
	plan := &domain.Plan{
		Name:        req.Name,
		Description: req.Description,
		Type:        req.Type,
		Price:       req.Price,
		Currency:    currency,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := h.plans.Create(c.Context(), plan); err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(plan)
}

// UpdatePlanRequest carries a partial plan update. Nil fields are untouched.
// The plan type is immutable; retire a plan and create a new one instead.
type UpdatePlanRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Price       *int64  `json:"price"`
	IsActive    *bool   `json:"is_active"`
}

// Update modifies a catalog plan. Existing subscriptions keep their snapshot
// of the old pricing. Operator only.
// PUT /api/admin/plans/:id
func (h *PlanHandler) Update(c *fiber.Ctx) error {
	var req UpdatePlanRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	plan, err := h.plans.GetByID(c.Context(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}

	if req.Name != nil {
		plan.Name = *req.Name
	}
	if req.Description != nil {
		plan.Description = *req.Description
	}
	if req.Price != nil {
		if *req.Price < 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "price must not be negative",
			})
		}
		plan.Price = *req.Price
	}
	if req.IsActive != nil {
		plan.IsActive = *req.IsActive
	}
	plan.UpdatedAt = time.Now().UTC()

	if err := h.plans.Update(c.Context(), plan); err != nil {
		return writeError(c, err)
	}
	return c.JSON(plan)
}
