package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ayukmesoh/storekeeper/internal/domain"
)

// ProductHandler handles a shop's product catalog
type ProductHandler struct {
	products domain.ProductRepository
}

// NewProductHandler creates a new product handler
func NewProductHandler(products domain.ProductRepository) *ProductHandler {
	return &ProductHandler{products: products}
}

// CreateProductRequest is the body for adding a product.
type CreateProductRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       int64  `json:"price"`
	Currency    string `json:"currency"`
	Quantity    int    `json:"quantity"`
}

// Create adds a product to the shop's catalog.
// POST /api/shops/:shopId/products
func (h *ProductHandler) Create(c *fiber.Ctx) error {
	var req CreateProductRequest
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
	product := &domain.Product{
		ShopID:      c.Params("shopId"),
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Currency:    currency,
		Quantity:    req.Quantity,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := h.products.Create(c.Context(), product); err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(product)
}

// List returns the shop's products.
// GET /api/shops/:shopId/products
func (h *ProductHandler) List(c *fiber.Ctx) error {
	products, err := h.products.GetByShop(c.Context(), c.Params("shopId"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{
		"products": products,
		"count":    len(products),
	})
}

// Get returns one product.
// GET /api/shops/:shopId/products/:id
func (h *ProductHandler) Get(c *fiber.Ctx) error {
	product, err := h.loadScoped(c)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(product)
}

// UpdateProductRequest carries a partial product update. Nil fields are
// untouched.
type UpdateProductRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Price       *int64  `json:"price"`
	Quantity    *int    `json:"quantity"`
	IsActive    *bool   `json:"is_active"`
}

// Update applies a partial update to a product.
// PUT /api/shops/:shopId/products/:id
func (h *ProductHandler) Update(c *fiber.Ctx) error {
	var req UpdateProductRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	product, err := h.loadScoped(c)
	if err != nil {
		return writeError(c, err)
	}

	if req.Name != nil {
		product.Name = *req.Name
	}
	if req.Description != nil {
		product.Description = *req.Description
	}
	if req.Price != nil {
		if *req.Price < 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "price must not be negative",
			})
		}
		product.Price = *req.Price
	}
	if req.Quantity != nil {
		product.Quantity = *req.Quantity
	}
	if req.IsActive != nil {
		product.IsActive = *req.IsActive
	}
	product.UpdatedAt = time.Now().UTC()

	if err := h.products.Update(c.Context(), product); err != nil {
		return writeError(c, err)
	}
	return c.JSON(product)
}

// Delete removes a product from the catalog.
// DELETE /api/shops/:shopId/products/:id
func (h *ProductHandler) Delete(c *fiber.Ctx) error {
	product, err := h.loadScoped(c)
	if err != nil {
		return writeError(c, err)
	}
	if err := h.products.Delete(c.Context(), product.ID); err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{
		"message": "Product deleted",
	})
}

// loadScoped fetches the product and checks it belongs to the shop in the
// route, so a product ID from another tenant 404s instead of leaking.
func (h *ProductHandler) loadScoped(c *fiber.Ctx) (*domain.Product, error) {
	product, err := h.products.GetByID(c.Context(), c.Params("id"))
	if err != nil {
		return nil, err
	}
	if product.ShopID != c.Params("shopId") {
		return nil, domain.ErrNotFound
	}
	return product, nil
}
