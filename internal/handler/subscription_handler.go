package handler

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ayukmesoh/storekeeper/internal/domain"
	"github.com/ayukmesoh/storekeeper/internal/middleware"
	"github.com/ayukmesoh/storekeeper/internal/repository"
	"github.com/ayukmesoh/storekeeper/internal/service"
)

// billingViewTTL keeps the per-shop billing view fresh enough for dashboards
// while absorbing polling traffic. Mutations invalidate explicitly.
const billingViewTTL = time.Minute

// SubscriptionHandler exposes the billing lifecycle over HTTP. All state
// changes go through the lifecycle service or the reconciler; the handler
// only parses, authorizes and shapes responses.
type SubscriptionHandler struct {
	subs       domain.SubscriptionRepository
	lifecycle  *service.LifecycleService
	reconciler *service.PaymentReconciler
	cache      *repository.RedisCacheRepository
}

// NewSubscriptionHandler creates a new subscription handler
func NewSubscriptionHandler(
	subs domain.SubscriptionRepository,
	lifecycle *service.LifecycleService,
	reconciler *service.PaymentReconciler,
	cache *repository.RedisCacheRepository,
) *SubscriptionHandler {
	return &SubscriptionHandler{
		subs:       subs,
		lifecycle:  lifecycle,
		reconciler: reconciler,
		cache:      cache,
	}
}

// GetCurrent returns the shop's current subscription.
// GET /api/shops/:shopId/subscription
func (h *SubscriptionHandler) GetCurrent(c *fiber.Ctx) error {
	shopID := c.Params("shopId")

	var cached domain.Subscription
	if err := h.cache.Get(c.Context(), repository.CurrentSubKey(shopID), &cached); err == nil {
		return c.JSON(cached)
	}

	sub, err := h.subs.FindCurrentByShop(c.Context(), shopID)
	if err != nil {
		return writeError(c, err)
	}

	if err := h.cache.Set(c.Context(), repository.CurrentSubKey(shopID), sub, billingViewTTL); err != nil {
		log.Printf("[Subscription] Failed to cache current subscription for shop %s: %v", shopID, err)
	}
	return c.JSON(sub)
}

// statusView is the dashboard-facing status summary.
type statusView struct {
	SubscriptionID string                    `json:"subscription_id"`
	Status         domain.SubscriptionStatus `json:"status"`
	DisplayStatus  domain.DisplayStatus      `json:"display_status"`
	Plan           domain.PlanInfo           `json:"plan"`
	EndDate        time.Time                 `json:"end_date"`
	DaysRemaining  int                       `json:"days_remaining"`
	AutoRenew      bool                      `json:"auto_renew"`
}

// GetStatus returns the derived display status for the shop's subscription.
// GET /api/shops/:shopId/subscription/status
func (h *SubscriptionHandler) GetStatus(c *fiber.Ctx) error {
	shopID := c.Params("shopId")

	var cached statusView
	if err := h.cache.Get(c.Context(), repository.DisplayStatusKey(shopID), &cached); err == nil {
		return c.JSON(cached)
	}

	sub, err := h.subs.FindCurrentByShop(c.Context(), shopID)
	if err != nil {
		return writeError(c, err)
	}

	now := time.Now().UTC()
	view := statusView{
		SubscriptionID: sub.ID,
		Status:         sub.Status,
		DisplayStatus:  domain.ComputeDisplayStatus(sub, now),
		Plan:           sub.Plan,
		EndDate:        sub.Dates.EndDate,
		DaysRemaining:  sub.DaysRemaining(now),
		AutoRenew:      sub.RenewalSettings.AutoRenew,
	}

	if err := h.cache.Set(c.Context(), repository.DisplayStatusKey(shopID), view, billingViewTTL); err != nil {
		log.Printf("[Subscription] Failed to cache status for shop %s: %v", shopID, err)
	}
	return c.JSON(view)
}

// ListByShop returns the shop's full subscription history, newest first.
// GET /api/shops/:shopId/subscriptions
func (h *SubscriptionHandler) ListByShop(c *fiber.Ctx) error {
	shopID := c.Params("shopId")

	subs, err := h.subs.FindByShop(c.Context(), shopID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{
		"subscriptions": subs,
		"count":         len(subs),
	})
}

// ConvertRequest is the body for converting a trial to a paid plan.
type ConvertRequest struct {
	PlanID        string `json:"plan_id"`
	PaymentMethod string `json:"payment_method"`
}

// Convert upgrades a trial subscription to a paid plan.
// POST /api/subscriptions/:id/convert
func (h *SubscriptionHandler) Convert(c *fiber.Ctx) error {
	var req ConvertRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.PlanID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "plan_id is required",
		})
	}

	sub, err := h.loadScoped(c)
	if err != nil {
		return writeError(c, err)
	}

	updated, err := h.lifecycle.ConvertTrialToPaid(c.Context(), sub.ID, service.ConvertInput{
		PlanID:        req.PlanID,
		PaymentMethod: req.PaymentMethod,
		PerformedBy:   middleware.GetUserID(c),
	})
	if err != nil {
		return writeError(c, err)
	}

	h.invalidate(c, updated.ShopID)
	return c.JSON(updated)
}

// ChangePlanRequest is the body for switching an active subscription's plan.
type ChangePlanRequest struct {
	PlanID   string `json:"plan_id"`
	Prorated bool   `json:"prorated"`
}

// ChangePlan switches the subscription to another paid plan.
// POST /api/subscriptions/:id/change-plan
func (h *SubscriptionHandler) ChangePlan(c *fiber.Ctx) error {
	var req ChangePlanRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.PlanID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "plan_id is required",
		})
	}

	sub, err := h.loadScoped(c)
	if err != nil {
		return writeError(c, err)
	}

	updated, err := h.lifecycle.ChangePlan(c.Context(), sub.ID, service.ChangePlanInput{
		PlanID:      req.PlanID,
		Prorated:    req.Prorated,
		PerformedBy: middleware.GetUserID(c),
	})
	if err != nil {
		return writeError(c, err)
	}

	h.invalidate(c, updated.ShopID)
	return c.JSON(updated)
}

// ExtendRequest is the body for a manual extension.
type ExtendRequest struct {
	Days int `json:"days"`
}

// Extend pushes the end date out by a number of days. Reserved for platform
// operators (goodwill extensions, incident credits).
// POST /api/subscriptions/:id/extend
func (h *SubscriptionHandler) Extend(c *fiber.Ctx) error {
	var req ExtendRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	sub, err := h.loadScoped(c)
	if err != nil {
		return writeError(c, err)
	}

	updated, err := h.lifecycle.Extend(c.Context(), sub.ID, req.Days, middleware.GetUserID(c))
	if err != nil {
		return writeError(c, err)
	}

	h.invalidate(c, updated.ShopID)
	return c.JSON(updated)
}

// CancelRequest is the body for a cancellation.
type CancelRequest struct {
	Reason          string `json:"reason"`
	Feedback        string `json:"feedback"`
	ImmediateEffect bool   `json:"immediate_effect"`
}

// Cancel ends the subscription, immediately or at the paid-through date.
// POST /api/subscriptions/:id/cancel
func (h *SubscriptionHandler) Cancel(c *fiber.Ctx) error {
	var req CancelRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	sub, err := h.loadScoped(c)
	if err != nil {
		return writeError(c, err)
	}

	updated, err := h.lifecycle.Cancel(c.Context(), sub.ID, service.CancelInput{
		Reason:          req.Reason,
		Feedback:        req.Feedback,
		ByUserID:        middleware.GetUserID(c),
		ImmediateEffect: req.ImmediateEffect,
	})
	if err != nil {
		return writeError(c, err)
	}

	h.invalidate(c, updated.ShopID)
	return c.JSON(updated)
}

// RecordPaymentRequest is the body for a manually reconciled payment, used by
// operators when a payment arrived outside the gateway (bank transfer, cash).
type RecordPaymentRequest struct {
	TransactionID string `json:"transaction_id"`
	Method        string `json:"method"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	ReceiptURL    string `json:"receipt_url"`
}

// RecordPayment applies a payment to the subscription. Idempotent on the
// transaction ID.
// POST /api/subscriptions/:id/payments
func (h *SubscriptionHandler) RecordPayment(c *fiber.Ctx) error {
	var req RecordPaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	sub, err := h.loadScoped(c)
	if err != nil {
		return writeError(c, err)
	}

	result, err := h.reconciler.RecordPayment(c.Context(), sub.ID, service.PaymentEvidence{
		TransactionID: req.TransactionID,
		Method:        req.Method,
		Amount:        req.Amount,
		Currency:      req.Currency,
		ReceiptURL:    req.ReceiptURL,
	})
	if err != nil {
		return writeError(c, err)
	}

	h.invalidate(c, sub.ShopID)
	if result.AlreadyApplied {
		return c.JSON(fiber.Map{
			"message": "Payment already processed",
			"result":  result,
		})
	}
	return c.Status(fiber.StatusCreated).JSON(result)
}

// loadScoped fetches the subscription from the :id param and checks the
// caller may act on its shop.
func (h *SubscriptionHandler) loadScoped(c *fiber.Ctx) (*domain.Subscription, error) {
	sub, err := h.subs.FindByID(c.Context(), c.Params("id"))
	if err != nil {
		return nil, err
	}
	if err := requireShopAccess(c, sub.ShopID); err != nil {
		return nil, err
	}
	return sub, nil
}

// invalidate drops the shop's cached billing view after a mutation.
func (h *SubscriptionHandler) invalidate(c *fiber.Ctx, shopID string) {
	if err := h.cache.InvalidateShopBilling(c.Context(), shopID); err != nil {
		log.Printf("[Subscription] Failed to invalidate cache for shop %s: %v", shopID, err)
	}
}
