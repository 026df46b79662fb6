package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ayukmesoh/storekeeper/internal/domain"
)

const defaultNotificationLimit = 50

// NotificationHandler exposes the per-shop notification log
type NotificationHandler struct {
	notifications domain.NotificationRepository
}

// NewNotificationHandler creates a new notification handler
func NewNotificationHandler(notifications domain.NotificationRepository) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

// List returns the shop's billing notifications, newest first.
// GET /api/shops/:shopId/notifications?limit=50
func (h *NotificationHandler) List(c *fiber.Ctx) error {
	limit := int64(c.QueryInt("limit", defaultNotificationLimit))
	if limit <= 0 || limit > 200 {
		limit = defaultNotificationLimit
	}

	notifications, err := h.notifications.GetByShop(c.Context(), c.Params("shopId"), limit)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{
		"notifications": notifications,
		"count":         len(notifications),
	})
}
