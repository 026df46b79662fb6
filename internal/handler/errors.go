package handler

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/ayukmesoh/storekeeper/internal/domain"
	"github.com/ayukmesoh/storekeeper/internal/middleware"
)

// writeError maps domain errors onto HTTP responses. Lifecycle rule
// violations come back as 422 so clients can tell "you asked for something
// impossible" apart from "your request was malformed".
func writeError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": err.Error(),
		})
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrNonPositiveExtension),
		errors.Is(err, domain.ErrInvalidPlanType):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	case errors.Is(err, domain.ErrConflict):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "The record was modified concurrently, please retry",
		})
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrNotInTrial),
		errors.Is(err, domain.ErrAlreadyCanceled):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": err.Error(),
		})
	case errors.Is(err, domain.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": err.Error(),
		})
	default:
		log.Printf("[Handler] Internal error: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Internal server error",
		})
	}
}

// isSuperAdmin reports whether the authenticated user is a platform operator.
func isSuperAdmin(c *fiber.Ctx) bool {
	roles, ok := c.Locals(middleware.RolesKey).([]string)
	if !ok {
		return false
	}
	for _, role := range roles {
		if role == domain.RoleSuperAdmin {
			return true
		}
	}
	return false
}

// requireShopAccess checks that the authenticated user may act on the given
// shop. The shop ID comes from the token, never from the request.
func requireShopAccess(c *fiber.Ctx, shopID string) error {
	if isSuperAdmin(c) {
		return nil
	}
	if middleware.GetShopID(c) != shopID {
		return domain.ErrForbidden
	}
	return nil
}
