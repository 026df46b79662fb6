package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/ayukmesoh/storekeeper/internal/domain"
)

// Context keys for storing user info
const (
	UserIDKey = "userID"
	RolesKey  = "roles"
	ShopIDKey = "shop_id"
)

// VerifyStoreKeeperToken validates the JWT and extracts claims
func VerifyStoreKeeperToken(jwtSecret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Get token from Authorization header
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing authorization token",
			})
		}

		// Extract token (format: "Bearer <token>")
		tokenString := authHeader
		if len(authHeader) > 7 && authHeader[:7] == "Bearer " {
			tokenString = authHeader[7:]
		}

		// Parse and validate token
		token, err := jwt.ParseWithClaims(tokenString, &domain.StoreKeeperClaims{}, func(token *jwt.Token) (interface{}, error) {
			// Verify signing method
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fiber.NewError(fiber.StatusUnauthorized, "Invalid signing method")
			}
			return []byte(jwtSecret), nil
		})

		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}

		// Extract claims
		claims, ok := token.Claims.(*domain.StoreKeeperClaims)
		if !ok || !token.Valid {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid token claims",
			})
		}

		// Store claims in context
		c.Locals(UserIDKey, claims.UserID)
		c.Locals(RolesKey, claims.Roles)
		c.Locals(ShopIDKey, claims.ShopID)

		return c.Next()
	}
}

// AuthorizeRole checks if user has at least one of the required roles
func AuthorizeRole(allowedRoles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Get roles from context
		rolesInterface := c.Locals(RolesKey)
		if rolesInterface == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "No roles found in token",
			})
		}

		userRoles, ok := rolesInterface.([]string)
		if !ok {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Invalid roles format",
			})
		}

		// Check if user has any of the allowed roles
		for _, userRole := range userRoles {
			for _, allowedRole := range allowedRoles {
				if userRole == allowedRole {
					return c.Next() // User has required role
				}
			}
		}

		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error":          "Insufficient permissions",
			"required_roles": allowedRoles,
		})
	}
}

// ShopScope ensures non-platform users only touch their own shop. The shop
// ID comes from the token, never from the request, so a forged shop_id param
// cannot cross tenants. Super admins bypass the check.
func ShopScope() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Locals(UserIDKey)
		if userID == nil || userID == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing user context",
			})
		}

		if roles, ok := c.Locals(RolesKey).([]string); ok {
			for _, role := range roles {
				if role == domain.RoleSuperAdmin {
					return c.Next()
				}
			}
		}

		shopID, _ := c.Locals(ShopIDKey).(string)
		if shopID == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "User must belong to a shop",
			})
		}

		// When the route carries a shop id, it must match the token's.
		if param := c.Params("shopId"); param != "" && param != shopID {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Access to this shop is not allowed",
			})
		}

		return c.Next()
	}
}

// GetUserID extracts the user ID from Fiber context
func GetUserID(c *fiber.Ctx) string {
	userID, ok := c.Locals(UserIDKey).(string)
	if !ok {
		return ""
	}
	return userID
}

// GetShopID extracts the token's shop scope from Fiber context
func GetShopID(c *fiber.Ctx) string {
	shopID, ok := c.Locals(ShopIDKey).(string)
	if !ok {
		return ""
	}
	return shopID
}
