package middleware

import (
	"strings"

	"stockroom/internal/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// OperatorKey is the Locals key holding the authenticated operator name.
const OperatorKey = "operator"

// AuthRequired is a Fiber middleware to check for a valid operator JWT.
func AuthRequired(authService *services.AuthService, logger *zap.Logger) fiber.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "Authorization header is required",
			})
		}

		// Expected format: "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if !(len(parts) == 2 && parts[0] == "Bearer") {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "Authorization header format must be 'Bearer <token>'",
			})
		}

		claims, err := authService.ValidateToken(parts[1])
		if err != nil {
			logger.Info("JWT validation failed", zap.String("path", c.Path()), zap.Error(err))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "Invalid or expired token",
			})
		}

		c.Locals(OperatorKey, claims["operator"])
		return c.Next()
	}
}

// Passthrough is used in place of AuthRequired when authentication is disabled.
func Passthrough(c *fiber.Ctx) error {
	return c.Next()
}
