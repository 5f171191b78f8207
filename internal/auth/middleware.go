package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// ClaimsKey is the fiber locals key holding the validated claims.
const ClaimsKey = "auth_claims"

// Middleware returns a fiber handler requiring a valid bearer token.
func Middleware(tokens *TokenManager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			return fiber.NewError(fiber.StatusUnauthorized, "missing bearer token")
		}
		claims, err := tokens.Validate(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid token")
		}
		c.Locals(ClaimsKey, claims)
		return c.Next()
	}
}
