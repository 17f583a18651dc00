// Package apitoken guards the admin API with a static bearer token.
package apitoken

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v3"
)

const bearerPrefix = "Bearer "

// New returns a middleware requiring "Authorization: Bearer <token>".
// An empty token disables the check.
func New(token string) fiber.Handler {
	return func(c fiber.Ctx) error {
		if token == "" {
			return c.Next()
		}

		header := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(header, bearerPrefix) {
			return fiber.ErrUnauthorized
		}

		given := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
		if subtle.ConstantTimeCompare([]byte(given), []byte(token)) != 1 {
			return fiber.ErrUnauthorized
		}

		return c.Next()
	}
}
