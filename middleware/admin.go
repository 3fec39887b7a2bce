// middleware/admin.go
package middleware

import (
	"crypto/subtle"
	"log"
	"os"

	"github.com/gofiber/fiber/v2"
)

// AdminAuthMiddleware guards out-of-band admin routes (manual point grants)
// with the shared ADMIN_SECRET.
func AdminAuthMiddleware() fiber.Handler {
	secret := os.Getenv("ADMIN_SECRET")
	if secret == "" {
		log.Fatal("❌ ADMIN_SECRET is not set — admin routes cannot be authenticated")
	}

	return func(c *fiber.Ctx) error {
		provided := c.Get("x-admin-secret")
		if subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
			log.Printf("🚫 [ADMIN_AUTH] Invalid admin secret for %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid admin secret",
			})
		}
		return c.Next()
	}
}
