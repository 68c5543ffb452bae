package middleware

import (
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
)

// AnalyticsKeyAuth guards the reporting endpoint with a shared secret passed as ?key=.
// The configured key may be plaintext or a bcrypt hash of the secret.
func AnalyticsKeyAuth(configuredKey string, logger *slog.Logger) fiber.Handler {
	hashed := isBcryptHash(configuredKey)

	return func(c *fiber.Ctx) error {
		providedKey := c.Query("key")
		if providedKey == "" || configuredKey == "" {
			return unauthorized(c)
		}

		if hashed {
			if err := bcrypt.CompareHashAndPassword([]byte(configuredKey), []byte(providedKey)); err != nil {
				logger.Debug("Rejected analytics key", slog.String("path", c.Path()))
				return unauthorized(c)
			}
			return c.Next()
		}

		if !secureCompare(providedKey, configuredKey) {
			logger.Debug("Rejected analytics key", slog.String("path", c.Path()))
			return unauthorized(c)
		}

		return c.Next()
	}
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"error": "Unauthorized",
	})
}

func isBcryptHash(s string) bool {
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}

// secureCompare performs constant-time string comparison
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	var result byte
	for i := 0; i < len(a); i++ {
		result |= a[i] ^ b[i]
	}
	return result == 0
}
