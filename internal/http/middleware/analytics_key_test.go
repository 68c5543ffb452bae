package middleware_test

import (
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"metalise/internal/http/middleware"
)

func newProtectedApp(key string) *fiber.App {
	app := fiber.New()
	app.Get("/api/analytics", middleware.AnalyticsKeyAuth(key, slog.New(slog.NewTextHandler(io.Discard, nil))), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	return app
}

func statusFor(t *testing.T, app *fiber.App, target string) int {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, target, nil))
	require.NoError(t, err)
	return resp.StatusCode
}

func TestAnalyticsKeyAuth(t *testing.T) {
	t.Run("plaintext key", func(t *testing.T) {
		app := newProtectedApp("metalise2025")

		assert.Equal(t, fiber.StatusOK, statusFor(t, app, "/api/analytics?key=metalise2025"))
		assert.Equal(t, fiber.StatusUnauthorized, statusFor(t, app, "/api/analytics?key=wrong"))
		assert.Equal(t, fiber.StatusUnauthorized, statusFor(t, app, "/api/analytics?key=metalise202"))
		assert.Equal(t, fiber.StatusUnauthorized, statusFor(t, app, "/api/analytics"))
	})

	t.Run("bcrypt hashed key", func(t *testing.T) {
		hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
		require.NoError(t, err)
		app := newProtectedApp(string(hash))

		assert.Equal(t, fiber.StatusOK, statusFor(t, app, "/api/analytics?key=s3cret"))
		assert.Equal(t, fiber.StatusUnauthorized, statusFor(t, app, "/api/analytics?key="+string(hash)))
		assert.Equal(t, fiber.StatusUnauthorized, statusFor(t, app, "/api/analytics?key=nope"))
	})

	t.Run("unauthorized body", func(t *testing.T) {
		app := newProtectedApp("metalise2025")
		resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/api/analytics?key=bad", nil))
		require.NoError(t, err)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.JSONEq(t, `{"error":"Unauthorized"}`, string(body))
	})
}
