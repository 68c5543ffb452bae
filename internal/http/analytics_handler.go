package http

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"metalise/internal/analytics"
)

// AnalyticsAction returns the usage summary. The key check runs in middleware.
func (h *Handlers) AnalyticsAction(ctx *cartridge.Context) error {
	summary, err := analytics.GetSummary(ctx.UserContext(), ctx.DB(), ctx.Logger, h.now())
	if err != nil {
		ctx.Logger.Error("Failed to build analytics summary", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return ctx.JSON(summary)
}
