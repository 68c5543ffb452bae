package http

import (
	"context"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"metalise/internal/events"
)

// HealthStatus represents the health check response
type HealthStatus struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	DBStatus string `json:"db_status"`
}

// HealthAction reports liveness and counts the call as a visit. The frontend pings it on
// every page load, so it doubles as the visit tracker.
func (h *Handlers) HealthAction(ctx *cartridge.Context) error {
	if h.recorder != nil {
		// Best effort: a failed write is already logged by the recorder.
		_ = h.recorder.RecordVisit(context.WithoutCancel(ctx.UserContext()), events.VisitInput{
			IPAddress: clientIP(ctx.Ctx),
			UserAgent: ctx.Get(fiber.HeaderUserAgent),
		})
	}

	dbStatus := "ok"

	db := ctx.DBManager.GetConnection()
	if db == nil {
		dbStatus = "error"
		ctx.Logger.Error("Database connection unavailable")
	} else {
		sqlDB, err := db.DB()
		if err != nil {
			dbStatus = "error"
			ctx.Logger.Error("Database connection error", slog.Any("error", err))
		} else if err := sqlDB.Ping(); err != nil {
			dbStatus = "error"
			ctx.Logger.Error("Database ping failed", slog.Any("error", err))
		}
	}

	health := HealthStatus{
		Status:   "healthy",
		Message:  "Server is running",
		DBStatus: dbStatus,
	}
	if dbStatus != "ok" {
		health.Status = "degraded"
	}

	return ctx.JSON(health)
}
