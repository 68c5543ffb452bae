package internal

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/karloscodes/cartridge"
	cartridgemiddleware "github.com/karloscodes/cartridge/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"metalise/internal/config"
	"metalise/internal/events"
	"metalise/internal/generation"
	"metalise/internal/http"
	"metalise/internal/http/middleware"
)

// publicCORSConfig is shared by the JSON API endpoints.
var publicCORSConfig = &cors.Config{
	AllowOrigins: "*",
	AllowMethods: "POST,GET,OPTIONS",
	AllowHeaders: "Origin, Content-Type, Accept, User-Agent",
}

// DefaultDependencies builds the handler dependencies from the server: a recorder on the
// server's database and a Gemini-backed generator for the configured models.
func DefaultDependencies(srv *cartridge.Server) http.Dependencies {
	cfg := config.GetConfig()
	logger := srv.GetLogger()
	return http.Dependencies{
		Recorder:  events.NewRecorder(srv.GetDBManager(), logger),
		Generator: generation.NewGenerator(generation.NewGeminiClient(cfg.GeminiAPIKey), cfg.ImageModels(), logger),
	}
}

// MountAppRoutes mounts all application routes with default dependencies.
func MountAppRoutes(srv *cartridge.Server) {
	MountRoutes(srv, DefaultDependencies(srv))
}

// MountRoutes mounts all application routes using cartridge's route API.
func MountRoutes(srv *cartridge.Server, deps http.Dependencies) {
	cfg := config.GetConfig()
	logger := srv.GetLogger()
	h := http.NewHandlers(deps)

	// Rate limiting only applies in production; it would interfere with tests.
	conditionalRateLimiter := func(limiter fiber.Handler) fiber.Handler {
		return func(c *fiber.Ctx) error {
			if cfg.IsProduction() {
				return limiter(c)
			}
			return c.Next()
		}
	}

	publicRateLimiter := conditionalRateLimiter(cartridgemiddleware.RateLimiter(
		cartridgemiddleware.WithMax(70),
		cartridgemiddleware.WithDuration(time.Minute),
	))

	// Each generation is a paid model call
	generateRateLimiter := conditionalRateLimiter(cartridgemiddleware.RateLimiter(
		cartridgemiddleware.WithMax(10),
		cartridgemiddleware.WithDuration(time.Minute),
	))

	// ============================================
	// ROUTE CONFIGURATIONS
	// ============================================

	// Health doubles as visit tracking and is also hit by uptime monitors without browser headers
	healthConfig := &cartridge.RouteConfig{
		EnableCORS:         true,
		CORSConfig:         publicCORSConfig,
		CustomMiddleware:   []fiber.Handler{publicRateLimiter},
		EnableSecFetchSite: cartridge.Bool(false),
	}

	generateConfig := &cartridge.RouteConfig{
		EnableCORS:       true,
		CORSConfig:       publicCORSConfig,
		CustomMiddleware: []fiber.Handler{generateRateLimiter},
		WriteConcurrency: false,
	}

	analyticsConfig := &cartridge.RouteConfig{
		CustomMiddleware: []fiber.Handler{
			publicRateLimiter,
			middleware.AnalyticsKeyAuth(cfg.AnalyticsKey, logger),
		},
		EnableSecFetchSite: cartridge.Bool(false),
	}

	metricsConfig := &cartridge.RouteConfig{
		EnableSecFetchSite: cartridge.Bool(false),
	}

	// === PAGES ===
	srv.Get("/", h.IndexAction)
	srv.Get("/analytics", h.AnalyticsDashboardAction)
	srv.Get("/style.css", h.StylesAction)
	srv.Get("/script.js", h.ScriptAction)
	srv.Get("/favicon.ico", h.FaviconAction)

	// === API ===
	srv.Get("/api/health", h.HealthAction, healthConfig)
	srv.Head("/api/health", h.HealthAction, healthConfig)
	srv.Options("/api/health", func(ctx *cartridge.Context) error {
		return ctx.SendStatus(fiber.StatusNoContent)
	}, healthConfig)

	srv.Post("/api/generate", h.GenerateAction, generateConfig)
	srv.Options("/api/generate", func(ctx *cartridge.Context) error {
		return ctx.SendStatus(fiber.StatusNoContent)
	}, generateConfig)

	srv.Get("/api/analytics", h.AnalyticsAction, analyticsConfig)

	// === METRICS ===
	metricsHandler := adaptor.HTTPHandler(promhttp.Handler())
	srv.Get("/metrics", func(ctx *cartridge.Context) error {
		return metricsHandler(ctx.Ctx)
	}, metricsConfig)
}
