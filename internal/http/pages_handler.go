package http

import (
	"io/fs"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
)

func (h *Handlers) sendPage(ctx *cartridge.Context, name, ext string) error {
	data, err := fs.ReadFile(h.pages, name)
	if err != nil {
		ctx.Logger.Error("Failed to read page", slog.String("page", name), slog.Any("error", err))
		return ctx.SendStatus(fiber.StatusNotFound)
	}
	ctx.Type(ext, "utf-8")
	return ctx.Send(data)
}

// IndexAction serves the upload page.
func (h *Handlers) IndexAction(ctx *cartridge.Context) error {
	return h.sendPage(ctx, "index.html", "html")
}

// AnalyticsDashboardAction serves the dashboard page. Data is fetched client side with the key.
func (h *Handlers) AnalyticsDashboardAction(ctx *cartridge.Context) error {
	return h.sendPage(ctx, "analytics_dashboard.html", "html")
}

func (h *Handlers) StylesAction(ctx *cartridge.Context) error {
	return h.sendPage(ctx, "style.css", "css")
}

func (h *Handlers) ScriptAction(ctx *cartridge.Context) error {
	return h.sendPage(ctx, "script.js", "js")
}

// FaviconAction answers with an empty response so browsers stop asking.
func (h *Handlers) FaviconAction(ctx *cartridge.Context) error {
	return ctx.SendStatus(fiber.StatusNoContent)
}
