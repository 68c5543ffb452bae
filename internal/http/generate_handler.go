package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	nethttp "net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"metalise/internal/config"
	"metalise/internal/events"
	"metalise/internal/generation"
)

const allModelsFailedSuggestion = "The models are available but may require specific configuration or permissions. Check API quotas and limits."

type portraitForm struct {
	image       []byte
	mimeType    string
	arabicName  string
	includeText bool
}

// parsePortraitForm validates the multipart upload. The returned message is user facing.
func parsePortraitForm(ctx *cartridge.Context, maxBytes int64) (*portraitForm, int, string) {
	form, err := ctx.MultipartForm()
	if err != nil {
		return nil, fiber.StatusBadRequest, "No image file provided"
	}

	files := form.File["image"]
	if len(files) == 0 {
		return nil, fiber.StatusBadRequest, "No image file provided"
	}
	names, ok := form.Value["arabicName"]
	if !ok || len(names) == 0 {
		return nil, fiber.StatusBadRequest, "No Arabic name provided"
	}

	includeText := true
	if values := form.Value["includeText"]; len(values) > 0 {
		includeText = strings.EqualFold(strings.TrimSpace(values[0]), "true")
	}

	arabicName := strings.TrimSpace(names[0])
	if includeText && arabicName == "" {
		return nil, fiber.StatusBadRequest, "No Arabic name provided"
	}

	file := files[0]
	if file.Filename == "" {
		return nil, fiber.StatusBadRequest, "No image file selected"
	}
	if file.Size > maxBytes {
		return nil, fiber.StatusRequestEntityTooLarge, fmt.Sprintf("Image is larger than %d MB", maxBytes/(1024*1024))
	}

	data, err := readUpload(file, maxBytes)
	if err != nil {
		return nil, fiber.StatusBadRequest, "Could not read image file"
	}
	if len(data) == 0 {
		return nil, fiber.StatusBadRequest, "No image file selected"
	}

	mimeType := nethttp.DetectContentType(data)
	if !strings.HasPrefix(mimeType, "image/") {
		return nil, fiber.StatusBadRequest, "Uploaded file is not an image"
	}

	return &portraitForm{
		image:       data,
		mimeType:    mimeType,
		arabicName:  arabicName,
		includeText: includeText,
	}, 0, ""
}

func readUpload(file *multipart.FileHeader, maxBytes int64) ([]byte, error) {
	f, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, maxBytes))
}

// GenerateAction turns the uploaded photo into a portrait. Every request that passes
// validation is recorded exactly once as a successful or failed generation.
func (h *Handlers) GenerateAction(ctx *cartridge.Context) error {
	start := h.now()
	cfg := ctx.Config.(*config.Config)

	form, status, message := parsePortraitForm(ctx, cfg.MaxUploadBytes)
	if form == nil {
		return ctx.Status(status).JSON(fiber.Map{"error": message})
	}

	record := func(success bool, errMessage string) {
		if h.recorder == nil {
			return
		}
		elapsed := h.now().Sub(start).Seconds()
		_ = h.recorder.RecordGeneration(context.WithoutCancel(ctx.UserContext()), events.GenerationInput{
			Success:           success,
			IncludeText:       form.includeText,
			ErrorMessage:      errMessage,
			ProcessingSeconds: &elapsed,
		})
	}

	if h.generator == nil {
		record(false, "image generator not configured")
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Server error: image generator not configured",
		})
	}

	genCtx, cancel := context.WithTimeout(ctx.UserContext(), cfg.GenerationTimeout())
	defer cancel()

	result, err := h.generator.Generate(genCtx, generation.Request{
		Image:       form.image,
		MIMEType:    form.mimeType,
		ArabicName:  form.arabicName,
		IncludeText: form.includeText,
	})
	if err != nil {
		record(false, err.Error())
		return h.generationError(ctx, err)
	}

	record(true, "")

	ctx.Logger.Info("Portrait generated",
		slog.String("model", result.Model),
		slog.Bool("include_text", form.includeText),
		slog.Duration("elapsed", h.now().Sub(start)))

	message = fmt.Sprintf("Portrait generated successfully with %s!", result.Model)
	if result.Fallback {
		message = "Portrait generated successfully!"
	}
	return ctx.JSON(fiber.Map{
		"success": true,
		"image":   result.DataURL(),
		"message": message,
	})
}

func (h *Handlers) generationError(ctx *cartridge.Context, err error) error {
	var textErr *generation.TextResponseError
	var failed *generation.ModelsFailedError

	switch {
	case errors.As(err, &textErr):
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success":        false,
			"error":          "Model returned text instead of image",
			"model_response": textErr.Text,
		})
	case errors.As(err, &failed):
		ctx.Logger.Error("All image models failed", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Image generation failed",
			"details": fiber.Map{
				"primary_error":   failed.ErrorAt(0),
				"secondary_error": failed.ErrorAt(1),
				"models_tried":    failed.Models,
				"suggestion":      allModelsFailedSuggestion,
			},
		})
	case errors.Is(err, generation.ErrNoImage):
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "No image data found in response",
		})
	default:
		ctx.Logger.Error("Image generation error", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": fmt.Sprintf("Server error: %s", err),
		})
	}
}
