// Package generation turns an uploaded photo and a name into a metallic portrait using a
// generative image model.
package generation

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"metalise/internal/metrics"
)

// Limits applied to model output echoed back to clients.
const (
	MaxModelResponseLength = 500
	MaxModelErrorLength    = 200
)

var (
	// ErrNoImage means a model answered without any image or text.
	ErrNoImage = errors.New("no image data found in response")
	// ErrAllModelsFailed means every configured model returned an error.
	ErrAllModelsFailed = errors.New("image generation failed")
	// ErrNoModels means no model is configured.
	ErrNoModels = errors.New("no image models configured")
)

// Output is what a single model call produced.
type Output struct {
	ImageData     []byte
	ImageMIMEType string
	Text          string
}

// ModelClient performs one image generation call against one model.
type ModelClient interface {
	GenerateImage(ctx context.Context, model, prompt string, image []byte, mimeType string) (Output, error)
}

// Request is a validated portrait request.
type Request struct {
	Image       []byte
	MIMEType    string
	ArabicName  string
	IncludeText bool
}

// Result is a generated portrait.
type Result struct {
	Image    []byte
	MIMEType string
	Model    string
	// Fallback is true when the primary model failed and a later one succeeded.
	Fallback bool
}

// DataURL encodes the image for direct use in an <img> tag.
func (r *Result) DataURL() string {
	return fmt.Sprintf("data:%s;base64,%s", r.MIMEType, base64.StdEncoding.EncodeToString(r.Image))
}

// TextResponseError is returned when a model replied with text instead of an image.
type TextResponseError struct {
	Model string
	Text  string
}

func (e *TextResponseError) Error() string {
	return fmt.Sprintf("model %s returned text instead of image", e.Model)
}

// ModelsFailedError carries the error of every model that was tried, in order.
type ModelsFailedError struct {
	Models []string
	Errors []error
}

func (e *ModelsFailedError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for i, err := range e.Errors {
		parts = append(parts, fmt.Sprintf("%s: %v", e.Models[i], err))
	}
	return fmt.Sprintf("%v (%s)", ErrAllModelsFailed, strings.Join(parts, "; "))
}

func (e *ModelsFailedError) Is(target error) bool {
	return target == ErrAllModelsFailed
}

// ErrorAt returns the message of the i-th model's error, truncated for display.
func (e *ModelsFailedError) ErrorAt(i int) string {
	if i < 0 || i >= len(e.Errors) || e.Errors[i] == nil {
		return ""
	}
	return Truncate(e.Errors[i].Error(), MaxModelErrorLength)
}

// Generator tries each configured model in order until one answers.
// A model is only skipped when its call fails; an answer without an image ends the attempt.
type Generator struct {
	client ModelClient
	models []string
	logger *slog.Logger
}

func NewGenerator(client ModelClient, models []string, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{client: client, models: models, logger: logger}
}

// Models returns the models tried, in order.
func (g *Generator) Models() []string {
	return append([]string(nil), g.models...)
}

func (g *Generator) Generate(ctx context.Context, req Request) (*Result, error) {
	if len(g.models) == 0 {
		return nil, ErrNoModels
	}

	prompt := BuildPrompt(req.ArabicName, req.IncludeText)
	failed := &ModelsFailedError{}

	for i, model := range g.models {
		out, err := g.client.GenerateImage(ctx, model, prompt, req.Image, req.MIMEType)
		if err != nil {
			g.logger.Warn("Image model call failed",
				slog.String("model", model),
				slog.Any("error", err))
			metrics.Generation(model, "error")
			failed.Models = append(failed.Models, model)
			failed.Errors = append(failed.Errors, err)
			if ctx.Err() != nil {
				break
			}
			continue
		}

		if len(out.ImageData) > 0 {
			metrics.Generation(model, "success")
			return &Result{
				Image:    out.ImageData,
				MIMEType: out.ImageMIMEType,
				Model:    model,
				Fallback: i > 0,
			}, nil
		}

		if strings.TrimSpace(out.Text) != "" {
			metrics.Generation(model, "text")
			return nil, &TextResponseError{Model: model, Text: Truncate(out.Text, MaxModelResponseLength)}
		}

		metrics.Generation(model, "empty")
		return nil, fmt.Errorf("model %s: %w", model, ErrNoImage)
	}

	return nil, failed
}

// Truncate cuts s to at most n characters.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
