package generation

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"google.golang.org/genai"
)

// ErrMissingAPIKey is returned by GeminiClient when no API key is configured.
var ErrMissingAPIKey = errors.New("GEMINI_API_KEY is not configured")

// GeminiClient calls the Gemini API. The underlying client is created on first use so
// the server can start without network access.
type GeminiClient struct {
	apiKey string

	once   sync.Once
	client *genai.Client
	err    error
}

func NewGeminiClient(apiKey string) *GeminiClient {
	return &GeminiClient{apiKey: strings.TrimSpace(apiKey)}
}

func (g *GeminiClient) connect(ctx context.Context) (*genai.Client, error) {
	g.once.Do(func() {
		if g.apiKey == "" {
			g.err = ErrMissingAPIKey
			return
		}
		g.client, g.err = genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  g.apiKey,
			Backend: genai.BackendGeminiAPI,
		})
		if g.err != nil {
			g.err = fmt.Errorf("failed to create Gemini client: %w", g.err)
		}
	})
	return g.client, g.err
}

// GenerateImage sends the prompt and photo to model and returns the first image part of
// the response together with any text the model produced.
func (g *GeminiClient) GenerateImage(ctx context.Context, model, prompt string, image []byte, mimeType string) (Output, error) {
	client, err := g.connect(ctx)
	if err != nil {
		return Output{}, err
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(prompt),
			genai.NewPartFromBytes(image, mimeType),
		}, genai.RoleUser),
	}
	cfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
	}

	resp, err := client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return Output{}, err
	}

	var out Output
	var text strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			if part.InlineData != nil && strings.HasPrefix(part.InlineData.MIMEType, "image/") && out.ImageData == nil {
				out.ImageData = part.InlineData.Data
				out.ImageMIMEType = part.InlineData.MIMEType
			}
			text.WriteString(part.Text)
		}
	}
	out.Text = text.String()
	return out, nil
}

// ModelInfo describes a model available to the configured API key.
type ModelInfo struct {
	Name        string   `json:"name"`
	DisplayName string   `json:"display_name"`
	Actions     []string `json:"supported_actions"`
}

// ListModels returns the models that support content generation.
func (g *GeminiClient) ListModels(ctx context.Context) ([]ModelInfo, error) {
	client, err := g.connect(ctx)
	if err != nil {
		return nil, err
	}

	var models []ModelInfo
	for model, err := range client.Models.All(ctx) {
		if err != nil {
			return nil, fmt.Errorf("failed to list models: %w", err)
		}
		if !slices.Contains(model.SupportedActions, "generateContent") {
			continue
		}
		models = append(models, ModelInfo{
			Name:        strings.TrimPrefix(model.Name, "models/"),
			DisplayName: model.DisplayName,
			Actions:     model.SupportedActions,
		})
	}
	return models, nil
}
