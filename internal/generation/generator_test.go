package generation_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metalise/internal/generation"
)

type call struct {
	model  string
	prompt string
}

type fakeClient struct {
	outputs map[string]generation.Output
	errs    map[string]error
	calls   []call
}

func (f *fakeClient) GenerateImage(_ context.Context, model, prompt string, _ []byte, _ string) (generation.Output, error) {
	f.calls = append(f.calls, call{model: model, prompt: prompt})
	if err := f.errs[model]; err != nil {
		return generation.Output{}, err
	}
	return f.outputs[model], nil
}

var models = []string{"primary-model", "fallback-model"}

func request(includeText bool) generation.Request {
	return generation.Request{
		Image:       []byte{0x89, 'P', 'N', 'G'},
		MIMEType:    "image/png",
		ArabicName:  "محمد",
		IncludeText: includeText,
	}
}

func TestGenerate(t *testing.T) {
	ctx := context.Background()

	t.Run("primary model succeeds", func(t *testing.T) {
		client := &fakeClient{outputs: map[string]generation.Output{
			"primary-model": {ImageData: []byte("img"), ImageMIMEType: "image/png"},
		}}
		result, err := generation.NewGenerator(client, models, nil).Generate(ctx, request(true))
		require.NoError(t, err)

		assert.Equal(t, "primary-model", result.Model)
		assert.False(t, result.Fallback)
		assert.Equal(t, "data:image/png;base64,aW1n", result.DataURL())
		require.Len(t, client.calls, 1)
		assert.Contains(t, client.calls[0].prompt, `"محمد"`)
	})

	t.Run("falls back when the primary call fails", func(t *testing.T) {
		client := &fakeClient{
			errs: map[string]error{"primary-model": errors.New("model not found")},
			outputs: map[string]generation.Output{
				"fallback-model": {ImageData: []byte("img"), ImageMIMEType: "image/jpeg"},
			},
		}
		result, err := generation.NewGenerator(client, models, nil).Generate(ctx, request(false))
		require.NoError(t, err)

		assert.Equal(t, "fallback-model", result.Model)
		assert.True(t, result.Fallback)
		assert.Equal(t, "image/jpeg", result.MIMEType)
		require.Len(t, client.calls, 2)
		assert.NotContains(t, client.calls[1].prompt, "محمد")
		assert.Contains(t, client.calls[1].prompt, "NO TEXT OR TYPOGRAPHY")
	})

	t.Run("text answer stops without fallback", func(t *testing.T) {
		client := &fakeClient{outputs: map[string]generation.Output{
			"primary-model": {Text: strings.Repeat("a", 900)},
		}}
		_, err := generation.NewGenerator(client, models, nil).Generate(ctx, request(true))

		var textErr *generation.TextResponseError
		require.ErrorAs(t, err, &textErr)
		assert.Equal(t, "primary-model", textErr.Model)
		assert.Len(t, textErr.Text, generation.MaxModelResponseLength)
		assert.Len(t, client.calls, 1)
	})

	t.Run("empty answer", func(t *testing.T) {
		client := &fakeClient{outputs: map[string]generation.Output{}}
		_, err := generation.NewGenerator(client, models, nil).Generate(ctx, request(true))
		assert.ErrorIs(t, err, generation.ErrNoImage)
	})

	t.Run("every model fails", func(t *testing.T) {
		client := &fakeClient{errs: map[string]error{
			"primary-model":  errors.New(strings.Repeat("quota exceeded ", 30)),
			"fallback-model": errors.New("permission denied"),
		}}
		_, err := generation.NewGenerator(client, models, nil).Generate(ctx, request(true))
		require.ErrorIs(t, err, generation.ErrAllModelsFailed)

		var failed *generation.ModelsFailedError
		require.ErrorAs(t, err, &failed)
		assert.Equal(t, models, failed.Models)
		assert.Len(t, failed.ErrorAt(0), generation.MaxModelErrorLength)
		assert.Equal(t, "permission denied", failed.ErrorAt(1))
		assert.Empty(t, failed.ErrorAt(2))
	})

	t.Run("no models configured", func(t *testing.T) {
		_, err := generation.NewGenerator(&fakeClient{}, nil, nil).Generate(ctx, request(true))
		assert.ErrorIs(t, err, generation.ErrNoModels)
	})
}

func TestGeminiClientWithoutKey(t *testing.T) {
	client := generation.NewGeminiClient("  ")
	_, err := client.GenerateImage(context.Background(), "primary-model", "prompt", []byte("x"), "image/png")
	assert.ErrorIs(t, err, generation.ErrMissingAPIKey)
}

func TestBuildPrompt(t *testing.T) {
	withText := generation.BuildPrompt("ليلى", true)
	assert.Contains(t, withText, `displaying "ليلى"`)
	assert.Contains(t, withText, "Typography")

	without := generation.BuildPrompt("ليلى", false)
	assert.NotContains(t, without, "ليلى")
	assert.NotContains(t, without, "Typography")
}
