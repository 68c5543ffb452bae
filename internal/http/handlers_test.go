package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"metalise/internal/analytics"
	"metalise/internal/config"
	"metalise/internal/events"
	"metalise/internal/generation"
	"metalise/internal/http"
	"metalise/internal/testsupport"
)

var fixedNow = time.Date(2025, time.April, 2, 12, 0, 0, 0, time.UTC)

const fixedDay = "2025-04-02"

// pngHeader is enough for content sniffing to report image/png.
var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

type stubModelClient struct {
	outputs map[string]generation.Output
	errs    map[string]error
	calls   int
}

func (s *stubModelClient) GenerateImage(_ context.Context, model, _ string, _ []byte, _ string) (generation.Output, error) {
	s.calls++
	if err := s.errs[model]; err != nil {
		return generation.Output{}, err
	}
	return s.outputs[model], nil
}

var testModels = []string{"primary-model", "fallback-model"}

func setupApp(t *testing.T, client generation.ModelClient) (*fiber.App, *gorm.DB) {
	t.Helper()
	db := testsupport.SetupTestDB(t)
	testsupport.CleanAllTables(db)

	dbManager := testsupport.NewTestDBManager(db)
	logger := testsupport.GetLogger()
	deps := http.Dependencies{
		Recorder: events.NewRecorder(dbManager, logger, events.WithClock(testsupport.FixedClock(fixedNow))),
		Now:      testsupport.FixedClock(fixedNow),
	}
	if client != nil {
		deps.Generator = generation.NewGenerator(client, testModels, logger)
	}
	return testsupport.CreateMinimalTestApp(t, db, deps), db
}

type uploadForm struct {
	image       []byte
	filename    string
	arabicName  *string
	includeText string
}

func buildUpload(t *testing.T, form uploadForm) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	if form.image != nil {
		part, err := writer.CreateFormFile("image", form.filename)
		require.NoError(t, err)
		_, err = part.Write(form.image)
		require.NoError(t, err)
	}
	if form.arabicName != nil {
		require.NoError(t, writer.WriteField("arabicName", *form.arabicName))
	}
	if form.includeText != "" {
		require.NoError(t, writer.WriteField("includeText", form.includeText))
	}
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func postGenerate(t *testing.T, app *fiber.App, form uploadForm) (int, map[string]any) {
	t.Helper()
	body, contentType := buildUpload(t, form)
	req := httptest.NewRequest(fiber.MethodPost, "/api/generate", body)
	req.Header.Set(fiber.HeaderContentType, contentType)

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var payload map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	return resp.StatusCode, payload
}

func name(s string) *string { return &s }

func validForm() uploadForm {
	return uploadForm{image: pngHeader, filename: "photo.png", arabicName: name("محمد")}
}

func TestHealthAction(t *testing.T) {
	app, db := setupApp(t, nil)

	for _, ip := range []string{"1.2.3.4", "1.2.3.4", "5.6.7.8"} {
		req := httptest.NewRequest(fiber.MethodGet, "/api/health", nil)
		req.Header.Set("X-Forwarded-For", ip)
		req.Header.Set(fiber.HeaderUserAgent, "Mozilla/5.0 Test Browser")

		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)

		var health http.HealthStatus
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
		resp.Body.Close()

		assert.Equal(t, "healthy", health.Status)
		assert.Equal(t, "Server is running", health.Message)
		assert.Equal(t, "ok", health.DBStatus)
	}

	stat := testsupport.LoadDailyStat(t, db, fixedDay)
	assert.Equal(t, int64(3), stat.TotalVisits)
	assert.Equal(t, int64(2), stat.UniqueVisitors)

	var stored events.VisitEvent
	require.NoError(t, db.Order("id").First(&stored).Error)
	assert.Equal(t, "Mozilla/5.0 Test Browser", stored.UserAgent)
	assert.Equal(t, fixedDay, stored.Date)
}

func TestHealthActionRecordsAfterClientCancel(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	testsupport.CleanAllTables(db)

	deps := http.Dependencies{
		Recorder: events.NewRecorder(testsupport.NewTestDBManager(db), testsupport.GetLogger(),
			events.WithClock(testsupport.FixedClock(fixedNow))),
		Now: testsupport.FixedClock(fixedNow),
	}
	cancelled := func(c *fiber.Ctx) error {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		c.SetUserContext(ctx)
		return c.Next()
	}
	app := testsupport.CreateMinimalTestApp(t, db, deps, cancelled)

	req := httptest.NewRequest(fiber.MethodGet, "/api/health", nil)
	req.Header.Set("X-Forwarded-For", "1.2.3.4")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	stat := testsupport.LoadDailyStat(t, db, fixedDay)
	assert.Equal(t, int64(1), stat.TotalVisits)
	assert.Equal(t, int64(1), stat.UniqueVisitors)
}

func TestAnalyticsAction(t *testing.T) {
	app, db := setupApp(t, nil)
	key := config.GetConfig().AnalyticsKey

	request := func(t *testing.T, query string) (int, []byte) {
		t.Helper()
		req := httptest.NewRequest(fiber.MethodGet, "/api/analytics"+query, nil)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp.StatusCode, body
	}

	t.Run("missing key is rejected", func(t *testing.T) {
		status, body := request(t, "")
		assert.Equal(t, fiber.StatusUnauthorized, status)
		assert.JSONEq(t, `{"error":"Unauthorized"}`, string(body))
	})

	t.Run("wrong key is rejected", func(t *testing.T) {
		status, _ := request(t, "?key=not-the-key")
		assert.Equal(t, fiber.StatusUnauthorized, status)
	})

	t.Run("summary with valid key", func(t *testing.T) {
		testsupport.CleanAllTables(db)
		testsupport.SeedPriorDays(t, db, fixedNow, 9)
		testsupport.CreateDailyStat(t, db, analytics.DailyStat{
			Date:               fixedDay,
			UniqueVisitors:     2,
			TotalVisits:        3,
			GenerationsSuccess: 1,
			GenerationsFailed:  1,
		})

		status, body := request(t, "?key="+url.QueryEscape(key))
		require.Equal(t, fiber.StatusOK, status, string(body))

		var summary analytics.Summary
		require.NoError(t, json.Unmarshal(body, &summary))
		assert.Equal(t, analytics.DaySnapshot{
			UniqueVisitors:        2,
			TotalVisits:           3,
			SuccessfulGenerations: 1,
			FailedGenerations:     1,
			TotalGenerations:      2,
		}, summary.Today)
		require.Len(t, summary.Last7Days, analytics.SummaryWindowDays)
		assert.Equal(t, fixedDay, summary.Last7Days[0].Date)
		assert.Equal(t, "2025-04-01", summary.Last7Days[1].Date)

		var raw map[string]any
		require.NoError(t, json.Unmarshal(body, &raw))
		assert.Contains(t, raw, "total")
		assert.Contains(t, raw, "today")
		assert.Contains(t, raw, "last_7_days")
	})
}

func TestAnalyticsActionStoreUnavailable(t *testing.T) {
	app, db := setupApp(t, nil)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	req := httptest.NewRequest(fiber.MethodGet, "/api/analytics?key="+url.QueryEscape(config.GetConfig().AnalyticsKey), nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	var payload map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	assert.NotEmpty(t, payload["error"])
}

func TestGenerateActionValidation(t *testing.T) {
	client := &stubModelClient{outputs: map[string]generation.Output{
		"primary-model": {ImageData: []byte("img"), ImageMIMEType: "image/png"},
	}}
	app, db := setupApp(t, client)

	tests := []struct {
		name    string
		form    uploadForm
		status  int
		message string
	}{
		{
			name:    "missing image",
			form:    uploadForm{arabicName: name("محمد")},
			status:  fiber.StatusBadRequest,
			message: "No image file provided",
		},
		{
			name:    "missing name",
			form:    uploadForm{image: pngHeader, filename: "photo.png"},
			status:  fiber.StatusBadRequest,
			message: "No Arabic name provided",
		},
		{
			name:    "blank name with text",
			form:    uploadForm{image: pngHeader, filename: "photo.png", arabicName: name("   ")},
			status:  fiber.StatusBadRequest,
			message: "No Arabic name provided",
		},
		{
			name:    "empty file",
			form:    uploadForm{image: []byte{}, filename: "photo.png", arabicName: name("محمد")},
			status:  fiber.StatusBadRequest,
			message: "No image file selected",
		},
		{
			name:    "not an image",
			form:    uploadForm{image: []byte("just some text"), filename: "notes.txt", arabicName: name("محمد")},
			status:  fiber.StatusBadRequest,
			message: "Uploaded file is not an image",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, payload := postGenerate(t, app, tt.form)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.message, payload["error"])
		})
	}

	assert.Zero(t, client.calls, "rejected uploads must not reach the model")

	var generations int64
	require.NoError(t, db.Model(&events.GenerationEvent{}).Count(&generations).Error)
	assert.Zero(t, generations, "rejected uploads are not recorded as generations")
}

func TestGenerateAction(t *testing.T) {
	t.Run("success records a generation", func(t *testing.T) {
		client := &stubModelClient{outputs: map[string]generation.Output{
			"primary-model": {ImageData: []byte("img"), ImageMIMEType: "image/png"},
		}}
		app, db := setupApp(t, client)

		status, payload := postGenerate(t, app, validForm())
		require.Equal(t, fiber.StatusOK, status, payload)
		assert.Equal(t, true, payload["success"])
		assert.Equal(t, "data:image/png;base64,aW1n", payload["image"])
		assert.Equal(t, "Portrait generated successfully with primary-model!", payload["message"])

		stat := testsupport.LoadDailyStat(t, db, fixedDay)
		assert.Equal(t, int64(1), stat.GenerationsSuccess)
		assert.Equal(t, int64(0), stat.GenerationsFailed)
		assert.Equal(t, int64(1), stat.TotalGenerations)

		var event events.GenerationEvent
		require.NoError(t, db.First(&event).Error)
		assert.True(t, event.Success)
		assert.True(t, event.IncludeText)
		assert.Nil(t, event.ErrorMessage)
		require.NotNil(t, event.ProcessingTimeSeconds)
		assert.GreaterOrEqual(t, *event.ProcessingTimeSeconds, 0.0)
	})

	t.Run("fallback model without text", func(t *testing.T) {
		client := &stubModelClient{
			errs: map[string]error{"primary-model": errors.New("quota exceeded")},
			outputs: map[string]generation.Output{
				"fallback-model": {ImageData: []byte("img"), ImageMIMEType: "image/jpeg"},
			},
		}
		app, db := setupApp(t, client)

		form := validForm()
		form.arabicName = name("")
		form.includeText = "false"

		status, payload := postGenerate(t, app, form)
		require.Equal(t, fiber.StatusOK, status, payload)
		assert.Equal(t, "Portrait generated successfully!", payload["message"])
		assert.Equal(t, "data:image/jpeg;base64,aW1n", payload["image"])

		var event events.GenerationEvent
		require.NoError(t, db.First(&event).Error)
		assert.True(t, event.Success)
		assert.False(t, event.IncludeText)
	})

	t.Run("text instead of image", func(t *testing.T) {
		client := &stubModelClient{outputs: map[string]generation.Output{
			"primary-model": {Text: "I cannot edit this photo."},
		}}
		app, db := setupApp(t, client)

		status, payload := postGenerate(t, app, validForm())
		assert.Equal(t, fiber.StatusInternalServerError, status)
		assert.Equal(t, false, payload["success"])
		assert.Equal(t, "Model returned text instead of image", payload["error"])
		assert.Equal(t, "I cannot edit this photo.", payload["model_response"])
		assert.Equal(t, 1, client.calls)

		stat := testsupport.LoadDailyStat(t, db, fixedDay)
		assert.Equal(t, int64(0), stat.GenerationsSuccess)
		assert.Equal(t, int64(1), stat.GenerationsFailed)
		assert.Equal(t, int64(1), stat.TotalGenerations)
	})

	t.Run("all models failed", func(t *testing.T) {
		client := &stubModelClient{errs: map[string]error{
			"primary-model":  errors.New("quota exceeded"),
			"fallback-model": errors.New("model not found"),
		}}
		app, db := setupApp(t, client)

		status, payload := postGenerate(t, app, validForm())
		assert.Equal(t, fiber.StatusInternalServerError, status)
		assert.Equal(t, "Image generation failed", payload["error"])

		details, ok := payload["details"].(map[string]any)
		require.True(t, ok, "expected details object, got %v", payload["details"])
		assert.Equal(t, "quota exceeded", details["primary_error"])
		assert.Equal(t, "model not found", details["secondary_error"])
		assert.Equal(t, []any{"primary-model", "fallback-model"}, details["models_tried"])
		assert.NotEmpty(t, details["suggestion"])

		var event events.GenerationEvent
		require.NoError(t, db.First(&event).Error)
		assert.False(t, event.Success)
		require.NotNil(t, event.ErrorMessage)
		assert.LessOrEqual(t, len([]rune(*event.ErrorMessage)), events.MaxErrorMessageLength)
	})

	t.Run("no generator configured", func(t *testing.T) {
		app, db := setupApp(t, nil)

		status, payload := postGenerate(t, app, validForm())
		assert.Equal(t, fiber.StatusInternalServerError, status)
		assert.Contains(t, payload["error"], "Server error")

		stat := testsupport.LoadDailyStat(t, db, fixedDay)
		assert.Equal(t, int64(1), stat.GenerationsFailed)
	})
}

func TestPages(t *testing.T) {
	app, _ := setupApp(t, nil)

	tests := []struct {
		path        string
		status      int
		contentType string
	}{
		{"/", fiber.StatusOK, "text/html"},
		{"/analytics", fiber.StatusOK, "text/html"},
		{"/style.css", fiber.StatusOK, "text/css"},
		{"/script.js", fiber.StatusOK, "javascript"},
		{"/favicon.ico", fiber.StatusNoContent, ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, tt.path, nil), -1)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.status, resp.StatusCode)
			if tt.contentType != "" {
				assert.Contains(t, resp.Header.Get(fiber.HeaderContentType), tt.contentType)
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	app, _ := setupApp(t, nil)

	// One tracked visit so the counter has a sample.
	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/api/health", nil), -1)
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = app.Test(httptest.NewRequest(fiber.MethodGet, "/metrics", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "metalise_tracked_events_total")
}
