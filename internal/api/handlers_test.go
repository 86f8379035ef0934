package api

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/diagram-analyzer/backend/internal/extract"
	"github.com/diagram-analyzer/backend/internal/models"
)

// Reduced bpmn-js export the structural path can read.
const bpmnFixture = `<?xml version="1.0"?>
<!-- bpmn-js export -->
<svg xmlns="http://www.w3.org/2000/svg">
  <g data-element-id="Event_1" transform="matrix(1 0 0 1 100 100)">
    <circle r="18" style="stroke-width: 2px;" />
  </g>
  <g data-element-id="Activity_1" transform="matrix(1 0 0 1 200 90)">
    <rect width="100" height="80" />
    <text><tspan>Review</tspan></text>
  </g>
  <g data-element-id="Event_2" transform="matrix(1 0 0 1 400 100)">
    <circle r="18" style="stroke-width: 4px;" />
  </g>
  <g data-element-id="Flow_1"><path d="M136,118L200,118" /></g>
  <g data-element-id="Flow_2"><path d="M300,130L400,118" /></g>
</svg>`

type stubVision struct {
	result *models.AnalyzeResult
	err    error
	called bool
}

func (s *stubVision) Analyze(ctx context.Context, pngBytes []byte, extractedText string) (*models.AnalyzeResult, error) {
	s.called = true
	return s.result, s.err
}

func newTestServer(vision VisionAnalyzer) (*echo.Echo, *Handler) {
	h := NewHandler(extract.NewRegistry(), vision, nil, zerolog.Nop(), "test-model", "test")
	e := echo.New()
	e.HTTPErrorHandler = ErrorHandler
	h.RegisterRoutes(e)
	return e, h
}

func multipartBody(t *testing.T, field string, files map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()
	body := new(bytes.Buffer)
	writer := multipart.NewWriter(body)
	for name, content := range files {
		part, err := writer.CreateFormFile(field, name)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestHandleHealth(t *testing.T) {
	e, _ := newTestServer(nil)
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var status models.HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "ok", status.Status)
	assert.Equal(t, "test-model", status.Model)
	assert.Equal(t, "structural-only", status.Backend)
}

func TestHandleAnalyzeStructural(t *testing.T) {
	e, _ := newTestServer(nil)
	body, contentType := multipartBody(t, "file", map[string][]byte{"diagram.svg": []byte(bpmnFixture)})

	req := httptest.NewRequest(http.MethodPost, "/api/analyze", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res models.AnalyzeResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "bpmn", res.DiagramType)
	require.Len(t, res.Steps, 3)
}

func TestHandleAnalyzeMsgpackNegotiation(t *testing.T) {
	e, _ := newTestServer(nil)
	body, contentType := multipartBody(t, "file", map[string][]byte{"diagram.svg": []byte(bpmnFixture)})

	req := httptest.NewRequest(http.MethodPost, "/api/analyze", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	req.Header.Set(echo.HeaderAccept, "application/x-msgpack")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentType), "application/x-msgpack")
	var res models.AnalyzeResult
	require.NoError(t, msgpack.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "bpmn", res.DiagramType)
	require.Len(t, res.Steps, 3)
}

func TestHandleAnalyzeMissingFile(t *testing.T) {
	e, _ := newTestServer(nil)
	req := httptest.NewRequest(http.MethodPost, "/api/analyze", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "VALIDATION_ERROR")
}

func TestHandleAnalyzeInvalidImage(t *testing.T) {
	e, _ := newTestServer(nil)
	body, contentType := multipartBody(t, "file", map[string][]byte{"junk.bin": []byte("not an image, not a diagram")})

	req := httptest.NewRequest(http.MethodPost, "/api/analyze", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid image format")
}

func TestHandleAnalyzeModelFallback(t *testing.T) {
	stub := &stubVision{result: &models.AnalyzeResult{
		DiagramType: "flowchart",
		Description: "модельный ответ",
		Steps:       []models.Step{{ID: models.NumericID(1), Action: "Шаг", NextSteps: []models.NextStep{}}},
	}}
	e, _ := newTestServer(stub)
	body, contentType := multipartBody(t, "file", map[string][]byte{"photo.png": testPNG(t)})

	req := httptest.NewRequest(http.MethodPost, "/api/analyze", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, stub.called, "vision backend must be consulted when extractors decline")
	var res models.AnalyzeResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "flowchart", res.DiagramType)
}

func TestHandleAnalyzeStructuralSkipsModel(t *testing.T) {
	stub := &stubVision{result: &models.AnalyzeResult{DiagramType: "flowchart"}}
	e, _ := newTestServer(stub)
	body, contentType := multipartBody(t, "file", map[string][]byte{"diagram.svg": []byte(bpmnFixture)})

	req := httptest.NewRequest(http.MethodPost, "/api/analyze", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, stub.called, "structural success must not reach the model")
}

func TestHandleAnalyzeBatchIsolatesFailures(t *testing.T) {
	e, _ := newTestServer(nil)
	body, contentType := multipartBody(t, "files", map[string][]byte{
		"good.svg": []byte(bpmnFixture),
		"bad.bin":  []byte("garbage"),
	})

	req := httptest.NewRequest(http.MethodPost, "/api/analyze/batch", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		Count int `json:"count"`
		Items []struct {
			Filename    string `json:"filename"`
			Error       string `json:"error"`
			DiagramType string `json:"diagram_type"`
		} `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	require.Len(t, resp.Items, 2)

	byName := make(map[string]struct {
		err         string
		diagramType string
	})
	for _, it := range resp.Items {
		byName[it.Filename] = struct {
			err         string
			diagramType string
		}{it.Error, it.DiagramType}
	}
	assert.Equal(t, "bpmn", byName["good.svg"].diagramType)
	assert.Empty(t, byName["good.svg"].err)
	assert.Equal(t, "invalid image format", byName["bad.bin"].err)
}

func TestHandleHistoryDisabled(t *testing.T) {
	e, _ := newTestServer(nil)
	req := httptest.NewRequest(http.MethodGet, "/api/history", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "history is disabled")
}
