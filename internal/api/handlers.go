// handlers.go - Diagram analysis operation handlers
package api

import (
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/diagram-analyzer/backend/internal/extract"
	"github.com/diagram-analyzer/backend/internal/history"
	"github.com/diagram-analyzer/backend/internal/models"
	"github.com/diagram-analyzer/backend/internal/preprocess"
	"github.com/vmihailenco/msgpack/v5"
)

const msgpackMIME = "application/x-msgpack"

// VisionAnalyzer is the model fallback path. Implemented by vision.Analyzer;
// tests substitute a stub.
type VisionAnalyzer interface {
	Analyze(ctx context.Context, pngBytes []byte, extractedText string) (*models.AnalyzeResult, error)
}

// Handler serves the analysis endpoints. The structural extractor registry is
// always consulted first; the vision model is only called when every
// extractor declines.
type Handler struct {
	registry *extract.Registry
	vision   VisionAnalyzer
	history  *history.Store
	log      zerolog.Logger
	model    string
	version  string
}

// NewHandler creates the handler. vision and store may be nil: analysis then
// works for structural inputs only, and history recording is skipped.
func NewHandler(registry *extract.Registry, vision VisionAnalyzer, store *history.Store, log zerolog.Logger, model, version string) *Handler {
	return &Handler{
		registry: registry,
		vision:   vision,
		history:  store,
		log:      log.With().Str("component", "api").Logger(),
		model:    model,
		version:  version,
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/api/health", h.HandleHealth)
	e.POST("/api/analyze", h.HandleAnalyze)
	e.POST("/api/analyze/batch", h.HandleAnalyzeBatch)
	e.GET("/api/history", h.HandleHistory)
}

// HandleHealth returns server health status
func (h *Handler) HandleHealth(c echo.Context) error {
	backend := "structural-only"
	if h.vision != nil {
		backend = "structural+model"
	}
	return c.JSON(http.StatusOK, models.HealthStatus{
		Status:  "ok",
		Model:   h.model,
		Backend: backend,
		Version: h.version,
	})
}

// HandleAnalyze analyzes a single uploaded diagram file
func (h *Handler) HandleAnalyze(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return NewValidationError("file")
	}
	data, err := readUpload(fh)
	if err != nil {
		return NewBadRequestError("failed to read uploaded file", err)
	}

	result, requestID, apiErr := h.analyze(c.Request().Context(), fh.Filename, data)
	if apiErr != nil {
		return apiErr
	}
	c.Response().Header().Set(echo.HeaderXRequestID, requestID)

	if c.Request().Header.Get(echo.HeaderAccept) == msgpackMIME {
		blob, err := msgpack.Marshal(result)
		if err != nil {
			return NewInternalError("failed to encode response", err)
		}
		return c.Blob(http.StatusOK, msgpackMIME, blob)
	}
	return c.JSON(http.StatusOK, result)
}

// HandleAnalyzeBatch analyzes several files in one request, isolating
// per-file failures
func (h *Handler) HandleAnalyzeBatch(c echo.Context) error {
	form, err := c.MultipartForm()
	if err != nil {
		return NewBadRequestError("invalid multipart form", err)
	}
	files := form.File["files"]
	if len(files) == 0 {
		return NewValidationError("files")
	}

	items := make([]batchItem, 0, len(files))
	for _, fh := range files {
		data, err := readUpload(fh)
		if err != nil {
			items = append(items, batchItem{Filename: fh.Filename, Error: "failed to read file"})
			continue
		}
		result, requestID, apiErr := h.analyze(c.Request().Context(), fh.Filename, data)
		if apiErr != nil {
			items = append(items, batchItem{Filename: fh.Filename, Error: apiErr.Message})
			continue
		}
		items = append(items, batchItem{ID: requestID, Filename: fh.Filename, AnalyzeResult: result})
	}

	return c.JSON(http.StatusOK, batchResponse{Count: len(items), Items: items})
}

// HandleHistory returns recent analysis records
func (h *Handler) HandleHistory(c echo.Context) error {
	if h.history == nil {
		return NewServiceUnavailableError("history is disabled")
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	records, err := h.history.Recent(c.Request().Context(), limit)
	if err != nil {
		return NewInternalError("failed to query history", err)
	}
	return c.JSON(http.StatusOK, records)
}

// analyze runs the structural-first, model-fallback pipeline for one file.
// The returned id identifies the request in the history store.
func (h *Handler) analyze(ctx context.Context, filename string, data []byte) (*models.AnalyzeResult, string, *APIError) {
	started := time.Now()
	requestID := uuid.New().String()

	result, extractor, ok := h.registry.ExtractDetailed(data)
	source := "structural"
	if ok {
		h.log.Info().Str("file", filename).Str("extractor", extractor).Msg("structural extraction succeeded")
	} else {
		source = "model"
		png, err := preprocess.LoadImage(data)
		if err != nil {
			return nil, "", NewBadRequestError("invalid image format", err)
		}
		if h.vision == nil {
			return nil, "", NewServiceUnavailableError("vision model backend is not configured")
		}
		result, err = h.vision.Analyze(ctx, png, "")
		if err != nil {
			h.log.Error().Err(err).Str("file", filename).Msg("model inference failed")
			return nil, "", NewServiceUnavailableError("model inference failed")
		}
		h.log.Info().Str("file", filename).Msg("model inference succeeded")
	}

	h.record(ctx, history.Record{
		ID:          requestID,
		Filename:    filename,
		Source:      source,
		Extractor:   extractor,
		DiagramType: result.DiagramType,
		StepCount:   len(result.Steps),
		DurationMs:  time.Since(started).Milliseconds(),
	})

	return result, requestID, nil
}

// record appends to history best-effort; analysis never fails on audit
// problems.
func (h *Handler) record(ctx context.Context, r history.Record) {
	if h.history == nil {
		return
	}
	if err := h.history.Add(ctx, r); err != nil {
		h.log.Warn().Err(err).Str("file", r.Filename).Msg("failed to record analysis")
	}
}

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// Request/Response types

type batchItem struct {
	ID       string `json:"id,omitempty"`
	Filename string `json:"filename"`
	Error    string `json:"error,omitempty"`
	// Embedded result fields are inlined in the JSON object; a nil result
	// (per-file error) contributes nothing.
	*models.AnalyzeResult
}

type batchResponse struct {
	Count int         `json:"count"`
	Items []batchItem `json:"items"`
}
