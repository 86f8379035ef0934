// Package extract recovers structured process graphs from vector diagram
// exports. Each supported source tool has its own Extractor; a Registry tries
// them in a fixed priority order and the first one that produces a non-empty
// graph wins. Everything here is a pure transformation over the input bytes:
// no I/O, no shared state, safe for concurrent use.
package extract

import (
	"github.com/diagram-analyzer/backend/internal/models"
)

// Extractor defines the interface for format-specific graph extractors.
type Extractor interface {
	// Name returns the unique name of the extractor.
	Name() string
	// CanExtract reports whether the bytes plausibly originate from this
	// extractor's source tool. Cheap fingerprint check, no parsing.
	CanExtract(data []byte) bool
	// Extract parses the bytes and returns the recovered graph, or nil when
	// the document cannot be confidently interpreted.
	Extract(data []byte) *models.AnalyzeResult
}

// Registry holds all available extractors in priority order.
type Registry struct {
	extractors []Extractor
}

func NewRegistry() *Registry {
	return &Registry{
		extractors: []Extractor{
			NewBpmnSvgExtractor(),
			NewDrawioExtractor(),
		},
	}
}

// Extract runs the extractors in order and returns the first non-empty graph.
// The second return value is false when no extractor matched; the caller is
// expected to fall back to model-based inference in that case.
func (r *Registry) Extract(data []byte) (*models.AnalyzeResult, bool) {
	res, _, ok := r.ExtractDetailed(data)
	return res, ok
}

// ExtractDetailed is Extract plus the name of the extractor that won.
func (r *Registry) ExtractDetailed(data []byte) (*models.AnalyzeResult, string, bool) {
	for _, e := range r.extractors {
		if !e.CanExtract(data) {
			continue
		}
		if res := tryExtract(e, data); res != nil && len(res.Steps) > 0 {
			return res, e.Name(), true
		}
	}
	return nil, "", false
}

// tryExtract converts any panic inside an extractor into a decline. A failed
// structural reading must never abort the request: the model fallback still
// has to run.
func tryExtract(e Extractor, data []byte) (res *models.AnalyzeResult) {
	defer func() {
		if recover() != nil {
			res = nil
		}
	}()
	return e.Extract(data)
}
