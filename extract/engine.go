// Package extract turns surveyed PDF pages into markdown text through a
// tiered engine stack: an ML layout model (tier 1), the native content-stream
// parser (tier 2) and OCR (tier 3). Pages whose confidence falls short are
// escalated to a better tier, and the two outputs are arbitrated by textual
// similarity rather than by the engines' own confidence claims.
package extract

import (
	"context"
	"errors"
	"image"

	"github.com/hazyhaar/lexpdf/layout"
	"github.com/hazyhaar/lexpdf/pdftext"
)

// ErrEngineUnavailable marks an engine that cannot run in this process
// (missing binary, unset endpoint). The caller falls through to the next tier.
var ErrEngineUnavailable = errors.New("extract: engine unavailable")

// Quality priors per engine. The prior scales the engine's self-reported
// quality into a comparable confidence.
const (
	PriorML     = 1.0
	PriorNative = 0.9
	PriorOCR    = 0.7
)

// PageRequest carries everything an engine may need for one page.
type PageRequest struct {
	Doc    *pdftext.Document // open source document
	Path   string            // source path, for engines that re-read the file
	PageNr int
	Layout layout.PageLayout
	Image  image.Image // sanitized raster, nil on the native path
	DPI    int

	// Languages are tesseract language codes, e.g. "por".
	Languages []string
}

// PageResult is one engine's output for one page.
type PageResult struct {
	Text        string  `json:"text"`
	Confidence  float64 `json:"confidence"` // prior × reported quality, 0..1
	Engine      string  `json:"engine"`
	WordCount   int     `json:"word_count"`
	NeedsReview bool    `json:"needs_review,omitempty"`
	Escalated   bool    `json:"escalated,omitempty"`
}

// Engine extracts text from a single page.
type Engine interface {
	// Name is a stable identifier: "ml", "native", "ocr".
	Name() string
	// Tier orders engines by fidelity; 1 is best.
	Tier() int
	// Available reports whether the engine can run in this process.
	Available() bool
	ExtractPage(ctx context.Context, req PageRequest) (PageResult, error)
}
