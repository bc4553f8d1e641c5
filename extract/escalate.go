package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
)

// Config tunes engine arbitration.
type Config struct {
	// EscalationThreshold: pages below this confidence are retried on a
	// better tier (default: 0.85).
	EscalationThreshold float64 `yaml:"escalation_threshold"`

	// SimilarityHigh: above it the escalated output is trusted outright
	// (default: 0.85).
	SimilarityHigh float64 `yaml:"similarity_high"`

	// SimilarityMedium: above it the engines roughly agree and the richer
	// text wins (default: 0.5).
	SimilarityMedium float64 `yaml:"similarity_medium"`

	Logger *slog.Logger `yaml:"-" json:"-"`
}

func (c *Config) defaults() {
	if c.EscalationThreshold <= 0 {
		c.EscalationThreshold = 0.85
	}
	if c.SimilarityHigh <= 0 {
		c.SimilarityHigh = 0.85
	}
	if c.SimilarityMedium <= 0 {
		c.SimilarityMedium = 0.5
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Extractor arbitrates between engines for each page.
type Extractor struct {
	cfg     Config
	logger  *slog.Logger
	engines map[string]Engine
	byTier  []Engine
}

// NewExtractor wires the available engines. At least one engine must be
// registered; nil engines are skipped.
func NewExtractor(cfg Config, engines ...Engine) (*Extractor, error) {
	cfg.defaults()
	x := &Extractor{
		cfg:     cfg,
		logger:  cfg.Logger,
		engines: make(map[string]Engine),
	}
	for _, e := range engines {
		if e == nil {
			continue
		}
		x.engines[e.Name()] = e
		x.byTier = append(x.byTier, e)
	}
	if len(x.byTier) == 0 {
		return nil, errors.New("extract: no engines registered")
	}
	sort.Slice(x.byTier, func(i, j int) bool { return x.byTier[i].Tier() < x.byTier[j].Tier() })
	return x, nil
}

// ExtractPage runs the page's recommended engine, escalating to a better
// tier when the result's confidence falls below the threshold. All engines
// failing or unavailable returns an error; the caller degrades the page.
func (x *Extractor) ExtractPage(ctx context.Context, req PageRequest) (PageResult, error) {
	primary := x.pickPrimary(req)
	if primary == nil {
		return PageResult{}, fmt.Errorf("page %d: %w", req.PageNr, ErrEngineUnavailable)
	}

	res, err := primary.ExtractPage(ctx, req)
	if err != nil {
		x.logger.Warn("primary engine failed",
			"engine", primary.Name(), "page", req.PageNr, "error", err)
		return x.fallback(ctx, req, primary, err)
	}

	if res.Confidence >= x.cfg.EscalationThreshold {
		return res, nil
	}

	better := x.betterTier(primary)
	if better == nil {
		if res.Text == "" {
			return res, fmt.Errorf("page %d: no usable output from %s", req.PageNr, primary.Name())
		}
		res.NeedsReview = true
		return res, nil
	}

	x.logger.Debug("escalating page",
		"page", req.PageNr,
		"from", primary.Name(), "to", better.Name(),
		"confidence", res.Confidence)

	esc, err := better.ExtractPage(ctx, req)
	if err != nil {
		// Escalation is best effort: keep the low-confidence primary.
		res.NeedsReview = true
		return res, nil
	}

	out := x.resolve(res, esc)
	out.Escalated = true
	return out, nil
}

// pickPrimary honors the layout's recommendation when that engine is
// registered and available, otherwise takes the best available tier that can
// handle the page.
func (x *Extractor) pickPrimary(req PageRequest) Engine {
	if e, ok := x.engines[req.Layout.RecommendedEngine]; ok && e.Available() && x.canHandle(e, req) {
		return e
	}
	for _, e := range x.byTier {
		if e.Available() && x.canHandle(e, req) {
			return e
		}
	}
	return nil
}

// canHandle filters structurally impossible pairings: OCR needs a raster
// image, the native parser needs a text layer.
func (x *Extractor) canHandle(e Engine, req PageRequest) bool {
	switch e.Name() {
	case "ocr":
		return req.Image != nil
	case "native":
		return req.Layout.CharCount > 0
	default:
		return true
	}
}

// betterTier returns the next better available engine: the closest tier
// strictly above from's. Escalation climbs one rung at a time, so an OCR
// result is first checked against the native layer before ML weighs in.
func (x *Extractor) betterTier(from Engine) Engine {
	for i := len(x.byTier) - 1; i >= 0; i-- {
		e := x.byTier[i]
		if e.Tier() < from.Tier() && e.Available() {
			return e
		}
	}
	return nil
}

// fallback walks the remaining engines after a primary failure.
func (x *Extractor) fallback(ctx context.Context, req PageRequest, failed Engine, cause error) (PageResult, error) {
	for _, e := range x.byTier {
		if e == failed || !e.Available() || !x.canHandle(e, req) {
			continue
		}
		res, err := e.ExtractPage(ctx, req)
		if err != nil {
			continue
		}
		res.NeedsReview = res.Confidence < x.cfg.EscalationThreshold
		return res, nil
	}
	return PageResult{}, fmt.Errorf("page %d: all engines failed: %w", req.PageNr, cause)
}

// resolve arbitrates a low-confidence primary against its escalation by
// textual similarity. Declared confidences only break ties; the text
// comparison decides.
func (x *Extractor) resolve(primary, escalated PageResult) PageResult {
	sim := Similarity(primary.Text, escalated.Text)

	switch {
	case sim >= x.cfg.SimilarityHigh:
		// The engines agree: trust the higher-tier rendering at the better
		// of the two confidences.
		out := escalated
		if primary.Confidence > out.Confidence {
			out.Confidence = primary.Confidence
		}
		return out

	case sim >= x.cfg.SimilarityMedium:
		// Partial agreement: the richer text wins, confidence averaged.
		out := escalated
		if len(primary.Text) > len(escalated.Text) {
			out = primary
			out.Engine = primary.Engine
		}
		out.Confidence = (primary.Confidence + escalated.Confidence) / 2
		return out

	default:
		// Disagreement: keep the higher tier but flag the page.
		out := escalated
		if primary.Confidence < out.Confidence {
			out.Confidence = primary.Confidence
		}
		out.NeedsReview = true
		return out
	}
}
