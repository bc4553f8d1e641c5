// Package pipeline drives a legal PDF end to end: layout survey, raster
// sanitation, tiered text extraction, section classification and context
// store feedback. Page-level failures degrade the page, not the document;
// document-level failures surface as a DocumentError.
package pipeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hazyhaar/lexpdf/classify"
	"github.com/hazyhaar/lexpdf/contextstore"
	"github.com/hazyhaar/lexpdf/extract"
	"github.com/hazyhaar/lexpdf/idgen"
	"github.com/hazyhaar/lexpdf/layout"
	"github.com/hazyhaar/lexpdf/pdftext"
	"github.com/hazyhaar/lexpdf/sanitize"
)

// DocumentError wraps a failure that killed a whole document.
type DocumentError struct {
	Path string
	Err  error
}

func (e *DocumentError) Error() string {
	return fmt.Sprintf("document %s: %v", e.Path, e.Err)
}

func (e *DocumentError) Unwrap() error { return e.Err }

// Job is one document to process. CaseID defaults to the file stem so reruns
// of the same file keep accumulating knowledge under one case; SystemCode,
// when set, replaces auto-detection for this document.
type Job struct {
	Path       string
	CaseID     string
	SystemCode string
}

func (j Job) caseID() string {
	if j.CaseID != "" {
		return j.CaseID
	}
	base := filepath.Base(j.Path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// PageReport is the per-page line of the run report.
type PageReport struct {
	Page        int     `json:"page"`
	Type        string  `json:"type"` // NATIVE | OCR
	Engine      string  `json:"engine,omitempty"`
	Confidence  float64 `json:"confidence"`
	Escalated   bool    `json:"escalated,omitempty"`
	NeedsReview bool    `json:"needs_review,omitempty"`
	DurationMS  int64   `json:"duration_ms"`
}

// Report summarizes one processed document. It is also written as
// report.json next to the other artifacts.
type Report struct {
	RunID          string             `json:"run_id"`
	CaseID         string             `json:"case_id"`
	Path           string             `json:"path"`
	System         string             `json:"system"`
	PageCount      int                `json:"page_count"`
	NativePages    int                `json:"native_pages"`
	RasterPages    int                `json:"raster_pages"`
	MeanConfidence float64            `json:"mean_confidence"`
	EngineUse      map[string]int     `json:"engine_use"`
	DegradedPages  []int              `json:"degraded_pages,omitempty"`
	ReviewPages    []int              `json:"review_pages,omitempty"`
	TimedOut       bool               `json:"timed_out,omitempty"`
	Pages          []PageReport       `json:"pages"`
	Sections       []classify.Section `json:"sections"`
	DurationMS     int64              `json:"duration_ms"`
	OutputDir      string             `json:"output_dir"`
}

// Pipeline owns the stage instances and the context store.
type Pipeline struct {
	cfg        *Config
	logger     *slog.Logger
	analyzer   *layout.Analyzer
	sanitizer  *sanitize.Sanitizer
	extractor  *extract.Extractor
	classifier classify.Classifier
	store      *contextstore.Store
	newRunID   idgen.Generator
}

// New assembles a Pipeline from configuration and an open database.
func New(cfg *Config, db *sql.DB, logger *slog.Logger) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	cfg.Layout.Logger = logger
	cfg.Sanitize.Logger = logger
	cfg.Extract.Logger = logger
	cfg.Classify.Logger = logger
	cfg.Store.Logger = logger

	var ml extract.Engine
	if cfg.MLServerURL != "" {
		ml = extract.NewMLEngine(cfg.MLServerURL, logger)
	}
	extractor, err := extract.NewExtractor(cfg.Extract,
		ml,
		extract.NewNativeEngine(),
		extract.NewOCREngine(cfg.OCREnabled, cfg.Languages),
	)
	if err != nil {
		return nil, err
	}

	var classifier classify.Classifier
	if cfg.RemoteClassifierURL != "" {
		classifier = classify.NewRemoteClassifier(cfg.RemoteClassifierURL, logger)
	} else {
		classifier = classify.NewPatternClassifier(cfg.Classify)
	}

	return &Pipeline{
		cfg:        cfg,
		logger:     logger,
		analyzer:   layout.NewAnalyzer(cfg.Layout),
		sanitizer:  sanitize.New(cfg.Sanitize),
		extractor:  extractor,
		classifier: classifier,
		store:      contextstore.New(db, cfg.Store),
		newRunID:   idgen.Prefixed("run_", idgen.UUIDv7()),
	}, nil
}

// Store exposes the context store for serving layers.
func (p *Pipeline) Store() *contextstore.Store { return p.store }

// ProcessDocument runs one PDF through every stage and writes the artifact
// directory. Page failures are recorded in the report. A document timeout
// mid-extraction degrades the remaining pages to empty, zero-confidence
// results and still classifies and writes artifacts from what was extracted;
// only survey, classification or artifact failures abort the document.
func (p *Pipeline) ProcessDocument(ctx context.Context, job Job) (*Report, error) {
	pageCtx := ctx
	if p.cfg.DocTimeoutSec > 0 {
		var cancel context.CancelFunc
		pageCtx, cancel = context.WithTimeout(ctx, time.Duration(p.cfg.DocTimeoutSec)*time.Second)
		defer cancel()
	}

	started := time.Now()

	doc, err := pdftext.Open(job.Path)
	if err != nil {
		return nil, &DocumentError{Path: job.Path, Err: err}
	}

	dl, err := p.analyzer.Analyze(pageCtx, doc, job.Path)
	if err != nil {
		return nil, &DocumentError{Path: job.Path, Err: err}
	}
	if code := p.systemCode(job); code != "" {
		// Operator knows the source tribunal: the override replaces the
		// detector's verdict everywhere downstream.
		dl.System = layout.SystemInfo{Name: code, Confidence: 100}
	}

	caseID := job.caseID()
	runID := p.newRunID()
	outDir := filepath.Join(p.cfg.OutputDir, runID)
	if err := os.MkdirAll(filepath.Join(outDir, "pages"), 0o755); err != nil {
		return nil, &DocumentError{Path: job.Path, Err: err}
	}
	if err := writeJSON(filepath.Join(outDir, "layout.json"), dl); err != nil {
		return nil, &DocumentError{Path: job.Path, Err: err}
	}

	hinted := p.applyStoreHints(ctx, caseID, dl)

	rep := &Report{
		RunID:     runID,
		CaseID:    caseID,
		Path:      job.Path,
		System:    dl.System.Name,
		PageCount: dl.PageCount,
		EngineUse: make(map[string]int),
		OutputDir: outDir,
	}

	results, layoutTypes := p.extractPages(pageCtx, doc, job.Path, dl, outDir, rep)

	var confSum float64
	for i, r := range results {
		confSum += r.Confidence
		if r.Engine != "" {
			rep.EngineUse[r.Engine]++
		}
		if r.NeedsReview {
			rep.ReviewPages = append(rep.ReviewPages, dl.Pages[i].PageNumber)
		}
	}
	if len(results) > 0 {
		rep.MeanConfidence = confSum / float64(len(results))
	}

	if len(p.cfg.ExclusionWords) > 0 {
		for i := range results {
			results[i].Text = stripExcluded(results[i].Text, p.cfg.ExclusionWords)
		}
	}

	assembled := extract.Assemble(results, layoutTypes)
	if err := os.WriteFile(filepath.Join(outDir, "final.md"), []byte(assembled), 0o644); err != nil {
		return nil, &DocumentError{Path: job.Path, Err: err}
	}

	res, err := p.classifier.Classify(ctx, assembled)
	if err != nil {
		return nil, &DocumentError{Path: job.Path, Err: err}
	}
	rep.Sections = res.Sections
	if err := writeJSON(filepath.Join(outDir, "sections.json"), res); err != nil {
		return nil, &DocumentError{Path: job.Path, Err: err}
	}

	p.feedStore(ctx, caseID, job.Path, dl, results, hinted)

	rep.DurationMS = time.Since(started).Milliseconds()
	if err := writeJSON(filepath.Join(outDir, "report.json"), rep); err != nil {
		return nil, &DocumentError{Path: job.Path, Err: err}
	}

	p.logger.Info("document processed",
		"case", caseID, "run", runID, "path", job.Path,
		"system", rep.System, "pages", rep.PageCount,
		"confidence", rep.MeanConfidence,
		"degraded", len(rep.DegradedPages),
		"timed_out", rep.TimedOut)
	return rep, nil
}

// extractPages walks the survey in order, extracting each page. Once the
// page context expires the remaining pages degrade to empty, zero-confidence
// results; the document still ships with what was extracted by then.
func (p *Pipeline) extractPages(pageCtx context.Context, doc *pdftext.Document, path string, dl *layout.DocumentLayout, outDir string, rep *Report) ([]extract.PageResult, []string) {
	results := make([]extract.PageResult, len(dl.Pages))
	layoutTypes := make([]string, len(dl.Pages))

	for i, pl := range dl.Pages {
		if pl.Classification == layout.ClassNative {
			rep.NativePages++
			layoutTypes[i] = extract.PageTypeNative
		} else {
			rep.RasterPages++
			layoutTypes[i] = extract.PageTypeOCR
		}

		if pageCtx.Err() != nil {
			if !rep.TimedOut {
				rep.TimedOut = true
				p.logger.Warn("document timeout, degrading remaining pages",
					"case", rep.CaseID, "path", path, "from_page", pl.PageNumber)
			}
			results[i] = extract.PageResult{NeedsReview: true}
			rep.DegradedPages = append(rep.DegradedPages, pl.PageNumber)
			rep.Pages = append(rep.Pages, PageReport{
				Page: pl.PageNumber, Type: layoutTypes[i], NeedsReview: true,
			})
			continue
		}

		pageStart := time.Now()
		results[i] = p.processPage(pageCtx, doc, path, pl, outDir, rep)
		rep.Pages = append(rep.Pages, PageReport{
			Page:        pl.PageNumber,
			Type:        layoutTypes[i],
			Engine:      results[i].Engine,
			Confidence:  results[i].Confidence,
			Escalated:   results[i].Escalated,
			NeedsReview: results[i].NeedsReview,
			DurationMS:  time.Since(pageStart).Milliseconds(),
		})
	}
	return results, layoutTypes
}

// systemCode resolves the override: job beats config, empty means detect.
func (p *Pipeline) systemCode(job Job) string {
	if job.SystemCode != "" {
		return job.SystemCode
	}
	return p.cfg.SystemCode
}

// processPage prepares the raster (when needed), runs extraction and never
// fails: an unextractable page comes back empty, flagged for review.
func (p *Pipeline) processPage(ctx context.Context, doc *pdftext.Document, path string, pl layout.PageLayout, outDir string, rep *Report) extract.PageResult {
	req := extract.PageRequest{
		Doc:       doc,
		Path:      path,
		PageNr:    pl.PageNumber,
		Layout:    pl,
		DPI:       p.cfg.Sanitize.RenderDPI,
		Languages: p.cfg.Languages,
	}

	if pl.Classification == layout.ClassRasterNeeded {
		img, err := sanitize.PageImage(doc.Context(), pl.PageNumber, pl.Width, p.cfg.Sanitize.RenderDPI)
		if err != nil {
			p.logger.Warn("page raster unavailable",
				"page", pl.PageNumber, "error", err)
		} else {
			clean := p.sanitizer.Sanitize(img)
			req.Image = clean.Image
			p.savePagePNG(outDir, pl.PageNumber, clean)
		}
	}

	res, err := p.extractor.ExtractPage(ctx, req)
	if err != nil {
		p.logger.Warn("page degraded", "page", pl.PageNumber, "error", err)
		rep.DegradedPages = append(rep.DegradedPages, pl.PageNumber)
		return extract.PageResult{NeedsReview: true}
	}
	return res
}

// savePagePNG writes the sanitized raster artifact; failing to do so is
// logged, not fatal.
func (p *Pipeline) savePagePNG(outDir string, pageNr int, clean *sanitize.Result) {
	name := filepath.Join(outDir, "pages", fmt.Sprintf("page_%03d.png", pageNr))
	f, err := os.Create(name)
	if err != nil {
		p.logger.Warn("write page artifact", "page", pageNr, "error", err)
		return
	}
	defer f.Close()
	if err := png.Encode(f, clean.Image); err != nil {
		p.logger.Warn("encode page artifact", "page", pageNr, "error", err)
	}
}

// applyStoreHints consults the case's learned patterns page by page and
// downgrades recommendations the store has learned to distrust: a pattern
// predicting weak output for a page's recommended engine reroutes that page
// to the ML tier when one is configured. Pages whose recommendation was
// steered by a matching pattern come back marked, keyed by page number;
// their later observations are the ones that can indict the pattern.
func (p *Pipeline) applyStoreHints(ctx context.Context, caseID string, dl *layout.DocumentLayout) map[int]bool {
	hinted := make(map[int]bool)

	threshold := p.cfg.Extract.EscalationThreshold
	if threshold <= 0 {
		threshold = 0.85
	}

	for i, pl := range dl.Pages {
		sig := contextstore.ComputePageSignature(pl, dl.System.Name, 0)
		patterns, err := p.store.Lookup(ctx, caseID, contextstore.KindPageExtraction, sig)
		if err != nil {
			p.logger.Warn("store lookup failed", "case", caseID, "page", pl.PageNumber, "error", err)
			return hinted
		}

		for _, pat := range patterns {
			if pat.Engine != pl.RecommendedEngine {
				continue
			}
			hinted[pl.PageNumber] = true
			if pat.ExpectedConf < threshold && pl.RecommendedEngine != "ml" && p.cfg.MLServerURL != "" {
				p.logger.Debug("store hint reroutes page",
					"case", caseID, "page", pl.PageNumber,
					"from", pl.RecommendedEngine, "expected", pat.ExpectedConf)
				dl.Pages[i].RecommendedEngine = "ml"
			}
			break
		}
	}
	return hinted
}

// feedStore records the case and one observation per extracted page. Store
// failures are logged; the extraction output already exists.
func (p *Pipeline) feedStore(ctx context.Context, caseID, path string, dl *layout.DocumentLayout, results []extract.PageResult, hinted map[int]bool) {
	var confSum float64
	for _, r := range results {
		confSum += r.Confidence
	}
	var meanConf float64
	if len(results) > 0 {
		meanConf = confSum / float64(len(results))
	}

	if err := p.store.RegisterCase(ctx, contextstore.Case{
		ID: caseID, Path: path, System: dl.System.Name,
		PageCount: dl.PageCount,
		Signature: contextstore.ComputeSignature(dl, meanConf),
	}); err != nil {
		p.logger.Warn("register case failed", "case", caseID, "error", err)
		return
	}

	tiers := map[string]int{"ml": 1, "native": 2, "ocr": 3}
	for i, r := range results {
		if r.Engine == "" {
			continue
		}
		pl := dl.Pages[i]
		if err := p.store.Observe(ctx, contextstore.Observation{
			CaseID: caseID, Kind: contextstore.KindPageExtraction,
			System: dl.System.Name,
			Engine: r.Engine, Tier: tiers[r.Engine],
			Signature:  contextstore.ComputePageSignature(pl, dl.System.Name, r.Confidence),
			Confidence: r.Confidence,
			HintUsed:   hinted[pl.PageNumber],
		}); err != nil {
			p.logger.Warn("observe failed",
				"case", caseID, "page", pl.PageNumber, "engine", r.Engine, "error", err)
		}
	}
}

// stripExcluded drops every line carrying one of the configured exclusion
// terms. Matching is case-insensitive; the terms are literal substrings.
func stripExcluded(text string, words []string) string {
	if text == "" {
		return text
	}
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		lower := strings.ToLower(line)
		drop := false
		for _, w := range words {
			if w != "" && strings.Contains(lower, strings.ToLower(w)) {
				drop = true
				break
			}
		}
		if !drop {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

// BatchResult pairs one input job with its outcome.
type BatchResult struct {
	Path   string
	Report *Report
	Err    error
}

// ProcessBatch runs jobs concurrently, MaxWorkers at a time. Results come
// back in input order; per-document failures land in BatchResult.Err.
func (p *Pipeline) ProcessBatch(ctx context.Context, jobs []Job) []BatchResult {
	out := make([]BatchResult, len(jobs))
	sem := make(chan struct{}, p.cfg.MaxWorkers)
	var wg sync.WaitGroup

	for i, job := range jobs {
		wg.Add(1)
		go func(i int, job Job) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				out[i] = BatchResult{Path: job.Path, Err: ctx.Err()}
				return
			}
			rep, err := p.ProcessDocument(ctx, job)
			out[i] = BatchResult{Path: job.Path, Report: rep, Err: err}
		}(i, job)
	}
	wg.Wait()
	return out
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	return os.WriteFile(path, data, 0o644)
}
