// Package layout surveys legal PDFs page by page: how much positioned text a
// page carries, whether a lateral signature band pollutes its margin, which
// region of the page can be trusted, and which judicial system produced the
// document.
package layout

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hazyhaar/lexpdf/pdftext"
)

// Config tunes the survey heuristics.
type Config struct {
	// MinTextChars is the minimum positioned-character count for a page to be
	// considered NATIVE (default: 50).
	MinTextChars int `yaml:"min_text_chars"`

	// BandDensityThreshold is the relative bin density below which a
	// histogram bin counts as empty (default: 0.15).
	BandDensityThreshold float64 `yaml:"band_density_threshold"`

	// BandZonePercent is the lateral share of the page a band may occupy
	// (default: 0.20).
	BandZonePercent float64 `yaml:"band_zone_percent"`

	// GapSearchZone is the lateral share of the page searched for the
	// content/band gap (default: 0.30).
	GapSearchZone float64 `yaml:"gap_search_zone"`

	// ContentGapThreshold is the minimum gap width in points separating the
	// content mass from a band (default: 30).
	ContentGapThreshold float64 `yaml:"content_gap_threshold"`

	// SafeMargin is pulled inward from the band cut, in points (default: 10).
	SafeMargin float64 `yaml:"safe_margin"`

	// HistogramBins is the X-axis histogram resolution (default: 100).
	HistogramBins int `yaml:"histogram_bins"`

	// DetectionPages caps how many leading pages feed system detection
	// (default: 3).
	DetectionPages int `yaml:"detection_pages"`

	Logger *slog.Logger `yaml:"-" json:"-"`
}

func (c *Config) defaults() {
	if c.MinTextChars <= 0 {
		c.MinTextChars = 50
	}
	if c.BandDensityThreshold <= 0 {
		c.BandDensityThreshold = 0.15
	}
	if c.BandZonePercent <= 0 {
		c.BandZonePercent = 0.20
	}
	if c.GapSearchZone <= 0 {
		c.GapSearchZone = 0.30
	}
	if c.ContentGapThreshold <= 0 {
		c.ContentGapThreshold = 30.0
	}
	if c.SafeMargin <= 0 {
		c.SafeMargin = 10.0
	}
	if c.HistogramBins <= 0 {
		c.HistogramBins = 100
	}
	if c.DetectionPages <= 0 {
		c.DetectionPages = 3
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Analyzer surveys documents.
type Analyzer struct {
	cfg    Config
	logger *slog.Logger
}

// NewAnalyzer creates an Analyzer with the given configuration.
func NewAnalyzer(cfg Config) *Analyzer {
	cfg.defaults()
	return &Analyzer{cfg: cfg, logger: cfg.Logger}
}

// Analyze surveys every page of an open document.
func (a *Analyzer) Analyze(ctx context.Context, doc *pdftext.Document, path string) (*DocumentLayout, error) {
	dl := &DocumentLayout{
		Path:      path,
		PageCount: doc.PageCount(),
	}
	if dl.PageCount == 0 {
		return nil, fmt.Errorf("layout: %s has no pages", path)
	}

	var detectText strings.Builder

	for pageNr := 1; pageNr <= dl.PageCount; pageNr++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		runs, err := doc.ScanPage(pageNr)
		if err != nil {
			a.logger.Warn("page scan failed, treating as raster",
				"path", path, "page", pageNr, "error", err)
			runs = nil
		}

		w, h := doc.PageSize(pageNr)
		pl := a.surveyPage(pageNr, w, h, runs, doc.HasImages(pageNr))
		dl.Pages = append(dl.Pages, pl)

		if pl.Classification == ClassNative && pageNr <= a.cfg.DetectionPages {
			for _, r := range runs {
				detectText.WriteString(r.Text)
				detectText.WriteByte(' ')
			}
		}
	}

	dl.System = DetectSystem(detectText.String())

	a.logger.Debug("layout survey complete",
		"path", path,
		"pages", dl.PageCount,
		"native_ratio", dl.NativeRatio(),
		"band_ratio", dl.BandRatio(),
		"system", dl.System.Name)

	return dl, nil
}

// surveyPage classifies one page from its positioned runs.
func (a *Analyzer) surveyPage(pageNr int, w, h float64, runs []pdftext.Run, hasImages bool) PageLayout {
	pl := PageLayout{
		PageNumber:    pageNr,
		Width:         w,
		Height:        h,
		CharCount:     pdftext.CharCount(runs),
		HasImages:     hasImages,
		TrustedRegion: Region{X0: 0, Y0: 0, X1: w, Y1: h},
	}

	hist := buildHistogram(runs, w, a.cfg.HistogramBins)
	pl.MeanDensity = hist.meanDensity()

	if pl.CharCount < a.cfg.MinTextChars {
		pl.Classification = ClassRasterNeeded
		switch {
		case !hasImages:
			pl.Complexity = RasterDegraded
		case pl.CharCount > 0:
			// Residual chars over a scan: stamps or partial OCR layer.
			pl.Complexity = RasterDirty
		default:
			pl.Complexity = RasterClean
		}
	} else {
		pl.Classification = ClassNative
		pl.Band = a.detectBand(hist)
		if pl.Band != nil || hasImages {
			pl.Complexity = NativeWithArtifacts
		} else {
			pl.Complexity = NativeClean
		}
		if pl.Band != nil {
			if pl.Band.Side == "right" {
				pl.TrustedRegion.X1 = pl.Band.CutX
			} else {
				pl.TrustedRegion.X0 = pl.Band.CutX
			}
		}
	}

	pl.RecommendedEngine = recommendedEngine[pl.Complexity]
	return pl
}
