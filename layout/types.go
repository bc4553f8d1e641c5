package layout

// Classification says how a page's text must be obtained.
type Classification string

const (
	// ClassNative means the page carries enough positioned characters for
	// direct content-stream extraction.
	ClassNative Classification = "NATIVE"
	// ClassRasterNeeded means the page is a scan (or near-empty) and must go
	// through the raster path: render, sanitize, OCR.
	ClassRasterNeeded Classification = "RASTER_NEEDED"
)

// Complexity refines the classification for engine selection.
type Complexity string

const (
	NativeClean         Complexity = "native_clean"
	NativeWithArtifacts Complexity = "native_with_artifacts"
	RasterClean         Complexity = "raster_clean"
	RasterDirty         Complexity = "raster_dirty"
	RasterDegraded      Complexity = "raster_degraded"
)

// recommendedEngine maps a complexity class to the engine that should try
// the page first.
var recommendedEngine = map[Complexity]string{
	NativeClean:         "native",
	NativeWithArtifacts: "ml",
	RasterClean:         "ocr",
	RasterDirty:         "ocr",
	RasterDegraded:      "ml",
}

// Region is an axis-aligned box in page points, origin at the lower left
// (PDF convention).
type Region struct {
	X0 float64 `json:"x0"`
	Y0 float64 `json:"y0"`
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
}

// Width returns the horizontal extent of the region.
func (r Region) Width() float64 { return r.X1 - r.X0 }

// Height returns the vertical extent of the region.
func (r Region) Height() float64 { return r.Y1 - r.Y0 }

// ContainsX reports whether an X coordinate falls inside the region.
func (r Region) ContainsX(x float64) bool { return x >= r.X0 && x <= r.X1 }

// Band describes a lateral strip of marginal text (signature stamps,
// validation codes) that must be excluded from extraction.
type Band struct {
	Side    string  `json:"side"` // left | right
	CutX    float64 `json:"cut_x"`
	Density float64 `json:"density"` // share of page chars inside the band
}

// PageLayout is the survey result for one page.
type PageLayout struct {
	PageNumber        int            `json:"page_number"`
	Width             float64        `json:"width"`
	Height            float64        `json:"height"`
	CharCount         int            `json:"char_count"`
	Classification    Classification `json:"classification"`
	Complexity        Complexity     `json:"complexity"`
	RecommendedEngine string         `json:"recommended_engine"`
	Band              *Band          `json:"band,omitempty"`
	TrustedRegion     Region         `json:"trusted_region"`
	HasImages         bool           `json:"has_images"`
	MeanDensity       float64        `json:"mean_density"`
}

// SystemInfo identifies the judicial system that produced the document.
type SystemInfo struct {
	Name       string   `json:"name"`
	Confidence float64  `json:"confidence"`
	Matches    []string `json:"matches,omitempty"`
}

// DocumentLayout is the full survey of a PDF.
type DocumentLayout struct {
	Path      string       `json:"path"`
	PageCount int          `json:"page_count"`
	Pages     []PageLayout `json:"pages"`
	System    SystemInfo   `json:"system"`
}

// NativeRatio returns the share of pages classified NATIVE.
func (d *DocumentLayout) NativeRatio() float64 {
	if len(d.Pages) == 0 {
		return 0
	}
	n := 0
	for _, p := range d.Pages {
		if p.Classification == ClassNative {
			n++
		}
	}
	return float64(n) / float64(len(d.Pages))
}

// BandRatio returns the share of pages with a detected lateral band.
func (d *DocumentLayout) BandRatio() float64 {
	if len(d.Pages) == 0 {
		return 0
	}
	n := 0
	for _, p := range d.Pages {
		if p.Band != nil {
			n++
		}
	}
	return float64(n) / float64(len(d.Pages))
}
