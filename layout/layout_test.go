package layout

import (
	"testing"

	"github.com/hazyhaar/lexpdf/pdftext"
)

// uniformRuns spreads n chars evenly over [x0, x1) at the given y.
func uniformRuns(x0, x1 float64, n int) []pdftext.Run {
	var runs []pdftext.Run
	step := (x1 - x0) / float64(n)
	for i := 0; i < n; i++ {
		runs = append(runs, pdftext.Run{X: x0 + float64(i)*step, W: step, Y: 400, Text: "a"})
	}
	return runs
}

func TestSurveyPage_NativeClassification(t *testing.T) {
	// WHAT: A page with plenty of positioned chars is NATIVE.
	// WHY: Classification drives the whole extraction path.
	a := NewAnalyzer(Config{})
	pl := a.surveyPage(1, 612, 792, uniformRuns(50, 550, 500), false)
	if pl.Classification != ClassNative {
		t.Errorf("classification = %s, want %s", pl.Classification, ClassNative)
	}
	if pl.Complexity != NativeClean {
		t.Errorf("complexity = %s, want %s", pl.Complexity, NativeClean)
	}
	if pl.RecommendedEngine != "native" {
		t.Errorf("engine = %s, want native", pl.RecommendedEngine)
	}
}

func TestSurveyPage_RasterClassification(t *testing.T) {
	// WHAT: Fewer than 50 positioned chars means RASTER_NEEDED.
	// WHY: Scanned pages carry no usable text layer.
	a := NewAnalyzer(Config{})
	pl := a.surveyPage(1, 612, 792, uniformRuns(50, 550, 10), true)
	if pl.Classification != ClassRasterNeeded {
		t.Errorf("classification = %s, want %s", pl.Classification, ClassRasterNeeded)
	}
	if pl.Complexity != RasterDirty {
		t.Errorf("complexity = %s, want %s (residual chars over scan)", pl.Complexity, RasterDirty)
	}
}

func TestSurveyPage_RasterDegraded(t *testing.T) {
	// WHAT: No chars and no image streams means a degraded raster page.
	// WHY: Nothing to render; only the ML engine has a chance.
	a := NewAnalyzer(Config{})
	pl := a.surveyPage(1, 612, 792, nil, false)
	if pl.Complexity != RasterDegraded {
		t.Errorf("complexity = %s, want %s", pl.Complexity, RasterDegraded)
	}
	if pl.RecommendedEngine != "ml" {
		t.Errorf("engine = %s, want ml", pl.RecommendedEngine)
	}
}

func TestDetectBand_RightBand(t *testing.T) {
	// WHAT: A narrow strip of chars at the right margin, separated from the
	// content mass by a wide gap, is detected as a band and excluded from the
	// trusted region.
	// WHY: Lateral signature stamps must never reach extraction.
	a := NewAnalyzer(Config{})

	runs := uniformRuns(40, 480, 600)                    // content: 6.5%..78% of 612pt
	runs = append(runs, uniformRuns(540, 600, 60)...)    // band: 88%..98%

	pl := a.surveyPage(1, 612, 792, runs, false)
	if pl.Band == nil {
		t.Fatal("expected a band, got none")
	}
	if pl.Band.Side != "right" {
		t.Errorf("band side = %s, want right", pl.Band.Side)
	}
	if pl.TrustedRegion.X1 >= 540 {
		t.Errorf("trusted region X1 = %f, want < 540 (band start)", pl.TrustedRegion.X1)
	}
	if pl.TrustedRegion.X1 <= 480 {
		t.Errorf("trusted region X1 = %f, want > 480 (content end)", pl.TrustedRegion.X1)
	}
	if !pl.TrustedRegion.ContainsX(300) {
		t.Error("content X must stay inside the trusted region")
	}
	if pl.TrustedRegion.ContainsX(560) {
		t.Error("band X must be outside the trusted region")
	}
}

func TestDetectBand_NoBandOnUniformPage(t *testing.T) {
	// WHAT: A page with evenly spread text has no band.
	// WHY: False positives would silently drop real content.
	a := NewAnalyzer(Config{})
	pl := a.surveyPage(1, 612, 792, uniformRuns(40, 580, 800), false)
	if pl.Band != nil {
		t.Errorf("unexpected band: %+v", pl.Band)
	}
	if pl.TrustedRegion.X1 != 612 {
		t.Errorf("trusted region X1 = %f, want full width", pl.TrustedRegion.X1)
	}
}

func TestDetectBand_WideColumnIsNotBand(t *testing.T) {
	// WHAT: A second mass holding a large share of the chars is a column.
	// WHY: Two-column layouts must not be truncated.
	a := NewAnalyzer(Config{})
	runs := uniformRuns(40, 280, 400)
	runs = append(runs, uniformRuns(330, 580, 400)...)
	pl := a.surveyPage(1, 612, 792, runs, false)
	if pl.Band != nil {
		t.Errorf("column misdetected as band: %+v", pl.Band)
	}
}

func TestDetectSystem_PJE(t *testing.T) {
	// WHAT: PJE fingerprints yield the PJE system with high confidence.
	// WHY: System attribution feeds the context-store signature.
	text := "Processo Judicial Eletrônico - PJe. Documento assinado eletronicamente " +
		"na forma da Lei nº 11.419/2006. Tribunal Regional do Trabalho da 2ª Região."
	sys := DetectSystem(text)
	if sys.Name != "PJE" {
		t.Fatalf("system = %s, want PJE", sys.Name)
	}
	if sys.Confidence < 90 {
		t.Errorf("confidence = %f, want >= 90 for a full fingerprint hit", sys.Confidence)
	}
}

func TestDetectSystem_ICPFallback(t *testing.T) {
	// WHAT: Only ICP-Brasil signature markers fall back to GENERIC at 50.
	// WHY: A signed document from an unknown portal still deserves a bucket.
	text := "Documento assinado com certificado digital emitido no âmbito da ICP-Brasil. " +
		"A autenticidade deste documento pode ser conferida no portal do tribunal de origem."
	sys := DetectSystem(text)
	if sys.Name != "GENERIC" {
		t.Fatalf("system = %s, want GENERIC", sys.Name)
	}
	if sys.Confidence != 50 {
		t.Errorf("confidence = %f, want 50", sys.Confidence)
	}
}

func TestDetectSystem_TooShort(t *testing.T) {
	// WHAT: Less than 100 chars of text yields UNKNOWN.
	// WHY: Attribution on a near-empty cover page is noise.
	sys := DetectSystem("PJe")
	if sys.Name != "UNKNOWN" {
		t.Errorf("system = %s, want UNKNOWN", sys.Name)
	}
}
