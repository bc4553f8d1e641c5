package sanitize

import (
	"bytes"
	"image"
	"testing"
)

// scanPage builds a synthetic gray scan: light-gray paper, dark text strokes,
// optional mid-gray watermark block and isolated specks.
func scanPage(w, h int) *image.Gray {
	g := image.NewGray(image.Rect(0, 0, w, h))
	for i := range g.Pix {
		g.Pix[i] = 230 // paper, slightly dirty
	}
	// Horizontal "text lines" every 10 rows.
	for y := 5; y < h; y += 10 {
		for x := 2; x < w-2; x++ {
			g.Pix[y*g.Stride+x] = 20
		}
	}
	return g
}

func addSpecks(g *image.Gray, n int) {
	w := g.Rect.Dx()
	step := (w*g.Rect.Dy() - 1) / (n + 1)
	for i := 1; i <= n; i++ {
		idx := i * step
		y, x := idx/w, idx%w
		if y < 1 || y >= g.Rect.Dy()-1 || x < 1 || x >= w-1 {
			continue
		}
		if g.Pix[y*g.Stride+x] > 200 && surroundedByWhite(g, x, y) {
			g.Pix[y*g.Stride+x] = 10
		}
	}
}

func surroundedByWhite(g *image.Gray, x, y int) bool {
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			if g.Pix[(y+dy)*g.Stride+x+dx] <= 200 {
				return false
			}
		}
	}
	return true
}

func TestSanitize_DigitalBornSkipsCleanup(t *testing.T) {
	// WHAT: A page that is already pure black/white only gets grayscale.
	// WHY: Re-thresholding a digital-born page can only destroy glyphs.
	g := image.NewGray(image.Rect(0, 0, 100, 100))
	for i := range g.Pix {
		g.Pix[i] = 255
	}
	for x := 10; x < 90; x++ {
		g.Pix[50*g.Stride+x] = 0
	}

	s := New(Config{})
	res := s.Sanitize(g)

	if !res.DigitalBorn {
		t.Fatal("expected digital-born detection")
	}
	if len(res.AppliedStages) != 1 || res.AppliedStages[0] != StageGrayscale {
		t.Errorf("stages = %v, want [grayscale]", res.AppliedStages)
	}
	if !bytes.Equal(res.Image.Pix, g.Pix) {
		t.Error("skipped stages must leave pixels byte-identical")
	}
}

func TestSanitize_ScanGetsFullChain(t *testing.T) {
	// WHAT: A dirty scan goes through watermark suppression and threshold.
	// WHY: OCR quality depends on binarized, de-watermarked input.
	s := New(Config{})
	res := s.Sanitize(scanPage(120, 120))

	want := []string{StageGrayscale, StageWatermark, StageThreshold}
	if len(res.AppliedStages) < 3 {
		t.Fatalf("stages = %v, want at least %v", res.AppliedStages, want)
	}
	for i, st := range want {
		if res.AppliedStages[i] != st {
			t.Errorf("stage[%d] = %s, want %s", i, res.AppliedStages[i], st)
		}
	}

	// Output must be binary.
	for _, p := range res.Image.Pix {
		if p != 0 && p != 255 {
			t.Fatalf("non-binary pixel %d after threshold", p)
		}
	}
}

func TestSanitize_DespeckleSkippedOnCleanScan(t *testing.T) {
	// WHAT: A scan without isolated specks skips the median filter and the
	// thresholded pixels come through byte-identical.
	// WHY: Despeckling erodes thin glyph strokes; it must be earned.
	s := New(Config{})
	clean := scanPage(120, 120)
	res := s.Sanitize(clean)

	for _, st := range res.AppliedStages {
		if st == StageDespeckle {
			t.Fatalf("despeckle applied on clean scan (ratio %f)", res.SpeckleRatio)
		}
	}

	// The result must equal a direct threshold of the suppressed image.
	gray := toGray(clean)
	suppressWatermark(gray, 200)
	want := adaptiveThreshold(gray, 31, 15)
	if !bytes.Equal(res.Image.Pix, want.Pix) {
		t.Error("skipping despeckle must not alter pixels")
	}
}

func TestSanitize_DespeckleAppliedOnNoisyScan(t *testing.T) {
	// WHAT: Salt-and-pepper noise above the ratio threshold triggers the
	// median filter, which removes isolated specks.
	// WHY: Specks read as punctuation to OCR engines.
	s := New(Config{})
	noisy := scanPage(120, 120)
	addSpecks(noisy, 600)
	res := s.Sanitize(noisy)

	applied := false
	for _, st := range res.AppliedStages {
		if st == StageDespeckle {
			applied = true
		}
	}
	if !applied {
		t.Fatalf("despeckle not applied, speckle ratio %f", res.SpeckleRatio)
	}

	if r := estimateSpeckleRatio(res.Image); r >= res.SpeckleRatio {
		t.Errorf("speckle ratio %f not reduced (was %f)", r, res.SpeckleRatio)
	}
}

func TestSuppressWatermark(t *testing.T) {
	// WHAT: Light grays go white, text and paper extremes stay put.
	// WHY: Translucent stamps sit in the 200..254 range.
	g := image.NewGray(image.Rect(0, 0, 3, 1))
	g.Pix[0], g.Pix[1], g.Pix[2] = 20, 220, 255
	suppressWatermark(g, 200)
	if g.Pix[0] != 20 {
		t.Errorf("text pixel changed: %d", g.Pix[0])
	}
	if g.Pix[1] != 255 {
		t.Errorf("watermark pixel = %d, want 255", g.Pix[1])
	}
	if g.Pix[2] != 255 {
		t.Errorf("white pixel changed: %d", g.Pix[2])
	}
}

func TestMedian9(t *testing.T) {
	// WHAT: median9 returns the middle value.
	// WHY: The despeckle filter is only as good as its median.
	v := [9]uint8{255, 0, 255, 255, 255, 255, 255, 255, 255}
	if m := median9(v); m != 255 {
		t.Errorf("median = %d, want 255", m)
	}
	v = [9]uint8{0, 0, 0, 0, 0, 255, 255, 255, 255}
	if m := median9(v); m != 0 {
		t.Errorf("median = %d, want 0", m)
	}
}

func TestRescaleToDPI_NoUpscaleNeeded(t *testing.T) {
	// WHAT: Images at or above the target DPI pass through unchanged.
	// WHY: Upscaling an already-sharp scan wastes memory and blurs.
	img := image.NewGray(image.Rect(0, 0, 2550, 3300)) // 300 DPI letter
	out := rescaleToDPI(img, 612, 300)
	if out != image.Image(img) {
		t.Error("expected identity for image already at target DPI")
	}
}

func TestRescaleToDPI_Upscales(t *testing.T) {
	// WHAT: A 150 DPI image is doubled to reach 300 DPI.
	// WHY: OCR accuracy drops sharply below ~250 DPI.
	img := image.NewGray(image.Rect(0, 0, 1275, 1650))
	out := rescaleToDPI(img, 612, 300)
	if out.Bounds().Dx() != 2550 {
		t.Errorf("width = %d, want 2550", out.Bounds().Dx())
	}
}
