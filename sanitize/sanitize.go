// Package sanitize prepares scanned page images for OCR: grayscale
// conversion, watermark suppression, adaptive binarization and conditional
// despeckling. Stages that would not improve a page are skipped, and skipped
// stages leave the pixel data untouched.
package sanitize

import (
	"image"
	"image/color"
	"log/slog"
)

// Stage names recorded in Result.AppliedStages.
const (
	StageGrayscale = "grayscale"
	StageWatermark = "watermark_suppression"
	StageThreshold = "adaptive_threshold"
	StageDespeckle = "despeckle"
)

// Config tunes the sanitizer.
type Config struct {
	// RenderDPI is the target resolution for raster pages (default: 300).
	RenderDPI int `yaml:"render_dpi"`

	// WatermarkThreshold: gray values above it are pushed to white
	// (default: 200).
	WatermarkThreshold int `yaml:"watermark_threshold"`

	// AdaptiveBlock is the mean-threshold window size, odd (default: 31).
	AdaptiveBlock int `yaml:"adaptive_block"`

	// AdaptiveC is subtracted from the local mean (default: 15).
	AdaptiveC int `yaml:"adaptive_c"`

	// SpeckleRatioThreshold triggers despeckling when the estimated speckle
	// ratio exceeds it (default: 0.02).
	SpeckleRatioThreshold float64 `yaml:"speckle_ratio_threshold"`

	Logger *slog.Logger `yaml:"-" json:"-"`
}

func (c *Config) defaults() {
	if c.RenderDPI <= 0 {
		c.RenderDPI = 300
	}
	if c.WatermarkThreshold <= 0 {
		c.WatermarkThreshold = 200
	}
	if c.AdaptiveBlock <= 0 {
		c.AdaptiveBlock = 31
	}
	if c.AdaptiveBlock%2 == 0 {
		c.AdaptiveBlock++
	}
	if c.AdaptiveC <= 0 {
		c.AdaptiveC = 15
	}
	if c.SpeckleRatioThreshold <= 0 {
		c.SpeckleRatioThreshold = 0.02
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Sanitizer runs the cleaning stages.
type Sanitizer struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a Sanitizer with the given configuration.
func New(cfg Config) *Sanitizer {
	cfg.defaults()
	return &Sanitizer{cfg: cfg, logger: cfg.Logger}
}

// Result is a sanitized page image plus the audit trail of applied stages.
type Result struct {
	Image         *image.Gray
	AppliedStages []string
	DigitalBorn   bool
	SpeckleRatio  float64
}

// Sanitize cleans one page image. Digital-born pages (histogram mass
// concentrated at the extremes) only get grayscale conversion; scans go
// through the full chain.
func (s *Sanitizer) Sanitize(img image.Image) *Result {
	res := &Result{}

	gray := toGray(img)
	res.Image = gray
	res.AppliedStages = append(res.AppliedStages, StageGrayscale)

	if isDigitalBorn(gray) {
		res.DigitalBorn = true
		s.logger.Debug("digital-born page, skipping scan cleanup")
		return res
	}

	suppressWatermark(gray, uint8(s.cfg.WatermarkThreshold))
	res.AppliedStages = append(res.AppliedStages, StageWatermark)

	res.Image = adaptiveThreshold(gray, s.cfg.AdaptiveBlock, s.cfg.AdaptiveC)
	res.AppliedStages = append(res.AppliedStages, StageThreshold)

	res.SpeckleRatio = estimateSpeckleRatio(res.Image)
	if res.SpeckleRatio > s.cfg.SpeckleRatioThreshold {
		res.Image = medianDespeckle(res.Image)
		res.AppliedStages = append(res.AppliedStages, StageDespeckle)
	}

	return res
}

// toGray converts any image to 8-bit grayscale. Already-gray images are
// copied so stages never mutate caller data.
func toGray(img image.Image) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	if g, ok := img.(*image.Gray); ok {
		copy(out.Pix, g.Pix)
		return out
	}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out.Set(x-b.Min.X, y-b.Min.Y, color.GrayModel.Convert(img.At(x, y)))
		}
	}
	return out
}

// isDigitalBorn checks the gray histogram: more than 80% of pixels at the
// extremes and less than 20% in the midtones means the page was never a
// physical scan.
func isDigitalBorn(g *image.Gray) bool {
	var hist [256]int
	for _, p := range g.Pix {
		hist[p]++
	}
	total := len(g.Pix)
	if total == 0 {
		return true
	}

	extreme, mid := 0, 0
	for v, n := range hist {
		switch {
		case v < 16 || v > 239:
			extreme += n
		case v >= 64 && v < 192:
			mid += n
		}
	}
	return float64(extreme)/float64(total) > 0.8 && float64(mid)/float64(total) < 0.2
}

// suppressWatermark pushes light-gray pixels (translucent stamps, draft
// watermarks) to pure white, in place.
func suppressWatermark(g *image.Gray, threshold uint8) {
	for i, p := range g.Pix {
		if p > threshold && p < 255 {
			g.Pix[i] = 255
		}
	}
}

// adaptiveThreshold binarizes with a local mean over block×block windows
// minus C, computed via an integral image.
func adaptiveThreshold(g *image.Gray, block, c int) *image.Gray {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	if w == 0 || h == 0 {
		return out
	}

	// integral[y][x] = sum of pixels in [0,x) × [0,y)
	integral := make([]uint64, (w+1)*(h+1))
	stride := w + 1
	for y := 0; y < h; y++ {
		var rowSum uint64
		for x := 0; x < w; x++ {
			rowSum += uint64(g.Pix[y*g.Stride+x])
			integral[(y+1)*stride+x+1] = integral[y*stride+x+1] + rowSum
		}
	}

	half := block / 2
	for y := 0; y < h; y++ {
		y0, y1 := max(0, y-half), min(h-1, y+half)
		for x := 0; x < w; x++ {
			x0, x1 := max(0, x-half), min(w-1, x+half)
			area := uint64((x1 - x0 + 1) * (y1 - y0 + 1))
			sum := integral[(y1+1)*stride+x1+1] - integral[y0*stride+x1+1] -
				integral[(y1+1)*stride+x0] + integral[y0*stride+x0]
			mean := int(sum / area)
			if int(g.Pix[y*g.Stride+x]) > mean-c {
				out.Pix[y*out.Stride+x] = 255
			}
		}
	}
	return out
}

// estimateSpeckleRatio measures salt-and-pepper noise on a binarized page:
// the share of dark pixels fully surrounded by white. Pages without a
// meaningful white area (under 30%) are not scans of text and score zero.
func estimateSpeckleRatio(g *image.Gray) float64 {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	if w < 3 || h < 3 {
		return 0
	}

	white := 0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if g.Pix[y*g.Stride+x] > 200 {
				white++
			}
		}
	}
	total := w * h
	if float64(white)/float64(total) < 0.3 {
		return 0
	}

	specks := 0
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			if g.Pix[y*g.Stride+x] >= 150 {
				continue
			}
			isolated := true
			for dy := -1; dy <= 1 && isolated; dy++ {
				for dx := -1; dx <= 1; dx++ {
					if dx == 0 && dy == 0 {
						continue
					}
					if g.Pix[(y+dy)*g.Stride+x+dx] <= 200 {
						isolated = false
						break
					}
				}
			}
			if isolated {
				specks++
			}
		}
	}
	return float64(specks) / float64(white)
}

// medianDespeckle applies a 3×3 median filter.
func medianDespeckle(g *image.Gray) *image.Gray {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	copy(out.Pix, g.Pix)

	var window [9]uint8
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			i := 0
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					window[i] = g.Pix[(y+dy)*g.Stride+x+dx]
					i++
				}
			}
			out.Pix[y*out.Stride+x] = median9(window)
		}
	}
	return out
}

// median9 returns the median of 9 values by insertion sort.
func median9(v [9]uint8) uint8 {
	for i := 1; i < 9; i++ {
		for j := i; j > 0 && v[j] < v[j-1]; j-- {
			v[j], v[j-1] = v[j-1], v[j]
		}
	}
	return v[4]
}
