package layout

import "github.com/hazyhaar/lexpdf/pdftext"

// histogram is an X-axis character-density histogram over a page width.
type histogram struct {
	counts   []float64
	binWidth float64
	total    float64
	max      float64
}

// buildHistogram distributes each run's characters over the bins it spans.
func buildHistogram(runs []pdftext.Run, width float64, bins int) *histogram {
	h := &histogram{
		counts:   make([]float64, bins),
		binWidth: width / float64(bins),
	}
	if width <= 0 {
		return h
	}

	for _, r := range runs {
		chars := float64(len([]rune(r.Text)))
		if chars == 0 {
			continue
		}
		x0, x1 := r.X, r.X+r.W
		if r.W <= 0 {
			x1 = x0 + h.binWidth
		}
		b0 := clampBin(int(x0/h.binWidth), bins)
		b1 := clampBin(int(x1/h.binWidth), bins)
		span := float64(b1 - b0 + 1)
		for b := b0; b <= b1; b++ {
			h.counts[b] += chars / span
		}
		h.total += chars
	}

	for _, c := range h.counts {
		if c > h.max {
			h.max = c
		}
	}
	return h
}

func clampBin(b, bins int) int {
	if b < 0 {
		return 0
	}
	if b >= bins {
		return bins - 1
	}
	return b
}

// relDensity returns the density of bin b relative to the densest bin.
func (h *histogram) relDensity(b int) float64 {
	if h.max == 0 {
		return 0
	}
	return h.counts[b] / h.max
}

// meanDensity is the average relative density across all bins.
func (h *histogram) meanDensity() float64 {
	if h.max == 0 || len(h.counts) == 0 {
		return 0
	}
	sum := 0.0
	for b := range h.counts {
		sum += h.relDensity(b)
	}
	return sum / float64(len(h.counts))
}

// massBetween sums character mass over the bin range [b0, b1].
func (h *histogram) massBetween(b0, b1 int) float64 {
	sum := 0.0
	for b := b0; b <= b1 && b < len(h.counts); b++ {
		if b >= 0 {
			sum += h.counts[b]
		}
	}
	return sum
}

// detectBand looks for a lateral band on either side of the page. A band is a
// marginal strip of text separated from the content mass by a near-empty gap
// of at least ContentGapThreshold points, holding at most BandZonePercent of
// the page's characters.
func (a *Analyzer) detectBand(h *histogram) *Band {
	if h.total == 0 {
		return nil
	}
	if b := a.detectSide(h, "right"); b != nil {
		return b
	}
	return a.detectSide(h, "left")
}

func (a *Analyzer) detectSide(h *histogram, side string) *Band {
	bins := len(h.counts)
	zone := int(float64(bins) * a.cfg.GapSearchZone)

	var searchLo, searchHi int
	if side == "right" {
		searchLo, searchHi = bins-zone, bins-1
	} else {
		searchLo, searchHi = 0, zone-1
	}

	gapStart, gapEnd := h.widestGap(searchLo, searchHi, a.cfg.BandDensityThreshold)
	if gapStart < 0 {
		return nil
	}
	gapWidth := float64(gapEnd-gapStart+1) * h.binWidth
	if gapWidth < a.cfg.ContentGapThreshold {
		return nil
	}

	var bandMass float64
	var cutX float64
	if side == "right" {
		bandMass = h.massBetween(gapEnd+1, bins-1)
		cutX = float64(gapEnd+1)*h.binWidth - a.cfg.SafeMargin
	} else {
		bandMass = h.massBetween(0, gapStart-1)
		cutX = float64(gapStart)*h.binWidth + a.cfg.SafeMargin
	}

	if bandMass == 0 {
		return nil
	}
	density := bandMass / h.total
	if density > a.cfg.BandZonePercent {
		// Too much mass beyond the gap: that is a column, not a band.
		return nil
	}

	return &Band{Side: side, CutX: cutX, Density: density}
}

// widestGap finds the longest run of near-empty bins within [lo, hi].
// Returns (-1, -1) when no empty bin exists in the range.
func (h *histogram) widestGap(lo, hi int, threshold float64) (int, int) {
	bestStart, bestEnd := -1, -1
	curStart := -1
	for b := lo; b <= hi && b < len(h.counts); b++ {
		if b < 0 {
			continue
		}
		if h.relDensity(b) < threshold {
			if curStart < 0 {
				curStart = b
			}
			if bestStart < 0 || b-curStart > bestEnd-bestStart {
				bestStart, bestEnd = curStart, b
			}
		} else {
			curStart = -1
		}
	}
	return bestStart, bestEnd
}
