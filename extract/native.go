package extract

import (
	"context"
	"strings"

	"github.com/hazyhaar/lexpdf/pdftext"
)

// NativeEngine extracts text straight from PDF content streams, restricted
// to the page's trusted region so lateral bands never leak into output.
type NativeEngine struct{}

// NewNativeEngine creates the tier-2 content-stream engine.
func NewNativeEngine() *NativeEngine { return &NativeEngine{} }

func (e *NativeEngine) Name() string    { return "native" }
func (e *NativeEngine) Tier() int       { return 2 }
func (e *NativeEngine) Available() bool { return true }

// ExtractPage scans the page's positioned runs and keeps those whose left
// edge falls inside the trusted region.
func (e *NativeEngine) ExtractPage(ctx context.Context, req PageRequest) (PageResult, error) {
	select {
	case <-ctx.Done():
		return PageResult{}, ctx.Err()
	default:
	}
	if req.Doc == nil {
		return PageResult{}, ErrEngineUnavailable
	}

	runs, err := req.Doc.ScanPage(req.PageNr)
	if err != nil {
		return PageResult{}, err
	}

	region := req.Layout.TrustedRegion
	var sb strings.Builder
	lastY := 0.0
	for i, r := range runs {
		if !region.ContainsX(r.X) {
			continue
		}
		if i > 0 && r.Y < lastY-2 {
			sb.WriteByte('\n')
		} else if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(r.Text)
		lastY = r.Y
	}

	text := pdftext.CleanText(sb.String())

	return PageResult{
		Text:       text,
		Confidence: PriorNative * textQuality(text),
		Engine:     e.Name(),
		WordCount:  len(strings.Fields(text)),
	}, nil
}

// textQuality scores extracted text on printability and word shape, 0..1.
// Garbled CIDFont output (PUA runes, single-char tokens) scores low.
func textQuality(text string) float64 {
	if text == "" {
		return 0
	}

	printable, total := 0, 0
	for _, r := range text {
		total++
		if r >= 0xE000 && r <= 0xF8FF {
			continue // private use area
		}
		if r < 0x20 && r != '\n' && r != '\t' {
			continue
		}
		printable++
	}
	printRatio := float64(printable) / float64(total)

	fields := strings.Fields(text)
	if len(fields) == 0 {
		return 0
	}
	wordlike := 0
	for _, f := range fields {
		if len([]rune(f)) >= 2 {
			wordlike++
		}
	}
	wordRatio := float64(wordlike) / float64(len(fields))

	return printRatio * (0.5 + 0.5*wordRatio)
}
