package extract

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// OCREngine runs tesseract over sanitized page images. Confidence comes from
// word-level recognition scores, not from a fixed prior alone.
type OCREngine struct {
	enabled   bool
	languages []string
}

// NewOCREngine creates the tier-3 engine. When disabled it reports itself
// unavailable instead of failing at extraction time.
func NewOCREngine(enabled bool, languages []string) *OCREngine {
	if len(languages) == 0 {
		languages = []string{"por"}
	}
	return &OCREngine{enabled: enabled, languages: languages}
}

func (e *OCREngine) Name() string    { return "ocr" }
func (e *OCREngine) Tier() int       { return 3 }
func (e *OCREngine) Available() bool { return e.enabled }

// ExtractPage encodes the sanitized image and hands it to tesseract.
func (e *OCREngine) ExtractPage(ctx context.Context, req PageRequest) (PageResult, error) {
	if !e.enabled {
		return PageResult{}, ErrEngineUnavailable
	}
	if req.Image == nil {
		return PageResult{}, fmt.Errorf("ocr page %d: no sanitized image", req.PageNr)
	}
	select {
	case <-ctx.Done():
		return PageResult{}, ctx.Err()
	default:
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, req.Image); err != nil {
		return PageResult{}, fmt.Errorf("ocr page %d: encode: %w", req.PageNr, err)
	}

	langs := req.Languages
	if len(langs) == 0 {
		langs = e.languages
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
		return PageResult{}, fmt.Errorf("ocr page %d: set image: %w", req.PageNr, err)
	}
	if err := client.SetLanguage(langs...); err != nil {
		return PageResult{}, fmt.Errorf("ocr page %d: set language: %w", req.PageNr, err)
	}
	if req.DPI > 0 {
		if err := client.SetVariable(gosseract.SettableVariable("user_defined_dpi"), fmt.Sprint(req.DPI)); err != nil {
			return PageResult{}, fmt.Errorf("ocr page %d: set dpi: %w", req.PageNr, err)
		}
	}

	text, err := client.Text()
	if err != nil {
		return PageResult{}, fmt.Errorf("ocr page %d: %w", req.PageNr, err)
	}
	text = strings.TrimSpace(text)

	conf := wordConfidence(client)

	return PageResult{
		Text:       text,
		Confidence: PriorOCR * conf,
		Engine:     e.Name(),
		WordCount:  len(strings.Fields(text)),
	}, nil
}

// wordConfidence averages tesseract's per-word recognition scores into 0..1.
func wordConfidence(client *gosseract.Client) float64 {
	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil || len(boxes) == 0 {
		return 0
	}
	var sum float64
	for _, b := range boxes {
		sum += b.Confidence / 100.0
	}
	return sum / float64(len(boxes))
}
