// Package pdftext reads PDF content streams and yields positioned text runs.
//
// It tracks the text matrix operators (Tm, Td, TD, T*) and the current font
// size (Tf) so that every show-text operator (Tj, TJ, ') can be attributed an
// approximate X/Y position in page coordinates. Glyph advance is estimated at
// half the font size, which is accurate enough for density histograms and
// lateral-band filtering; it is not a typesetting engine.
package pdftext

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// Document wraps an open, validated PDF.
type Document struct {
	ctx   *model.Context
	dims  []types.Dim
	mtime int64
}

// Open reads and validates a PDF file.
func Open(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	conf := model.NewDefaultConfiguration()
	ctx, err := api.ReadValidateAndOptimize(f, conf)
	if err != nil {
		return nil, fmt.Errorf("pdfcpu read %s: %w", path, err)
	}

	dims, err := ctx.PageDims()
	if err != nil {
		return nil, fmt.Errorf("page dims %s: %w", path, err)
	}

	return &Document{ctx: ctx, dims: dims}, nil
}

// PageCount returns the number of pages.
func (d *Document) PageCount() int { return d.ctx.PageCount }

// PageSize returns the width and height of a page in points (1-based).
func (d *Document) PageSize(pageNr int) (w, h float64) {
	if pageNr < 1 || pageNr > len(d.dims) {
		return 595, 842 // A4 fallback
	}
	dim := d.dims[pageNr-1]
	return dim.Width, dim.Height
}

// Context exposes the underlying pdfcpu context for image extraction.
func (d *Document) Context() *model.Context { return d.ctx }

// HasImages reports whether page pageNr references image XObjects.
func (d *Document) HasImages(pageNr int) bool {
	if d.ctx.Optimize != nil {
		return len(pdfcpu.ImageObjNrs(d.ctx, pageNr)) > 0
	}
	for _, entry := range d.ctx.Table {
		if entry == nil || entry.Free || entry.Compressed {
			continue
		}
		sd, ok := entry.Object.(types.StreamDict)
		if !ok {
			continue
		}
		if subtype, found := sd.Find("Subtype"); found {
			if name, isName := subtype.(types.Name); isName && name == "Image" {
				return true
			}
		}
	}
	return false
}

// Run is a positioned fragment of text from a content stream.
type Run struct {
	X    float64 // left edge, page points
	Y    float64
	W    float64 // estimated width in points
	Text string
}

// CharCount sums the rune count of a slice of runs.
func CharCount(runs []Run) int {
	n := 0
	for _, r := range runs {
		n += len([]rune(r.Text))
	}
	return n
}

// ScanPage parses the content stream of a page into positioned text runs.
// Pages without a content stream yield an empty slice, not an error.
func (d *Document) ScanPage(pageNr int) ([]Run, error) {
	r, err := pdfcpu.ExtractPageContent(d.ctx, pageNr)
	if err != nil {
		return nil, fmt.Errorf("page %d content: %w", pageNr, err)
	}
	if r == nil {
		return nil, nil
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("page %d read: %w", pageNr, err)
	}
	return scanStream(data), nil
}

var pdfStringRe = regexp.MustCompile(`\(((?:[^()\\]|\\.)*)\)`)

// scanStream walks content stream operators, tracking an approximate text
// cursor. Only the operators that move the cursor or show text matter here.
func scanStream(data []byte) []Run {
	var runs []Run
	var curX, curY, lineX float64
	fontSize := 10.0

	emit := func(text string) {
		if text == "" {
			return
		}
		w := float64(len([]rune(text))) * fontSize * 0.5
		runs = append(runs, Run{X: curX, Y: curY, W: w, Text: text})
		curX += w
	}

	for _, line := range bytes.Split(data, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		switch {
		case bytes.HasSuffix(line, []byte("Tm")):
			// a b c d e f Tm: e,f are the new text origin.
			if vals, ok := trailingFloats(line, 6, 2); ok {
				curX, curY = vals[4], vals[5]
				lineX = curX
			}

		case bytes.HasSuffix(line, []byte("TD")), bytes.HasSuffix(line, []byte("Td")):
			if vals, ok := trailingFloats(line, 2, 2); ok {
				lineX += vals[0]
				curX = lineX
				curY += vals[1]
			}

		case bytes.Equal(line, []byte("T*")):
			curX = lineX
			curY -= fontSize * 1.2

		case bytes.HasSuffix(line, []byte("Tf")):
			if vals, ok := trailingFloats(line, 1, 2); ok && vals[0] > 0 {
				fontSize = vals[0]
			}

		case bytes.HasSuffix(line, []byte("Tj")), bytes.HasSuffix(line, []byte("TJ")):
			for _, m := range pdfStringRe.FindAllSubmatch(line, -1) {
				emit(DecodeString(m[1]))
			}

		case bytes.HasSuffix(line, []byte("'")) && bytes.Contains(line, []byte("(")):
			curX = lineX
			curY -= fontSize * 1.2
			for _, m := range pdfStringRe.FindAllSubmatch(line, -1) {
				emit(DecodeString(m[1]))
			}
		}
	}

	return runs
}

// trailingFloats parses n floats immediately preceding an operator suffix of
// opLen bytes. Returns false when the line does not carry enough operands.
func trailingFloats(line []byte, n, opLen int) ([]float64, bool) {
	fields := strings.Fields(string(line[:len(line)-opLen]))
	if len(fields) < n {
		return nil, false
	}
	vals := make([]float64, n)
	for i := 0; i < n; i++ {
		v, err := strconv.ParseFloat(fields[len(fields)-n+i], 64)
		if err != nil {
			return nil, false
		}
		vals[i] = v
	}
	return vals, true
}

// DecodeString handles basic PDF string escape sequences.
func DecodeString(raw []byte) string {
	var sb strings.Builder
	for i := 0; i < len(raw); i++ {
		if raw[i] == '\\' && i+1 < len(raw) {
			i++
			switch raw[i] {
			case 'n':
				sb.WriteByte('\n')
			case 'r':
				sb.WriteByte('\r')
			case 't':
				sb.WriteByte('\t')
			case '\\', '(', ')':
				sb.WriteByte(raw[i])
			default:
				if raw[i] >= '0' && raw[i] <= '7' {
					val := int(raw[i] - '0')
					for j := 0; j < 2 && i+1 < len(raw) && raw[i+1] >= '0' && raw[i+1] <= '7'; j++ {
						i++
						val = val*8 + int(raw[i]-'0')
					}
					sb.WriteByte(byte(val))
				} else {
					sb.WriteByte(raw[i])
				}
			}
		} else {
			sb.WriteByte(raw[i])
		}
	}
	return sb.String()
}

// CleanText normalises whitespace and strips non-printable runes, undoing
// end-of-line hyphenation on the way.
func CleanText(text string) string {
	text = strings.ReplaceAll(text, "-\n", "")
	var sb strings.Builder
	prevSpace := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			if !prevSpace && sb.Len() > 0 {
				sb.WriteByte(' ')
				prevSpace = true
			}
		} else if unicode.IsPrint(r) {
			sb.WriteRune(r)
			prevSpace = false
		}
	}
	return strings.TrimSpace(sb.String())
}
