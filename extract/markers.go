package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Page type labels inside markers.
const (
	PageTypeNative = "NATIVE"
	PageTypeOCR    = "OCR"
)

// Marker renders the heading that delimits a page in assembled markdown:
//
//	## [[PAGE_003]] [TYPE: NATIVE]
//
// Downstream stages rely on the exact shape; it must survive every transform.
func Marker(pageNr int, pageType string) string {
	return fmt.Sprintf("## [[PAGE_%03d]] [TYPE: %s]", pageNr, pageType)
}

// PageBlock is one page parsed back out of assembled markdown.
type PageBlock struct {
	PageNr int
	Type   string
	Text   string
}

var markerRe = regexp.MustCompile(`(?m)^## \[\[PAGE_(\d{3,})\]\] \[TYPE: (NATIVE|OCR)\]\s*$`)

// Assemble joins per-page results into a single marked-up document.
func Assemble(results []PageResult, layoutTypes []string) string {
	var sb strings.Builder
	for i, r := range results {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		pageType := PageTypeNative
		if i < len(layoutTypes) {
			pageType = layoutTypes[i]
		}
		sb.WriteString(Marker(i+1, pageType))
		sb.WriteString("\n\n")
		sb.WriteString(r.Text)
	}
	return sb.String()
}

// SplitPages parses assembled markdown back into page blocks. Text before
// the first marker is ignored; a document without markers yields nil.
func SplitPages(doc string) []PageBlock {
	locs := markerRe.FindAllStringSubmatchIndex(doc, -1)
	if len(locs) == 0 {
		return nil
	}

	blocks := make([]PageBlock, 0, len(locs))
	for i, loc := range locs {
		nr, _ := strconv.Atoi(doc[loc[2]:loc[3]])
		end := len(doc)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		blocks = append(blocks, PageBlock{
			PageNr: nr,
			Type:   doc[loc[4]:loc[5]],
			Text:   strings.TrimSpace(doc[loc[1]:end]),
		})
	}
	return blocks
}
