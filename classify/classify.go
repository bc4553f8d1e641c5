// Package classify segments a marked-up legal document into typed sections.
// Every page opens inside exactly one section; sections are contiguous,
// ordered and cover the whole document. A page starts a new section when the
// patterns of one category score high enough inside its opening window.
package classify

import (
	"context"
	"log/slog"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/hazyhaar/lexpdf/extract"
)

// Section is a contiguous run of pages sharing one document type.
type Section struct {
	Type       Category `json:"type"`
	StartPage  int      `json:"start_page"`
	EndPage    int      `json:"end_page"`
	Confidence float64  `json:"confidence"`
	Ambiguous  bool     `json:"ambiguous,omitempty"`
}

// PageDecision records how one page was judged.
type PageDecision struct {
	Page         int      `json:"page"`
	Type         Category `json:"type"`
	Confidence   float64  `json:"confidence"`
	SectionStart bool     `json:"is_section_start"`
}

// Result is the full classification record: the section list plus the
// per-page decisions behind it, stamped with the taxonomy version that
// produced them.
type Result struct {
	TaxonomyVersion string         `json:"taxonomy_version"`
	TotalSections   int            `json:"total_sections"`
	Sections        []Section      `json:"sections"`
	Pages           []PageDecision `json:"pages"`
}

// Classifier produces the classification record from assembled page-marked
// markdown.
type Classifier interface {
	Classify(ctx context.Context, doc string) (*Result, error)
}

// Config tunes the pattern classifier.
type Config struct {
	// StartThreshold: a page whose best score exceeds it opens a section
	// (default: 0.5).
	StartThreshold float64 `yaml:"start_threshold"`

	// MatchFloor stops window widening once reached (default: 0.4).
	MatchFloor float64 `yaml:"match_floor"`

	// WindowMin/WindowMax/WindowStep control the adaptive opening window,
	// in words (defaults: 15 / 50 / 10).
	WindowMin  int `yaml:"window_min"`
	WindowMax  int `yaml:"window_max"`
	WindowStep int `yaml:"window_step"`

	// AmbiguityDelta: two categories within it are considered tied
	// (default: 0.05).
	AmbiguityDelta float64 `yaml:"ambiguity_delta"`

	Logger *slog.Logger `yaml:"-" json:"-"`
}

func (c *Config) defaults() {
	if c.StartThreshold <= 0 {
		c.StartThreshold = 0.5
	}
	if c.MatchFloor <= 0 {
		c.MatchFloor = 0.4
	}
	if c.WindowMin <= 0 {
		c.WindowMin = 15
	}
	if c.WindowMax <= 0 {
		c.WindowMax = 50
	}
	if c.WindowStep <= 0 {
		c.WindowStep = 10
	}
	if c.AmbiguityDelta <= 0 {
		c.AmbiguityDelta = 0.05
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// PatternClassifier is the canonical, offline classifier.
type PatternClassifier struct {
	cfg    Config
	logger *slog.Logger
}

// NewPatternClassifier creates a classifier with the given configuration.
func NewPatternClassifier(cfg Config) *PatternClassifier {
	cfg.defaults()
	return &PatternClassifier{cfg: cfg, logger: cfg.Logger}
}

// pageMatch is the scored opening of one page.
type pageMatch struct {
	pageNr    int
	category  Category
	score     float64
	isStart   bool
	ambiguous bool
}

// Classify parses the page markers out of doc and runs the section state
// machine over the scored pages.
func (c *PatternClassifier) Classify(ctx context.Context, doc string) (*Result, error) {
	blocks := extract.SplitPages(doc)
	if len(blocks) == 0 {
		return &Result{TaxonomyVersion: TaxonomyVersion}, nil
	}

	matches := make([]pageMatch, 0, len(blocks))
	for _, b := range blocks {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		matches = append(matches, c.scorePage(b.PageNr, b.Text))
	}

	sections := c.buildSections(matches)
	return &Result{
		TaxonomyVersion: TaxonomyVersion,
		TotalSections:   len(sections),
		Sections:        sections,
		Pages:           pageDecisions(matches, sections),
	}, nil
}

// scorePage matches the page's opening window against every category,
// widening the window while nothing convincing shows up.
func (c *PatternClassifier) scorePage(pageNr int, text string) pageMatch {
	words := strings.Fields(foldText(text))

	var best, second scored
	for size := c.cfg.WindowMin; ; size += c.cfg.WindowStep {
		window := strings.Join(firstN(words, size), " ")
		best, second = scoreWindow(window)
		if best.score >= c.cfg.MatchFloor || size >= c.cfg.WindowMax || size >= len(words) {
			break
		}
	}

	m := pageMatch{
		pageNr:   pageNr,
		category: best.category,
		score:    best.score,
		isStart:  best.score > c.cfg.StartThreshold,
	}

	if m.isStart && second.category != "" && best.score-second.score < c.cfg.AmbiguityDelta {
		m.ambiguous = true
		// Tie: the higher-priority category wins.
		if priorityOf(second.category) > priorityOf(best.category) {
			m.category = second.category
			m.score = second.score
		}
	}

	return m
}

type scored struct {
	category Category
	score    float64
}

// scoreWindow evaluates all categories against one window. Synonyms add 0.3
// each (capped at 0.6); the first header pattern adds 0.5 and each extra one
// 0.2; a small priority bonus breaks near-ties between related categories.
func scoreWindow(window string) (best, second scored) {
	for _, pp := range piecePatterns {
		s := 0.0

		syn := 0.0
		for _, synonym := range pp.synonyms {
			if strings.Contains(window, synonym) {
				syn += 0.3
			}
		}
		if syn > 0.6 {
			syn = 0.6
		}
		s += syn

		headers := 0
		for _, h := range pp.headers {
			if h.MatchString(window) {
				headers++
			}
		}
		if headers > 0 {
			s += 0.5 + 0.2*float64(headers-1)
		}

		if s > 0 {
			s += float64(pp.priority) * 0.015
		}

		switch {
		case s > best.score:
			second = best
			best = scored{pp.category, s}
		case s > second.score:
			second = scored{pp.category, s}
		}
	}
	return best, second
}

// buildSections runs the state machine: a start page closes the previous
// section and opens its own; everything else extends the open section.
// Leading pages without a start become the cover (or INDETERMINADO).
func (c *PatternClassifier) buildSections(matches []pageMatch) []Section {
	var sections []Section
	var cur *Section

	flush := func(endPage int) {
		if cur != nil {
			cur.EndPage = endPage
			sections = append(sections, *cur)
			cur = nil
		}
	}

	for i, m := range matches {
		if m.isStart {
			// Repeated headers inside the same piece extend the open
			// section instead of splitting it.
			if cur != nil && m.category == cur.Type {
				if capScore(m.score) > cur.Confidence {
					cur.Confidence = capScore(m.score)
				}
				cur.Ambiguous = cur.Ambiguous || m.ambiguous
				continue
			}
			flush(prevPage(matches, i))
			cur = &Section{
				Type:       m.category,
				StartPage:  m.pageNr,
				Confidence: capScore(m.score),
				Ambiguous:  m.ambiguous,
			}
			continue
		}

		if cur == nil {
			// Leading unmatched pages: cover sheet when it looks like one,
			// otherwise indeterminate.
			typ := CatIndeterminado
			conf := 0.0
			if m.category == CatCapaProcesso && m.score > 0 {
				typ = CatCapaProcesso
				conf = capScore(m.score)
			}
			cur = &Section{Type: typ, StartPage: m.pageNr, Confidence: conf}
			continue
		}

		// Continuation page: a section's confidence is the MAX over its
		// pages that matched the section's own type.
		if m.category == cur.Type && capScore(m.score) > cur.Confidence {
			cur.Confidence = capScore(m.score)
		}
	}

	if len(matches) > 0 {
		flush(matches[len(matches)-1].pageNr)
	}
	return sections
}

// pageDecisions flattens the matches onto the final sections: each page gets
// the type of the section it landed in, its own score when it agreed with
// that type, and the start flag for the section's first page.
func pageDecisions(matches []pageMatch, sections []Section) []PageDecision {
	out := make([]PageDecision, 0, len(matches))
	for _, m := range matches {
		sec := sectionFor(sections, m.pageNr)
		d := PageDecision{Page: m.pageNr}
		if sec != nil {
			d.Type = sec.Type
			d.SectionStart = m.pageNr == sec.StartPage
			if m.category == sec.Type {
				d.Confidence = capScore(m.score)
			}
		}
		out = append(out, d)
	}
	return out
}

func sectionFor(sections []Section, pageNr int) *Section {
	for i := range sections {
		if pageNr >= sections[i].StartPage && pageNr <= sections[i].EndPage {
			return &sections[i]
		}
	}
	return nil
}

func prevPage(matches []pageMatch, i int) int {
	if i == 0 {
		return matches[0].pageNr
	}
	return matches[i-1].pageNr
}

func capScore(s float64) float64 {
	if s > 1 {
		return 1
	}
	return s
}

func priorityOf(cat Category) int {
	for _, pp := range piecePatterns {
		if pp.category == cat {
			return pp.priority
		}
	}
	return 0
}

func firstN(words []string, n int) []string {
	if n > len(words) {
		return words
	}
	return words[:n]
}

var foldTransform = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// foldText lowercases and strips accents; the taxonomy is accent-free.
func foldText(text string) string {
	folded, _, err := transform.String(foldTransform, strings.ToLower(text))
	if err != nil {
		return strings.ToLower(text)
	}
	return folded
}
