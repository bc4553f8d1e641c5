package layout

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// fingerprint groups the textual markers of one judicial system. Patterns
// match against lowercased, accent-folded text.
type fingerprint struct {
	name     string
	priority int
	patterns []*regexp.Regexp
}

var fingerprints = []fingerprint{
	{
		name:     "PJE",
		priority: 1,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`processo judicial eletronico`),
			regexp.MustCompile(`\bpje\b`),
			regexp.MustCompile(`lei\s+(?:n[ºo.]?\s*)?11\.?419`),
			regexp.MustCompile(`assinado eletronicamente`),
		},
	},
	{
		name:     "ESAJ",
		priority: 1,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`\besaj\b`),
			regexp.MustCompile(`peticionamento eletronico`),
			regexp.MustCompile(`tribunal de justica do estado`),
		},
	},
	{
		name:     "EPROC",
		priority: 2,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`\beproc\b`),
			regexp.MustCompile(`\bevento\s+\d+`),
		},
	},
	{
		name:     "PROJUDI",
		priority: 2,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`\bprojudi\b`),
		},
	},
	{
		name:     "STF",
		priority: 1,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`supremo tribunal federal`),
			regexp.MustCompile(`\bstf\b`),
		},
	},
	{
		name:     "STJ",
		priority: 1,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`superior tribunal de justica`),
			regexp.MustCompile(`\bstj\b`),
		},
	},
}

// icpMarkers indicate a digitally signed document from an unrecognized
// system: enough for a GENERIC fallback, not for attribution.
var icpMarkers = []*regexp.Regexp{
	regexp.MustCompile(`icp-brasil`),
	regexp.MustCompile(`certificado digital`),
	regexp.MustCompile(`autenticidade`),
	regexp.MustCompile(`conferencia do documento`),
}

// minDetectionChars is the minimum amount of native text required before
// attempting attribution.
const minDetectionChars = 100

// DetectSystem attributes native text to a judicial system. Confidence is
// 40 + matchRatio×60, +10 for a priority-1 system, +5 per match beyond the
// first, capped at 100. Documents carrying only ICP-Brasil signature markers
// (at least two) fall back to GENERIC at confidence 50.
func DetectSystem(text string) SystemInfo {
	folded := foldText(text)
	if len(folded) < minDetectionChars {
		return SystemInfo{Name: "UNKNOWN"}
	}

	best := SystemInfo{Name: "UNKNOWN"}
	for _, fp := range fingerprints {
		var matches []string
		for _, p := range fp.patterns {
			if p.MatchString(folded) {
				matches = append(matches, p.String())
			}
		}
		if len(matches) == 0 {
			continue
		}

		ratio := float64(len(matches)) / float64(len(fp.patterns))
		conf := 40 + ratio*60
		if fp.priority == 1 {
			conf += 10
		}
		conf += float64(len(matches)-1) * 5
		if conf > 100 {
			conf = 100
		}

		if conf > best.Confidence {
			best = SystemInfo{Name: fp.name, Confidence: conf, Matches: matches}
		}
	}

	if best.Name != "UNKNOWN" {
		return best
	}

	icp := 0
	for _, p := range icpMarkers {
		if p.MatchString(folded) {
			icp++
		}
	}
	if icp >= 2 {
		return SystemInfo{Name: "GENERIC", Confidence: 50}
	}
	return SystemInfo{Name: "UNKNOWN"}
}

var foldTransform = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// foldText lowercases and strips combining accents so fingerprints can stay
// accent-free.
func foldText(text string) string {
	folded, _, err := transform.String(foldTransform, strings.ToLower(text))
	if err != nil {
		return strings.ToLower(text)
	}
	return folded
}
