package extract

import "strings"

// Similarity scores two extractions of the same page in [0,1] using character
// bigram overlap (Sørensen–Dice) over folded text. It is deliberately
// insensitive to whitespace and ordering noise between engines.
func Similarity(a, b string) float64 {
	if a == b {
		if a == "" {
			return 0
		}
		return 1
	}

	ba := bigrams(a)
	bb := bigrams(b)
	if len(ba) == 0 || len(bb) == 0 {
		return 0
	}

	inter := 0
	for g, n := range ba {
		if m, ok := bb[g]; ok {
			if m < n {
				inter += m
			} else {
				inter += n
			}
		}
	}

	ta, tb := 0, 0
	for _, n := range ba {
		ta += n
	}
	for _, n := range bb {
		tb += n
	}
	return 2 * float64(inter) / float64(ta+tb)
}

func bigrams(s string) map[string]int {
	s = strings.ToLower(strings.Join(strings.Fields(s), " "))
	runes := []rune(s)
	grams := make(map[string]int, len(runes))
	for i := 0; i+1 < len(runes); i++ {
		grams[string(runes[i:i+2])]++
	}
	return grams
}
