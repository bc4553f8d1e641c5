package contextstore

import (
	"encoding/json"
	"math"

	"github.com/hazyhaar/lexpdf/layout"
)

// SignatureDim is the fixed dimensionality of a document signature.
const SignatureDim = 10

// Signature is a compact structural fingerprint, comparable by cosine
// similarity. Document and page signatures share the layout; structural
// components carry ratios for documents and flags for single pages:
//
//	0  native ratio (document) / native flag (page)
//	1  band ratio (document) / band flag (page)
//	2  mean X-density
//	3  size bucket: page count (document) / char count (page), log10, capped
//	4  extraction confidence
//	5  PJE
//	6  ESAJ
//	7  EPROC / PROJUDI
//	8  STF / STJ
//	9  GENERIC / UNKNOWN
type Signature [SignatureDim]float64

// ComputeSignature derives the document signature from a survey and the mean
// page confidence of the run.
func ComputeSignature(dl *layout.DocumentLayout, meanConfidence float64) Signature {
	var sig Signature
	sig[0] = dl.NativeRatio()
	sig[1] = dl.BandRatio()

	var density float64
	for _, p := range dl.Pages {
		density += p.MeanDensity
	}
	if len(dl.Pages) > 0 {
		density /= float64(len(dl.Pages))
	}
	sig[2] = density

	pages := float64(dl.PageCount)
	sig[3] = math.Min(math.Log10(pages+1)/3, 1) // 1000+ pages saturate

	sig[4] = meanConfidence

	systemOneHot(dl.System.Name, &sig)
	return sig
}

// ComputePageSignature derives the signature of one surveyed page, the unit
// pattern learning works on.
func ComputePageSignature(pl layout.PageLayout, system string, confidence float64) Signature {
	var sig Signature
	if pl.Classification == layout.ClassNative {
		sig[0] = 1
	}
	if pl.Band != nil {
		sig[1] = 1
	}
	sig[2] = pl.MeanDensity

	chars := float64(pl.CharCount)
	sig[3] = math.Min(math.Log10(chars+1)/4, 1) // 10k+ chars saturate

	sig[4] = confidence

	systemOneHot(system, &sig)
	return sig
}

func systemOneHot(name string, sig *Signature) {
	switch name {
	case "PJE":
		sig[5] = 1
	case "ESAJ":
		sig[6] = 1
	case "EPROC", "PROJUDI":
		sig[7] = 1
	case "STF", "STJ":
		sig[8] = 1
	default:
		sig[9] = 1
	}
}

// Cosine returns the cosine similarity of two signatures, 0 when either is
// the zero vector.
func Cosine(a, b Signature) float64 {
	var dot, na, nb float64
	for i := 0; i < SignatureDim; i++ {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// MarshalText stores signatures as JSON arrays in SQLite TEXT columns.
func (s Signature) MarshalText() ([]byte, error) {
	return json.Marshal([SignatureDim]float64(s))
}

// UnmarshalText parses the JSON array form.
func (s *Signature) UnmarshalText(data []byte) error {
	var arr [SignatureDim]float64
	if err := json.Unmarshal(data, &arr); err != nil {
		return err
	}
	*s = Signature(arr)
	return nil
}
