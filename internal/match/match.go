// Package match scores OCR text fragments against extracted field values.
// OCR noise means exact comparison is useless here; everything goes through a
// normalized edit-distance ratio.
package match

import (
	"sort"
	"strings"

	"github.com/agext/levenshtein"

	"github.com/freightscan/invoice-extract/internal/entity"
)

// DefaultThreshold is the minimum similarity for a box to count as a match.
const DefaultThreshold = 0.6

// Similarity returns a [0,1] ratio between two strings, case-insensitive and
// with surrounding whitespace stripped. Equal strings score 1.0. When one
// string is a contiguous fragment of the other, the score comes from coverage
// rather than raw edit distance: OCR routinely splits one printed value across
// several boxes, and edit distance alone would reject every fragment.
func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func Similarity(a, b string) float64 {
	a = normalize(a)
	b = normalize(b)
	if a == b {
		return 1.0
	}
	if a == "" || b == "" {
		return 0.0
	}
	sim := levenshtein.Similarity(a, b, nil)
	if frag := fragmentScore(a, b); frag > sim {
		sim = frag
	}
	return sim
}

// fragmentScore rates a substring relationship. The floor sits at
// DefaultThreshold so a genuine fragment always survives the match cut, with
// coverage of the longer string deciding the rest. Fragments shorter than
// three characters are ignored; they match almost anything.
func fragmentScore(a, b string) float64 {
	shorter, longer := a, b
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}
	if len(shorter) < 3 || !strings.Contains(longer, shorter) {
		return 0
	}
	cover := float64(len(shorter)) / float64(len(longer))
	return DefaultThreshold + (1-DefaultThreshold)*cover
}

// FindMatches returns the boxes whose text scores at least threshold against
// target, sorted by similarity descending; ties break in reading order
// (top-to-bottom, then left-to-right). An empty result is a normal outcome:
// many extracted fields (computed totals, normalized dates) have no literal
// counterpart on the page.
func FindMatches(boxes []entity.BoundingBox, target string, threshold float64) []entity.BoundingBox {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	type scored struct {
		box entity.BoundingBox
		sim float64
	}
	candidates := make([]scored, 0, 4)
	for _, b := range boxes {
		if s := Similarity(b.Text, target); s >= threshold {
			candidates = append(candidates, scored{box: b, sim: s})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].sim != candidates[j].sim {
			return candidates[i].sim > candidates[j].sim
		}
		bi, bj := candidates[i].box, candidates[j].box
		if bi.Page != bj.Page {
			return bi.Page < bj.Page
		}
		if bi.Top != bj.Top {
			return bi.Top < bj.Top
		}
		return bi.Left < bj.Left
	})
	out := make([]entity.BoundingBox, len(candidates))
	for i, c := range candidates {
		out[i] = c.box
	}
	return out
}
