// Package ocr defines the text-recognition boundary of the pipeline.
// Providers return per-page bounding boxes; they never mutate job state.
package ocr

import (
	"context"
	"sort"
	"strings"

	"github.com/freightscan/invoice-extract/internal/entity"
)

// Document points at the uploaded PDF in the blob store.
type Document struct {
	Bucket string
	Key    string
}

// TextRecognizer turns a stored document into recognized text fragments with
// pixel coordinates, keyed by page number (1-based).
type TextRecognizer interface {
	Recognize(ctx context.Context, doc Document) (map[int][]entity.BoundingBox, error)
}

// PlainText flattens recognized boxes into a transcript in reading order:
// pages ascending, then top-to-bottom, left-to-right within a page. Pages
// are separated by a blank line.
func PlainText(pages map[int][]entity.BoundingBox) string {
	nums := make([]int, 0, len(pages))
	for p := range pages {
		nums = append(nums, p)
	}
	sort.Ints(nums)

	var sb strings.Builder
	for i, p := range nums {
		boxes := append([]entity.BoundingBox(nil), pages[p]...)
		sort.Slice(boxes, func(a, b int) bool {
			if boxes[a].Top != boxes[b].Top {
				return boxes[a].Top < boxes[b].Top
			}
			return boxes[a].Left < boxes[b].Left
		})
		if i > 0 {
			sb.WriteString("\n")
		}
		for _, b := range boxes {
			if b.Text == "" {
				continue
			}
			sb.WriteString(b.Text)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// QualityScore is the mean box confidence across all pages, in [0,1].
// Zero boxes scores zero.
func QualityScore(pages map[int][]entity.BoundingBox) float64 {
	var sum float64
	var n int
	for _, boxes := range pages {
		for _, b := range boxes {
			sum += b.Confidence
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
