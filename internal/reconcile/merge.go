package reconcile

import (
	"sort"
	"strings"

	"github.com/freightscan/invoice-extract/internal/entity"
)

// Default pixel gaps for clustering adjacent boxes on the page raster.
const (
	DefaultVGap = 10
	DefaultHGap = 25
)

// Merge groups adjacent boxes into field-level regions. Boxes are sorted by
// (page, top, left) and scanned once: the current cluster grows while the next
// box stays within vGap vertically of the cluster's last box and within hGap
// of the cluster's rightmost edge. Every input box ends up in exactly one
// region. Merging a merger's own output with the same gaps is a fixpoint.
func Merge(boxes []entity.BoundingBox, vGap, hGap int) []entity.MergedRegion {
	if len(boxes) == 0 {
		return nil
	}
	sorted := append([]entity.BoundingBox(nil), boxes...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Page != b.Page {
			return a.Page < b.Page
		}
		if a.Top != b.Top {
			return a.Top < b.Top
		}
		return a.Left < b.Left
	})

	regions := make([]entity.MergedRegion, 0, len(sorted))
	cluster := []entity.BoundingBox{sorted[0]}
	for _, b := range sorted[1:] {
		last := cluster[len(cluster)-1]
		right := clusterRight(cluster)
		if b.Page == last.Page &&
			last.VerticallyAdjacent(b, vGap) &&
			absInt(b.Left-right) < hGap {
			cluster = append(cluster, b)
			continue
		}
		regions = append(regions, closeCluster(cluster))
		cluster = []entity.BoundingBox{b}
	}
	regions = append(regions, closeCluster(cluster))
	return regions
}

func clusterRight(cluster []entity.BoundingBox) int {
	right := cluster[0].Right()
	for _, b := range cluster[1:] {
		if r := b.Right(); r > right {
			right = r
		}
	}
	return right
}

// closeCluster collapses the members into their bounding rectangle.
func closeCluster(cluster []entity.BoundingBox) entity.MergedRegion {
	left, top := cluster[0].Left, cluster[0].Top
	right, bottom := cluster[0].Right(), cluster[0].Bottom()
	texts := make([]string, 0, len(cluster))
	for _, b := range cluster {
		if b.Left < left {
			left = b.Left
		}
		if b.Top < top {
			top = b.Top
		}
		if b.Right() > right {
			right = b.Right()
		}
		if b.Bottom() > bottom {
			bottom = b.Bottom()
		}
		if b.Text != "" {
			texts = append(texts, b.Text)
		}
	}
	return entity.MergedRegion{
		Page:   cluster[0].Page,
		Left:   left,
		Top:    top,
		Width:  right - left,
		Height: bottom - top,
		Text:   strings.Join(texts, " "),
	}
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
