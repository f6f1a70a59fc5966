package entity

// Page raster the OCR providers normalize coordinates to: A4 at 300 DPI.
const (
	PageRasterWidth  = 2480
	PageRasterHeight = 3508
)

// BoundingBox is one recognized text fragment on a page, in pixel space on the
// fixed page raster. Immutable once produced by OCR.
type BoundingBox struct {
	Page       int     `json:"page_number"`
	Left       int     `json:"left"`
	Top        int     `json:"top"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"` // 0..1
}

func (b BoundingBox) Right() int  { return b.Left + b.Width }
func (b BoundingBox) Bottom() int { return b.Top + b.Height }

func (b BoundingBox) Area() int { return b.Width * b.Height }

// Intersects reports whether the two rectangles overlap. Boxes on different
// pages never intersect.
func (b BoundingBox) Intersects(o BoundingBox) bool {
	if b.Page != o.Page {
		return false
	}
	return b.Left < o.Right() && o.Left < b.Right() &&
		b.Top < o.Bottom() && o.Top < b.Bottom()
}

// VerticallyAdjacent reports whether o starts within gap pixels below b's top
// edge, i.e. the boxes sit on the same visual line band.
func (b BoundingBox) VerticallyAdjacent(o BoundingBox, gap int) bool {
	if b.Page != o.Page {
		return false
	}
	d := o.Top - b.Top
	if d < 0 {
		d = -d
	}
	return d < gap
}

// HorizontallyAdjacent reports whether o's left edge is within gap pixels of
// b's right edge.
func (b BoundingBox) HorizontallyAdjacent(o BoundingBox, gap int) bool {
	if b.Page != o.Page {
		return false
	}
	d := o.Left - b.Right()
	if d < 0 {
		d = -d
	}
	return d < gap
}

// MergedRegion is the bounding rectangle of one or more adjacent boxes,
// used as a field-level highlight for review.
type MergedRegion struct {
	Page   int    `json:"page_number"`
	Left   int    `json:"left"`
	Top    int    `json:"top"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Text   string `json:"text"` // member texts joined in reading order
}

func (r MergedRegion) Right() int  { return r.Left + r.Width }
func (r MergedRegion) Bottom() int { return r.Top + r.Height }
