// Package reconcile maps extracted field values back onto OCR bounding boxes
// and merges fragmented boxes into field-level highlight regions.
package reconcile

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/freightscan/invoice-extract/internal/entity"
	"github.com/freightscan/invoice-extract/internal/match"
)

// Config holds the matching and merging thresholds.
type Config struct {
	Threshold float64 // minimum text similarity, default match.DefaultThreshold
	VGap      int     // vertical cluster gap in pixels, default DefaultVGap
	HGap      int     // horizontal cluster gap in pixels, default DefaultHGap
}

// Reconciler composes the fuzzy matcher and the box merger.
type Reconciler struct {
	cfg Config
	log *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = match.DefaultThreshold
	}
	if cfg.VGap <= 0 {
		cfg.VGap = DefaultVGap
	}
	if cfg.HGap <= 0 {
		cfg.HGap = DefaultHGap
	}
	return &Reconciler{cfg: cfg, log: logger}
}

// Reconcile maps one field value to zero or more highlight regions.
// Zero regions means "present in extracted data but not visually locatable";
// callers must treat that as a valid outcome, not a failure.
func (r *Reconciler) Reconcile(fieldName, fieldValue string, boxes []entity.BoundingBox) []entity.MergedRegion {
	candidates := match.FindMatches(boxes, fieldValue, r.cfg.Threshold)
	if len(candidates) == 0 {
		r.log.Debug("reconcile.no_match", "field", fieldName)
	}
	return r.regionsFor(candidates)
}

func (r *Reconciler) regionsFor(candidates []entity.BoundingBox) []entity.MergedRegion {
	switch len(candidates) {
	case 0:
		return nil
	case 1:
		return []entity.MergedRegion{closeCluster(candidates)}
	default:
		return Merge(candidates, r.cfg.VGap, r.cfg.HGap)
	}
}

// Annotate runs Reconcile over every extracted field and produces one
// annotation per field. Annotation confidence is the mean confidence of the
// matched boxes, falling back to the extraction confidence when nothing on
// the page matched.
func (r *Reconciler) Annotate(jobID uuid.UUID, inv *entity.FreightInvoice, boxes []entity.BoundingBox) []entity.Annotation {
	fields := inv.Fields()
	now := time.Now().UTC()
	out := make([]entity.Annotation, 0, len(fields))
	located := 0
	for _, f := range fields {
		candidates := match.FindMatches(boxes, f.Value, r.cfg.Threshold)
		regions := r.regionsFor(candidates)
		conf := inv.ExtractionConfidence
		if len(regions) > 0 {
			conf = meanBoxConfidence(candidates)
			located++
		}
		out = append(out, entity.Annotation{
			ID:             uuid.New(),
			JobID:          jobID,
			FieldName:      f.Name,
			ExtractedValue: f.Value,
			Confidence:     conf,
			Regions:        regions,
			CreatedAt:      now,
		})
	}
	r.log.Info("reconcile.annotate",
		"job_id", jobID, "fields", len(fields), "located", located)
	return out
}

func meanBoxConfidence(boxes []entity.BoundingBox) float64 {
	if len(boxes) == 0 {
		return 0
	}
	var sum float64
	for _, b := range boxes {
		sum += b.Confidence
	}
	return sum / float64(len(boxes))
}
