package reconcile_test

import (
	"testing"

	"github.com/google/uuid"

	"github.com/freightscan/invoice-extract/internal/entity"
	"github.com/freightscan/invoice-extract/internal/reconcile"
)

func TestReconcileSingleMatch(t *testing.T) {
	r := reconcile.New(reconcile.Config{}, nil)
	boxes := []entity.BoundingBox{
		{Page: 1, Left: 100, Top: 50, Width: 120, Height: 24, Text: "INV-2024-001", Confidence: 0.97},
		{Page: 1, Left: 100, Top: 300, Width: 80, Height: 24, Text: "Subtotal", Confidence: 0.95},
	}
	regions := r.Reconcile("invoice_number", "INV-2024-001", boxes)
	if len(regions) != 1 {
		t.Fatalf("got %d regions, want 1", len(regions))
	}
	if regions[0].Left != 100 || regions[0].Top != 50 || regions[0].Width != 120 {
		t.Fatalf("region should cover the matched box, got %+v", regions[0])
	}
}

func TestReconcileNoMatchReturnsNil(t *testing.T) {
	r := reconcile.New(reconcile.Config{}, nil)
	boxes := []entity.BoundingBox{
		{Page: 1, Left: 100, Top: 50, Width: 120, Height: 24, Text: "Freight charges", Confidence: 0.9},
	}
	if regions := r.Reconcile("invoice_date", "2024-03-15", boxes); regions != nil {
		t.Fatalf("expected nil regions for unlocatable value, got %v", regions)
	}
}

func TestReconcileMergesFragmentedMatches(t *testing.T) {
	// "INV-123-456" printed once but split into two OCR boxes. Both fragments
	// must match and merge into a single region spanning the full value.
	r := reconcile.New(reconcile.Config{Threshold: 0.6, VGap: 5, HGap: 10}, nil)
	boxes := []entity.BoundingBox{
		{Page: 1, Left: 5, Top: 100, Width: 40, Height: 20, Text: "INV-123", Confidence: 0.9},
		{Page: 1, Left: 48, Top: 103, Width: 20, Height: 20, Text: "-456", Confidence: 0.8},
	}
	regions := r.Reconcile("invoice_number", "INV-123-456", boxes)
	if len(regions) != 1 {
		t.Fatalf("got %d regions, want 1 merged region", len(regions))
	}
	if regions[0].Left != 5 || regions[0].Right() != 68 {
		t.Fatalf("merged region must span both fragments (5..68): %+v", regions[0])
	}
	if regions[0].Top != 100 || regions[0].Bottom() != 123 {
		t.Fatalf("merged vertical extent wrong: %+v", regions[0])
	}
}

func TestAnnotateProducesOneAnnotationPerField(t *testing.T) {
	r := reconcile.New(reconcile.Config{}, nil)
	inv := &entity.FreightInvoice{
		InvoiceNumber:        "INV-77",
		VendorName:           "Acme Logistics",
		TotalAmount:          "1250.00",
		ExtractionConfidence: 0.82,
	}
	boxes := []entity.BoundingBox{
		{Page: 1, Left: 100, Top: 50, Width: 80, Height: 20, Text: "INV-77", Confidence: 0.96},
	}
	jobID := uuid.New()
	anns := r.Annotate(jobID, inv, boxes)
	if len(anns) != len(inv.Fields()) {
		t.Fatalf("got %d annotations, want %d", len(anns), len(inv.Fields()))
	}
	byField := map[string]entity.Annotation{}
	for _, a := range anns {
		if a.JobID != jobID {
			t.Fatalf("annotation carries wrong job id: %v", a.JobID)
		}
		byField[a.FieldName] = a
	}

	located := byField["invoice_number"]
	if len(located.Regions) != 1 {
		t.Fatalf("invoice_number should be located, got %d regions", len(located.Regions))
	}
	if located.Confidence != 0.96 {
		t.Fatalf("located confidence should come from the box, got %v", located.Confidence)
	}

	unlocated := byField["total_amount"]
	if len(unlocated.Regions) != 0 {
		t.Fatalf("total_amount should be unlocatable, got %d regions", len(unlocated.Regions))
	}
	if unlocated.Confidence != 0.82 {
		t.Fatalf("unlocated confidence should fall back to extraction confidence, got %v", unlocated.Confidence)
	}
	if unlocated.ExtractedValue != "1250.00" {
		t.Fatalf("extracted value: got %q", unlocated.ExtractedValue)
	}
}
