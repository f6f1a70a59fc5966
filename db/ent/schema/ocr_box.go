package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"

	"github.com/google/uuid"
)

// OCRBox is one recognized text fragment in pixel space on the fixed
// 2480x3508 page raster.
type OCRBox struct{ ent.Schema }

func (OCRBox) Annotations() []schema.Annotation {
	return []schema.Annotation{
		entsql.Annotation{Table: "ocr_boxes"},
	}
}

func (OCRBox) Fields() []ent.Field {
	return []ent.Field{
		field.UUID("id", uuid.UUID{}).Default(uuid.New).Immutable(),
		field.UUID("job_id", uuid.UUID{}),
		field.Int("page_number").Min(1),
		field.Int("left"),
		field.Int("top"),
		field.Int("width"),
		field.Int("height"),
		field.String("text").
			SchemaType(map[string]string{dialect.Postgres: "text"}),
		field.Float("confidence").Min(0).Max(1),
	}
}

func (OCRBox) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("job", Job.Type).
			Ref("boxes").
			Field("job_id").
			Unique().
			Required(),
	}
}

func (OCRBox) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("job_id", "page_number"),
	}
}
