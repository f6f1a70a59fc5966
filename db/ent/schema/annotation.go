package schema

import (
	"encoding/json"
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"

	"github.com/google/uuid"
)

// Annotation links one extracted field to its highlight regions on the page
// and carries the reviewer's correction, if any.
type Annotation struct{ ent.Schema }

func (Annotation) Annotations() []schema.Annotation {
	return []schema.Annotation{
		entsql.Annotation{Table: "annotations"},
	}
}

func (Annotation) Fields() []ent.Field {
	return []ent.Field{
		field.UUID("id", uuid.UUID{}).Default(uuid.New).Immutable(),
		field.UUID("job_id", uuid.UUID{}),
		field.String("field_name").NotEmpty(),
		field.String("extracted_value"),
		field.String("corrected_value").Optional().Nillable(),
		field.Float("confidence").Min(0).Max(1),
		field.JSON("regions", json.RawMessage{}).Optional(),
		field.Time("created_at").Default(time.Now),
	}
}

func (Annotation) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("job", Job.Type).
			Ref("annotations").
			Field("job_id").
			Unique().
			Required(),
	}
}

func (Annotation) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("job_id", "field_name").Unique(),
	}
}
