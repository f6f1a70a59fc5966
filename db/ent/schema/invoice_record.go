package schema

import (
	"encoding/json"
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"

	"github.com/google/uuid"
)

// InvoiceRecord stores the normalized extraction result and the raw provider
// response for audit. One record per job, replaced on re-extraction.
type InvoiceRecord struct{ ent.Schema }

func (InvoiceRecord) Annotations() []schema.Annotation {
	return []schema.Annotation{
		entsql.Annotation{Table: "invoice_records"},
	}
}

func (InvoiceRecord) Fields() []ent.Field {
	return []ent.Field{
		field.UUID("id", uuid.UUID{}).Default(uuid.New).Immutable(),
		field.UUID("job_id", uuid.UUID{}).Unique(),
		field.String("invoice_number").Optional(),
		field.String("vendor_name").Optional(),
		field.String("total_amount").Optional().
			SchemaType(map[string]string{dialect.Postgres: "numeric(14,4)"}),
		field.String("currency").Optional().
			SchemaType(map[string]string{dialect.Postgres: "char(3)"}),
		field.Float("extraction_confidence").Default(0),
		field.JSON("extracted_data", json.RawMessage{}),
		field.JSON("raw_response", json.RawMessage{}).Optional(),
		field.Time("created_at").Default(time.Now),
	}
}

func (InvoiceRecord) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("job", Job.Type).
			Ref("invoice").
			Field("job_id").
			Unique().
			Required(),
	}
}

func (InvoiceRecord) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("invoice_number"),
	}
}
