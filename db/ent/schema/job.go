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

	"github.com/freightscan/invoice-extract/constants"
	"github.com/freightscan/invoice-extract/db/ent/schema/utils"
)

type Job struct{ ent.Schema }

func (Job) Annotations() []schema.Annotation {
	return []schema.Annotation{
		entsql.Annotation{Table: "jobs"},
	}
}

func (Job) Fields() []ent.Field {
	return []ent.Field{
		field.UUID("id", uuid.UUID{}).Default(uuid.New).Immutable(),
		field.String("status").NotEmpty().
			Validate(utils.OneOf(constants.JobStatuses...)),
		field.String("file_name").NotEmpty(),
		field.String("blob_key").NotEmpty(),
		field.String("ocr_provider").NotEmpty(),
		field.String("llm_provider").NotEmpty(),
		field.Int("progress").Default(0).Min(0).Max(100),
		field.Float("quality_score").Optional().Nillable(),
		field.String("error_message").Optional().Nillable().
			SchemaType(map[string]string{dialect.Postgres: "text"}),
		field.JSON("violations", json.RawMessage{}).Optional(),
		field.Time("created_at").Default(time.Now),
		field.Time("updated_at").Default(time.Now).UpdateDefault(time.Now),
	}
}

func (Job) Edges() []ent.Edge {
	return []ent.Edge{
		edge.To("boxes", OCRBox.Type),
		edge.To("invoice", InvoiceRecord.Type).Unique(),
		edge.To("annotations", Annotation.Type),
	}
}

func (Job) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("status", "created_at"),
	}
}
