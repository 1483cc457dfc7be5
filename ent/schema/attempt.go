package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Attempt records one answered item. Rows are never updated.
type Attempt struct {
	ent.Schema
}

func (Attempt) Mixin() []ent.Mixin {
	return []ent.Mixin{SequenceMixin{}}
}

func (Attempt) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			Immutable().
			Comment("UUID"),
		field.String("user_id").
			NotEmpty(),
		field.String("domain"),
		field.String("session_id").
			Optional().
			Nillable().
			Comment("Null for attempts outside a session"),
		field.String("item_id").
			NotEmpty(),
		field.String("topic").
			NotEmpty(),
		field.Int("difficulty"),
		field.Bool("correct"),
		field.Float("time_spent_seconds"),
		field.Int64("attempted_at").
			Comment("Unix nanoseconds"),
	}
}

func (Attempt) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("user_id", "domain"),
		index.Fields("session_id", "item_id").
			Unique(),
	}
}
