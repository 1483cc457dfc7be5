package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Item is one catalog question.
type Item struct {
	ent.Schema
}

func (Item) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			NotEmpty().
			Immutable().
			Comment("Catalog item id"),
		field.String("domain").
			Comment("Subject domain"),
		field.String("topic").
			NotEmpty(),
		field.Int("difficulty").
			Range(1, 10).
			Comment("Canonical 1-10 score"),
		field.Text("content"),
		field.JSON("options", []string{}),
		field.String("correct_answer").
			NotEmpty().
			Comment("Resolved option text"),
		field.String("explanation").
			Default(""),
	}
}

func (Item) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("domain", "topic"),
	}
}
