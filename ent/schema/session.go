package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Session is a live practice session, deleted when it ends.
type Session struct {
	ent.Schema
}

func (Session) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			Immutable().
			Comment("UUID"),
		field.String("user_id").
			NotEmpty(),
		field.String("domain"),
		field.JSON("data", map[string]any{}).
			Comment("Session state including difficulty controller"),
		field.Int64("started_at"),
		field.Int64("updated_at"),
	}
}

func (Session) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("user_id"),
	}
}
