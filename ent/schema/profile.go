package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Profile stores the performance model for a (user, domain) pair.
// Writers must match version to update.
type Profile struct {
	ent.Schema
}

func (Profile) Fields() []ent.Field {
	return []ent.Field{
		field.String("user_id").
			NotEmpty(),
		field.String("domain"),
		field.Int64("version").
			Comment("Optimistic concurrency token"),
		field.JSON("data", map[string]any{}).
			Comment("Serialized performance profile"),
		field.Int64("updated_at").
			Comment("Unix nanoseconds"),
	}
}

func (Profile) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("user_id", "domain").
			Unique(),
	}
}
