package store

import (
	"context"
	"encoding/json"
	"fmt"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/abhisek/assessor/internal/catalog"
)

// UpsertItems inserts items, replacing any with the same id.
func (s *Store) UpsertItems(ctx context.Context, items []catalog.Item) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, it := range items {
		opts, err := json.Marshal(it.Options)
		if err != nil {
			return 0, fmt.Errorf("marshal options for %s: %w", it.ID, err)
		}
		query, args := builder.Insert(ItemsTable.Name).
			Columns("id", "domain", "topic", "difficulty", "content", "options", "correct_answer", "explanation").
			Values(it.ID, it.Domain, it.Topic, it.Difficulty, it.Content, string(opts), it.CorrectAnswer, it.Explanation).
			OnConflict(entsql.ConflictColumns("id"), entsql.ResolveWithNewValues()).
			Query()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return 0, fmt.Errorf("upsert item %s: %w", it.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(items), nil
}

// Query implements catalog.Catalog.
func (s *Store) Query(ctx context.Context, f catalog.Filter) ([]catalog.Item, error) {
	sel := builder.Select("id", "domain", "topic", "difficulty", "content", "options", "correct_answer", "explanation").
		From(builder.Table(ItemsTable.Name)).
		OrderBy("id")

	var preds []*entsql.Predicate
	if f.Domain != "" {
		preds = append(preds, entsql.EQ("domain", f.Domain))
	}
	if len(f.Topics) > 0 {
		topics := make([]any, len(f.Topics))
		for i, t := range f.Topics {
			topics[i] = t
		}
		preds = append(preds, entsql.In("topic", topics...))
	}
	if f.Band != nil {
		preds = append(preds, entsql.GTE("difficulty", f.Band.Min), entsql.LTE("difficulty", f.Band.Max))
	}
	if len(preds) > 0 {
		sel.Where(entsql.And(preds...))
	}

	query, args := sel.Query()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	var items []catalog.Item
	for rows.Next() {
		var (
			it   catalog.Item
			opts []byte
		)
		if err := rows.Scan(&it.ID, &it.Domain, &it.Topic, &it.Difficulty, &it.Content, &opts, &it.CorrectAnswer, &it.Explanation); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		if len(opts) > 0 {
			if err := json.Unmarshal(opts, &it.Options); err != nil {
				return nil, fmt.Errorf("decode options for %s: %w", it.ID, err)
			}
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// CountItems returns the number of items in a domain, or all items when
// domain is empty.
func (s *Store) CountItems(ctx context.Context, domain string) (int, error) {
	sel := builder.Select(entsql.Count("*")).From(builder.Table(ItemsTable.Name))
	if domain != "" {
		sel.Where(entsql.EQ("domain", domain))
	}
	query, args := sel.Query()
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count items: %w", err)
	}
	return n, nil
}

var _ catalog.Catalog = (*Store)(nil)
