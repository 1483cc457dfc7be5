package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
)

// SessionRecord is a persisted live session. Data is opaque to the store.
type SessionRecord struct {
	ID        string
	UserID    string
	Domain    string
	Data      []byte
	StartedAt time.Time
	UpdatedAt time.Time
}

// SaveSession inserts or replaces a session row.
func (s *Store) SaveSession(ctx context.Context, rec SessionRecord) error {
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now()
	}
	_, err := s.exec(ctx, builder.Insert(SessionsTable.Name).
		Columns("id", "user_id", "domain", "data", "started_at", "updated_at").
		Values(rec.ID, rec.UserID, rec.Domain, string(rec.Data), rec.StartedAt.UnixNano(), rec.UpdatedAt.UnixNano()).
		OnConflict(entsql.ConflictColumns("id"), entsql.ResolveWithNewValues()))
	if err != nil {
		return fmt.Errorf("save session %s: %w", rec.ID, err)
	}
	return nil
}

// LoadSession returns a session by id or ErrNotFound.
func (s *Store) LoadSession(ctx context.Context, id string) (*SessionRecord, error) {
	query, args := builder.Select("id", "user_id", "domain", "data", "started_at", "updated_at").
		From(builder.Table(SessionsTable.Name)).
		Where(entsql.EQ("id", id)).
		Query()

	var (
		rec              SessionRecord
		started, updated int64
	)
	err := s.db.QueryRowContext(ctx, query, args...).
		Scan(&rec.ID, &rec.UserID, &rec.Domain, &rec.Data, &started, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	rec.StartedAt = time.Unix(0, started)
	rec.UpdatedAt = time.Unix(0, updated)
	return &rec, nil
}

// DeleteSession removes a session. Deleting a missing session is not an
// error.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	_, err := s.exec(ctx, builder.Delete(SessionsTable.Name).Where(entsql.EQ("id", id)))
	if err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return nil
}
