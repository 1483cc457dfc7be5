package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"entgo.io/ent/dialect/sql/sqlgraph"
	"github.com/google/uuid"

	"github.com/abhisek/assessor/internal/history"
)

// ErrDuplicateAttempt is returned when a (session, item) attempt exists.
var ErrDuplicateAttempt = history.ErrDuplicateAttempt

var attemptColumns = []string{
	"id", "user_id", "domain", "session_id", "item_id", "topic",
	"difficulty", "correct", "time_spent_seconds", "attempted_at",
}

// Append implements history.Log. Attempts are unique per (session, item);
// a repeat returns ErrDuplicateAttempt.
func (s *Store) Append(ctx context.Context, rec history.AttemptRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.AttemptedAt.IsZero() {
		rec.AttemptedAt = time.Now()
	}
	seq, err := s.seq.Next(ctx)
	if err != nil {
		return err
	}

	var session any
	if rec.SessionID != "" {
		session = rec.SessionID
	}
	_, err = s.exec(ctx, builder.Insert(AttemptsTable.Name).
		Columns("id", "sequence", "user_id", "domain", "session_id", "item_id", "topic", "difficulty", "correct", "time_spent_seconds", "attempted_at").
		Values(rec.ID, seq, rec.UserID, rec.Domain, session, rec.ItemID, rec.Topic, rec.Difficulty, rec.Correct, rec.TimeSpentSeconds, rec.AttemptedAt.UnixNano()))
	if err != nil {
		if sqlgraph.IsUniqueConstraintError(err) {
			return fmt.Errorf("%w: session %s item %s", ErrDuplicateAttempt, rec.SessionID, rec.ItemID)
		}
		return fmt.Errorf("append attempt: %w", err)
	}
	return nil
}

// QueryByUser implements history.Log, returning attempts oldest first.
func (s *Store) QueryByUser(ctx context.Context, userID, domain string) ([]history.AttemptRecord, error) {
	sel := builder.Select(attemptColumns...).
		From(builder.Table(AttemptsTable.Name)).
		Where(userDomain(userID, domain)).
		OrderBy("sequence")
	return s.scanAttempts(ctx, sel)
}

// RecentAttempts returns up to limit attempts, newest first.
func (s *Store) RecentAttempts(ctx context.Context, userID, domain string, limit int) ([]history.AttemptRecord, error) {
	sel := builder.Select(attemptColumns...).
		From(builder.Table(AttemptsTable.Name)).
		Where(userDomain(userID, domain)).
		OrderBy(entsql.Desc("sequence"))
	if limit > 0 {
		sel.Limit(limit)
	}
	return s.scanAttempts(ctx, sel)
}

// DeleteAttempts removes a user's attempts in a domain.
func (s *Store) DeleteAttempts(ctx context.Context, userID, domain string) (int64, error) {
	res, err := s.exec(ctx, builder.Delete(AttemptsTable.Name).Where(userDomain(userID, domain)))
	if err != nil {
		return 0, fmt.Errorf("delete attempts: %w", err)
	}
	return res.RowsAffected()
}

func userDomain(userID, domain string) *entsql.Predicate {
	if domain == "" {
		return entsql.EQ("user_id", userID)
	}
	return entsql.And(entsql.EQ("user_id", userID), entsql.EQ("domain", domain))
}

func (s *Store) scanAttempts(ctx context.Context, sel *entsql.Selector) ([]history.AttemptRecord, error) {
	query, args := sel.Query()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	var out []history.AttemptRecord
	for rows.Next() {
		var (
			rec     history.AttemptRecord
			session sql.NullString
			at      int64
		)
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Domain, &session, &rec.ItemID, &rec.Topic,
			&rec.Difficulty, &rec.Correct, &rec.TimeSpentSeconds, &at); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		rec.SessionID = session.String
		rec.AttemptedAt = time.Unix(0, at)
		out = append(out, rec)
	}
	return out, rows.Err()
}

var _ history.Log = (*Store)(nil)
