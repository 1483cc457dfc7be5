package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"entgo.io/ent/dialect/sql/sqlgraph"

	"github.com/abhisek/assessor/internal/performance"
)

// LoadProfile returns the stored profile and its version. A missing
// profile returns ErrNotFound.
func (s *Store) LoadProfile(ctx context.Context, userID, domain string) (*performance.Profile, int64, error) {
	query, args := builder.Select("version", "data").
		From(builder.Table(ProfilesTable.Name)).
		Where(entsql.And(entsql.EQ("user_id", userID), entsql.EQ("domain", domain))).
		Query()

	var (
		version int64
		data    []byte
	)
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&version, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, ErrNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("load profile: %w", err)
	}

	p := performance.NewProfile(userID, domain)
	if err := json.Unmarshal(data, p); err != nil {
		return nil, 0, fmt.Errorf("decode profile: %w", err)
	}
	return p, version, nil
}

// SaveProfile writes p if the stored version still equals expectedVersion
// and returns the new version. expectedVersion 0 means the profile must not
// exist yet. A lost race returns ErrConcurrentUpdate.
func (s *Store) SaveProfile(ctx context.Context, p *performance.Profile, expectedVersion int64) (int64, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return 0, fmt.Errorf("encode profile: %w", err)
	}
	now := time.Now().UnixNano()

	if expectedVersion == 0 {
		_, err := s.exec(ctx, builder.Insert(ProfilesTable.Name).
			Columns("user_id", "domain", "version", "data", "updated_at").
			Values(p.UserID, p.Domain, 1, string(data), now))
		if err != nil {
			if sqlgraph.IsUniqueConstraintError(err) {
				return 0, ErrConcurrentUpdate
			}
			return 0, fmt.Errorf("insert profile: %w", err)
		}
		return 1, nil
	}

	res, err := s.exec(ctx, builder.Update(ProfilesTable.Name).
		Set("data", string(data)).
		Set("updated_at", now).
		Add("version", 1).
		Where(entsql.And(
			entsql.EQ("user_id", p.UserID),
			entsql.EQ("domain", p.Domain),
			entsql.EQ("version", expectedVersion),
		)))
	if err != nil {
		return 0, fmt.Errorf("update profile: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("update profile: %w", err)
	}
	if n == 0 {
		return 0, ErrConcurrentUpdate
	}
	return expectedVersion + 1, nil
}

// DeleteProfile removes the profile for a (user, domain) pair.
func (s *Store) DeleteProfile(ctx context.Context, userID, domain string) error {
	_, err := s.exec(ctx, builder.Delete(ProfilesTable.Name).
		Where(entsql.And(entsql.EQ("user_id", userID), entsql.EQ("domain", domain))))
	if err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	return nil
}

// ListProfiles returns every profile for a user.
func (s *Store) ListProfiles(ctx context.Context, userID string) ([]*performance.Profile, error) {
	query, args := builder.Select("domain", "data").
		From(builder.Table(ProfilesTable.Name)).
		Where(entsql.EQ("user_id", userID)).
		OrderBy("domain").
		Query()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	var out []*performance.Profile
	for rows.Next() {
		var (
			domain string
			data   []byte
		)
		if err := rows.Scan(&domain, &data); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		p := performance.NewProfile(userID, domain)
		if err := json.Unmarshal(data, p); err != nil {
			return nil, fmt.Errorf("decode profile %s: %w", domain, err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
