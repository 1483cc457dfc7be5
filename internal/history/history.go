// Package history defines the append-only attempt log contract.
package history

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/abhisek/assessor/internal/spacedrep"
)

// ErrDuplicateAttempt is returned when an attempt for the same
// (session, item) pair was already appended.
var ErrDuplicateAttempt = errors.New("duplicate attempt")

// AttemptRecord is one answered item. Records are never mutated.
type AttemptRecord struct {
	ID               string    `json:"id"`
	UserID           string    `json:"user_id"`
	Domain           string    `json:"domain"`
	SessionID        string    `json:"session_id"`
	ItemID           string    `json:"item_id"`
	Topic            string    `json:"topic"`
	Difficulty       int       `json:"difficulty"`
	Correct          bool      `json:"correct"`
	TimeSpentSeconds float64   `json:"time_spent_seconds"`
	AttemptedAt      time.Time `json:"attempted_at"`
}

// Log is the attempt history store.
type Log interface {
	Append(ctx context.Context, rec AttemptRecord) error
	// QueryByUser returns the user's attempts in the domain, oldest first.
	QueryByUser(ctx context.Context, userID, domain string) ([]AttemptRecord, error)
}

// Index builds the per-item recency index selection scores against.
func Index(records []AttemptRecord) spacedrep.Index {
	idx := make(spacedrep.Index, len(records))
	for _, r := range records {
		idx.Observe(r.ItemID, r.Correct, r.AttemptedAt)
	}
	return idx
}

type attemptKey struct {
	sessionID string
	itemID    string
}

// Memory is an in-memory Log.
type Memory struct {
	mu      sync.Mutex
	records []AttemptRecord
	seen    map[attemptKey]bool
}

// NewMemory returns an empty in-memory log.
func NewMemory() *Memory {
	return &Memory{seen: make(map[attemptKey]bool)}
}

// Append stores rec. Records with a session id are unique per item.
func (m *Memory) Append(_ context.Context, rec AttemptRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.SessionID != "" {
		k := attemptKey{rec.SessionID, rec.ItemID}
		if m.seen[k] {
			return ErrDuplicateAttempt
		}
		m.seen[k] = true
	}
	m.records = append(m.records, rec)
	return nil
}

// QueryByUser returns a copy of matching records in append order.
func (m *Memory) QueryByUser(_ context.Context, userID, domain string) ([]AttemptRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []AttemptRecord
	for _, r := range m.records {
		if r.UserID == userID && (domain == "" || r.Domain == domain) {
			out = append(out, r)
		}
	}
	return slices.Clip(out), nil
}
