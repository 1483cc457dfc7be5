// Package session embeds the adaptive engine in a stateful practice flow.
//
// A Service owns the lifecycle of a practice session: it selects items,
// checks answers, appends attempts, folds each answer into the learner's
// performance profile, and drives the per-session difficulty controller.
// Answers for one session are serialized, and profile updates for one
// (user, domain) pair run inside a critical section guarded by an optimistic
// version check, so concurrent sessions never double count an attempt.
package session

import (
	"errors"
	"time"

	"github.com/abhisek/assessor/internal/catalog"
	"github.com/abhisek/assessor/internal/difficulty"
	"github.com/abhisek/assessor/internal/performance"
	"github.com/abhisek/assessor/internal/selection"
)

var (
	// ErrSessionNotFound is returned for unknown or ended sessions.
	ErrSessionNotFound = errors.New("session not found")

	// ErrItemNotInSession is returned when an answer or replacement names
	// an item or position the session does not hold.
	ErrItemNotInSession = errors.New("item not in session")

	// ErrAlreadyAnswered is returned for a second submission of one item.
	ErrAlreadyAnswered = errors.New("item already answered")
)

// EndReason records why a session finished.
type EndReason string

const (
	EndCompleted EndReason = "completed"
	EndAbandoned EndReason = "abandoned"
)

// Session is a live practice session. It is persisted between calls.
type Session struct {
	ID     string   `json:"id"`
	UserID string   `json:"user_id"`
	Domain string   `json:"domain"`
	Topics []string `json:"topics,omitempty"`

	Items []PlacedItem `json:"items"`
	// Retired holds ids swapped out by replacement so they are not
	// offered again in this session.
	Retired []string `json:"retired,omitempty"`

	Difficulty difficulty.Session `json:"difficulty"`
	// FixedLevel disables controller-driven band changes.
	FixedLevel bool `json:"fixed_level"`

	WasFallback bool                       `json:"was_fallback"`
	Fallbacks   []selection.FallbackReason `json:"fallbacks,omitempty"`

	Seed      int64     `json:"seed"`
	Draws     int64     `json:"draws"`
	StartedAt time.Time `json:"started_at"`
}

// PlacedItem is one position in the session.
type PlacedItem struct {
	Position     int                  `json:"position"`
	Item         catalog.Item         `json:"item"`
	Presentation catalog.Presentation `json:"presentation"`
	Tier         selection.Tier       `json:"tier"`
	Readmitted   bool                 `json:"readmitted,omitempty"`

	AdaptivelySelected bool             `json:"adaptively_selected,omitempty"`
	AdaptiveLevel      difficulty.Level `json:"adaptive_level,omitempty"`

	Answered  bool          `json:"answered"`
	Answer    string        `json:"answer,omitempty"`
	Correct   bool          `json:"correct"`
	TimeSpent time.Duration `json:"time_spent"`

	// Pending marks an attempt that is in the log but not yet folded into
	// the profile. Answer, Correct and TimeSpent hold the logged values.
	Pending bool `json:"pending,omitempty"`
}

// settled reports whether the position has an attempt in the log.
func (it *PlacedItem) settled() bool {
	return it.Answered || it.Pending
}

// Next returns the first unanswered position, or nil when all are done.
func (s *Session) Next() *PlacedItem {
	for i := range s.Items {
		if !s.Items[i].Answered {
			return &s.Items[i]
		}
	}
	return nil
}

// Remaining counts unanswered positions.
func (s *Session) Remaining() int {
	n := 0
	for _, it := range s.Items {
		if !it.Answered {
			n++
		}
	}
	return n
}

// Done reports whether every position has been answered.
func (s *Session) Done() bool {
	return s.Remaining() == 0
}

func (s *Session) find(itemID string) int {
	for i, it := range s.Items {
		if it.Item.ID == itemID {
			return i
		}
	}
	return -1
}

// excluded returns every id placed in or retired from the session.
func (s *Session) excluded() []string {
	ids := make([]string, 0, len(s.Items)+len(s.Retired))
	for _, it := range s.Items {
		ids = append(ids, it.Item.ID)
	}
	return append(ids, s.Retired...)
}

// nextAfter returns the index of the first unanswered position after i,
// wrapping to the front. It returns -1 when none is left.
func (s *Session) nextAfter(i int) int {
	n := len(s.Items)
	for step := 1; step < n; step++ {
		j := (i + step) % n
		if !s.Items[j].settled() {
			return j
		}
	}
	return -1
}

// StartRequest opens a session.
type StartRequest struct {
	UserID string
	Domain string
	Topics []string
	// Count defaults to the configured session size.
	Count int
	// FixedLevel pins the difficulty for the whole session.
	FixedLevel *difficulty.Level
	// Seed makes selection and option order reproducible.
	Seed *int64
}

// AnswerRequest submits one answer.
type AnswerRequest struct {
	SessionID string
	ItemID    string
	Answer    string
	TimeSpent time.Duration
}

// AnswerOutcome is the result of a submission.
type AnswerOutcome struct {
	Item          PlacedItem
	Correct       bool
	CorrectAnswer string
	Explanation   string
	Level         difficulty.Level
	Change        *difficulty.Change
	// Replacement is the item swapped in after a level change.
	Replacement *PlacedItem
	// ReplaceErr is set when the answer was recorded but the follow-up
	// replacement failed. The session keeps its planned item.
	ReplaceErr error
	Profile    *performance.Profile
	Remaining  int
}

// Summary is returned when a session ends.
type Summary struct {
	SessionID  string
	UserID     string
	Domain     string
	Reason     EndReason
	Total      int
	Answered   int
	Correct    int
	Accuracy   int
	TotalTime  time.Duration
	FinalLevel difficulty.Level
	Changes    []difficulty.Change
	Duration   time.Duration
}

func summarize(s *Session, reason EndReason, now time.Time) *Summary {
	sum := &Summary{
		SessionID:  s.ID,
		UserID:     s.UserID,
		Domain:     s.Domain,
		Reason:     reason,
		Total:      len(s.Items),
		FinalLevel: s.Difficulty.Level,
		Changes:    s.Difficulty.ChangeLog,
		Duration:   now.Sub(s.StartedAt),
	}
	for _, it := range s.Items {
		if !it.Answered {
			continue
		}
		sum.Answered++
		sum.TotalTime += it.TimeSpent
		if it.Correct {
			sum.Correct++
		}
	}
	if sum.Answered > 0 {
		sum.Accuracy = (200*sum.Correct + sum.Answered) / (2 * sum.Answered)
	}
	return sum
}
