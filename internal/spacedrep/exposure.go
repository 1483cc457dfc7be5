package spacedrep

import (
	"math"
	"time"
)

// Exposure summarises a learner's history with one item.
type Exposure struct {
	ItemID      string    `json:"item_id"`
	Attempts    int       `json:"attempts"`
	Misses      int       `json:"misses"`
	LastAttempt time.Time `json:"last_attempt"`
	LastCorrect bool      `json:"last_correct"`
}

// DaysSince returns the fractional number of days since the last attempt.
// Never-attempted items report +Inf.
func (e *Exposure) DaysSince(now time.Time) float64 {
	if e == nil || e.Attempts == 0 {
		return math.Inf(1)
	}
	d := now.Sub(e.LastAttempt).Hours() / 24.0
	return max(d, 0)
}

// IsFresh reports whether the item may be shown again given the freshness
// window in days.
func (e *Exposure) IsFresh(now time.Time, windowDays float64) bool {
	return e.DaysSince(now) >= windowDays
}

// Boost returns the review boost owed to an item whose latest attempt was
// a miss. Items answered correctly last time are not boosted.
func (e *Exposure) Boost(now time.Time) int {
	if e == nil || e.Attempts == 0 || e.LastCorrect {
		return 0
	}
	return MissBoost(e.DaysSince(now))
}

// Index maps item ids to exposures.
type Index map[string]*Exposure

// Observe folds one attempt into the index. Attempts may arrive in any
// order; the latest by timestamp decides LastCorrect.
func (idx Index) Observe(itemID string, correct bool, at time.Time) {
	e := idx[itemID]
	if e == nil {
		e = &Exposure{ItemID: itemID}
		idx[itemID] = e
	}
	e.Attempts++
	if !correct {
		e.Misses++
	}
	if e.Attempts == 1 || !at.Before(e.LastAttempt) {
		e.LastAttempt = at
		e.LastCorrect = correct
	}
}

// Lookup returns the exposure for itemID, or nil if it was never attempted.
func (idx Index) Lookup(itemID string) *Exposure {
	return idx[itemID]
}

// Attempted reports whether itemID has any recorded attempt.
func (idx Index) Attempted(itemID string) bool {
	return idx[itemID] != nil
}
