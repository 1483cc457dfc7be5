// Package selection ranks and picks practice items for a learner.
//
// The engine is a pure function of its request: it performs no I/O and
// keeps no state between calls. All randomness flows from the request's
// random source so results can be reproduced from a seed.
package selection

import (
	"errors"
	"math/rand"
	"time"

	"github.com/abhisek/assessor/internal/catalog"
	"github.com/abhisek/assessor/internal/difficulty"
	"github.com/abhisek/assessor/internal/performance"
	"github.com/abhisek/assessor/internal/spacedrep"
)

// ErrEmptyPool is returned when no item is eligible even after every
// fallback has been applied.
var ErrEmptyPool = errors.New("no eligible items in pool")

// Config tunes the ranking mix and the freshness window.
type Config struct {
	FreshnessWindow     time.Duration `mapstructure:"freshness_window"`
	HighPriorityShare   float64       `mapstructure:"high_priority_share"`
	MediumPriorityShare float64       `mapstructure:"medium_priority_share"`
	MaxTopicShare       float64       `mapstructure:"max_topic_share"`
}

// DefaultConfig returns the 40/40/20 mix with a one-week freshness window
// and a 25% topic cap.
func DefaultConfig() Config {
	return Config{
		FreshnessWindow:     spacedrep.DefaultFreshnessWindowDays * 24 * time.Hour,
		HighPriorityShare:   0.4,
		MediumPriorityShare: 0.4,
		MaxTopicShare:       0.25,
	}
}

// Request is the input to a selection call.
type Request struct {
	// Pool is the catalog snapshot to choose from.
	Pool []catalog.Item
	// History is the learner's per-item exposure. Nil means no history.
	History spacedrep.Index
	// Profile biases scoring toward weak topics. Nil is allowed.
	Profile *performance.Profile
	// Band limits item difficulty. The zero value means the full range.
	Band difficulty.Band
	// Topics optionally restricts the pool. It is dropped when too few
	// fresh in-band items match.
	Topics     []string
	Count      int
	ExcludeIDs []string
	// Rand drives sampling and option shuffling. Nil seeds from Seed.
	Rand *rand.Rand
	Seed int64
}

// FallbackReason names a widening step taken to fill a selection.
type FallbackReason string

const (
	FallbackTopic     FallbackReason = "topic"
	FallbackBand      FallbackReason = "band"
	FallbackFreshness FallbackReason = "freshness"
)

// Tier is the ranking bucket an item was drawn from.
type Tier string

const (
	TierHigh   Tier = "high"
	TierMedium Tier = "medium"
	TierRandom Tier = "random"
)

// Pick is one selected item ready for presentation.
type Pick struct {
	Item         catalog.Item         `json:"item"`
	Presentation catalog.Presentation `json:"presentation"`
	Score        int                  `json:"score"`
	Tier         Tier                 `json:"tier"`
	// Readmitted is set for items that were inside the freshness window
	// and only admitted by the freshness fallback.
	Readmitted bool `json:"readmitted"`
}

// Result is the output of a selection call.
type Result struct {
	Picks       []Pick           `json:"picks"`
	WasFallback bool             `json:"was_fallback"`
	Fallbacks   []FallbackReason `json:"fallbacks,omitempty"`
	// Candidates counts items that survived filtering and fallbacks.
	Candidates int `json:"candidates"`
	// FreshCandidates counts candidates outside the freshness window.
	FreshCandidates int  `json:"fresh_candidates"`
	TopicCapRelaxed bool `json:"topic_cap_relaxed"`
}

// Items returns the picked catalog items in order.
func (r *Result) Items() []catalog.Item {
	items := make([]catalog.Item, len(r.Picks))
	for i, p := range r.Picks {
		items[i] = p.Item
	}
	return items
}

// IDs returns the picked item ids in order.
func (r *Result) IDs() []string {
	ids := make([]string, len(r.Picks))
	for i, p := range r.Picks {
		ids[i] = p.Item.ID
	}
	return ids
}
