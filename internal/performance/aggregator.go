package performance

import (
	"math"
	"slices"
	"strings"
	"time"

	"github.com/abhisek/assessor/internal/difficulty"
)

// Recommendation thresholds for the long-lived adaptive level.
const (
	PromoteStreak       = 5
	PromoteAccuracy     = 80
	DemoteStreak        = 3
	DemoteAccuracyBelow = 50
)

// Observation is one answered item.
type Observation struct {
	Topic      string
	Difficulty difficulty.Level
	Correct    bool
	// TimeSpent is the answer latency in seconds.
	TimeSpent float64
}

// Validate rejects observations the aggregator cannot fold in.
func (o Observation) Validate() error {
	if strings.TrimSpace(o.Topic) == "" {
		return &InvalidObservationError{Field: "topic", Reason: "is required"}
	}
	if !o.Difficulty.Valid() {
		return &InvalidObservationError{Field: "difficulty", Reason: "is not a known level"}
	}
	if math.IsNaN(o.TimeSpent) || math.IsInf(o.TimeSpent, 0) || o.TimeSpent < 0 {
		return &InvalidObservationError{Field: "time_spent", Reason: "must be a non-negative number of seconds"}
	}
	return nil
}

// Config controls the daily counters.
type Config struct {
	// DailyGoal seeds Overall.DailyGoal on profiles that have none.
	DailyGoal int `mapstructure:"daily_goal"`
	// Location is the reference clock used to decide "same calendar day".
	Location *time.Location `mapstructure:"-"`
}

// Aggregator folds observations into profiles. It keeps no state beyond
// its configuration and clock.
type Aggregator struct {
	cfg Config
	now func() time.Time
}

// NewAggregator creates an aggregator. A nil clock defaults to time.Now and
// a nil location to time.Local.
func NewAggregator(cfg Config, now func() time.Time) *Aggregator {
	if now == nil {
		now = time.Now
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.DailyGoal <= 0 {
		cfg.DailyGoal = DefaultDailyGoal
	}
	return &Aggregator{cfg: cfg, now: now}
}

// Update returns a new profile with obs folded in. The input profile is
// never modified; on error it is returned untouched alongside the error.
//
// Callers must submit each attempt once: Update does not deduplicate.
func (a *Aggregator) Update(p *Profile, obs Observation) (*Profile, error) {
	if err := obs.Validate(); err != nil {
		return p, err
	}

	now := a.now()
	next := p.Clone()
	if next == nil {
		next = NewProfile("", "")
	}
	if next.Overall.DailyGoal <= 0 {
		next.Overall.DailyGoal = a.cfg.DailyGoal
	}

	ts := next.TopicStats[obs.Topic]
	ts.record(obs.Correct, obs.TimeSpent, now)
	next.TopicStats[obs.Topic] = ts

	ds := next.DifficultyStats[obs.Difficulty]
	ds.record(obs.Correct, obs.TimeSpent, now)
	next.DifficultyStats[obs.Difficulty] = ds

	o := &next.Overall
	o.Total++
	if obs.Correct {
		o.Correct++
	}
	o.Accuracy = accuracyPercent(o.Correct, o.Total)
	o.AvgTime = (o.AvgTime*float64(o.Total-1) + obs.TimeSpent) / float64(o.Total)

	o.WeakTopics, o.StrongTopics = classify(next.TopicStats)

	if obs.Correct {
		o.CurrentStreak++
		o.LongestStreak = max(o.LongestStreak, o.CurrentStreak)
	} else {
		o.CurrentStreak = 0
	}

	if !a.sameDay(o.LastActivityDate, now) {
		o.QuestionsToday = 0
	}
	o.QuestionsToday++
	o.LastActivityDate = now

	recommendDifficulty(next, obs.Correct, now)
	return next, nil
}

func (a *Aggregator) sameDay(last, now time.Time) bool {
	if last.IsZero() {
		return false
	}
	ly, lm, ld := last.In(a.cfg.Location).Date()
	ny, nm, nd := now.In(a.cfg.Location).Date()
	return ly == ny && lm == nm && ld == nd
}

// classify recomputes both topic sets from scratch.
func classify(stats map[string]Stats) (weak, strong []string) {
	weak, strong = []string{}, []string{}
	for topic, s := range stats {
		switch {
		case s.Total >= StrongMinSamples && s.Accuracy >= StrongAccuracyAtLeast:
			strong = append(strong, topic)
		case s.Total >= WeakMinSamples && s.Accuracy < WeakAccuracyBelow:
			weak = append(weak, topic)
		}
	}
	slices.Sort(weak)
	slices.Sort(strong)
	return weak, strong
}

// recommendDifficulty moves the profile's adaptive level one step. Demotion
// wins when both conditions hold.
func recommendDifficulty(p *Profile, correct bool, now time.Time) {
	ad := &p.Adaptive
	if !ad.CurrentLevel.Valid() {
		ad.CurrentLevel = difficulty.Easy
	}
	if correct {
		ad.ConsecutiveCorrect++
		ad.ConsecutiveIncorrect = 0
	} else {
		ad.ConsecutiveIncorrect++
		ad.ConsecutiveCorrect = 0
	}

	level := ad.CurrentLevel
	if ad.ConsecutiveCorrect >= PromoteStreak && p.Overall.Accuracy >= PromoteAccuracy {
		if up, ok := ad.CurrentLevel.Next(); ok {
			level = up
		}
	}
	if ad.ConsecutiveIncorrect >= DemoteStreak || p.Overall.Accuracy < DemoteAccuracyBelow {
		if down, ok := ad.CurrentLevel.Prev(); ok {
			level = down
		}
	}

	if level != ad.CurrentLevel {
		ad.CurrentLevel = level
		ad.LastAdjustment = now
		ad.ConsecutiveCorrect = 0
		ad.ConsecutiveIncorrect = 0
	}
	p.Overall.RecommendedDifficulty = level
}
