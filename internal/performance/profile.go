package performance

import (
	"maps"
	"slices"
	"time"

	"github.com/abhisek/assessor/internal/difficulty"
)

// Classification thresholds for weak and strong topics. Accuracy is the
// rounded percentage; the thresholds cannot overlap since 60 < 80.
const (
	WeakAccuracyBelow     = 60
	WeakMinSamples        = 3
	StrongAccuracyAtLeast = 80
	StrongMinSamples      = 5
)

// DefaultDailyGoal is the number of answers per day a new profile aims for.
const DefaultDailyGoal = 10

// Stats is a rolling accuracy and latency aggregate.
type Stats struct {
	Total       int       `json:"total"`
	Correct     int       `json:"correct"`
	Accuracy    int       `json:"accuracy"`
	AvgTime     float64   `json:"avg_time"`
	LastUpdated time.Time `json:"last_updated"`
}

// record folds one observation into the aggregate using a running mean.
func (s *Stats) record(correct bool, timeSpent float64, now time.Time) {
	s.Total++
	if correct {
		s.Correct++
	}
	s.Accuracy = accuracyPercent(s.Correct, s.Total)
	s.AvgTime = (s.AvgTime*float64(s.Total-1) + timeSpent) / float64(s.Total)
	s.LastUpdated = now
}

// Overall holds cross-topic totals plus streak and daily counters.
type Overall struct {
	Total                 int              `json:"total"`
	Correct               int              `json:"correct"`
	Accuracy              int              `json:"accuracy"`
	AvgTime               float64          `json:"avg_time"`
	CurrentStreak         int              `json:"current_streak"`
	LongestStreak         int              `json:"longest_streak"`
	WeakTopics            []string         `json:"weak_topics"`
	StrongTopics          []string         `json:"strong_topics"`
	RecommendedDifficulty difficulty.Level `json:"recommended_difficulty"`
	QuestionsToday        int              `json:"questions_today"`
	DailyGoal             int              `json:"daily_goal"`
	LastActivityDate      time.Time        `json:"last_activity_date"`
}

// Adaptive tracks the long-lived difficulty recommendation across sessions.
type Adaptive struct {
	CurrentLevel         difficulty.Level `json:"current_level"`
	ConsecutiveCorrect   int              `json:"consecutive_correct"`
	ConsecutiveIncorrect int              `json:"consecutive_incorrect"`
	LastAdjustment       time.Time        `json:"last_adjustment"`
}

// Profile is the per (user, domain) performance model.
type Profile struct {
	UserID          string                     `json:"user_id"`
	Domain          string                     `json:"domain"`
	TopicStats      map[string]Stats           `json:"topic_stats"`
	DifficultyStats map[difficulty.Level]Stats `json:"difficulty_stats"`
	Overall         Overall                    `json:"overall"`
	Adaptive        Adaptive                   `json:"adaptive"`
}

// NewProfile creates an empty profile for a (user, domain) pair.
func NewProfile(userID, domain string) *Profile {
	return &Profile{
		UserID:          userID,
		Domain:          domain,
		TopicStats:      make(map[string]Stats),
		DifficultyStats: make(map[difficulty.Level]Stats),
		Overall: Overall{
			RecommendedDifficulty: difficulty.Easy,
			DailyGoal:             DefaultDailyGoal,
			WeakTopics:            []string{},
			StrongTopics:          []string{},
		},
		Adaptive: Adaptive{CurrentLevel: difficulty.Easy},
	}
}

// Clone returns a deep copy of the profile.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	c := *p
	c.TopicStats = maps.Clone(p.TopicStats)
	if c.TopicStats == nil {
		c.TopicStats = make(map[string]Stats)
	}
	c.DifficultyStats = maps.Clone(p.DifficultyStats)
	if c.DifficultyStats == nil {
		c.DifficultyStats = make(map[difficulty.Level]Stats)
	}
	c.Overall.WeakTopics = slices.Clone(p.Overall.WeakTopics)
	c.Overall.StrongTopics = slices.Clone(p.Overall.StrongTopics)
	return &c
}

// IsWeak reports whether topic is currently classified weak.
func (p *Profile) IsWeak(topic string) bool {
	if p == nil {
		return false
	}
	return slices.Contains(p.Overall.WeakTopics, topic)
}

// IsStrong reports whether topic is currently classified strong.
func (p *Profile) IsStrong(topic string) bool {
	if p == nil {
		return false
	}
	return slices.Contains(p.Overall.StrongTopics, topic)
}

// GoalMet reports whether today's answer count reached the daily goal.
func (p *Profile) GoalMet() bool {
	return p.Overall.DailyGoal > 0 && p.Overall.QuestionsToday >= p.Overall.DailyGoal
}

// Topics returns the tracked topic names in sorted order.
func (p *Profile) Topics() []string {
	return slices.Sorted(maps.Keys(p.TopicStats))
}

func accuracyPercent(correct, total int) int {
	if total == 0 {
		return 0
	}
	// Half rounds up; values are never negative.
	return (200*correct + total) / (2 * total)
}
