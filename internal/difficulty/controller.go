package difficulty

import (
	"slices"
	"time"
)

const (
	// DefaultConfidenceBoostThreshold is the consecutive-correct count needed to promote.
	DefaultConfidenceBoostThreshold = 2

	// DefaultFastAnswerThreshold is the slowest answer that still counts toward promotion.
	DefaultFastAnswerThreshold = 10 * time.Second

	// DefaultDropThreshold is the consecutive-incorrect count that triggers a demotion.
	DefaultDropThreshold = 1
)

// Change reasons recorded in the session change log.
const (
	ReasonFastAndConfident = "fast and confident"
	ReasonEasing           = "incorrect — easing difficulty"
)

// Config holds the controller thresholds. Promotion and demotion are
// deliberately asymmetric; both sides are tunable per deployment.
type Config struct {
	ConfidenceBoostThreshold int           `mapstructure:"confidence_boost_threshold"`
	FastAnswerThreshold      time.Duration `mapstructure:"fast_answer_threshold"`
	DropThreshold            int           `mapstructure:"drop_threshold"`
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		ConfidenceBoostThreshold: DefaultConfidenceBoostThreshold,
		FastAnswerThreshold:      DefaultFastAnswerThreshold,
		DropThreshold:            DefaultDropThreshold,
	}
}

func (c Config) normalized() Config {
	if c.ConfidenceBoostThreshold < 1 {
		c.ConfidenceBoostThreshold = 1
	}
	if c.DropThreshold < 1 {
		c.DropThreshold = 1
	}
	if c.FastAnswerThreshold < 0 {
		c.FastAnswerThreshold = 0
	}
	return c
}

// Session is the per-assessment controller state. It is owned by the
// session that created it and discarded when that session ends.
type Session struct {
	Level                Level    `json:"level"`
	ConsecutiveCorrect   int      `json:"consecutive_correct"`
	ConsecutiveIncorrect int      `json:"consecutive_incorrect"`
	ChangeLog            []Change `json:"change_log,omitempty"`
}

// NewSession starts a controller session at the given level.
func NewSession(start Level) Session {
	return Session{Level: start.clamp()}
}

// Change records a single level transition.
type Change struct {
	AtIndex int       `json:"at_index"`
	From    Level     `json:"from"`
	To      Level     `json:"to"`
	Reason  string    `json:"reason"`
	When    time.Time `json:"when"`
}

// Promoted reports whether the change raised the level.
func (c Change) Promoted() bool {
	return c.To > c.From
}

// Signal is one answered item as seen by the controller.
type Signal struct {
	// Index is the position of the answered item within the session.
	Index     int
	Correct   bool
	TimeSpent time.Duration
}

// Controller applies the difficulty state machine. It holds no per-session
// state; every call is a pure function of its inputs and the clock.
type Controller struct {
	cfg Config
	now func() time.Time
}

// NewController creates a controller. A nil clock defaults to time.Now.
func NewController(cfg Config, now func() time.Time) *Controller {
	if now == nil {
		now = time.Now
	}
	return &Controller{cfg: cfg.normalized(), now: now}
}

// Config returns the effective thresholds.
func (c *Controller) Config() Config {
	return c.cfg
}

// Transition evaluates one answer and returns the next session state, plus
// the change that fired, if any. Only one branch can fire per call.
func (c *Controller) Transition(s Session, sig Signal) (Session, *Change) {
	next := s
	next.Level = s.Level.clamp()
	next.ChangeLog = slices.Clone(s.ChangeLog)

	var change *Change
	if sig.Correct {
		next.ConsecutiveCorrect++
		next.ConsecutiveIncorrect = 0
		if next.ConsecutiveCorrect >= c.cfg.ConfidenceBoostThreshold &&
			sig.TimeSpent <= c.cfg.FastAnswerThreshold {
			if to, ok := next.Level.Next(); ok {
				change = c.record(&next, sig.Index, to, ReasonFastAndConfident)
				next.ConsecutiveCorrect = 0
			}
		}
	} else {
		next.ConsecutiveIncorrect++
		next.ConsecutiveCorrect = 0
		if next.ConsecutiveIncorrect >= c.cfg.DropThreshold {
			if to, ok := next.Level.Prev(); ok {
				change = c.record(&next, sig.Index, to, ReasonEasing)
				next.ConsecutiveIncorrect = 0
			}
		}
	}
	return next, change
}

func (c *Controller) record(s *Session, index int, to Level, reason string) *Change {
	ch := Change{
		AtIndex: index,
		From:    s.Level,
		To:      to,
		Reason:  reason,
		When:    c.now(),
	}
	s.Level = to
	s.ChangeLog = append(s.ChangeLog, ch)
	return &ch
}
