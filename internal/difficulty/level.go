package difficulty

import (
	"fmt"
	"strings"
)

// Level is the canonical difficulty representation used inside the engine.
// Item banks speak the numeric 1-10 scale; convert at the boundary with
// Score, LevelOf and Band.
type Level int

const (
	Easy Level = iota
	Medium
	Hard
	Advanced
)

// Levels lists every level in ascending order.
var Levels = []Level{Easy, Medium, Hard, Advanced}

const (
	// MinScore is the lowest numeric difficulty an item may carry.
	MinScore = 1

	// MaxScore is the highest numeric difficulty an item may carry.
	MaxScore = 10
)

var levelNames = map[Level]string{
	Easy:     "easy",
	Medium:   "medium",
	Hard:     "hard",
	Advanced: "advanced",
}

// levelScores holds the canonical numeric centre of each level.
var levelScores = map[Level]int{
	Easy:     3,
	Medium:   6,
	Hard:     9,
	Advanced: 10,
}

// levelBands overlap on purpose so adjacent levels share items.
var levelBands = map[Level]Band{
	Easy:     {Min: 1, Max: 5},
	Medium:   {Min: 3, Max: 8},
	Hard:     {Min: 6, Max: 10},
	Advanced: {Min: 8, Max: 10},
}

// String returns the level name.
func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// Valid reports whether l is one of the defined levels.
func (l Level) Valid() bool {
	return l >= Easy && l <= Advanced
}

// Score returns the canonical numeric difficulty for the level.
func (l Level) Score() int {
	return levelScores[l.clamp()]
}

// Band returns the inclusive numeric range eligible at this level.
func (l Level) Band() Band {
	return levelBands[l.clamp()]
}

// Next returns the level above l and whether a promotion is possible.
func (l Level) Next() (Level, bool) {
	if l >= Advanced {
		return Advanced, false
	}
	return l + 1, true
}

// Prev returns the level below l and whether a demotion is possible.
func (l Level) Prev() (Level, bool) {
	if l <= Easy {
		return Easy, false
	}
	return l - 1, true
}

func (l Level) clamp() Level {
	switch {
	case l < Easy:
		return Easy
	case l > Advanced:
		return Advanced
	}
	return l
}

// MarshalText encodes the level as its name.
func (l Level) MarshalText() ([]byte, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("invalid difficulty level %d", int(l))
	}
	return []byte(l.String()), nil
}

// UnmarshalText decodes a level name.
func (l *Level) UnmarshalText(b []byte) error {
	parsed, err := ParseLevel(string(b))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// ParseLevel parses a level name (case-insensitive).
func ParseLevel(s string) (Level, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for l, n := range levelNames {
		if n == name {
			return l, nil
		}
	}
	return Easy, fmt.Errorf("unknown difficulty level %q", s)
}

// LevelOf maps a numeric difficulty to its level:
// 1-3 easy, 4-6 medium, 7-9 hard, 10 advanced.
// LevelOf(l.Score()) == l for every level.
func LevelOf(score int) Level {
	switch {
	case score <= levelScores[Easy]:
		return Easy
	case score <= levelScores[Medium]:
		return Medium
	case score <= levelScores[Hard]:
		return Hard
	default:
		return Advanced
	}
}

// ClampScore forces a numeric difficulty into [MinScore, MaxScore].
func ClampScore(score int) int {
	if score < MinScore {
		return MinScore
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}
