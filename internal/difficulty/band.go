package difficulty

import "fmt"

// Band is an inclusive numeric difficulty range.
type Band struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// FullBand covers the whole numeric scale.
var FullBand = Band{Min: MinScore, Max: MaxScore}

// BandAround returns [score-radius, score+radius] clamped to the scale.
func BandAround(score, radius int) Band {
	if radius < 0 {
		radius = 0
	}
	return Band{
		Min: ClampScore(score - radius),
		Max: ClampScore(score + radius),
	}
}

// Contains reports whether score falls inside the band.
func (b Band) Contains(score int) bool {
	return score >= b.Min && score <= b.Max
}

// IsFull reports whether the band spans the whole scale.
func (b Band) IsFull() bool {
	return b.Min <= MinScore && b.Max >= MaxScore
}

// Validate checks the band is well formed and within the scale.
func (b Band) Validate() error {
	if b.Min > b.Max {
		return fmt.Errorf("band min %d exceeds max %d", b.Min, b.Max)
	}
	if b.Min < MinScore || b.Max > MaxScore {
		return fmt.Errorf("band [%d,%d] outside [%d,%d]", b.Min, b.Max, MinScore, MaxScore)
	}
	return nil
}

func (b Band) String() string {
	return fmt.Sprintf("[%d,%d]", b.Min, b.Max)
}
