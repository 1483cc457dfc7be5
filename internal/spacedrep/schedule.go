package spacedrep

// DefaultFreshnessWindowDays is how long an attempted item stays out of
// rotation before it becomes eligible for review again.
const DefaultFreshnessWindowDays = 7

// BoostStep adds Boost to a missed item's priority once AfterDays have
// elapsed since the miss.
type BoostStep struct {
	AfterDays float64
	Boost     int
}

// MissBoostSchedule is the cumulative boost ladder for missed items.
// Misses under a day old get nothing so the learner is not shown the same
// item straight after getting it wrong.
var MissBoostSchedule = []BoostStep{
	{AfterDays: 1, Boost: 3},
	{AfterDays: 3, Boost: 2},
}

// MissBoost returns the total boost for an item missed daysSince days ago.
func MissBoost(daysSince float64) int {
	boost := 0
	for _, step := range MissBoostSchedule {
		if daysSince >= step.AfterDays {
			boost += step.Boost
		}
	}
	return boost
}
