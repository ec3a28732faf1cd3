package duty

import (
	"math"
	"time"
)

// overdueRamp is how long an open instance takes to reach its full
// penalty after its due time. Beyond it the penalty stays capped so an
// ancient overdue duty cannot drag the score down forever.
const overdueRamp = 7 * 24 * time.Hour

// latePenalty is the flat share of points a late completion still earns,
// independent of how late it was.
const latePenalty = 0.5

// WellbeingScore folds a ward's duty history into a 0-100 score.
// On-time completions contribute their full weight, late ones half,
// overdue open instances subtract linearly up to their full weight over
// seven days, and instances not yet due contribute nothing. No duties
// means nothing to be unhappy about: the score is 100.
func WellbeingScore(nowUTC time.Time, instances []Instance) int {
	var sum, total float64

	for idx := range instances {
		inst := &instances[idx]
		w := float64(inst.PointWeight)
		total += w

		switch {
		case inst.Status == StatusCompleted:
			if inst.CompletedLate() {
				sum += w * latePenalty
			} else {
				sum += w
			}
		case nowUTC.After(inst.DueAt):
			f := float64(nowUTC.Sub(inst.DueAt)) / float64(overdueRamp)
			if f > 1 {
				f = 1
			}
			sum -= w * f
		}
	}

	if total == 0 {
		return 100
	}

	score := int(math.Round(100 * sum / total))
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
