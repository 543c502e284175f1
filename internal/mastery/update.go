package mastery

import (
	"math"

	"github.com/p-n-ai/pai-mastery/internal/catalog"
)

// rate is the learning rate applied to the attempt that follows n earlier
// attempts on the same concept. It decays hyperbolically so that early
// evidence moves the belief strongly and later evidence only refines it.
func (c Config) rate(n int) float64 {
	r := c.InitialRate / (1 + c.RateDecay*float64(n))
	return math.Max(r, math.Min(c.MinRate, c.InitialRate))
}

// evidence weighs an observation by how informative it is given the item.
// Succeeding on an item easier than the current belief, or failing one
// harder than it, says little; guessable formats dilute successes and
// slips dilute failures.
func (c Config) evidence(p float64, item catalog.Item, score float64) float64 {
	w := 1.0
	switch {
	case score > p:
		if item.Difficulty < p {
			w = 1 - (p-item.Difficulty)*c.EasyDiscount
		}
		w = math.Max(w, c.MinEvidence)
		w *= 1 - item.Kind.GuessRate()
	case score < p:
		if item.Difficulty > p {
			w = 1 - (item.Difficulty-p)*c.EasyDiscount
		}
		w = math.Max(w, c.MinEvidence)
		w *= 1 - c.Slip
	}
	return clamp01(w)
}

// fold applies one observation to st. The new belief is a blend of the old
// belief and the score, so it always lies between them: a score above p
// never lowers it and a score below p never raises it. A graded score is
// the target even when it passes the spacing threshold.
func (c Config) fold(st State, item catalog.Item, score float64) State {
	score = clamp01(score)
	p := clamp01(st.P)

	step := c.rate(st.Attempts) * c.evidence(p, item, score)
	st.P = clamp01(p + step*(score-p))
	st.Attempts++
	st.Uncertainty = clamp01(c.PriorUncertainty / math.Sqrt(float64(st.Attempts)+1))
	return st
}

func clamp01(x float64) float64 {
	if math.IsNaN(x) {
		return 0
	}
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
