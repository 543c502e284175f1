package selection

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrExhausted     = errors.New("selection: no eligible item")
	ErrInvalidConfig = errors.New("selection: invalid config")
)

// Config weighs the criteria that rank candidate items.
type Config struct {
	MasteryWeight    float64 `json:"mastery_weight"`    // favours weak concepts
	OverdueWeight    float64 `json:"overdue_weight"`    // favours spaced-repetition urgency
	DifficultyWeight float64 `json:"difficulty_weight"` // penalises distance from the target difficulty

	// Target difficulty is p + Margin once a concept has evidence, and
	// p + ColdStartMargin before its first attempt.
	Margin          float64 `json:"margin"`
	ColdStartMargin float64 `json:"cold_start_margin"`

	// OverdueCap bounds the overdue ratio so very old reviews cannot
	// dominate the ranking.
	OverdueCap float64 `json:"overdue_cap"`
}

// DefaultConfig returns the default weights.
func DefaultConfig() Config {
	return Config{
		MasteryWeight:    1.0,
		OverdueWeight:    0.5,
		DifficultyWeight: 1.0,
		Margin:           0.1,
		ColdStartMargin:  0.0,
		OverdueCap:       1.0,
	}
}

// Validate reports the first parameter outside its domain.
func (c Config) Validate() error {
	for name, w := range map[string]float64{
		"mastery_weight":    c.MasteryWeight,
		"overdue_weight":    c.OverdueWeight,
		"difficulty_weight": c.DifficultyWeight,
	} {
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return fmt.Errorf("%w: %s must be a non-negative number", ErrInvalidConfig, name)
		}
	}
	if c.MasteryWeight+c.OverdueWeight+c.DifficultyWeight == 0 {
		return fmt.Errorf("%w: at least one weight must be positive", ErrInvalidConfig)
	}
	if math.Abs(c.Margin) > 1 || math.Abs(c.ColdStartMargin) > 1 {
		return fmt.Errorf("%w: margins must lie in [-1, 1]", ErrInvalidConfig)
	}
	if c.OverdueCap < 0 || math.IsNaN(c.OverdueCap) {
		return fmt.Errorf("%w: overdue_cap must be non-negative", ErrInvalidConfig)
	}
	return nil
}
