package mastery

import (
	"errors"
	"fmt"
)

var ErrInvalidConfig = errors.New("mastery: invalid config")

// Config tunes the belief update. DefaultConfig returns the recommended values.
type Config struct {
	PriorP           float64 // belief assigned before any evidence
	PriorUncertainty float64 // uncertainty before any evidence, shrinks with attempts

	InitialRate float64 // learning rate of the first attempt on a concept
	RateDecay   float64 // rate_n = InitialRate / (1 + RateDecay*n)
	MinRate     float64 // floor for rate_n

	EasyDiscount float64 // evidence lost per unit of difficulty gap
	MinEvidence  float64 // floor for the difficulty-weighted evidence
	Slip         float64 // chance a learner who knows the concept still answers wrong
}

// DefaultConfig returns the default update parameters.
func DefaultConfig() Config {
	return Config{
		PriorP:           0.3,
		PriorUncertainty: 1.0,
		InitialRate:      0.5,
		RateDecay:        0.5,
		MinRate:          0.05,
		EasyDiscount:     1.0,
		MinEvidence:      0.2,
		Slip:             0.1,
	}
}

// Validate reports whether every parameter is inside its domain.
func (c Config) Validate() error {
	checks := []struct {
		name   string
		v      float64
		lo, hi float64
	}{
		{"prior_p", c.PriorP, 0, 1},
		{"prior_uncertainty", c.PriorUncertainty, 0, 1},
		{"initial_rate", c.InitialRate, 0, 1},
		{"min_rate", c.MinRate, 0, 1},
		{"min_evidence", c.MinEvidence, 0, 1},
		{"slip", c.Slip, 0, 0.5},
	}
	for _, ch := range checks {
		if ch.v < ch.lo || ch.v > ch.hi || ch.v != ch.v {
			return fmt.Errorf("%w: %s = %v, bounds [%v, %v]", ErrInvalidConfig, ch.name, ch.v, ch.lo, ch.hi)
		}
	}
	if c.RateDecay < 0 {
		return fmt.Errorf("%w: rate_decay must be non-negative", ErrInvalidConfig)
	}
	if c.EasyDiscount < 0 {
		return fmt.Errorf("%w: easy_discount must be non-negative", ErrInvalidConfig)
	}
	if c.InitialRate <= 0 {
		return fmt.Errorf("%w: initial_rate must be positive", ErrInvalidConfig)
	}
	return nil
}
