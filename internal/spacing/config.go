package spacing

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidConfig = errors.New("spacing: invalid config")

// Config configures a Scheduler.
// Zero values produce sensible defaults; see field comments.
type Config struct {
	PassThreshold float64       `json:"pass_threshold"` // zero → 0.6
	InitialEase   float64       `json:"initial_ease"`   // zero → 2.0
	MinEase       float64       `json:"min_ease"`       // zero → 1.3
	MaxEase       float64       `json:"max_ease"`       // zero → 2.5
	EaseBonus     float64       `json:"ease_bonus"`     // zero → 0.05, applied on consecutive successes
	EasePenalty   float64       `json:"ease_penalty"`   // zero → 0.2, applied on failure
	BaseInterval  time.Duration `json:"base_interval"`  // zero → 24h, the minimum interval
	MaxInterval   time.Duration `json:"max_interval"`   // zero → 365 days
	GraduateAfter int           `json:"graduate_after"` // zero → 2 repetitions
}

func (c Config) withDefaults() Config {
	if c.PassThreshold == 0 {
		c.PassThreshold = 0.6
	}
	if c.InitialEase == 0 {
		c.InitialEase = 2.0
	}
	if c.MinEase == 0 {
		c.MinEase = 1.3
	}
	if c.MaxEase == 0 {
		c.MaxEase = 2.5
	}
	if c.EaseBonus == 0 {
		c.EaseBonus = 0.05
	}
	if c.EasePenalty == 0 {
		c.EasePenalty = 0.2
	}
	if c.BaseInterval == 0 {
		c.BaseInterval = 24 * time.Hour
	}
	if c.MaxInterval == 0 {
		c.MaxInterval = 365 * 24 * time.Hour
	}
	if c.GraduateAfter == 0 {
		c.GraduateAfter = 2
	}
	return c
}

func (c Config) validate() error {
	switch {
	case c.PassThreshold <= 0 || c.PassThreshold > 1:
		return fmt.Errorf("%w: pass threshold %v out of range (0, 1]", ErrInvalidConfig, c.PassThreshold)
	case c.MinEase < 1:
		return fmt.Errorf("%w: min ease %v must be at least 1", ErrInvalidConfig, c.MinEase)
	case c.MaxEase < c.MinEase:
		return fmt.Errorf("%w: max ease %v below min ease %v", ErrInvalidConfig, c.MaxEase, c.MinEase)
	case c.InitialEase < c.MinEase || c.InitialEase > c.MaxEase:
		return fmt.Errorf("%w: initial ease %v outside [%v, %v]", ErrInvalidConfig, c.InitialEase, c.MinEase, c.MaxEase)
	case c.EaseBonus < 0 || c.EasePenalty < 0:
		return fmt.Errorf("%w: ease adjustments must be non-negative", ErrInvalidConfig)
	case c.BaseInterval < 0:
		return fmt.Errorf("%w: base interval %v must be non-negative", ErrInvalidConfig, c.BaseInterval)
	case c.MaxInterval < c.BaseInterval:
		return fmt.Errorf("%w: max interval %v below base interval %v", ErrInvalidConfig, c.MaxInterval, c.BaseInterval)
	case c.GraduateAfter < 0:
		return fmt.Errorf("%w: graduate_after must be non-negative", ErrInvalidConfig)
	}
	return nil
}

// Validate reports whether the configuration, with defaults applied, is usable.
func (c Config) Validate() error {
	return c.withDefaults().validate()
}
