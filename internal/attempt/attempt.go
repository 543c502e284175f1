// Package attempt holds the append-only attempt log, the single source of
// truth from which mastery and review schedules are derived.
package attempt

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var ErrInvalidAttempt = errors.New("attempt: invalid attempt")

// Attempt is one learner response to one item.
type Attempt struct {
	Seq       int64         `json:"seq"`
	LearnerID string        `json:"learner_id"`
	ItemID    string        `json:"item_id"`
	SessionID string        `json:"session_id,omitempty"`
	Score     float64       `json:"score"` // 0..1, 1 is fully correct
	Latency   time.Duration `json:"latency"`
	At        time.Time     `json:"at"`
}

// Validate checks the fields every log backend requires.
func (a Attempt) Validate() error {
	switch {
	case a.LearnerID == "":
		return fmt.Errorf("%w: learner_id is required", ErrInvalidAttempt)
	case a.ItemID == "":
		return fmt.Errorf("%w: item_id is required", ErrInvalidAttempt)
	case math.IsNaN(a.Score) || a.Score < 0 || a.Score > 1:
		return fmt.Errorf("%w: score %v out of range [0, 1]", ErrInvalidAttempt, a.Score)
	case a.Latency < 0:
		return fmt.Errorf("%w: negative latency", ErrInvalidAttempt)
	case a.At.IsZero():
		return fmt.Errorf("%w: timestamp is required", ErrInvalidAttempt)
	}
	return nil
}
