package attempt

import (
	"context"
	"slices"
	"sync"
)

// Log persists attempts in arrival order. Append assigns Seq, which is
// strictly increasing across the whole log.
type Log interface {
	Append(ctx context.Context, a Attempt) (Attempt, error)
	// ForLearner returns the learner's attempts with Seq > afterSeq, in Seq order.
	ForLearner(ctx context.Context, learnerID string, afterSeq int64) ([]Attempt, error)
	// Range calls fn for every attempt with Seq > afterSeq, in Seq order.
	Range(ctx context.Context, afterSeq int64, fn func(Attempt) error) error
}

// MemoryLog is an in-memory implementation of Log.
type MemoryLog struct {
	attempts []Attempt
	mu       sync.RWMutex
}

// NewMemoryLog creates an empty in-memory log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{}
}

func (l *MemoryLog) Append(_ context.Context, a Attempt) (Attempt, error) {
	if err := a.Validate(); err != nil {
		return Attempt{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	a.Seq = int64(len(l.attempts)) + 1
	l.attempts = append(l.attempts, a)
	return a, nil
}

func (l *MemoryLog) ForLearner(_ context.Context, learnerID string, afterSeq int64) ([]Attempt, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Attempt
	for _, a := range l.after(afterSeq) {
		if a.LearnerID == learnerID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (l *MemoryLog) Range(ctx context.Context, afterSeq int64, fn func(Attempt) error) error {
	l.mu.RLock()
	snapshot := slices.Clone(l.after(afterSeq))
	l.mu.RUnlock()

	for _, a := range snapshot {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(a); err != nil {
			return err
		}
	}
	return nil
}

// after relies on Seq being the 1-based slice position.
func (l *MemoryLog) after(seq int64) []Attempt {
	if seq < 0 {
		seq = 0
	}
	if seq >= int64(len(l.attempts)) {
		return nil
	}
	return l.attempts[seq:]
}

// Len returns the number of attempts recorded.
func (l *MemoryLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.attempts)
}
