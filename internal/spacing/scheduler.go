// Package spacing decides when a learner should next see an item. Each
// (learner, item) pair runs a small ease-factor state machine driven only by
// attempt outcomes.
package spacing

import (
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/p-n-ai/pai-mastery/internal/attempt"
)

// Schedule is the review state of one item for one learner.
type Schedule struct {
	LearnerID     string        `json:"learner_id"`
	ItemID        string        `json:"item_id"`
	Phase         Phase         `json:"phase"`
	Repetitions   int           `json:"repetitions"` // consecutive successes
	Interval      time.Duration `json:"interval"`
	Ease          float64       `json:"ease"`
	DueAt         time.Time     `json:"due_at"`
	LastAttemptAt time.Time     `json:"last_attempt_at"`
	Lapses        int           `json:"lapses"`
}

// Due reports whether the item may be reviewed at now.
func (s Schedule) Due(now time.Time) bool {
	return !now.Before(s.DueAt)
}

// OverdueRatio is how far past due the item is, in units of its interval.
// It is zero for items not yet due.
func (s Schedule) OverdueRatio(now time.Time) float64 {
	if s.Interval <= 0 || !now.After(s.DueAt) {
		return 0
	}
	return float64(now.Sub(s.DueAt)) / float64(s.Interval)
}

// Scheduler tracks review schedules partitioned by learner.
type Scheduler struct {
	cfg      Config
	learners map[string]*partition
	mu       sync.RWMutex
}

type partition struct {
	mu        sync.Mutex
	schedules map[string]*Schedule
}

// NewScheduler validates cfg and creates an empty scheduler.
func NewScheduler(cfg Config) (*Scheduler, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Scheduler{cfg: cfg, learners: make(map[string]*partition)}, nil
}

// Config returns the effective configuration, defaults applied.
func (s *Scheduler) Config() Config {
	return s.cfg
}

// Schedule returns the learner's schedule for an item. The second result is
// false for items the learner has never attempted.
func (s *Scheduler) Schedule(learnerID, itemID string) (Schedule, bool) {
	part, ok := s.lookup(learnerID)
	if !ok {
		return Schedule{}, false
	}
	part.mu.Lock()
	defer part.mu.Unlock()

	sc, ok := part.schedules[itemID]
	if !ok {
		return Schedule{}, false
	}
	return *sc, true
}

// IsDue reports whether the item is eligible at now. Items never attempted
// are always due.
func (s *Scheduler) IsDue(learnerID, itemID string, now time.Time) bool {
	sc, ok := s.Schedule(learnerID, itemID)
	if !ok {
		return true
	}
	return sc.Due(now)
}

// Phase returns the state-machine phase of an item for a learner.
func (s *Scheduler) Phase(learnerID, itemID string) Phase {
	sc, ok := s.Schedule(learnerID, itemID)
	if !ok {
		return New
	}
	return sc.Phase
}

// OnAttempt advances the item's schedule from an attempt and returns it.
func (s *Scheduler) OnAttempt(a attempt.Attempt) Schedule {
	part := s.partition(a.LearnerID)
	part.mu.Lock()
	defer part.mu.Unlock()

	sc, ok := part.schedules[a.ItemID]
	if !ok {
		sc = &Schedule{
			LearnerID: a.LearnerID,
			ItemID:    a.ItemID,
			Ease:      s.cfg.InitialEase,
		}
		part.schedules[a.ItemID] = sc
	}
	*sc = s.cfg.advance(*sc, a.Score, a.At)
	return *sc
}

// advance applies one outcome. Successes grow the interval by the ease
// factor; a failure drops back to the base interval and lowers the ease.
func (c Config) advance(sc Schedule, score float64, at time.Time) Schedule {
	if score >= c.PassThreshold {
		if sc.Repetitions > 0 {
			sc.Ease = math.Min(c.MaxEase, sc.Ease+c.EaseBonus)
		}
		if sc.Repetitions == 0 || sc.Interval <= 0 {
			sc.Interval = c.BaseInterval
		} else {
			next := time.Duration(math.Round(float64(sc.Interval) * sc.Ease))
			sc.Interval = min(max(next, c.BaseInterval), c.MaxInterval)
		}
		sc.Repetitions++
	} else {
		sc.Ease = math.Max(c.MinEase, sc.Ease-c.EasePenalty)
		sc.Interval = c.BaseInterval
		sc.Repetitions = 0
		sc.Lapses++
	}

	sc.Phase = Learning
	if sc.Repetitions >= c.GraduateAfter {
		sc.Phase = Reviewing
	}
	sc.LastAttemptAt = at
	sc.DueAt = at.Add(sc.Interval)
	return sc
}

// Snapshot copies all of a learner's schedules, sorted by item ID.
func (s *Scheduler) Snapshot(learnerID string) []Schedule {
	part, ok := s.lookup(learnerID)
	if !ok {
		return nil
	}

	part.mu.Lock()
	out := make([]Schedule, 0, len(part.schedules))
	for _, sc := range part.schedules {
		out = append(out, *sc)
	}
	part.mu.Unlock()

	slices.SortFunc(out, func(a, b Schedule) int { return strings.Compare(a.ItemID, b.ItemID) })
	return out
}

// Restore replaces a learner's schedules, typically from a checkpoint.
// Ease values are clamped to the configured bounds.
func (s *Scheduler) Restore(learnerID string, schedules []Schedule) {
	part := s.partition(learnerID)
	part.mu.Lock()
	defer part.mu.Unlock()

	part.schedules = make(map[string]*Schedule, len(schedules))
	for _, sc := range schedules {
		sc.LearnerID = learnerID
		sc.Ease = min(max(sc.Ease, s.cfg.MinEase), s.cfg.MaxEase)
		part.schedules[sc.ItemID] = &sc
	}
}

// Learners returns the IDs of learners with any schedule, sorted.
func (s *Scheduler) Learners() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.learners))
	for id := range s.learners {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (s *Scheduler) lookup(learnerID string) (*partition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	part, ok := s.learners[learnerID]
	return part, ok
}

func (s *Scheduler) partition(learnerID string) *partition {
	if part, ok := s.lookup(learnerID); ok {
		return part
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if part, ok := s.learners[learnerID]; ok {
		return part
	}
	part := &partition{schedules: make(map[string]*Schedule)}
	s.learners[learnerID] = part
	return part
}
