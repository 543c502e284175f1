// Package mastery maintains per-learner, per-concept beliefs that the
// learner has internalised a concept, updated from attempts.
package mastery

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/p-n-ai/pai-mastery/internal/attempt"
	"github.com/p-n-ai/pai-mastery/internal/catalog"
)

// State is the belief about one learner's grasp of one concept.
type State struct {
	LearnerID   string    `json:"learner_id"`
	ConceptID   string    `json:"concept_id"`
	P           float64   `json:"p"`           // probability of mastery, 0..1
	Uncertainty float64   `json:"uncertainty"` // 1 with no evidence, shrinks with attempts
	Attempts    int       `json:"attempts"`
	UpdatedAt   time.Time `json:"updated_at"` // time of the last attempt folded in
}

// ItemLookup resolves items and concepts referenced by attempts.
type ItemLookup interface {
	Get(itemID string) (catalog.Item, error)
	Concept(conceptID string) (catalog.Concept, error)
}

// Store holds mastery state partitioned by learner. Different learners
// never contend; updates for one learner are serialised by its partition.
type Store struct {
	cfg      Config
	items    ItemLookup
	learners map[string]*partition
	mu       sync.RWMutex
}

type partition struct {
	mu     sync.Mutex
	states map[string]*State
}

// NewStore creates a store resolving items through items.
func NewStore(cfg Config, items ItemLookup) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if items == nil {
		return nil, fmt.Errorf("mastery: item lookup is nil")
	}
	return &Store{
		cfg:      cfg,
		items:    items,
		learners: make(map[string]*partition),
	}, nil
}

// Config returns the update parameters the store was built with.
func (s *Store) Config() Config {
	return s.cfg
}

// Prior returns the state a learner starts from on a concept.
func (s *Store) Prior(learnerID, conceptID string) State {
	return State{
		LearnerID:   learnerID,
		ConceptID:   conceptID,
		P:           s.cfg.PriorP,
		Uncertainty: s.cfg.PriorUncertainty,
	}
}

// GetState returns the learner's state for a concept, creating the prior
// on first access. Unknown concepts fail with catalog.ErrNotFound.
func (s *Store) GetState(learnerID, conceptID string) (State, error) {
	if _, err := s.items.Concept(conceptID); err != nil {
		return State{}, err
	}

	part := s.partition(learnerID)
	part.mu.Lock()
	defer part.mu.Unlock()

	return *part.getOrCreate(s, learnerID, conceptID), nil
}

// Peek returns the learner's state for a concept without creating it.
func (s *Store) Peek(learnerID, conceptID string) State {
	s.mu.RLock()
	part, ok := s.learners[learnerID]
	s.mu.RUnlock()
	if !ok {
		return s.Prior(learnerID, conceptID)
	}

	part.mu.Lock()
	defer part.mu.Unlock()
	if st, ok := part.states[conceptID]; ok {
		return *st
	}
	return s.Prior(learnerID, conceptID)
}

// Update folds an attempt into the state of the attempted item's concept.
// The update is deterministic: the same attempt sequence always yields the
// same states.
func (s *Store) Update(a attempt.Attempt) (State, error) {
	item, err := s.items.Get(a.ItemID)
	if err != nil {
		return State{}, fmt.Errorf("update mastery: %w", err)
	}

	part := s.partition(a.LearnerID)
	part.mu.Lock()
	defer part.mu.Unlock()

	st := part.getOrCreate(s, a.LearnerID, item.ConceptID)
	*st = s.cfg.fold(*st, item, a.Score)
	st.UpdatedAt = a.At
	return *st, nil
}

// Mastery returns the learner's belief per concept for every concept the
// learner has state for.
func (s *Store) Mastery(learnerID string) map[string]float64 {
	out := make(map[string]float64)
	for _, st := range s.Snapshot(learnerID) {
		out[st.ConceptID] = st.P
	}
	return out
}

// Snapshot copies all of a learner's states, sorted by concept ID.
func (s *Store) Snapshot(learnerID string) []State {
	s.mu.RLock()
	part, ok := s.learners[learnerID]
	s.mu.RUnlock()
	if !ok {
		return nil
	}

	part.mu.Lock()
	out := make([]State, 0, len(part.states))
	for _, st := range part.states {
		out = append(out, *st)
	}
	part.mu.Unlock()

	slices.SortFunc(out, func(a, b State) int { return strings.Compare(a.ConceptID, b.ConceptID) })
	return out
}

// Restore replaces a learner's states, typically from a checkpoint.
func (s *Store) Restore(learnerID string, states []State) {
	part := s.partition(learnerID)
	part.mu.Lock()
	defer part.mu.Unlock()

	part.states = make(map[string]*State, len(states))
	for _, st := range states {
		st.LearnerID = learnerID
		st.P = clamp01(st.P)
		st.Uncertainty = clamp01(st.Uncertainty)
		part.states[st.ConceptID] = &st
	}
}

// Learners returns the IDs of learners with any state, sorted.
func (s *Store) Learners() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.learners))
	for id := range s.learners {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// HasLearner reports whether the store holds any state for a learner.
func (s *Store) HasLearner(learnerID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.learners[learnerID]
	return ok
}

func (s *Store) partition(learnerID string) *partition {
	s.mu.RLock()
	part, ok := s.learners[learnerID]
	s.mu.RUnlock()
	if ok {
		return part
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if part, ok := s.learners[learnerID]; ok {
		return part
	}
	part = &partition{states: make(map[string]*State)}
	s.learners[learnerID] = part
	return part
}

// getOrCreate must be called with p.mu held.
func (p *partition) getOrCreate(s *Store, learnerID, conceptID string) *State {
	st, ok := p.states[conceptID]
	if !ok {
		prior := s.Prior(learnerID, conceptID)
		st = &prior
		p.states[conceptID] = st
	}
	return st
}
