// Package recovery rebuilds mastery and review schedules from the attempt
// log. Checkpoints are materialised views of a learner's state at a log
// position; the log always wins.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/p-n-ai/pai-mastery/internal/attempt"
	"github.com/p-n-ai/pai-mastery/internal/catalog"
	"github.com/p-n-ai/pai-mastery/internal/mastery"
	"github.com/p-n-ai/pai-mastery/internal/spacing"
)

var ErrDigestMismatch = errors.New("recovery: checkpoint does not match the attempt log")

// Checkpoint is a learner's full numeric state after folding every attempt
// up to LastSeq.
type Checkpoint struct {
	LearnerID     string             `json:"learner_id"`
	Mastery       []mastery.State    `json:"mastery"`
	Schedules     []spacing.Schedule `json:"schedules"`
	LastSeq       int64              `json:"last_seq"`
	LastAttemptAt time.Time          `json:"last_attempt_at,omitzero"`
	Folded        int                `json:"folded"`
	Digest        string             `json:"digest"`
	CreatedAt     time.Time          `json:"created_at"`
}

// Projection folds attempts into fresh stores, tracking per-learner log
// positions and digests.
type Projection struct {
	Mastery   *mastery.Store
	Schedules *spacing.Scheduler

	mu      sync.Mutex
	cursors map[string]*cursor
}

type cursor struct {
	lastSeq int64
	lastAt  time.Time
	folded  int
	chain   Chain
}

// NewProjection creates empty stores over the catalog.
func NewProjection(items *catalog.Catalog, mcfg mastery.Config, scfg spacing.Config) (*Projection, error) {
	m, err := mastery.NewStore(mcfg, items)
	if err != nil {
		return nil, err
	}
	s, err := spacing.NewScheduler(scfg)
	if err != nil {
		return nil, err
	}
	return &Projection{Mastery: m, Schedules: s, cursors: make(map[string]*cursor)}, nil
}

// Restore seeds a learner from a checkpoint.
func (p *Projection) Restore(cp Checkpoint) error {
	chain, err := ParseChain(cp.Digest)
	if err != nil {
		return err
	}
	p.Mastery.Restore(cp.LearnerID, cp.Mastery)
	p.Schedules.Restore(cp.LearnerID, cp.Schedules)

	p.mu.Lock()
	p.cursors[cp.LearnerID] = &cursor{
		lastSeq: cp.LastSeq,
		lastAt:  cp.LastAttemptAt,
		folded:  cp.Folded,
		chain:   chain,
	}
	p.mu.Unlock()
	return nil
}

// Apply folds one attempt. Attempts at or before the learner's position
// are skipped, so a tail may overlap a checkpoint.
func (p *Projection) Apply(a attempt.Attempt) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	cur, ok := p.cursors[a.LearnerID]
	if !ok {
		cur = &cursor{}
		p.cursors[a.LearnerID] = cur
	}
	if a.Seq <= cur.lastSeq {
		return nil
	}

	if _, err := p.Mastery.Update(a); err != nil {
		return fmt.Errorf("replay attempt %d: %w", a.Seq, err)
	}
	p.Schedules.OnAttempt(a)

	cur.lastSeq = a.Seq
	cur.lastAt = a.At
	cur.folded++
	cur.chain = cur.chain.Next(a)
	return nil
}

// Checkpoint captures a learner's projected state.
func (p *Projection) Checkpoint(learnerID string, now time.Time) Checkpoint {
	cp := Checkpoint{
		LearnerID: learnerID,
		Mastery:   p.Mastery.Snapshot(learnerID),
		Schedules: p.Schedules.Snapshot(learnerID),
		CreatedAt: now,
	}

	p.mu.Lock()
	if cur, ok := p.cursors[learnerID]; ok {
		cp.LastSeq = cur.lastSeq
		cp.LastAttemptAt = cur.lastAt
		cp.Folded = cur.folded
		cp.Digest = cur.chain.String()
	}
	p.mu.Unlock()
	return cp
}

// Learners returns every learner the projection has folded or restored.
func (p *Projection) Learners() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	ids := make([]string, 0, len(p.cursors))
	for id := range p.cursors {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Replay folds the whole log into p.
func Replay(ctx context.Context, log attempt.Log, p *Projection) error {
	return log.Range(ctx, 0, p.Apply)
}
