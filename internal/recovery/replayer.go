package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/p-n-ai/pai-mastery/internal/attempt"
	"github.com/p-n-ai/pai-mastery/internal/catalog"
	"github.com/p-n-ai/pai-mastery/internal/mastery"
	"github.com/p-n-ai/pai-mastery/internal/spacing"
)

// ReplayerConfig holds the replayer dependencies.
type ReplayerConfig struct {
	Catalog   *catalog.Catalog
	Mastery   mastery.Config
	Spacing   spacing.Config
	Log       attempt.Log
	Snapshots SnapshotStore // nil → MemorySnapshotStore
	Now       func() time.Time
}

// Replayer rebuilds learner state from checkpoints and the attempt log.
type Replayer struct {
	catalog   *catalog.Catalog
	mcfg      mastery.Config
	scfg      spacing.Config
	log       attempt.Log
	snapshots SnapshotStore
	now       func() time.Time
}

// NewReplayer validates the configuration and creates a replayer.
func NewReplayer(cfg ReplayerConfig) (*Replayer, error) {
	if cfg.Catalog == nil || cfg.Log == nil {
		return nil, fmt.Errorf("recovery: catalog and log are required")
	}
	if _, err := NewProjection(cfg.Catalog, cfg.Mastery, cfg.Spacing); err != nil {
		return nil, err
	}
	snapshots := cfg.Snapshots
	if snapshots == nil {
		snapshots = NewMemorySnapshotStore()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Replayer{
		catalog:   cfg.Catalog,
		mcfg:      cfg.Mastery,
		scfg:      cfg.Spacing,
		log:       cfg.Log,
		snapshots: snapshots,
		now:       now,
	}, nil
}

// Rebuild returns the learner's current state: the latest checkpoint with
// the log tail after it folded in.
func (r *Replayer) Rebuild(ctx context.Context, learnerID string) (Checkpoint, error) {
	p, err := NewProjection(r.catalog, r.mcfg, r.scfg)
	if err != nil {
		return Checkpoint{}, err
	}

	cp, ok, err := r.snapshots.Latest(ctx, learnerID)
	if err != nil {
		return Checkpoint{}, err
	}
	var after int64
	if ok {
		if err := p.Restore(cp); err != nil {
			return Checkpoint{}, err
		}
		after = cp.LastSeq
	}
	if err := r.fold(ctx, p, learnerID, after); err != nil {
		return Checkpoint{}, err
	}
	return p.Checkpoint(learnerID, r.now()), nil
}

// Checkpoint rebuilds the learner and saves the result when the log has
// moved past the previous checkpoint. It reports whether it saved.
func (r *Replayer) Checkpoint(ctx context.Context, learnerID string) (Checkpoint, bool, error) {
	prev, hadPrev, err := r.snapshots.Latest(ctx, learnerID)
	if err != nil {
		return Checkpoint{}, false, err
	}
	cp, err := r.Rebuild(ctx, learnerID)
	if err != nil {
		return Checkpoint{}, false, err
	}
	if cp.Folded == 0 || (hadPrev && cp.LastSeq == prev.LastSeq) {
		return cp, false, nil
	}
	if err := r.snapshots.Save(ctx, cp); err != nil {
		return Checkpoint{}, false, err
	}
	slog.Debug("checkpoint saved", "learner_id", learnerID, "last_seq", cp.LastSeq, "folded", cp.Folded)
	return cp, true, nil
}

// CheckpointAll checkpoints each learner, continuing past failures. It
// returns how many checkpoints were saved and the first error.
func (r *Replayer) CheckpointAll(ctx context.Context, learnerIDs []string) (int, error) {
	saved := 0
	var firstErr error
	for _, id := range learnerIDs {
		if err := ctx.Err(); err != nil {
			return saved, err
		}
		_, ok, err := r.Checkpoint(ctx, id)
		if err != nil {
			slog.Warn("checkpoint failed", "learner_id", id, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if ok {
			saved++
		}
	}
	return saved, firstErr
}

// Verify replays the learner's whole log from priors and checks that the
// latest checkpoint agrees with it. It fails with ErrDigestMismatch when
// the checkpoint has drifted from the log.
func (r *Replayer) Verify(ctx context.Context, learnerID string) error {
	cp, ok, err := r.snapshots.Latest(ctx, learnerID)
	if err != nil || !ok {
		return err
	}

	p, err := NewProjection(r.catalog, r.mcfg, r.scfg)
	if err != nil {
		return err
	}
	history, err := r.log.ForLearner(ctx, learnerID, 0)
	if err != nil {
		return err
	}
	for _, a := range history {
		if a.Seq > cp.LastSeq {
			break
		}
		if err := p.Apply(a); err != nil {
			return err
		}
	}
	fromScratch := p.Checkpoint(learnerID, cp.CreatedAt)

	if fromScratch.Digest != cp.Digest || fromScratch.Folded != cp.Folded {
		return fmt.Errorf("%w: learner %s digest %s, log %s", ErrDigestMismatch, learnerID, cp.Digest, fromScratch.Digest)
	}
	if !reflect.DeepEqual(normalizeTimes(fromScratch), normalizeTimes(cp)) {
		return fmt.Errorf("%w: learner %s state differs at seq %d", ErrDigestMismatch, learnerID, cp.LastSeq)
	}
	return nil
}

func (r *Replayer) fold(ctx context.Context, p *Projection, learnerID string, after int64) error {
	tail, err := r.log.ForLearner(ctx, learnerID, after)
	if err != nil {
		return err
	}
	for _, a := range tail {
		if err := p.Apply(a); err != nil {
			return err
		}
	}
	return nil
}

// normalizeTimes drops monotonic readings and locations so checkpoints
// decoded from JSON compare equal to freshly built ones.
func normalizeTimes(cp Checkpoint) Checkpoint {
	cp.LastAttemptAt = cp.LastAttemptAt.UTC()
	cp.CreatedAt = cp.CreatedAt.UTC()
	ms := make([]mastery.State, len(cp.Mastery))
	for i, st := range cp.Mastery {
		st.UpdatedAt = st.UpdatedAt.UTC()
		ms[i] = st
	}
	cp.Mastery = ms
	sc := make([]spacing.Schedule, len(cp.Schedules))
	for i, s := range cp.Schedules {
		s.DueAt = s.DueAt.UTC()
		s.LastAttemptAt = s.LastAttemptAt.UTC()
		sc[i] = s
	}
	cp.Schedules = sc
	return cp
}

// Hydrator keeps live stores in step with the attempt log. The first call
// for a learner restores the latest checkpoint plus the log tail; later
// calls fold only the attempts appended since, including those written by
// other processes sharing the log.
type Hydrator struct {
	replayer  *Replayer
	mastery   *mastery.Store
	schedules *spacing.Scheduler

	mu      sync.Mutex
	cursors map[string]*liveCursor
}

// liveCursor is the log position folded into the live stores for one learner.
type liveCursor struct {
	mu      sync.Mutex
	loaded  bool
	lastSeq int64
}

// NewHydrator creates a hydrator writing into the given live stores.
func NewHydrator(r *Replayer, m *mastery.Store, s *spacing.Scheduler) *Hydrator {
	return &Hydrator{
		replayer:  r,
		mastery:   m,
		schedules: s,
		cursors:   make(map[string]*liveCursor),
	}
}

// Hydrate folds every attempt of the learner not yet in the live stores.
// On failure the cursor stays at the last folded attempt, so the next call
// resumes from there.
func (h *Hydrator) Hydrate(ctx context.Context, learnerID string) error {
	cur := h.cursor(learnerID)
	cur.mu.Lock()
	defer cur.mu.Unlock()

	if !cur.loaded {
		cp, err := h.replayer.Rebuild(ctx, learnerID)
		if err != nil {
			return err
		}
		if cp.Folded > 0 {
			h.mastery.Restore(learnerID, cp.Mastery)
			h.schedules.Restore(learnerID, cp.Schedules)
			slog.Info("learner hydrated", "learner_id", learnerID, "last_seq", cp.LastSeq, "folded", cp.Folded)
		}
		cur.lastSeq = cp.LastSeq
		cur.loaded = true
		return nil
	}

	tail, err := h.replayer.log.ForLearner(ctx, learnerID, cur.lastSeq)
	if err != nil {
		return fmt.Errorf("read log tail: %w", err)
	}
	for _, a := range tail {
		if _, err := h.mastery.Update(a); err != nil {
			return fmt.Errorf("fold attempt %d: %w", a.Seq, err)
		}
		h.schedules.OnAttempt(a)
		cur.lastSeq = a.Seq
	}
	if len(tail) > 0 {
		slog.Debug("learner caught up", "learner_id", learnerID, "last_seq", cur.lastSeq, "folded", len(tail))
	}
	return nil
}

// Position returns the last log seq folded into the live stores for the learner.
func (h *Hydrator) Position(learnerID string) (int64, bool) {
	cur := h.cursor(learnerID)
	cur.mu.Lock()
	defer cur.mu.Unlock()
	return cur.lastSeq, cur.loaded
}

func (h *Hydrator) cursor(learnerID string) *liveCursor {
	h.mu.Lock()
	defer h.mu.Unlock()

	cur, ok := h.cursors[learnerID]
	if !ok {
		cur = &liveCursor{}
		h.cursors[learnerID] = cur
	}
	return cur
}
