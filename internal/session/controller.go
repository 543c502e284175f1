// Package session orchestrates interactive study sessions: select an item,
// record the learner's response, update mastery and schedules, repeat.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/p-n-ai/pai-mastery/internal/attempt"
	"github.com/p-n-ai/pai-mastery/internal/catalog"
	"github.com/p-n-ai/pai-mastery/internal/mastery"
	"github.com/p-n-ai/pai-mastery/internal/selection"
	"github.com/p-n-ai/pai-mastery/internal/spacing"
)

// State is the controller state.
type State int

const (
	Idle State = iota
	AwaitingResponse
	Completed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingResponse:
		return "awaiting_response"
	case Completed:
		return "completed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Completion reasons reported in Summary.Reason.
const (
	ReasonMaxItems   = "max_items"
	ReasonTimeBudget = "time_budget"
	ReasonExhausted  = "exhausted"
	ReasonExpired    = "expired"
	ReasonEnded      = "ended"
)

// Limits bounds a session. Zero values disable the limit.
type Limits struct {
	MaxItems    int
	TimeBudget  time.Duration
	IdleTimeout time.Duration
}

// Engine bundles the components a controller drives.
type Engine struct {
	Catalog   *catalog.Catalog
	Mastery   *mastery.Store
	Scheduler *spacing.Scheduler
	Policy    *selection.Policy
	Log       attempt.Log
	Clock     func() time.Time // nil means time.Now

	// hydrator, when set by Service, folds appended attempts by catching the
	// live stores up with the log instead of updating them directly.
	hydrator Hydrator
}

func (e Engine) validate() error {
	if e.Catalog == nil || e.Mastery == nil || e.Scheduler == nil || e.Policy == nil || e.Log == nil {
		return fmt.Errorf("session: engine is missing a component")
	}
	return nil
}

// Response is the learner's answer to the offered item.
type Response struct {
	ItemID  string        `json:"item_id"`
	Score   float64       `json:"score"`
	Latency time.Duration `json:"latency"`
	At      time.Time     `json:"at,omitzero"` // zero means now
}

// Outcome is the result of a recorded response.
type Outcome struct {
	Attempt   attempt.Attempt  `json:"attempt"`
	Mastery   mastery.State    `json:"mastery"`
	Schedule  spacing.Schedule `json:"schedule"`
	Next      *catalog.Item    `json:"next,omitempty"`
	Completed bool             `json:"completed"`
	Summary   *Summary         `json:"summary,omitempty"`
}

// Controller runs one learner's session. It is safe for concurrent use;
// calls are serialised.
type Controller struct {
	id        string
	learnerID string
	engine    Engine
	limits    Limits
	concepts  []string
	now       func() time.Time

	mu         sync.Mutex
	state      State
	sel        *selection.SessionState
	current    catalog.Item
	lastActive time.Time
	tally      tally
}

// NewController creates an idle controller. Concepts scope the session;
// none means the whole catalog.
func NewController(id, learnerID string, engine Engine, limits Limits, concepts []string) (*Controller, error) {
	if learnerID == "" {
		return nil, ErrInvalidLearner
	}
	if err := engine.validate(); err != nil {
		return nil, err
	}
	now := engine.Clock
	if now == nil {
		now = time.Now
	}
	return &Controller{
		id:        id,
		learnerID: learnerID,
		engine:    engine,
		limits:    limits,
		concepts:  slices.Clone(concepts),
		now:       now,
	}, nil
}

// ID returns the session ID.
func (c *Controller) ID() string { return c.id }

// LearnerID returns the learner the session belongs to.
func (c *Controller) LearnerID() string { return c.learnerID }

// State returns the current controller state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Current returns the item awaiting a response.
func (c *Controller) Current() (catalog.Item, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current, c.state == AwaitingResponse
}

// Start selects the first item. An empty pool completes the session and
// returns selection.ErrExhausted.
func (c *Controller) Start(_ context.Context) (catalog.Item, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Idle {
		return catalog.Item{}, fmt.Errorf("%w: session %s already started", ErrOutOfSequence, c.id)
	}

	now := c.now()
	c.sel = selection.NewSessionState(now, c.concepts...)
	c.tally.startedAt = now
	c.lastActive = now

	item, err := c.engine.Policy.SelectNext(c.learnerID, c.sel, now)
	if err != nil {
		c.completeLocked(ReasonExhausted, now)
		return catalog.Item{}, err
	}
	c.current = item
	c.state = AwaitingResponse
	return item, nil
}

// Submit records a response to the offered item. Every rejection leaves
// the log, mastery and schedules untouched. The attempt is appended to the
// log before it is folded into mastery and spacing.
func (c *Controller) Submit(ctx context.Context, r Response) (Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	switch {
	case c.state != AwaitingResponse:
		return Outcome{}, fmt.Errorf("%w: session %s is %s", ErrOutOfSequence, c.id, c.state)
	case c.idleLocked(now):
		c.completeLocked(ReasonExpired, now)
		return Outcome{}, fmt.Errorf("%w: session %s expired", ErrOutOfSequence, c.id)
	case catalog.NormalizeID(r.ItemID) != c.current.ID:
		return Outcome{}, fmt.Errorf("%w: offered %s, got %s", ErrOutOfSequence, c.current.ID, r.ItemID)
	case math.IsNaN(r.Score) || r.Score < 0 || r.Score > 1:
		return Outcome{}, fmt.Errorf("%w: %v", ErrInvalidScore, r.Score)
	}

	at := r.At
	if at.IsZero() {
		at = now
	}
	stored, err := c.engine.Log.Append(ctx, attempt.Attempt{
		LearnerID: c.learnerID,
		ItemID:    c.current.ID,
		SessionID: c.id,
		Score:     r.Score,
		Latency:   max(r.Latency, 0),
		At:        at,
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("record attempt: %w", err)
	}

	ms, sc, err := c.foldLocked(ctx, stored)
	if err != nil {
		return Outcome{}, err
	}

	c.tally.add(r.Score, r.Score >= c.engine.Scheduler.Config().PassThreshold)
	c.lastActive = now

	out := Outcome{Attempt: stored, Mastery: ms, Schedule: sc}
	if reason, done := c.limitReachedLocked(now); done {
		c.completeLocked(reason, now)
	} else {
		next, err := c.engine.Policy.SelectNext(c.learnerID, c.sel, now)
		switch {
		case errors.Is(err, selection.ErrExhausted):
			c.completeLocked(ReasonExhausted, now)
		case err != nil:
			return Outcome{}, err
		default:
			c.current = next
			out.Next = &next
		}
	}

	if c.state == Completed {
		s := c.summaryLocked()
		out.Completed = true
		out.Summary = &s
	}
	return out, nil
}

// foldLocked brings mastery and spacing up to date with the stored attempt.
// With a hydrator the live stores catch up with the learner's whole log
// tail, so attempts written elsewhere are folded in seq order first. A
// failed catch-up is retried on the next call; the attempt stays recorded.
func (c *Controller) foldLocked(ctx context.Context, stored attempt.Attempt) (mastery.State, spacing.Schedule, error) {
	if c.engine.hydrator == nil {
		ms, err := c.engine.Mastery.Update(stored)
		if err != nil {
			return mastery.State{}, spacing.Schedule{}, err
		}
		return ms, c.engine.Scheduler.OnAttempt(stored), nil
	}

	if err := c.engine.hydrator.Hydrate(ctx, c.learnerID); err != nil {
		slog.Warn("failed to fold attempt", "session_id", c.id, "learner_id", c.learnerID, "seq", stored.Seq, "error", err)
	}
	ms := c.engine.Mastery.Peek(c.learnerID, c.current.ConceptID)
	sc, _ := c.engine.Scheduler.Schedule(c.learnerID, c.current.ID)
	return ms, sc, nil
}

// Expire completes an AwaitingResponse session idle for longer than the
// idle timeout. No attempt is recorded. It reports whether it expired.
func (c *Controller) Expire(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != AwaitingResponse || !c.idleLocked(now) {
		return false
	}
	c.completeLocked(ReasonExpired, now)
	return true
}

// End completes the session on request. Ending a completed session is a
// no-op.
func (c *Controller) End() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Completed {
		c.completeLocked(ReasonEnded, c.now())
	}
	return c.summaryLocked()
}

// Summary reports the session's results so far.
func (c *Controller) Summary() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.summaryLocked()
}

func (c *Controller) idleLocked(now time.Time) bool {
	return c.limits.IdleTimeout > 0 && now.Sub(c.lastActive) > c.limits.IdleTimeout
}

func (c *Controller) limitReachedLocked(now time.Time) (string, bool) {
	if c.limits.MaxItems > 0 && c.tally.answered >= c.limits.MaxItems {
		return ReasonMaxItems, true
	}
	if c.limits.TimeBudget > 0 && now.Sub(c.tally.startedAt) >= c.limits.TimeBudget {
		return ReasonTimeBudget, true
	}
	return "", false
}

func (c *Controller) completeLocked(reason string, now time.Time) {
	c.state = Completed
	c.current = catalog.Item{}
	c.tally.reason = reason
	c.tally.endedAt = now
}

func (c *Controller) summaryLocked() Summary {
	return c.tally.summary(c.id, c.learnerID)
}
