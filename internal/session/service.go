package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/p-n-ai/pai-mastery/internal/catalog"
	"github.com/p-n-ai/pai-mastery/internal/mastery"
)

const defaultRetention = 10 * time.Minute

// Hydrator brings the live stores up to date with a learner's durable
// history. It is called whenever the service reads or writes the learner's
// state and must be cheap when nothing is new.
type Hydrator interface {
	Hydrate(ctx context.Context, learnerID string) error
}

// ServiceConfig holds dependencies for the session service.
type ServiceConfig struct {
	Engine    Engine
	Registry  Registry    // nil → MemoryRegistry
	Events    EventLogger // nil → NopEventLogger
	Hydrator  Hydrator    // nil → stores are assumed complete and attempts are folded directly
	Limits    Limits
	Retention time.Duration // how long completed sessions stay readable (default 10m)
}

// Started is the result of StartSession.
type Started struct {
	SessionID string       `json:"session_id"`
	LearnerID string       `json:"learner_id"`
	Item      catalog.Item `json:"item"`
}

type entry struct {
	ctrl     *Controller
	finished bool
}

// Service is the session API consumed by transports.
type Service struct {
	engine    Engine
	registry  Registry
	events    EventLogger
	hydrator  Hydrator
	limits    Limits
	retention time.Duration

	mu       sync.Mutex
	sessions map[string]*entry
}

// NewService creates a session service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.Engine.validate(); err != nil {
		return nil, err
	}
	registry := cfg.Registry
	if registry == nil {
		registry = NewMemoryRegistry()
	}
	events := cfg.Events
	if events == nil {
		events = NopEventLogger{}
	}
	retention := cfg.Retention
	if retention <= 0 {
		retention = defaultRetention
	}
	engine := cfg.Engine
	engine.hydrator = cfg.Hydrator
	return &Service{
		engine:    engine,
		registry:  registry,
		events:    events,
		hydrator:  cfg.Hydrator,
		limits:    cfg.Limits,
		retention: retention,
		sessions:  make(map[string]*entry),
	}, nil
}

// StartSession opens a session for the learner and offers the first item.
// A learner with an active session gets ErrSessionConflict.
func (s *Service) StartSession(ctx context.Context, learnerID string, concepts ...string) (Started, error) {
	if learnerID == "" {
		return Started{}, ErrInvalidLearner
	}
	for _, id := range concepts {
		if _, err := s.engine.Catalog.Concept(id); err != nil {
			return Started{}, err
		}
	}
	if err := s.hydrate(ctx, learnerID); err != nil {
		return Started{}, err
	}

	id := uuid.NewString()
	if err := s.registry.Acquire(ctx, learnerID, id); err != nil {
		return Started{}, err
	}

	ctrl, err := NewController(id, learnerID, s.engine, s.limits, concepts)
	if err != nil {
		s.release(ctx, learnerID, id)
		return Started{}, err
	}
	item, err := ctrl.Start(ctx)
	if err != nil {
		s.release(ctx, learnerID, id)
		return Started{}, err
	}

	s.mu.Lock()
	s.sessions[id] = &entry{ctrl: ctrl}
	s.mu.Unlock()

	slog.Info("session started", "session_id", id, "learner_id", learnerID, "item_id", item.ID)
	s.logEvent(ctx, Event{
		SessionID: id,
		LearnerID: learnerID,
		EventType: EventStarted,
		Data:      map[string]any{"item_id": item.ID, "concepts": concepts},
	})
	return Started{SessionID: id, LearnerID: learnerID, Item: item}, nil
}

// SubmitResponse records the learner's answer and returns the next item or
// the completed session's summary.
func (s *Service) SubmitResponse(ctx context.Context, sessionID string, r Response) (Outcome, error) {
	ctrl, err := s.Session(sessionID)
	if err != nil {
		return Outcome{}, err
	}

	out, err := ctrl.Submit(ctx, r)
	if err != nil {
		if ctrl.State() == Completed {
			s.finish(ctx, sessionID)
		}
		return Outcome{}, err
	}

	s.logEvent(ctx, Event{
		SessionID: sessionID,
		LearnerID: ctrl.LearnerID(),
		EventType: EventResponse,
		Data: map[string]any{
			"seq":     out.Attempt.Seq,
			"item_id": out.Attempt.ItemID,
			"score":   out.Attempt.Score,
			"p":       out.Mastery.P,
		},
		CreatedAt: out.Attempt.At,
	})
	if out.Completed {
		s.finish(ctx, sessionID)
	}
	return out, nil
}

// EndSession completes a session on request and returns its summary.
func (s *Service) EndSession(ctx context.Context, sessionID string) (Summary, error) {
	ctrl, err := s.Session(sessionID)
	if err != nil {
		return Summary{}, err
	}
	sum := ctrl.End()
	s.finish(ctx, sessionID)
	return sum, nil
}

// Session returns the controller of a live or recently completed session.
func (s *Service) Session(sessionID string) (*Controller, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return e.ctrl, nil
}

// GetMastery returns the learner's belief per concept.
func (s *Service) GetMastery(ctx context.Context, learnerID string) (map[string]float64, error) {
	states, err := s.MasteryStates(ctx, learnerID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(states))
	for _, st := range states {
		out[st.ConceptID] = st.P
	}
	return out, nil
}

// MasteryStates returns the learner's full mastery states, sorted by
// concept. Learners without any recorded attempt get ErrLearnerNotFound.
func (s *Service) MasteryStates(ctx context.Context, learnerID string) ([]mastery.State, error) {
	if learnerID == "" {
		return nil, ErrInvalidLearner
	}
	if err := s.hydrate(ctx, learnerID); err != nil {
		return nil, err
	}
	if !s.engine.Mastery.HasLearner(learnerID) {
		return nil, fmt.Errorf("%w: %s", ErrLearnerNotFound, learnerID)
	}
	return s.engine.Mastery.Snapshot(learnerID), nil
}

// ExpireIdle completes sessions idle past the timeout and forgets sessions
// completed longer ago than the retention period. It returns how many
// sessions expired.
func (s *Service) ExpireIdle(ctx context.Context, now time.Time) int {
	s.mu.Lock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	expired := 0
	for _, id := range ids {
		ctrl, err := s.Session(id)
		if err != nil {
			continue
		}
		if ctrl.Expire(now) {
			expired++
			s.finish(ctx, id)
		}
	}

	s.mu.Lock()
	for id, e := range s.sessions {
		if e.finished && now.Sub(e.ctrl.Summary().EndedAt) > s.retention {
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	if expired > 0 {
		slog.Info("idle sessions expired", "count", expired)
	}
	return expired
}

// Active returns the number of sessions awaiting a response.
func (s *Service) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, e := range s.sessions {
		if !e.finished {
			n++
		}
	}
	return n
}

// finish releases a completed session's registry slot once.
func (s *Service) finish(ctx context.Context, sessionID string) {
	s.mu.Lock()
	e, ok := s.sessions[sessionID]
	if !ok || e.finished {
		s.mu.Unlock()
		return
	}
	e.finished = true
	s.mu.Unlock()

	sum := e.ctrl.Summary()
	s.release(ctx, sum.LearnerID, sessionID)

	slog.Info("session completed",
		"session_id", sessionID,
		"learner_id", sum.LearnerID,
		"reason", sum.Reason,
		"answered", sum.Answered,
		"band", sum.Band,
	)
	s.logEvent(ctx, Event{
		SessionID: sessionID,
		LearnerID: sum.LearnerID,
		EventType: EventCompleted,
		Data: map[string]any{
			"reason":   sum.Reason,
			"answered": sum.Answered,
			"correct":  sum.Correct,
			"accuracy": sum.Accuracy,
			"band":     sum.Band,
		},
	})
}

func (s *Service) release(ctx context.Context, learnerID, sessionID string) {
	if err := s.registry.Release(ctx, learnerID, sessionID); err != nil {
		slog.Warn("failed to release session", "session_id", sessionID, "learner_id", learnerID, "error", err)
	}
}

func (s *Service) logEvent(ctx context.Context, event Event) {
	if err := s.events.LogEvent(ctx, event); err != nil {
		slog.Warn("failed to log session event", "type", event.EventType, "session_id", event.SessionID, "error", err)
	}
}

func (s *Service) hydrate(ctx context.Context, learnerID string) error {
	if s.hydrator == nil {
		return nil
	}
	if err := s.hydrator.Hydrate(ctx, learnerID); err != nil {
		return fmt.Errorf("hydrate learner %s: %w", learnerID, err)
	}
	return nil
}
