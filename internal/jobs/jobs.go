// Package jobs runs the engine's periodic maintenance: expiring idle
// sessions, checkpointing learner state and pulling catalog items ingested
// by other instances.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"
)

// Sweeper expires idle sessions.
type Sweeper interface {
	ExpireIdle(ctx context.Context, now time.Time) int
}

// Checkpointer writes checkpoints for the given learners.
type Checkpointer interface {
	CheckpointAll(ctx context.Context, learnerIDs []string) (int, error)
}

// LearnerLister lists learners with live state.
type LearnerLister interface {
	Learners() []string
}

// CatalogSyncer adds catalog items persisted by other instances and
// returns how many were new.
type CatalogSyncer interface {
	SyncCatalog(ctx context.Context) (int, error)
}

// Config sets job intervals. A zero interval disables the job.
type Config struct {
	SweepInterval       time.Duration
	CheckpointInterval  time.Duration
	CatalogSyncInterval time.Duration
}

// Scheduler manages the maintenance jobs.
type Scheduler struct {
	scheduler    *gocron.Scheduler
	cfg          Config
	sweeper      Sweeper
	checkpointer Checkpointer
	learners     LearnerLister
	catalog      CatalogSyncer
	ctx          context.Context
	cancel       context.CancelFunc
}

// New creates a scheduler. checkpointer and learners may be nil when
// checkpointing is disabled.
func New(cfg Config, sweeper Sweeper, checkpointer Checkpointer, learners LearnerLister) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		scheduler:    gocron.NewScheduler(time.UTC),
		cfg:          cfg,
		sweeper:      sweeper,
		checkpointer: checkpointer,
		learners:     learners,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// WithCatalogSync enables the catalog sync job.
func (s *Scheduler) WithCatalogSync(c CatalogSyncer) *Scheduler {
	s.catalog = c
	return s
}

// Start registers the enabled jobs and runs them in the background.
func (s *Scheduler) Start() error {
	if s.cfg.SweepInterval > 0 && s.sweeper != nil {
		if _, err := s.scheduler.Every(s.cfg.SweepInterval).SingletonMode().Do(s.RunSweep); err != nil {
			return fmt.Errorf("schedule idle sweep: %w", err)
		}
	}
	if s.cfg.CheckpointInterval > 0 && s.checkpointer != nil && s.learners != nil {
		if _, err := s.scheduler.Every(s.cfg.CheckpointInterval).SingletonMode().Do(s.RunCheckpoint); err != nil {
			return fmt.Errorf("schedule checkpoint: %w", err)
		}
	}

	if s.cfg.CatalogSyncInterval > 0 && s.catalog != nil {
		if _, err := s.scheduler.Every(s.cfg.CatalogSyncInterval).SingletonMode().Do(s.RunCatalogSync); err != nil {
			return fmt.Errorf("schedule catalog sync: %w", err)
		}
	}

	s.scheduler.StartAsync()
	slog.Info("maintenance jobs started",
		"sweep_interval", s.cfg.SweepInterval.String(),
		"checkpoint_interval", s.cfg.CheckpointInterval.String(),
		"catalog_sync_interval", s.cfg.CatalogSyncInterval.String(),
		"jobs", len(s.scheduler.Jobs()),
	)
	return nil
}

// Stop terminates all jobs and cancels any in flight.
func (s *Scheduler) Stop() {
	s.cancel()
	s.scheduler.Stop()
}

// RunSweep expires idle sessions once.
func (s *Scheduler) RunSweep() {
	if n := s.sweeper.ExpireIdle(s.ctx, time.Now()); n > 0 {
		slog.Debug("idle sweep finished", "expired", n)
	}
}

// RunCheckpoint checkpoints every learner with live state once.
func (s *Scheduler) RunCheckpoint() {
	ids := s.learners.Learners()
	saved, err := s.checkpointer.CheckpointAll(s.ctx, ids)
	if err != nil {
		slog.Warn("checkpoint run incomplete", "learners", len(ids), "saved", saved, "error", err)
		return
	}
	slog.Debug("checkpoint run finished", "learners", len(ids), "saved", saved)
}

// RunCatalogSync pulls new catalog items once.
func (s *Scheduler) RunCatalogSync() {
	added, err := s.catalog.SyncCatalog(s.ctx)
	if err != nil {
		slog.Warn("catalog sync failed", "error", err)
		return
	}
	if added > 0 {
		slog.Debug("catalog sync finished", "added", added)
	}
}
