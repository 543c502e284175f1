package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/p-n-ai/pai-mastery/internal/api"
	"github.com/p-n-ai/pai-mastery/internal/attempt"
	"github.com/p-n-ai/pai-mastery/internal/catalog"
	"github.com/p-n-ai/pai-mastery/internal/jobs"
	"github.com/p-n-ai/pai-mastery/internal/mastery"
	"github.com/p-n-ai/pai-mastery/internal/platform/cache"
	"github.com/p-n-ai/pai-mastery/internal/platform/config"
	"github.com/p-n-ai/pai-mastery/internal/platform/database"
	"github.com/p-n-ai/pai-mastery/internal/recovery"
	"github.com/p-n-ai/pai-mastery/internal/selection"
	"github.com/p-n-ai/pai-mastery/internal/session"
	"github.com/p-n-ai/pai-mastery/internal/spacing"
)

// app holds the wired server components.
type app struct {
	api      *api.API
	sessions *session.Service
	jobs     *jobs.Scheduler
	checks   []readinessCheck

	closers []func()
}

// newApp connects the configured backends and wires the engine.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	cat := catalog.New()
	if _, err := catalog.LoadDir(cat, cfg.CatalogPath); err != nil {
		return nil, err
	}

	var (
		log       attempt.Log = attempt.NewMemoryLog()
		snapshots recovery.SnapshotStore
		events    session.EventLogger
		registry  session.Registry
		items     *catalog.PostgresStore
	)

	if cfg.UsesDatabase() {
		db, err := database.New(ctx, database.Options{
			URL:      cfg.Database.URL,
			MaxConns: cfg.Database.MaxConns,
			MinConns: cfg.Database.MinConns,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		a.checks = append(a.checks, readinessCheck{name: "database", fn: db.HealthCheck})

		if log, err = attempt.NewPostgresLog(ctx, db.Pool); err != nil {
			return nil, err
		}
		if snapshots, err = recovery.NewPostgresSnapshotStore(ctx, db.Pool); err != nil {
			return nil, err
		}
		if events, err = session.NewPostgresEventLogger(ctx, db.Pool); err != nil {
			return nil, err
		}
		if items, err = catalog.NewPostgresStore(ctx, db.Pool); err != nil {
			return nil, err
		}
		added, err := cat.Sync(ctx, items)
		if err != nil {
			return nil, fmt.Errorf("restoring ingested items: %w", err)
		}
		slog.Info("using postgres store", "restored_items", added)
	}

	if cfg.UsesCache() {
		c, err := cache.New(ctx, cfg.Cache.URL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = c.Close() })
		a.checks = append(a.checks, readinessCheck{name: "cache", fn: c.HealthCheck})

		if registry, err = session.NewRedisRegistry(c.Client, cfg.Registry.TTL); err != nil {
			return nil, err
		}
		slog.Info("using redis session registry", "ttl", cfg.Registry.TTL)
	}

	m, err := mastery.NewStore(cfg.Mastery, cat)
	if err != nil {
		return nil, err
	}
	sched, err := spacing.NewScheduler(cfg.Spacing)
	if err != nil {
		return nil, err
	}
	policy, err := selection.NewPolicy(cfg.Selection, cat, m, sched)
	if err != nil {
		return nil, err
	}

	replayer, err := recovery.NewReplayer(recovery.ReplayerConfig{
		Catalog:   cat,
		Mastery:   cfg.Mastery,
		Spacing:   cfg.Spacing,
		Log:       log,
		Snapshots: snapshots,
	})
	if err != nil {
		return nil, err
	}

	svc, err := session.NewService(session.ServiceConfig{
		Engine: session.Engine{
			Catalog:   cat,
			Mastery:   m,
			Scheduler: sched,
			Policy:    policy,
			Log:       log,
		},
		Registry:  registry,
		Events:    events,
		Hydrator:  recovery.NewHydrator(replayer, m, sched),
		Limits:    cfg.Session.Limits(),
		Retention: cfg.Session.Retention,
	})
	if err != nil {
		return nil, fmt.Errorf("creating session service: %w", err)
	}

	a.sessions = svc
	a.jobs = jobs.New(cfg.Session.Jobs(), svc, replayer, m)
	var saver catalog.Saver
	if items != nil {
		saver = items
		a.jobs.WithCatalogSync(catalogSync{catalog: cat, source: items})
	}
	a.api = api.New(svc, cat, saver)
	ok = true
	return a, nil
}

// catalogSync pulls items other instances ingested into the shared store.
type catalogSync struct {
	catalog *catalog.Catalog
	source  catalog.Source
}

func (s catalogSync) SyncCatalog(ctx context.Context) (int, error) {
	return s.catalog.Sync(ctx, s.source)
}

// Close releases backend connections in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
