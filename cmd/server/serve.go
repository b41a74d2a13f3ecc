package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/matthewbaird/civicpulse/internal/activity"
	"github.com/matthewbaird/civicpulse/internal/alert"
	"github.com/matthewbaird/civicpulse/internal/catalog"
	"github.com/matthewbaird/civicpulse/internal/command"
	"github.com/matthewbaird/civicpulse/internal/complaint"
	"github.com/matthewbaird/civicpulse/internal/config"
	"github.com/matthewbaird/civicpulse/internal/desk"
	"github.com/matthewbaird/civicpulse/internal/event"
	"github.com/matthewbaird/civicpulse/internal/eventbus"
	"github.com/matthewbaird/civicpulse/internal/feed"
	"github.com/matthewbaird/civicpulse/internal/metrics"
	"github.com/matthewbaird/civicpulse/internal/scheduler"
	"github.com/matthewbaird/civicpulse/internal/seed"
	"github.com/matthewbaird/civicpulse/internal/server"
	"github.com/matthewbaird/civicpulse/internal/types"
)

func serve(ctx context.Context, configPath string) error {
	cfg, cat, err := loadCatalog(configPath)
	if err != nil {
		return err
	}

	logger, err := config.NewLogger(cfg.Environment)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer logger.Sync()

	store, err := openStore(ctx, cfg.Activity)
	if err != nil {
		return err
	}
	logger.Info("activity journal ready", zap.String("driver", cfg.Activity.Driver))

	collector := metrics.NewCollector()
	bus := eventbus.New(cfg.EventBus.BufferSize, logger.Named("eventbus"))
	recorder := event.NewActivityRecorder(store)
	recorder.SetPublisher(bus)

	reg := complaint.NewRegistry(cat, complaint.WithLogger(logger.Named("complaints")))
	esc, err := alert.NewEscalator(cat, alert.WithLogger(logger.Named("alerts")))
	if err != nil {
		return fmt.Errorf("building escalator: %w", err)
	}

	disp := command.NewDispatcher(cfg.Command.Latency)
	logger.Info("command dispatcher ready", zap.Duration("latency", disp.Latency()))
	d := desk.New(reg, esc, cat, disp,
		desk.WithRecorder(recorder),
		desk.WithObserver(collector),
		desk.WithLogger(logger.Named("desk")),
		desk.WithOverdueAfter(cfg.Escalation.OverdueAfter),
	)

	snapshot := func() (types.MetricsSnapshot, error) { return d.Metrics(0) }
	collector.Registry().MustRegister(metrics.NewSnapshotCollector(snapshot))
	hub := feed.NewHub(snapshot, cfg.Feed.SnapshotInterval,
		feed.WithLogger(logger.Named("feed")),
		feed.WithClientGauge(collector.SetFeedClients),
	)

	bus.Subscribe("log", eventbus.NewLogConsumer(logger.Named("events")))
	bus.Subscribe("metrics", collector)
	bus.Subscribe("feed", hub)
	bus.Start(context.WithoutCancel(ctx))

	if cfg.Seed.Enabled {
		if err := seed.Load(ctx, reg, esc, cat, recorder, time.Now()); err != nil {
			bus.Stop()
			store.Close()
			return fmt.Errorf("loading demo data: %w", err)
		}
		logger.Info("demo data loaded", zap.Int("complaints", reg.Len()), zap.Int("alerts", len(esc.Snapshot())))
	}

	sched := scheduler.New(logger.Named("scheduler"))
	for _, job := range []scheduler.Job{
		scheduler.OverdueEscalation(d, cfg.Scheduler.OverdueEscalation, logger.Named("sweeps")),
		scheduler.SLASweep(d, cfg.Scheduler.SLASweep, logger.Named("sweeps")),
	} {
		if err := sched.Add(job); err != nil {
			bus.Stop()
			store.Close()
			return err
		}
	}

	srv := server.New(server.Config{
		Port:            cfg.Server.Port,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, server.NewRouter(server.Deps{
		Desk:    d,
		Store:   store,
		Feed:    hub,
		Metrics: collector,
		Logger:  logger,
	}), logger)

	srv.Go("scheduler", sched.Run)
	srv.Go("feed", hub.Run)
	srv.OnShutdown("commands", d.Drain)
	srv.OnShutdown("eventbus", func(context.Context) error { bus.Stop(); return nil })
	srv.OnShutdown("activity", func(context.Context) error { return store.Close() })

	if err := srv.Run(ctx); err != nil {
		logger.Error("server stopped with error", zap.Error(err))
		return err
	}
	logger.Info("server stopped")
	return nil
}

func loadCatalog(configPath string) (config.Config, *catalog.Catalog, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("loading config: %w", err)
	}
	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("loading catalog: %w", err)
	}
	return cfg, cat, nil
}

func openStore(ctx context.Context, cfg config.ActivityConfig) (activity.Store, error) {
	if cfg.Driver == "sqlite" {
		s, err := activity.OpenSQLite(ctx, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("opening activity journal: %w", err)
		}
		return s, nil
	}
	return activity.NewMemoryStore(), nil
}

func slaStrings(policy map[types.Severity]time.Duration) map[types.Severity]string {
	out := make(map[types.Severity]string, len(policy))
	for sev, d := range policy {
		out[sev] = d.String()
	}
	return out
}
