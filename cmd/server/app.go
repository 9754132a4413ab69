package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/host-calendar-sync/backend/internal/calendar"
	"github.com/host-calendar-sync/backend/internal/cleaning"
	"github.com/host-calendar-sync/backend/internal/config"
	"github.com/host-calendar-sync/backend/internal/logger"
	"github.com/host-calendar-sync/backend/internal/storage"
	"github.com/host-calendar-sync/backend/internal/websocket"
)

// app holds the wired services shared by the subcommands.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *storage.DB
	loc    *time.Location

	sources      *storage.SourceRepository
	reservations *storage.ReservationRepository
	properties   *storage.PropertyRepository
	blocks       *storage.BlockRepository
	tasks        *storage.CleaningRepository

	sync     *calendar.SyncService
	exporter *calendar.Exporter
	assigner *cleaning.Scheduler
}

// newApp loads configuration, opens the database and applies pending migrations.
// Services are wired without event broadcasting.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configDir)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	logg, err := logger.New(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}

	db, err := storage.NewDB(cfg.Database)
	if err != nil {
		return nil, err
	}

	applied, err := storage.RunMigrations(ctx, db, logg)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	if applied > 0 {
		logg.Info("database migrations applied", zap.Int("count", applied))
	}

	a := &app{
		cfg:          cfg,
		logger:       logg,
		db:           db,
		sources:      storage.NewSourceRepository(db),
		reservations: storage.NewReservationRepository(db),
		properties:   storage.NewPropertyRepository(db),
		blocks:       storage.NewBlockRepository(db),
		tasks:        storage.NewCleaningRepository(db),
	}
	if err := a.wire(nil); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// wire builds the domain services. events may be nil.
func (a *app) wire(events *websocket.EventBroadcaster) error {
	loc, err := a.cfg.Sync.Location()
	if err != nil {
		return err
	}
	a.loc = loc

	a.sync = calendar.NewSyncService(
		a.sources,
		a.reservations,
		calendar.NewFetcher(nil, a.cfg.Sync),
		calendar.NewParser(loc),
		events,
		a.logger,
		a.cfg.Sync,
	)
	a.exporter = calendar.NewExporter(a.blocks, a.reservations, a.properties, a.cfg.Export, loc)

	a.assigner, err = cleaning.NewScheduler(a.tasks, events, a.logger, a.cfg.Cleaning)
	return err
}

// Close releases the database and flushes the logger.
func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		a.logger.Warn("closing database", zap.Error(err))
	}
	_ = a.logger.Sync()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
