package calendar

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// BatchSyncer runs a batch sync. *SyncService implements it.
type BatchSyncer interface {
	SyncAll(ctx context.Context, req SyncRequest) (*BatchResult, error)
}

// Scheduler runs SyncAll for every property on a fixed interval.
type Scheduler struct {
	cron     *cron.Cron
	syncer   BatchSyncer
	logger   *zap.Logger
	interval time.Duration

	// ctx bounds every run; Stop cancels it.
	ctx    context.Context
	cancel context.CancelFunc
	runs   sync.WaitGroup

	mu      sync.Mutex
	entryID cron.EntryID
	started bool
}

// NewScheduler creates a periodic sync scheduler. An interval of zero minutes
// disables periodic runs; TriggerSync still works.
func NewScheduler(syncer BatchSyncer, logger *zap.Logger, intervalMinutes int) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("scheduler")
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(cronLogger{logger.Sugar()}),
			cron.SkipIfStillRunning(cronLogger{logger.Sugar()}),
		)),
		syncer:   syncer,
		logger:   logger,
		interval: time.Duration(intervalMinutes) * time.Minute,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start schedules the periodic job and starts the cron runner.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.ctx.Err() != nil {
		return errors.New("scheduler is stopped")
	}
	if s.interval <= 0 {
		s.logger.Info("periodic sync disabled")
		return nil
	}

	id, err := s.cron.AddFunc("@every "+s.interval.String(), s.runSync)
	if err != nil {
		return fmt.Errorf("scheduling periodic sync: %w", err)
	}
	s.entryID = id
	s.cron.Start()
	s.started = true

	s.logger.Info("periodic sync scheduled", zap.Duration("interval", s.interval))
	return nil
}

// Stop cancels any running sync, stops the cron runner and waits for every
// run, periodic or triggered, to return. A stopped scheduler cannot be restarted.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.cancel()
	if s.started {
		<-s.cron.Stop().Done()
		s.started = false
		s.logger.Info("periodic sync stopped")
	}
	s.mu.Unlock()

	s.runs.Wait()
}

// TriggerSync runs a batch sync in the background without waiting for the next tick.
// It does nothing once Stop has been called.
func (s *Scheduler) TriggerSync() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx.Err() != nil {
		return
	}
	s.runs.Add(1)
	go func() {
		defer s.runs.Done()
		s.runSync()
	}()
}

// NextRun returns when the periodic job fires next, or nil when not scheduled.
func (s *Scheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	entry := s.cron.Entry(s.entryID)
	if entry.Next.IsZero() {
		return nil
	}
	next := entry.Next
	return &next
}

func (s *Scheduler) runSync() {
	timeout := s.interval
	if timeout <= 0 {
		timeout = 15 * time.Minute
	}
	ctx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()

	batch, err := s.syncer.SyncAll(ctx, SyncRequest{})
	switch {
	case errors.Is(err, ErrNoSources):
		s.logger.Debug("no active sources to sync")
		return
	case err != nil && batch == nil:
		s.logger.Error("periodic sync failed", zap.Error(err))
		return
	case err != nil:
		s.logger.Warn("periodic sync interrupted", zap.Error(err))
	}

	s.logger.Info("periodic sync completed",
		zap.Int("sources", batch.Totals.Sources),
		zap.Int("failed", batch.Totals.Failed),
	)
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	*zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.Errorw(msg, append(keysAndValues, "error", err)...)
}
