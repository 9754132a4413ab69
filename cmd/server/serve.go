package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/host-calendar-sync/backend/internal/api"
	"github.com/host-calendar-sync/backend/internal/calendar"
	"github.com/host-calendar-sync/backend/internal/websocket"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and the periodic feed sync",
	RunE:  runServe,
}

func init() {
	RootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	a.logger.Info("starting calendar sync service",
		zap.String("version", version),
		zap.String("addr", a.cfg.Server.Addr),
		zap.String("timezone", a.loc.String()),
	)

	// Rewire the services so sync and assignment results reach dashboards.
	hub := websocket.NewHub(a.logger)
	if err := a.wire(websocket.NewEventBroadcaster(hub, a.logger)); err != nil {
		return err
	}
	go hub.Run(ctx)

	scheduler := calendar.NewScheduler(a.sync, a.logger, a.cfg.Sync.IntervalMinutes)
	if err := scheduler.Start(); err != nil {
		return err
	}
	defer scheduler.Stop()

	router := api.NewRouter(api.Services{
		DB:         a.db,
		Hub:        hub,
		Sync:       a.sync,
		Scheduler:  scheduler,
		Exporter:   a.exporter,
		Assigner:   a.assigner,
		Sources:    a.sources,
		Properties: a.properties,
		Location:   a.loc,
		Logger:     a.logger,
		StaticDir:  a.cfg.Server.StaticDir,
	})

	server := &http.Server{
		Addr:         a.cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  a.cfg.Server.ReadTimeout(),
		WriteTimeout: a.cfg.Server.WriteTimeout(),
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Sync once at startup instead of waiting a full interval.
	if a.cfg.Sync.IntervalMinutes > 0 {
		scheduler.TriggerSync()
	}

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	a.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	a.logger.Info("server stopped")
	return nil
}
