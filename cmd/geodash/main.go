// Package main is the entry point for the geodash dashboard service.
//
// It loads configuration, opens the durable store, rehydrates the
// application state, starts the recompute engine and serves the HTTP
// control surface. Graceful shutdown is handled via OS signal
// interception (SIGINT, SIGTERM).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"geodash/internal/api/handlers"
	"geodash/internal/archive"
	"geodash/internal/cache"
	"geodash/internal/charts"
	"geodash/internal/config"
	"geodash/internal/core"
	"geodash/internal/draw"
	"geodash/internal/engine"
	"geodash/internal/mapview"
	"geodash/internal/storage"
	"geodash/internal/store"
	"geodash/internal/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit
// on error.
func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("geodash starting",
		"environment", cfg.Environment,
		"port", cfg.Server.Port,
		"storage", cfg.Storage.Path,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	durable, err := storage.Open(ctx, storage.Options{
		Path:   cfg.Storage.Path,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer durable.Close()

	st := store.New(store.Options{
		LookbackDays: cfg.Window.LookbackDays,
		Durable:      durable,
		Logger:       logger,
	})
	if err := st.Rehydrate(ctx); err != nil {
		return fmt.Errorf("rehydrating state: %w", err)
	}

	seriesCache, err := cache.New(cfg.Cache.MaxEntries, durable, logger)
	if err != nil {
		return fmt.Errorf("creating series cache: %w", err)
	}

	fetcher := archive.NewClient(archive.Options{
		BaseURL:    cfg.Archive.BaseURL,
		HTTPClient: &http.Client{Timeout: cfg.Archive.Timeout},
		Retry: archive.RetryPolicy{
			MaxRetries: cfg.Archive.MaxRetries,
			MinWait:    500 * time.Millisecond,
			MaxWait:    10 * time.Second,
		},
		UserAgent: cfg.Archive.UserAgent,
		Logger:    logger,
	})

	// The side table owns the polygon-id to layer-handle mapping; the
	// journal in front of it gives an inspectable render history.
	renderer := mapview.NewJournalingRenderer(mapview.NewSideTableRenderer(), logger)

	eng := engine.New(engine.Options{
		Store:          st,
		Cache:          seriesCache,
		Fetcher:        fetcher,
		Renderer:       renderer,
		Debounce:       cfg.Engine.Debounce,
		FetchTimeout:   cfg.Engine.FetchTimeout,
		MaxConcurrency: cfg.Engine.MaxConcurrency,
		Logger:         logger,
	})

	engineDone := make(chan error, 1)
	go func() {
		engineDone <- eng.Run(ctx)
	}()

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	controller := draw.NewController(st, types.RealClock{}, logger)
	srv.Router().Route("/v1", func(r chi.Router) {
		handlers.NewPolygonHandler(srv, st, controller).RegisterRoutes(r)
		handlers.NewSourceHandler(srv, st).RegisterRoutes(r)
		handlers.NewSelectionHandler(srv, st).RegisterRoutes(r)
		handlers.NewSeriesHandler(st, charts.NewBuilder(st)).RegisterRoutes(r)
	})

	return serveHTTP(cancel, srv, cfg, logger, engineDone)
}

// serveHTTP runs the HTTP server until a shutdown signal or server error,
// then drains the engine and shuts the listener down gracefully.
func serveHTTP(cancel context.CancelFunc, srv *core.Server, cfg *config.Config, logger *slog.Logger, engineDone <-chan error) error {
	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Stop the engine first so no recompute cycle races storage close.
	cancel()
	if err := <-engineDone; err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("engine stopped with error", "error", err)
	}

	logger.Info("initiating graceful shutdown")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger configured for the given log
// level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	return slog.New(handler)
}
