package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/csg33k/response-viewer/internal/adapters/gradingapi"
	"github.com/csg33k/response-viewer/internal/adapters/pdf"
	sqliteadapter "github.com/csg33k/response-viewer/internal/adapters/sqlite"
	"github.com/csg33k/response-viewer/internal/browser"
	"github.com/csg33k/response-viewer/internal/config"
	"github.com/csg33k/response-viewer/internal/handlers"
	"github.com/csg33k/response-viewer/internal/history"
	"github.com/csg33k/response-viewer/internal/retrieval"
	"github.com/csg33k/response-viewer/internal/workspace"
)

const (
	sessionTTL    = 12 * time.Hour
	sweepInterval = 10 * time.Minute
)

func main() {
	cfg, err := config.Load(slog.Default())
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := cfg.Logger()
	slog.SetDefault(logger)

	repo, err := sqliteadapter.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer repo.Close()

	api := gradingapi.New(cfg.GradingAPIURL, cfg.RequestTimeout, logger.With("component", "gradingapi"))
	dispatcher := retrieval.NewDispatcher(api, repo, cfg.RequestTimeout, logger.With("component", "retrieval"))

	boundary, err := cfg.Boundary()
	if err != nil {
		log.Fatalf("invalid navigation boundary: %v", err)
	}
	opts := workspace.Options{
		HistoryBoundary:  boundary,
		ResponseBoundary: browser.BoundaryOneIndexed,
		ResultsURL:       cfg.ResultsURL,
	}
	if boundary == history.BoundaryLegacy {
		opts.ResponseBoundary = browser.BoundaryLegacy
	}

	wsLog := logger.With("component", "workspace")
	sessions := workspace.NewSessions(func() *workspace.Workspace {
		return workspace.New(api, dispatcher, opts, wsLog)
	})
	h := handlers.New(sessions, pdf.Exporter{}, logger.With("component", "http"))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           h.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		t := time.NewTicker(sweepInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if n := sessions.Sweep(sessionTTL); n > 0 {
					logger.Info("dropped idle sessions", "count", n, "live", sessions.Len())
				}
			}
		}
	}()

	go func() {
		logger.Info("Response Viewer running", "url", "http://localhost:"+cfg.Port, "grading_api", cfg.GradingAPIURL, "db", cfg.DBPath)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "err", err)
	}
	dispatcher.Wait()
}
