// Package ui serves stored experiment results over HTTP: a rendered report
// and a read-only JSON API.
package ui

import (
	"context"
	stderrors "errors"
	"net/http"
	"time"

	"bnla/internal/logging"
	"bnla/ports"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// App is the results web application
type App struct {
	router *chi.Mux
	repo   ports.ExperimentRepository
	logger *zap.Logger
	config Config
}

// Config holds web application configuration
type Config struct {
	Port string
	// ReportLimit caps the experiments shown on the report page.
	ReportLimit int
}

// NewApp creates the application over a results repository
func NewApp(config Config, repo ports.ExperimentRepository, logger *zap.Logger) *App {
	if config.Port == "" {
		config.Port = "8080"
	}
	if config.ReportLimit <= 0 {
		config.ReportLimit = 50
	}
	app := &App{
		router: chi.NewRouter(),
		repo:   repo,
		logger: logging.OrNop(logger),
		config: config,
	}
	app.setupMiddleware()
	app.setupRoutes()
	return app
}

// setupRoutes defines all HTTP routes
func (a *App) setupRoutes() {
	a.router.Get("/healthz", a.handleHealth)

	// Report pages
	a.router.Get("/", a.handleReport)
	a.router.Get("/report.md", a.handleReportMarkdown)

	// JSON API
	a.router.Route("/api", func(r chi.Router) {
		r.Get("/experiments", a.handleListExperiments)
		r.Get("/experiments/{id}", a.handleGetExperiment)
		r.Get("/runs/{runID}/limitation", a.handleListLimitation)
	})
}

// Handler exposes the router, mainly for tests
func (a *App) Handler() http.Handler {
	return a.router
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (a *App) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + a.config.Port,
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		a.logger.Info("serving results", zap.String("addr", srv.Addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if stderrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errc
		return nil
	}
}
