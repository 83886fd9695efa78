package server

import (
	"context"
	"net/http"
	"time"

	"backupd/internal/backup"
	"backupd/internal/config"
	"backupd/internal/scheduler"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// Server exposes the engine, configuration store and scheduler over HTTP.
// Routing stays thin: every handler maps one engine operation to one status
// code per the error class.
type Server struct {
	store      *config.Store
	engine     *backup.Engine
	sched      *scheduler.Scheduler
	logger     zerolog.Logger
	production bool

	http *http.Server
}

// New builds the server for the given address.
func New(cfg config.ServerConfig, store *config.Store, engine *backup.Engine, sched *scheduler.Scheduler, logger zerolog.Logger) *Server {
	s := &Server{
		store:      store,
		engine:     engine,
		sched:      sched,
		logger:     logger,
		production: cfg.Production,
	}
	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Route("/backups", func(r chi.Router) {
			r.Get("/", s.handleListBackups)
			r.Post("/", s.handleCreateBackup)
			r.Delete("/{filename}", s.handleDeleteBackup)
			r.Post("/{filename}/restore", s.handleRestoreBackup)
			r.Post("/retention", s.handleApplyRetention)
		})

		r.Route("/config", func(r chi.Router) {
			r.Get("/mode", s.handleGetMode)
			r.Put("/mode", s.handleSetMode)
			r.Post("/reset", s.handleResetRuntime)

			r.Get("/database", s.handleGetDatabase)
			r.Put("/database", s.handleSetDatabase)
			r.Post("/database/test", s.handleTestDatabase)

			r.Get("/policy", s.handleGetPolicy)
			r.Put("/policy", s.handleSetPolicy)

			r.Get("/storage", s.handleGetStorage)
			r.Put("/storage", s.handleSetStorage)
		})

		r.Route("/scheduler", func(r chi.Router) {
			r.Post("/start", s.handleStartScheduler)
			r.Post("/stop", s.handleStopScheduler)
			r.Get("/status", s.handleSchedulerStatus)
		})
	})

	return r
}

// Handler exposes the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// ListenAndServe blocks until the listener fails or Shutdown is called.
func (s *Server) ListenAndServe() error {
	s.logger.Info().Str("addr", s.http.Addr).Msg("http server listening")
	return s.http.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
