package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgallion1/docmux/internal/config"
	"github.com/dgallion1/docmux/internal/engine"
	"github.com/dgallion1/docmux/internal/fallback"
	"github.com/dgallion1/docmux/internal/pipeline"
	"github.com/dgallion1/docmux/internal/stats"
)

// Server is the HTTP API server for docmux.
type Server struct {
	router     chi.Router
	controller *fallback.Controller
	pool       *pipeline.Pool
	table      *engine.Table
	stats      *stats.Engines
	log        *slog.Logger
	cfg        config.Config
}

// NewServer creates and configures the HTTP server.
func NewServer(ctrl *fallback.Controller, pool *pipeline.Pool, table *engine.Table, st *stats.Engines, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		controller: ctrl,
		pool:       pool,
		table:      table,
		stats:      st,
		log:        log,
		cfg:        cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/health", s.handleHealth)

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.DocmuxAPIKey, s.log))

		r.Post("/api/extract", s.handleExtract)
		r.Get("/api/engines", s.handleEngines)
		r.Get("/api/jobs/{jobID}", s.handleJob)
		r.Get("/api/stats/engines", s.handleEngineStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
