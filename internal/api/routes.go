// Package api provides the thin HTTP adapter over the Queue facade
// (SPEC_FULL.md §1 treats request parsing/validation as an external concern;
// this package is the adapter that still has to exist to call it).
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/conductorhq/agentorch/internal/api/handlers"
	apiMiddleware "github.com/conductorhq/agentorch/internal/api/middleware"
	"github.com/conductorhq/agentorch/internal/config"
	"github.com/conductorhq/agentorch/internal/queue"
	"github.com/conductorhq/agentorch/internal/store"
)

const version = "1.0.0"

// Server is the HTTP adapter's chi router.
type Server struct {
	router       *chi.Mux
	config       *config.Config
	taskHandler  *handlers.TaskHandler
	adminHandler *handlers.AdminHandler
}

// NewServer wires the HTTP adapter over an already-constructed Queue.
func NewServer(cfg *config.Config, q *queue.Queue, s store.Store, redisClient *redis.Client, workerID string) *Server {
	srv := &Server{
		router:       chi.NewRouter(),
		config:       cfg,
		taskHandler:  handlers.NewTaskHandler(q),
		adminHandler: handlers.NewAdminHandler(q, s, redisClient, workerID, version),
	}

	srv.setupMiddleware()
	srv.setupRoutes()
	return srv
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(apiMiddleware.RequestLogger())
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Heartbeat("/health"))
}

func (s *Server) setupRoutes() {
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.AllowContentType("application/json"))

		r.Route("/tasks", func(r chi.Router) {
			r.Post("/", s.taskHandler.Create)
			r.Get("/", s.taskHandler.List)
			r.Get("/{taskID}", s.taskHandler.Get)
			r.Delete("/{taskID}", s.taskHandler.Cancel)
			r.Get("/{taskID}/result", s.taskHandler.Result)
			r.Get("/{taskID}/logs", s.taskHandler.Logs)
		})
	})

	s.router.Route("/admin", func(r chi.Router) {
		r.Get("/stats", s.adminHandler.Stats)
		r.Get("/health", s.adminHandler.HealthCheck)
	})

	if s.config.Metrics.Enabled {
		s.router.Handle(s.config.Metrics.Path, promhttp.Handler())
	}
}

// Router returns the chi router.
func (s *Server) Router() *chi.Mux { return s.router }

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
