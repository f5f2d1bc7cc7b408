// Package api exposes applications, lenders, policies and lender matches
// over HTTP.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sells-group/lender-match/internal/config"
	"github.com/sells-group/lender-match/internal/model"
	"github.com/sells-group/lender-match/internal/store"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Matcher computes lender matches for a stored application.
type Matcher interface {
	Match(ctx context.Context, applicationID string) (*model.MatchRun, error)
}

// Server holds the dependencies of the HTTP handlers.
type Server struct {
	store   store.Store
	matcher Matcher
	metrics *Metrics
	cfg     config.ServerConfig
}

// NewServer creates a Server. metrics may be nil.
func NewServer(st store.Store, matcher Matcher, metrics *Metrics, cfg config.ServerConfig) *Server {
	return &Server{store: st, matcher: matcher, metrics: metrics, cfg: cfg}
}

// Router builds the chi router with all middleware and routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.metrics))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins(s.cfg.CORSOrigins),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(rateLimit(s.cfg.RateLimitRPS, s.cfg.RateLimitBurst))

		r.Route("/applications", func(r chi.Router) {
			r.Post("/", s.handleCreateApplication)
			r.Get("/", s.handleListApplications)
			r.Get("/{id}", s.handleGetApplication)
			r.Get("/{id}/matches", s.handleGetMatches)
			r.Get("/{id}/matches/latest", s.handleGetLatestMatchRun)
		})

		r.Route("/lenders", func(r chi.Router) {
			r.Get("/", s.handleListLenders)
			r.Post("/", s.handleCreateLender)
			r.Get("/{id}/policies", s.handleListPolicies)
			r.Post("/{id}/policies", s.handleCreatePolicy)
		})

		r.Patch("/policies/{id}", s.handleUpdatePolicy)
	})

	return r
}

func corsOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
