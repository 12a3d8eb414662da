package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/edvin/llmgate/internal/api/handler"
	mw "github.com/edvin/llmgate/internal/api/middleware"
	"github.com/edvin/llmgate/internal/config"
	"github.com/edvin/llmgate/internal/core"
)

type Server struct {
	router   chi.Router
	logger   zerolog.Logger
	services *core.Services
	pool     *pgxpool.Pool
	rdb      *redis.Client
	cfg      *config.Config
}

func NewServer(logger zerolog.Logger, pool *pgxpool.Pool, rdb *redis.Client, services *core.Services, cfg *config.Config) *Server {
	s := &Server{
		router:   chi.NewRouter(),
		logger:   logger,
		services: services,
		pool:     pool,
		rdb:      rdb,
		cfg:      cfg,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(mw.RequestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(mw.Metrics)
}

func (s *Server) setupRoutes() {
	// Prometheus metrics endpoint
	s.router.Handle("/metrics", promhttp.Handler())

	// Health check endpoints
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/readyz", s.handleReadyz)

	// Browser login round-trip, reachable without credentials.
	secureCookies := strings.HasPrefix(s.cfg.PublicBaseURL, "https://")
	auth := handler.NewAuth(s.services.Auth, secureCookies)
	s.router.Get("/auth/login/{provider}", auth.Login)
	s.router.Get("/auth/callback", auth.Callback)
	s.router.Post("/auth/logout", auth.Logout)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(mw.Auth(s.services.Access))

		// Caller identity
		user := handler.NewUser(s.services.Users)
		r.Get("/me", user.Me)

		// Tokens
		token := handler.NewToken(s.services.Tokens)
		r.Get("/tokens", token.List)
		r.Post("/tokens", token.Create)
		r.Get("/tokens/{id}", token.Get)
		r.Post("/tokens/{id}/revoke", token.Revoke)
		r.Delete("/tokens/{id}", token.Delete)

		// Reservations
		reservation := handler.NewReservation(s.services.Reservations)
		r.Post("/reservations", reservation.Create)
		r.Get("/reservations/mine", reservation.ListMine)
		r.Get("/reservations/{id}", reservation.Get)
		r.Post("/reservations/{id}/cancel", reservation.Cancel)

		// Routing
		route := handler.NewRoute(s.services.Access, s.services.Containers, s.services.Usage)
		r.Post("/route/resolve", route.Resolve)
		r.Post("/route/complete", route.Complete)

		// Usage history; non-admins see their own entries only.
		usage := handler.NewUsage(s.services.Usage)
		r.Get("/usage", usage.List)
		r.Get("/usage/totals", usage.Totals)

		// Model catalog reads are open to any authenticated caller.
		model := handler.NewModel(s.services.Models, s.services.Containers)
		r.Get("/models", model.List)
		r.Get("/models/{id}", model.Get)

		category := handler.NewCategory(s.services.Categories)
		r.Get("/categories", category.List)
		r.Get("/categories/{id}", category.Get)

		r.Group(func(r chi.Router) {
			r.Use(mw.RequireAdmin)

			// Identity providers and grants
			provider := handler.NewProvider(s.services.Providers, s.services.Grants)
			r.Get("/providers", provider.List)
			r.Post("/providers", provider.Create)
			r.Get("/providers/{id}", provider.Get)
			r.Put("/providers/{id}/enabled", provider.SetEnabled)
			r.Get("/providers/{id}/grants", provider.ListGrants)
			r.Post("/providers/{id}/grants", provider.CreateGrant)
			r.Delete("/grants/{grantID}", provider.DeleteGrant)

			// Users
			r.Get("/users", user.List)
			r.Get("/users/{id}", user.Get)
			r.Put("/users/{id}/admin", user.SetAdmin)

			// Catalog writes
			r.Post("/categories", category.Create)
			r.Put("/categories/{id}/preferred-model", category.SetPreferredModel)
			r.Delete("/categories/{id}", category.Delete)

			r.Post("/models", model.Create)
			r.Put("/models/{id}/category", model.SetCategory)
			r.Delete("/models/{id}", model.Delete)

			// Container lifecycle
			r.Get("/containers", model.ListContainers)
			r.Post("/models/{id}/container/start", model.ContainerStart)
			r.Post("/models/{id}/container/stop", model.ContainerStop)

			// Reservation scheduling
			r.Get("/reservations", reservation.List)
			r.Post("/reservations/{id}/approve", reservation.Approve)
			r.Post("/reservations/{id}/reject", reservation.Reject)
			r.Post("/reservations/{id}/release", reservation.Release)
		})
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{}
	healthy := true

	if err := s.pool.Ping(ctx); err != nil {
		checks["database"] = err.Error()
		healthy = false
	} else {
		checks["database"] = "ok"
	}

	if err := s.rdb.Ping(ctx).Err(); err != nil {
		checks["redis"] = err.Error()
		healthy = false
	} else {
		checks["redis"] = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	if healthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(checks)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
