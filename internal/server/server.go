// Package server exposes the engine over an HTTP JSON API.
package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"

	"connectrpc.com/grpchealth"
	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/kazz187/permguard/internal/config"
	"github.com/kazz187/permguard/internal/confirmation"
	"github.com/kazz187/permguard/internal/engine"
	"github.com/kazz187/permguard/internal/pushnotification"
	"github.com/kazz187/permguard/pkg/cerr"
	"github.com/kazz187/permguard/pkg/clog"
)

type Server struct {
	mu         sync.Mutex
	server     *http.Server
	closed     bool
	env        *config.Env
	engine     *engine.Engine
	configRepo engine.ConfigRepository
	broker     *confirmation.Broker
	registrar  *pushnotification.Registrar
}

func NewServer(
	env *config.Env,
	eng *engine.Engine,
	configRepo engine.ConfigRepository,
	broker *confirmation.Broker,
	registrar *pushnotification.Registrar,
) *Server {
	return &Server{
		env:        env,
		engine:     eng,
		configRepo: configRepo,
		broker:     broker,
		registrar:  registrar,
	}
}

// Handler returns the complete HTTP handler, including authentication and
// CORS.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Use(
			clog.SlogChiMiddleware(),
			cerr.NewJSONResponseChiMiddleware(),
		)

		r.Post("/check", s.check)
		r.Post("/check/batch", s.checkBatch)

		r.Get("/permissions", s.listPermissions)
		r.Get("/permissions/{name}", s.getPermission)
		r.Put("/permissions/{name}", s.putPermission)
		r.Delete("/permissions/{name}", s.deletePermission)

		r.Get("/policy", s.getPolicy)
		r.Put("/policy", s.putPolicy)

		r.Get("/grants", s.listGrants)
		r.Post("/grants", s.createGrant)
		r.Delete("/grants/{name}", s.revokeGrant)

		r.Get("/audit", s.listAudit)

		r.Get("/config", s.getConfig)
		r.Put("/config", s.putConfig)

		r.Get("/confirmations", s.listConfirmations)
		r.Post("/confirmations/{id}", s.respondConfirmation)

		r.Get("/push-subscriptions/vapid-public-key", s.vapidPublicKey)
		r.Post("/push-subscriptions", s.registerPushSubscription)

		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			cerr.SetNewJSONError(r.Context(), cerr.NotFound, "not found", nil)
		})
		r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
			cerr.SetNewJSONError(r.Context(), cerr.Unimplemented, "method not allowed", nil)
		})
	})

	mux := http.NewServeMux()
	mux.Handle("/health", &HealthChecker{})
	mux.Handle("/api/", r)
	mux.Handle(grpchealth.NewHandler(grpchealth.NewStaticChecker()))

	return cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}).Handler(s.apiKeyMiddleware(mux))
}

// ListenAndServe serves until Shutdown is called. ctx becomes the base
// context of every request, so cancelling it also aborts pending
// confirmations.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := net.JoinHostPort(s.env.HTTPHost, s.env.HTTPPort)
	slog.Info("starting server", "addr", addr)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return http.ErrServerClosed
	}
	s.server = &http.Server{
		Addr:        addr,
		Handler:     h2c.NewHandler(s.Handler(), &http2.Server{}),
		BaseContext: func(_ net.Listener) context.Context { return ctx },
	}
	srv := s.server
	s.mu.Unlock()

	return srv.ListenAndServe()
}

// Shutdown stops the server. A later ListenAndServe returns
// http.ErrServerClosed immediately.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	srv := s.server
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

type HealthChecker struct{}

func (hc *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) apiKeyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip API key check for health endpoints.
		if r.URL.Path == "/health" || strings.HasPrefix(r.URL.Path, "/grpc.health.v1.Health/") {
			next.ServeHTTP(w, r)
			return
		}
		apiKey := r.Header.Get("X-API-Key")
		if apiKey == "" {
			apiKey = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		}
		if s.env.APIKey == "" || apiKey != s.env.APIKey {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
