// Package gateway composes the webhook admission pipeline.
//
// Every inbound request walks the same fixed order: verify signature, resolve
// role, check rate limit, route, invoke handler, shape response. Failure at
// any stage short-circuits to a typed error response; a stage never runs when
// an earlier one rejected. The order is load-bearing: an unsigned request is
// charged against anonymous rather than a real identity, and a throttled
// request must never reach (and so never side-effect through) a handler.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mattjoyce/hookgate/internal/audit"
	"github.com/mattjoyce/hookgate/internal/auth"
	"github.com/mattjoyce/hookgate/internal/events"
	"github.com/mattjoyce/hookgate/internal/ratelimit"
	"github.com/mattjoyce/hookgate/internal/router"
	"github.com/mattjoyce/hookgate/internal/signature"
)

// SignatureHeader is the inbound signature header (GitHub convention).
const SignatureHeader = "X-Hub-Signature-256"

// Config holds gateway server configuration.
type Config struct {
	Listen      string
	MaxBodySize int64
}

// Server is the webhook gateway HTTP server.
type Server struct {
	config   Config
	verifier *signature.Verifier
	resolver auth.Resolver
	limiter  ratelimit.Checker
	registry *router.Registry
	recorder audit.Recorder
	auditLog audit.Log
	hub      *events.Hub
	logger   *slog.Logger

	server    *http.Server
	startedAt time.Time
}

// New creates a gateway server. All collaborators are required; pass the Nop
// implementations for disabled concerns.
func New(
	config Config,
	verifier *signature.Verifier,
	resolver auth.Resolver,
	limiter ratelimit.Checker,
	registry *router.Registry,
	recorder audit.Recorder,
	auditLog audit.Log,
	logger *slog.Logger,
) *Server {
	if config.MaxBodySize <= 0 {
		config.MaxBodySize = 1 << 20
	}
	s := &Server{
		config:    config,
		verifier:  verifier,
		resolver:  resolver,
		limiter:   limiter,
		registry:  registry,
		recorder:  recorder,
		auditLog:  auditLog,
		hub:       events.NewHub(256),
		logger:    logger,
		startedAt: time.Now(),
	}
	if verifier.Open() {
		// Loud on purpose. Open mode is a legitimate dev configuration and a
		// production incident waiting to happen.
		logger.Warn("signature verification is OPEN: unsigned requests will be admitted")
	}
	return s
}

// Start runs the HTTP server until ctx is cancelled (blocking).
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      s.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("gateway starting",
		"listen", s.config.Listen,
		"handlers", len(s.registry.Services()),
		"signature_open", s.verifier.Open(),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("gateway shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("gateway shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("gateway server error: %w", err)
	}
}

// Routes builds the HTTP router. Exposed for httptest use.
func (s *Server) Routes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Post("/webhook/{service}", s.handleWebhook)

	// Side-channel reads: unauthenticated, unthrottled, and they expose no
	// secrets or per-identifier counters.
	r.Get("/health", s.handleHealth)
	r.Get("/api/services", s.handleServices)
	r.Get("/api/events", s.handleEvents)

	return r
}

// loggingMiddleware logs requests without body content; payloads may carry
// third-party data we do not want in logs.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
			"remote_addr", r.RemoteAddr,
		)
	})
}

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, HealthResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Handlers:      s.registry.Services(),
	})
}

// handleServices handles GET /api/services.
func (s *Server) handleServices(w http.ResponseWriter, r *http.Request) {
	services := s.registry.Services()
	s.respondJSON(w, http.StatusOK, ServicesResponse{
		Services: services,
		Count:    len(services),
	})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, detail ErrorDetail) {
	s.respondJSON(w, status, ErrorResponse{Error: detail})
}
