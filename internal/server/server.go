package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/CreateIntelligens/voicetextpro/internal/calendar"
	"github.com/CreateIntelligens/voicetextpro/internal/instrumentation"
	"github.com/CreateIntelligens/voicetextpro/internal/link"
	"github.com/CreateIntelligens/voicetextpro/internal/logging"
)

// Config wires the server's dependencies. Orchestrator and Reader may be
// nil when Configured is false; the calendar routes then answer 503.
type Config struct {
	Addr         string
	Configured   bool
	Orchestrator *link.Orchestrator
	Reader       *calendar.Reader
	Logger       *slog.Logger
	Metrics      *instrumentation.Metrics
	RateLimiter  *RateLimiter
}

// Server is the application HTTP server.
type Server struct {
	addr         string
	configured   bool
	orchestrator *link.Orchestrator
	reader       *calendar.Reader
	logger       *slog.Logger
	metrics      *instrumentation.Metrics
	rateLimiter  *RateLimiter
	health       *HealthChecker

	httpServer *http.Server
}

// New creates a Server.
func New(config Config) *Server {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		addr:         config.Addr,
		configured:   config.Configured,
		orchestrator: config.Orchestrator,
		reader:       config.Reader,
		logger:       logging.WithComponent(logger, "server"),
		metrics:      config.Metrics,
		rateLimiter:  config.RateLimiter,
		health:       NewHealthChecker(),
	}
}

// Router builds the HTTP routing table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestMetrics(s.metrics))

	r.Handle("/healthz", s.health.LivenessHandler())
	r.Handle("/readyz", s.health.ReadinessHandler())

	r.Route("/api/calendar", func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))

		if !s.configured {
			// Status stays answerable so clients can tell "feature off"
			// apart from "service broken".
			r.Get("/status", handleStatusNotConfigured)
			r.HandleFunc("/*", notConfigured)
			return
		}

		// The link endpoints talk to the OAuth provider; keep abusive
		// clients from hammering the consent flow.
		r.Group(func(r chi.Router) {
			if s.rateLimiter != nil {
				r.Use(s.rateLimiter.Middleware())
			}
			r.Get("/auth", s.handleAuth)
			r.Get("/callback", s.handleCallback)
		})

		r.Get("/status", s.handleStatus)
		r.Get("/events", s.handleEvents)
		r.Delete("/link", s.handleUnlink)
	})

	return r
}

// Health exposes the health checker so the lifecycle code can flip
// readiness during shutdown.
func (s *Server) Health() *HealthChecker {
	return s.health
}

// Start runs the server, blocking until it stops.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Info("starting http server", "addr", s.addr, "configured", s.configured)
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.health.SetShuttingDown()
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
	if s.httpServer != nil {
		s.logger.Info("shutting down http server")
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
