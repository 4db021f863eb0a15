// Package api exposes the page analyzer over HTTP: server-rendered pages for
// people, a small JSON API for machines, and health and metrics endpoints.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/JakeFAU/page-analyzer/internal/analyzer"
	"github.com/JakeFAU/page-analyzer/internal/telemetry"
)

// URLService is the workflow the handlers drive.
type URLService interface {
	Submit(ctx context.Context, raw string) (analyzer.URLRecord, bool, error)
	List(ctx context.Context) ([]analyzer.URLWithLatestCheck, error)
	Detail(ctx context.Context, id int64) (analyzer.URLDetail, error)
	Latest(ctx context.Context, id int64) (analyzer.URLWithLatestCheck, error)
	Check(ctx context.Context, id int64) (analyzer.CheckRecord, error)
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options tunes the router.
type Options struct {
	// APIKey, when set, is required on /api requests.
	APIKey             string
	CORSAllowedOrigins []string
	RequestTimeout     time.Duration
}

const defaultRequestTimeout = 30 * time.Second

// Server wires HTTP handlers to the URL service.
type Server struct {
	router  chi.Router
	service URLService
	ready   Pinger
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(service URLService, ready Pinger, opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	s := &Server{service: service, ready: ready, logger: logger}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(middleware.RequestLogger(zapLogFormatter{logger: logger}))
	r.Use(middleware.Recoverer)
	r.Use(telemetry.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", telemetry.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(opts.RequestTimeout))
		r.Get("/", s.index)
		r.Route("/urls", func(r chi.Router) {
			r.Get("/", s.listURLs)
			r.Post("/", s.createURL)
			r.Get("/{id}", s.showURL)
			r.Post("/{id}/checks", s.runCheck)
		})
		r.Route("/api", func(r chi.Router) {
			if len(opts.CORSAllowedOrigins) > 0 {
				r.Use(cors.Handler(cors.Options{
					AllowedOrigins: opts.CORSAllowedOrigins,
					AllowedMethods: []string{http.MethodGet, http.MethodOptions},
					AllowedHeaders: []string{"Accept", "Content-Type", "X-API-Key"},
					MaxAge:         300,
				}))
			}
			if opts.APIKey != "" {
				r.Use(apiKeyMiddleware(opts.APIKey))
			}
			r.Get("/urls", s.apiListURLs)
			r.Get("/urls/{id}", s.apiShowURL)
		})
	})
	r.NotFound(s.notFound)

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready.Ping(ctx); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			s.writeError(w, r, http.StatusServiceUnavailable, "storage unavailable")
			return
		}
	}
	s.writeJSON(w, r, http.StatusOK, map[string]string{"status": "ready"})
}
