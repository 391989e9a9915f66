// Package api provides the HTTP surface of the starwatch daemon: surface
// registration, the message bus endpoint and the event stream.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/starwatchapp/starwatch/internal/auth"
	"github.com/starwatchapp/starwatch/internal/bus"
	"github.com/starwatchapp/starwatch/internal/ratelimit"
	"github.com/starwatchapp/starwatch/internal/sse"
	"github.com/starwatchapp/starwatch/internal/store"
)

// Version is reported in the OpenAPI document.
const Version = "1.0.0"

// SurfaceTokens issues and verifies surface tokens.
type SurfaceTokens interface {
	Issue(kind auth.SurfaceKind) (string, *auth.SurfaceClaims, error)
	Verify(token string) (*auth.SurfaceClaims, error)
}

// Dispatcher runs bus messages.
type Dispatcher interface {
	Dispatch(ctx context.Context, req bus.Request) bus.Response
}

// IndexStats reports the follow search index size.
type IndexStats interface {
	DocumentCount() (uint64, error)
}

// AlarmStatus reports whether the live scheduler had to fall back to an
// in-process timer.
type AlarmStatus interface {
	UsingFallback() bool
}

// Deps are the collaborators the server needs.
type Deps struct {
	Tokens         SurfaceTokens
	Bus            Dispatcher
	Events         *sse.Manager
	Local          store.Scope
	Sync           store.Scope
	Search         IndexStats
	Alarm          AlarmStatus
	AllowedOrigins []string
}

// Options tunes the per-surface and per-address limits.
type Options struct {
	MessagesPerSecond      float64
	MessageBurst           int
	RegistrationsPerMinute int
}

// DefaultOptions returns limits generous enough for a popup hammering
// tag toggles but tight enough to stop a runaway content script.
func DefaultOptions() Options {
	return Options{
		MessagesPerSecond:      20,
		MessageBurst:           40,
		RegistrationsPerMinute: 30,
	}
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	deps   Deps
	router *chi.Mux
	api    huma.API
	events *sse.Handler
	logger *slog.Logger

	messageLimiter  *ratelimit.KeyedRateLimiter
	registerLimiter *RateLimiter
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(deps Deps, opts Options, logger *slog.Logger) *Server {
	router := chi.NewRouter()

	s := &Server{
		deps:            deps,
		router:          router,
		logger:          logger,
		messageLimiter:  ratelimit.New(opts.MessagesPerSecond, opts.MessageBurst),
		registerLimiter: NewRateLimiter(opts.RegistrationsPerMinute, time.Minute, opts.RegistrationsPerMinute),
	}

	s.setupMiddleware()

	humaConfig := huma.DefaultConfig("Starwatch API", Version)
	humaConfig.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"bearer": {
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "PASETO",
		},
	}
	s.api = humachi.New(router, humaConfig)
	RegisterErrorHandler()

	s.events = sse.NewHandler(deps.Events, surfaceFromRequest, logger)

	s.registerHealthRoutes()
	s.registerSurfaceRoutes()
	s.registerMessageRoutes()

	router.With(s.requireSurface).Get("/api/v1/events", s.events.ServeHTTP)

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Shutdown stops the limiter sweeps.
func (s *Server) Shutdown() error {
	s.messageLimiter.Stop()
	s.registerLimiter.Stop()
	return nil
}

// setupMiddleware configures middleware stack.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.deps.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "Last-Event-ID"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))
}
