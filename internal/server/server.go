// Package server provides the HTTP server and routing for the portfolio service.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/saxo-portfolio/internal/coordinator"
	"github.com/aristath/saxo-portfolio/internal/events"
	markethourshandlers "github.com/aristath/saxo-portfolio/internal/modules/market_hours/handlers"
	"github.com/aristath/saxo-portfolio/internal/modules/settings"
	settingshandlers "github.com/aristath/saxo-portfolio/internal/modules/settings/handlers"
	"github.com/aristath/saxo-portfolio/internal/oauth"
	"github.com/aristath/saxo-portfolio/internal/ratelimit"
)

// TokenManager is the part of the token manager the HTTP surface needs
type TokenManager interface {
	State() oauth.State
	SetToken(ctx context.Context, token oauth.TokenState) error
}

// LimiterStats exposes the rate limiter diagnostics
type LimiterStats interface {
	Stats() ratelimit.Stats
}

// HealthChecker verifies the database behind the token store and settings
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Config holds server configuration
type Config struct {
	Log                 zerolog.Logger
	Port                int
	DevMode             bool
	Coordinator         *coordinator.Coordinator
	Tokens              TokenManager
	Exchanger           *oauth.Exchanger
	Limiter             LimiterStats
	Database            HealthChecker
	NextPoll            func() (time.Time, bool)
	EventManager        *events.Manager
	SettingsService     *settings.Service
	CredentialRefresher settingshandlers.CredentialRefresher
}

// Server represents the HTTP server
type Server struct {
	router       *chi.Mux
	server       *http.Server
	log          zerolog.Logger
	port         int
	coordinator  *coordinator.Coordinator
	tokens       TokenManager
	exchanger    *oauth.Exchanger
	limiter      LimiterStats
	database     HealthChecker
	nextPoll     func() (time.Time, bool)
	eventManager *events.Manager
	settings     *settingshandlers.Handler
	now          func() time.Time
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:       chi.NewRouter(),
		log:          cfg.Log.With().Str("component", "server").Logger(),
		port:         cfg.Port,
		coordinator:  cfg.Coordinator,
		tokens:       cfg.Tokens,
		exchanger:    cfg.Exchanger,
		limiter:      cfg.Limiter,
		database:     cfg.Database,
		nextPoll:     cfg.NextPoll,
		eventManager: cfg.EventManager,
		now:          time.Now,
	}

	s.settings = settingshandlers.NewHandler(cfg.SettingsService, cfg.EventManager, cfg.Log)
	if cfg.CredentialRefresher != nil {
		s.settings.SetCredentialRefresher(cfg.CredentialRefresher)
	}
	s.settings.SetTimezoneSwitcher(cfg.Coordinator)
	s.settings.SetAvailabilityFloorSetter(cfg.Coordinator)

	s.setupMiddleware()
	s.setupRoutes(cfg.DevMode)

	s.server = &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Port),
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		// No write timeout: the event streams stay open
		IdleTimeout: 60 * time.Second,
	}

	return s
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware() {
	// Recovery from panics
	s.router.Use(middleware.Recoverer)

	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(s.loggingMiddleware)

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
}

func (s *Server) setupRoutes(devMode bool) {
	s.router.Route("/api", func(r chi.Router) {
		// Long-lived streams, outside the request timeout
		eventsStreamHandler := NewEventsStreamHandler(s.eventManager.Bus(), s.log)
		r.Get("/events/stream", eventsStreamHandler.ServeHTTP)

		snapshotStream := NewSnapshotStreamHandler(s.eventManager.Bus(), s.coordinator, s.log)
		r.Get("/stream", snapshotStream.ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))
			if !devMode {
				r.Use(middleware.Compress(5))
			}

			r.Get("/health", s.handleHealth)
			r.Get("/snapshot", s.handleSnapshot)
			r.Get("/sensors", s.handleSensors)
			r.Post("/refresh", s.handleRefresh)
			r.Get("/positions", s.handlePositions)

			marketHoursHandler := markethourshandlers.NewHandler(s.coordinator, s.log)
			marketHoursHandler.RegisterRoutes(r)

			s.settings.RegisterRoutes(r)
		})
	})

	s.router.Route("/oauth", func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		r.Get("/authorize", s.handleAuthorize)
		r.Get("/callback", s.handleCallback)
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
