// Package server provides the HTTP server and routing for the basket service.
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

	accounthandlers "github.com/aristath/basket/internal/modules/account/handlers"
	baskethandlers "github.com/aristath/basket/internal/modules/basket/handlers"
	currencyhandlers "github.com/aristath/basket/internal/modules/currency/handlers"
)

// Config holds server configuration and wired dependencies.
type Config struct {
	Port    int
	DevMode bool
	Log     zerolog.Logger

	BasketHandler   *baskethandlers.Handler
	AccountHandler  *accounthandlers.Handler
	CurrencyHandler *currencyhandlers.Handler
	SystemHandlers  *SystemHandlers
	EventsStream    *EventsStreamHandler
}

// Server is the HTTP server.
type Server struct {
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger
}

// New creates a new HTTP server with all routes mounted.
func New(cfg Config) *Server {
	s := &Server{
		router: chi.NewRouter(),
		log:    cfg.Log.With().Str("component", "server").Logger(),
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes(cfg)

	// No WriteTimeout: the SSE stream holds its connection open indefinitely.
	s.server = &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Port),
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes(cfg Config) {
	if cfg.SystemHandlers != nil {
		s.router.Get("/health", cfg.SystemHandlers.HandleHealth)
	}

	s.router.Route("/api", func(r chi.Router) {
		if cfg.BasketHandler != nil {
			cfg.BasketHandler.RegisterRoutes(r)
		}
		if cfg.AccountHandler != nil {
			cfg.AccountHandler.RegisterRoutes(r)
		}
		if cfg.CurrencyHandler != nil {
			cfg.CurrencyHandler.RegisterRoutes(r)
		}
		if cfg.SystemHandlers != nil {
			r.Get("/health", cfg.SystemHandlers.HandleHealth)
			r.Route("/system", func(r chi.Router) {
				r.Get("/status", cfg.SystemHandlers.HandleSystemStatus)
			})
		}
		if cfg.EventsStream != nil {
			r.Get("/events/stream", cfg.EventsStream.ServeHTTP)
		}
	})
}

// Router returns the configured router, for tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
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
