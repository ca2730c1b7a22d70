// Package server exposes the engine over HTTP.
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

	portfolio "github.com/etnz/portfolio-tracker"
)

// Config holds server configuration
type Config struct {
	Port        int
	Log         zerolog.Logger
	Engine      *portfolio.Engine
	CORSOrigins []string
}

// Server represents the HTTP server
type Server struct {
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger
	engine *portfolio.Engine
	port   int
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router: chi.NewRouter(),
		log:    cfg.Log.With().Str("component", "server").Logger(),
		engine: cfg.Engine,
		port:   cfg.Port,
	}

	s.setupMiddleware(cfg.CORSOrigins)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the routed handler, with its middleware.
func (s *Server) Handler() http.Handler { return s.router }

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(origins []string) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))

	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/portfolios", func(r chi.Router) {
			r.Get("/", s.handleListPortfolios)
			r.Post("/", s.handleCreatePortfolio)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetPortfolio)

				r.Get("/accounts", s.handleListAccounts)
				r.Post("/accounts", s.handleCreateAccount)

				r.Get("/trades", s.handleListTrades)
				r.Post("/trades", s.handleAppendTrade)
				r.Get("/cash-transactions", s.handleListCash)
				r.Post("/cash-transactions", s.handleAppendCash)
				r.Post("/splits", s.handleAppendSplit)
				r.Post("/drip", s.handleDRIP)

				r.Get("/positions", s.handlePositions)
				r.Get("/pnl", s.handlePnL)
				r.Get("/dashboard", s.handleDashboard)
				r.Get("/report", s.handleReport)
			})
		})

		r.Route("/assets", func(r chi.Router) {
			r.Get("/", s.handleListAssets)
			r.Post("/", s.handlePutAsset)
			r.Get("/{id}", s.handleGetAsset)
		})

		r.Get("/accounts/{id}/balance", s.handleAccountBalance)

		r.Post("/prices", s.handlePutPrice)
		r.Post("/fx-rates", s.handlePutFXRate)
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
