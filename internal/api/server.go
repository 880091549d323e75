package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/terra-clan/bracket-engine/internal/competition"
	"github.com/terra-clan/bracket-engine/internal/config"
)

// Server represents the HTTP API server
type Server struct {
	config         config.ServerConfig
	router         *chi.Mux
	engine         *competition.Engine
	events         http.Handler
	authMiddleware *AuthMiddleware
}

// NewServer creates a new API server. events serves the websocket
// stream; nil disables it.
func NewServer(cfg config.ServerConfig, engine *competition.Engine, events http.Handler) *Server {
	s := &Server{
		config:         cfg,
		engine:         engine,
		events:         events,
		authMiddleware: NewAuthMiddleware(cfg.APIKeys),
	}
	s.setupRouter()
	return s
}

// Router returns the configured router
func (s *Server) Router() http.Handler {
	return s.router
}

// setupRouter configures all routes and middleware
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	timeout := s.config.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check (outside versioned API - public)
	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware.Authenticate)

		// Websocket streams outlive the request timeout
		if s.events != nil {
			r.Handle("/events", s.events)
		}

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(timeout))

			r.Get("/rules", s.handleGetRules)

			r.Route("/units/{unitID}", func(r chi.Router) {
				r.Post("/scores", s.handleSubmitScore)
				r.Get("/result", s.handleGetResult)
				r.Post("/resolve", s.handleResolveWinner)
				r.Put("/status", s.handleSetUnitStatus)
			})

			r.Get("/categories", s.handleListCategories)
			r.Route("/categories/{categoryID}", func(r chi.Router) {
				r.Put("/", s.handlePutCategory)
				r.Put("/registrations/{competitorID}", s.handlePutRegistration)
				r.Put("/judges/{judgeID}", s.handlePutJudge)

				r.Post("/draws", s.handleGenerateDraws)
				r.Get("/bracket", s.handleGetBracket)
				r.Post("/rounds", s.handleCreateRound)
				r.Post("/bronze", s.handleCreateBronze)

				r.Route("/levels/{level}", func(r chi.Router) {
					r.Post("/next", s.handleGenerateNextLevel)
					r.Post("/placements", s.handleAssignPlacements)
					r.Get("/scoreboard", s.handleGetScoreboard)
				})
			})
		})
	})

	s.router = r
}

// loggingMiddleware logs HTTP requests using slog
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			slog.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
				"remote_addr", r.RemoteAddr,
			)
		}()

		next.ServeHTTP(ww, r)
	})
}
