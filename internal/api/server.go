package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/terra-clan/assessment-engine/internal/auth"
	"github.com/terra-clan/assessment-engine/internal/config"
	"github.com/terra-clan/assessment-engine/internal/health"
	"github.com/terra-clan/assessment-engine/internal/questionsets"
	"github.com/terra-clan/assessment-engine/internal/session"
)

// Server represents the HTTP API server
type Server struct {
	config         config.ServerConfig
	router         *chi.Mux
	sessions       *session.Manager
	questionSets   *questionsets.Loader
	probes         *health.Registry
	proctors       *ProctorHub
	authMiddleware *AuthMiddleware
}

// NewServer creates a new API server
func NewServer(
	cfg config.ServerConfig,
	sessions *session.Manager,
	loader *questionsets.Loader,
	probes *health.Registry,
	proctors *ProctorHub,
	verifier *auth.Verifier,
) *Server {
	s := &Server{
		config:         cfg,
		sessions:       sessions,
		questionSets:   loader,
		probes:         probes,
		proctors:       proctors,
		authMiddleware: NewAuthMiddleware(verifier),
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

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check (outside versioned API - public)
	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)

	// API v1 routes (protected by authentication)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware.Authenticate)

		// Proctor channel is long-lived, so it stays outside the request timeout
		r.Get("/proctor", s.handleProctorWS)

		r.Group(func(r chi.Router) {
			// Code runs may wait on the execution service for every test case
			r.Use(middleware.Timeout(120 * time.Second))

			r.Route("/question-sets", func(r chi.Router) {
				r.Get("/", s.handleListQuestionSets)
				r.Get("/{id}", s.handleGetQuestionSet)
			})

			r.Route("/assessments", func(r chi.Router) {
				r.Get("/", s.handleListAssessments)
				r.Post("/", s.handleStartAssessment)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetAssessment)
					r.Post("/stages/{stage}/enter", s.handleEnterStage)
					r.Post("/stages/{stage}/submit", s.handleSubmitStage)
					r.Post("/run", s.handleRunCode)
					r.Post("/exit", s.handleExitAssessment)
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
