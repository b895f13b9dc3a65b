// Package http serves the prediction and analysis API alongside the health,
// readiness, and metrics endpoints.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/flight-delay-engine/internal/config"
	"github.com/couchcryptid/flight-delay-engine/internal/domain"
	"github.com/couchcryptid/flight-delay-engine/internal/engine"
	"github.com/couchcryptid/flight-delay-engine/internal/observability"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Predictor scores a single flight.
type Predictor interface {
	Predict(rec domain.FlightRecord) (domain.PredictionResult, error)
}

// FlightFinder looks up the most recent stored record for a flight number.
type FlightFinder interface {
	FindFlight(ctx context.Context, flightNumber string) (domain.FlightRecord, error)
}

// Deps are the services behind the API. A nil Models is an empty holder, so
// the API answers 503 until a bundle is reloaded. Predictor and Ready default
// to Models; a nil Flights disables the flight lookup route.
type Deps struct {
	Models    *engine.Holder
	Store     engine.Store
	Predictor Predictor
	Flights   FlightFinder
	Ready     sharedobs.ReadinessChecker
	Metrics   *observability.Metrics
}

// Server exposes the API plus health, readiness, and metrics endpoints.
type Server struct {
	httpServer *http.Server
	deps       Deps
	logger     *slog.Logger
}

// NewServer builds the router. Rate limiting is skipped when
// cfg.RateLimitRPS is zero.
func NewServer(cfg *config.Config, deps Deps, logger *slog.Logger) *Server {
	if deps.Models == nil {
		deps.Models = engine.NewHolder(nil)
	}
	if deps.Predictor == nil {
		deps.Predictor = deps.Models
	}
	if deps.Ready == nil {
		deps.Ready = deps.Models
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	s := &Server{
		httpServer: &http.Server{
			Addr:         cfg.HTTPAddr,
			Handler:      r,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		deps:   deps,
		logger: logger,
	}

	r.Get("/healthz", sharedobs.LivenessHandler())
	r.Get("/readyz", sharedobs.ReadinessHandler(deps.Ready))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(v1 chi.Router) {
		if cfg.RateLimitRPS > 0 {
			v1.Use(newClientLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst).middleware)
		}
		v1.Post("/predictions", s.handlePredict)
		v1.Get("/flights/{flightNumber}/prediction", s.handleFlightPrediction)
		v1.Post("/analyses", s.handleAnalyze)
		v1.Post("/analyses/batch", s.handleAnalyzeBatch)
		v1.Get("/models/performance", s.handlePerformance)
		v1.Post("/models/reload", s.handleReload)
	})

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}
