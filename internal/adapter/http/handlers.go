package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/couchcryptid/flight-delay-engine/internal/domain"
	"github.com/couchcryptid/flight-delay-engine/internal/engine"
	"github.com/couchcryptid/flight-delay-engine/internal/model"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/go-chi/chi/v5"
)

// maxBodyBytes caps request bodies; batch analyses are the largest.
const maxBodyBytes = 4 << 20

type predictionResponse struct {
	Flight         *domain.FlightRecord    `json:"flight,omitempty"`
	Prediction     domain.PredictionResult `json:"prediction"`
	Recommendation string                  `json:"recommendation"`
	RiskFactors    []string                `json:"risk_factors"`
}

type analysisResponse struct {
	domain.DelayAnalysis
	Description string `json:"description"`
	Icon        string `json:"icon"`
	Color       string `json:"color"`
}

type performanceResponse struct {
	model.Performance
	ModelInUse model.Algorithm  `json:"model_in_use"`
	Load       model.LoadReport `json:"load_report"`
}

type reloadResponse struct {
	BundleID string           `json:"bundle_id"`
	Report   model.LoadReport `json:"load_report"`
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	rec, err := domain.ParseFlightRecord(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writePrediction(w, rec, false)
}

func (s *Server) handleFlightPrediction(w http.ResponseWriter, r *http.Request) {
	if s.deps.Flights == nil {
		writeError(w, http.StatusNotImplemented, "flight lookups require a database")
		return
	}
	flightNumber := chi.URLParam(r, "flightNumber")
	rec, err := s.deps.Flights.FindFlight(r.Context(), flightNumber)
	switch {
	case errors.Is(err, domain.ErrFlightNotFound):
		writeError(w, http.StatusNotFound, fmt.Sprintf("flight %s not found", flightNumber))
		return
	case err != nil:
		s.logger.Error("flight lookup failed", "error", err, "flight_number", flightNumber)
		writeError(w, http.StatusInternalServerError, "flight lookup failed")
		return
	}
	s.writePrediction(w, rec, true)
}

func (s *Server) writePrediction(w http.ResponseWriter, rec domain.FlightRecord, withFlight bool) {
	p, err := s.deps.Predictor.Predict(rec)
	if err != nil {
		if s.deps.Metrics != nil {
			s.deps.Metrics.PredictionErrors.Inc()
		}
		if errors.Is(err, model.ErrModelNotTrained) {
			writeError(w, http.StatusServiceUnavailable, "no trained model available")
			return
		}
		s.logger.Error("prediction failed", "error", err, "flight_number", rec.FlightNumber)
		writeError(w, http.StatusInternalServerError, "prediction failed")
		return
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.Predictions.WithLabelValues(string(p.PredictionQuality)).Inc()
	}

	resp := predictionResponse{
		Prediction:     p,
		Recommendation: domain.Recommend(p, rec),
		RiskFactors:    domain.RiskFactors(rec),
	}
	if withFlight {
		resp.Flight = &rec
	}
	sharedobs.WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	rec, err := domain.ParseFlightRecord(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	a := domain.Analyze(rec)
	if s.deps.Metrics != nil {
		s.deps.Metrics.Analyses.WithLabelValues(string(a.PrimaryReason)).Inc()
	}
	sharedobs.WriteJSON(w, http.StatusOK, analysisResponse{
		DelayAnalysis: a,
		Description:   a.PrimaryReason.Description(),
		Icon:          a.PrimaryReason.Icon(),
		Color:         a.PrimaryReason.Color(),
	})
}

func (s *Server) handleAnalyzeBatch(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	recs, err := domain.ParseFlightRecords(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	summary := domain.AnalyzeMany(recs)
	if s.deps.Metrics != nil {
		for _, a := range summary.Analyses {
			s.deps.Metrics.Analyses.WithLabelValues(string(a.PrimaryReason)).Inc()
		}
	}
	sharedobs.WriteJSON(w, http.StatusOK, summary)
}

func (s *Server) handlePerformance(w http.ResponseWriter, _ *http.Request) {
	e := s.deps.Models.Current()
	if e == nil {
		writeError(w, http.StatusServiceUnavailable, "no trained model available")
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, performanceResponse{
		Performance: e.Performance(),
		ModelInUse:  e.Model(),
		Load:        e.Report(),
	})
}

func (s *Server) handleReload(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Store == nil {
		writeError(w, http.StatusNotImplemented, "no model store configured")
		return
	}
	report, err := s.deps.Models.Reload(s.deps.Store, s.logger)
	if err != nil {
		sharedobs.WriteJSON(w, http.StatusServiceUnavailable, map[string]any{
			"error":       err.Error(),
			"load_report": report,
		})
		return
	}
	if e := s.deps.Models.Current(); e != nil && s.deps.Metrics != nil {
		engine.ObservePerformance(s.deps.Metrics, e.Performance())
	}
	sharedobs.WriteJSON(w, http.StatusOK, reloadResponse{
		BundleID: s.deps.Models.BundleID(),
		Report:   report,
	})
}

// readBody reads a capped request body, writing a 400 or 413 on failure.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "read request body")
		return nil, false
	}
	return body, true
}

func writeError(w http.ResponseWriter, status int, msg string) {
	sharedobs.WriteJSON(w, status, map[string]string{"error": msg})
}
