package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/couchcryptid/flight-delay-engine/internal/domain"
	"github.com/couchcryptid/flight-delay-engine/internal/model"
	"github.com/couchcryptid/flight-delay-engine/internal/observability"
)

// Predictor estimates the delay of a single flight.
type Predictor interface {
	Predict(rec domain.FlightRecord) (domain.PredictionResult, error)
	BundleID() string
}

// FlightScorer implements Transformer: it parses the flight record, predicts
// its delay, and attributes the delay to a cause.
type FlightScorer struct {
	predictor Predictor
	metrics   *observability.Metrics
	logger    *slog.Logger
}

// NewTransformer creates a FlightScorer. Flights are still analyzed when the
// predictor has no usable model; they are published without a prediction.
func NewTransformer(predictor Predictor, metrics *observability.Metrics, logger *slog.Logger) *FlightScorer {
	return &FlightScorer{
		predictor: predictor,
		metrics:   metrics,
		logger:    logger,
	}
}

func (t *FlightScorer) Transform(_ context.Context, raw domain.RawEvent) (domain.ScoredFlight, error) {
	rec, err := domain.ParseRawEvent(raw)
	if err != nil {
		return domain.ScoredFlight{}, err
	}

	var prediction *domain.PredictionResult
	if p, err := t.predictor.Predict(rec); err == nil {
		prediction = &p
		t.metrics.Predictions.WithLabelValues(string(p.PredictionQuality)).Inc()
	} else {
		t.metrics.PredictionErrors.Inc()
		if !errors.Is(err, model.ErrModelNotTrained) {
			t.logger.Warn("prediction failed", "error", err,
				"flight_number", rec.FlightNumber, "offset", raw.Offset)
		}
	}

	scored := domain.NewScoredFlight(rec, prediction, t.predictor.BundleID())
	t.metrics.Analyses.WithLabelValues(string(scored.Analysis.PrimaryReason)).Inc()
	return scored, nil
}
