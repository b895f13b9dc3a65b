package model

import (
	"fmt"
	"math"

	"github.com/couchcryptid/flight-delay-engine/internal/domain"
	"github.com/couchcryptid/flight-delay-engine/internal/features"
)

// Select returns the model predictions should use: the bundle's best model
// when usable, otherwise the first usable model in Algorithms order.
func Select(b *Bundle) (*TrainedModel, error) {
	if b == nil {
		return nil, ErrModelNotTrained
	}
	width := len(b.Columns)
	if m := b.Models[b.Best]; m.Usable(width) {
		return m, nil
	}
	for _, alg := range Algorithms {
		if m := b.Models[alg]; m.Usable(width) {
			return m, nil
		}
	}
	return nil, ErrModelNotTrained
}

// Row turns rec into the scaled feature row the bundle's models expect.
func Row(b *Bundle, rec domain.FlightRecord) ([]float64, error) {
	extractor := b.Extractor
	if extractor == nil {
		extractor = &features.Extractor{}
	}
	row := extractor.Extract(rec).Align(b.Columns)
	scaled, err := b.Scaler.Transform(row)
	if err != nil {
		return nil, fmt.Errorf("scale features: %w", err)
	}
	return scaled, nil
}

// Predict estimates the delay for rec with the bundle's selected model. The
// estimate is never negative.
func Predict(b *Bundle, rec domain.FlightRecord) (domain.PredictionResult, error) {
	m, err := Select(b)
	if err != nil {
		return domain.PredictionResult{}, err
	}
	row, err := Row(b, rec)
	if err != nil {
		return domain.PredictionResult{}, err
	}
	raw, err := m.Predict(row)
	if err != nil {
		return domain.PredictionResult{}, err
	}
	if !finite(raw) {
		raw = 0
	}
	delay := math.Max(0, raw)

	testMSE, ok := 0.0, m.Metrics != nil
	if ok {
		testMSE = m.Metrics.TestMSE
	}
	return domain.PredictionResult{
		PredictedDelayMinutes: delay,
		ConfidenceInterval:    domain.ConfidenceInterval(testMSE, ok),
		ModelUsed:             string(m.Algorithm),
		PredictionQuality:     domain.CategorizeRisk(delay),
	}, nil
}
