// Package engine holds the loaded model bundle that every prediction reads.
//
// An Engine wraps one immutable bundle and the model selected from it. The
// service keeps the current Engine in a Holder and replaces it wholesale on
// reload, so requests in flight finish against the bundle they started with.
package engine

import (
	"fmt"

	"github.com/couchcryptid/flight-delay-engine/internal/domain"
	"github.com/couchcryptid/flight-delay-engine/internal/model"
	"github.com/couchcryptid/flight-delay-engine/internal/observability"
)

// Store loads a persisted bundle.
type Store interface {
	Load() (*model.Bundle, model.LoadReport, error)
}

// Engine scores flights against one bundle. It is safe for concurrent use.
type Engine struct {
	bundle   *model.Bundle
	selected model.Algorithm
	report   model.LoadReport
}

// New wraps a trained or loaded bundle. It fails with model.ErrModelNotTrained
// when the bundle has no usable model.
func New(b *model.Bundle) (*Engine, error) {
	m, err := model.Select(b)
	if err != nil {
		return nil, err
	}
	return &Engine{bundle: b, selected: m.Algorithm}, nil
}

// Load reads a bundle from store and wraps it. The report is returned even
// when loading fails.
func Load(store Store) (*Engine, model.LoadReport, error) {
	b, report, err := store.Load()
	if err != nil {
		return nil, report, fmt.Errorf("load bundle: %w", err)
	}
	e, err := New(b)
	if err != nil {
		return nil, report, fmt.Errorf("load bundle: %w", err)
	}
	e.report = report
	return e, report, nil
}

// Bundle returns the wrapped bundle. Callers must not modify it.
func (e *Engine) Bundle() *model.Bundle { return e.bundle }

// BundleID identifies the wrapped bundle.
func (e *Engine) BundleID() string { return e.bundle.ID }

// Model names the algorithm predictions use.
func (e *Engine) Model() model.Algorithm { return e.selected }

// Report is the load report, empty for bundles that came straight from training.
func (e *Engine) Report() model.LoadReport { return e.report }

// Predict estimates the delay for rec.
func (e *Engine) Predict(rec domain.FlightRecord) (domain.PredictionResult, error) {
	return model.Predict(e.bundle, rec)
}

// Analyze attributes rec's delay to its causes. It does not use the model.
func (e *Engine) Analyze(rec domain.FlightRecord) domain.DelayAnalysis {
	return domain.Analyze(rec)
}

// Performance reports the bundle's model scores.
func (e *Engine) Performance() model.Performance {
	return e.bundle.Performance()
}

// ObservePerformance publishes a bundle's per-model test R² and marks a model
// as loaded.
func ObservePerformance(m *observability.Metrics, p model.Performance) {
	m.ModelTestR2.Reset()
	for alg, perf := range p.Models {
		m.ModelTestR2.WithLabelValues(string(alg)).Set(perf.R2)
	}
	m.ModelLoaded.Set(1)
}
