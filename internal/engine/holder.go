package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/couchcryptid/flight-delay-engine/internal/domain"
	"github.com/couchcryptid/flight-delay-engine/internal/model"
)

// Holder publishes the current Engine. The zero value holds nothing and is
// not ready.
type Holder struct {
	current atomic.Pointer[Engine]
}

// NewHolder returns a Holder publishing e, which may be nil.
func NewHolder(e *Engine) *Holder {
	h := &Holder{}
	if e != nil {
		h.current.Store(e)
	}
	return h
}

// Current returns the published Engine, or nil.
func (h *Holder) Current() *Engine { return h.current.Load() }

// Swap publishes e and returns the Engine it replaced.
func (h *Holder) Swap(e *Engine) *Engine { return h.current.Swap(e) }

// Reload loads a bundle from store and publishes it. On failure the current
// Engine stays in place.
func (h *Holder) Reload(store Store, logger *slog.Logger) (model.LoadReport, error) {
	e, report, err := Load(store)
	if err != nil {
		logger.Warn("model reload failed, keeping current bundle", "error", err)
		return report, err
	}
	old := h.Swap(e)
	attrs := []any{"bundle_id", e.BundleID(), "model", e.Model()}
	if old != nil {
		attrs = append(attrs, "previous_bundle_id", old.BundleID())
	}
	logger.Info("model bundle published", attrs...)
	return report, nil
}

// BundleID identifies the published bundle, or returns "" when none is.
func (h *Holder) BundleID() string {
	if e := h.Current(); e != nil {
		return e.BundleID()
	}
	return ""
}

// Predict scores rec with the published Engine.
func (h *Holder) Predict(rec domain.FlightRecord) (domain.PredictionResult, error) {
	e := h.Current()
	if e == nil {
		return domain.PredictionResult{}, model.ErrModelNotTrained
	}
	return e.Predict(rec)
}

// Analyze attributes rec's delay. It works with or without a bundle.
func (h *Holder) Analyze(rec domain.FlightRecord) domain.DelayAnalysis {
	return domain.Analyze(rec)
}

// CheckReadiness reports ready once a bundle is published.
func (h *Holder) CheckReadiness(_ context.Context) error {
	if h.Current() == nil {
		return fmt.Errorf("model bundle: %w", model.ErrModelNotTrained)
	}
	return nil
}
