package model

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/couchcryptid/flight-delay-engine/internal/features"
)

// Algorithm names a regression algorithm.
type Algorithm string

const (
	LinearRegression Algorithm = "linear_regression"
	RidgeRegression  Algorithm = "ridge_regression"
	LassoRegression  Algorithm = "lasso_regression"
	RandomForest     Algorithm = "random_forest"
)

// Algorithms lists every supported algorithm in fallback order.
var Algorithms = []Algorithm{LinearRegression, RidgeRegression, LassoRegression, RandomForest}

var (
	// ErrInsufficientData is returned when there is nothing to train on.
	ErrInsufficientData = errors.New("insufficient training data")
	// ErrModelNotTrained is returned when a bundle has no usable model.
	ErrModelNotTrained = errors.New("no trained model available")
	// ErrTrainingFailed is returned when every algorithm failed to train.
	ErrTrainingFailed = errors.New("all algorithms failed to train")
	// ErrWidthMismatch is returned when a feature row does not match a model.
	ErrWidthMismatch = errors.New("feature width mismatch")
)

// Metrics are a model's evaluation scores.
type Metrics struct {
	TrainMSE float64 `json:"train_mse"`
	TestMSE  float64 `json:"test_mse"`
	TrainR2  float64 `json:"train_r2"`
	TestR2   float64 `json:"test_r2"`
	TrainMAE float64 `json:"train_mae"`
	TestMAE  float64 `json:"test_mae"`
	// CVRMSE is nil when the training split was too small to cross-validate.
	CVRMSE  *float64 `json:"cv_rmse,omitempty"`
	CVFolds int      `json:"cv_folds"`
}

// Regressor maps a scaled feature row to a prediction.
type Regressor interface {
	Predict(x []float64) float64
	Width() int
}

// TrainedModel is one fitted algorithm. Exactly one of Linear and Forest is
// set.
type TrainedModel struct {
	Algorithm   Algorithm `json:"algorithm"`
	Linear      *Linear   `json:"linear,omitempty"`
	Forest      *Forest   `json:"forest,omitempty"`
	Metrics     *Metrics  `json:"metrics,omitempty"`
	Importances []float64 `json:"feature_importances,omitempty"`
}

func (m *TrainedModel) regressor() Regressor {
	switch {
	case m == nil:
		return nil
	case m.Linear != nil:
		return m.Linear
	case m.Forest != nil:
		return m.Forest
	}
	return nil
}

// Width reports the number of features the model expects, or -1 when the
// model has no fitted parameters.
func (m *TrainedModel) Width() int {
	r := m.regressor()
	if r == nil {
		return -1
	}
	return r.Width()
}

// Predict applies the model to a scaled feature row.
func (m *TrainedModel) Predict(x []float64) (float64, error) {
	r := m.regressor()
	if r == nil {
		return 0, fmt.Errorf("%s: %w", m.name(), ErrModelNotTrained)
	}
	if r.Width() != len(x) {
		return 0, fmt.Errorf("%s: %w: model has %d, row has %d", m.name(), ErrWidthMismatch, r.Width(), len(x))
	}
	return r.Predict(x), nil
}

func (m *TrainedModel) name() string {
	if m == nil {
		return "<nil>"
	}
	return string(m.Algorithm)
}

// Usable reports whether the model can score rows of the given width.
func (m *TrainedModel) Usable(width int) bool {
	return m.regressor() != nil && m.Width() == width
}

// Validate checks that the model carries exactly one well-formed set of
// fitted parameters. It is meant for models read back from storage.
func (m *TrainedModel) Validate() error {
	switch {
	case m == nil || (m.Linear == nil && m.Forest == nil):
		return fmt.Errorf("%s: %w", m.name(), ErrModelNotTrained)
	case m.Linear != nil && m.Forest != nil:
		return fmt.Errorf("%s: both linear and forest parameters set", m.name())
	case m.Linear != nil:
		if err := m.Linear.check(); err != nil {
			return fmt.Errorf("%s: %w", m.name(), err)
		}
	case !m.Forest.valid():
		return fmt.Errorf("%s: malformed forest", m.name())
	}
	return nil
}

// LoadReport describes what a bundle store found when loading.
type LoadReport struct {
	Loaded   []Algorithm          `json:"loaded"`
	Unusable map[Algorithm]string `json:"unusable,omitempty"`
	Missing  []string             `json:"missing,omitempty"`
	// FellBack is set when the recorded best model was missing or unusable
	// and another model was selected.
	FellBack bool `json:"fell_back"`
}

// AlgorithmResult records the outcome of training one algorithm.
type AlgorithmResult struct {
	Algorithm Algorithm
	Model     *TrainedModel
	Err       error
	Duration  time.Duration
}

// Bundle is the output of one training run: every trained model plus the
// state needed to turn a flight record into a scaled feature row. A bundle is
// never modified after Train or Load returns it.
type Bundle struct {
	ID        string
	TrainedAt time.Time
	Models    map[Algorithm]*TrainedModel
	Results   []AlgorithmResult
	Scaler    *features.Scaler
	Extractor *features.Extractor
	Columns   []string
	Best      Algorithm
}

// Failures returns the error text of every algorithm that failed.
func (b *Bundle) Failures() map[Algorithm]string {
	out := make(map[Algorithm]string)
	for _, r := range b.Results {
		if r.Err != nil {
			out[r.Algorithm] = r.Err.Error()
		}
	}
	return out
}

// ModelPerformance summarizes one model's test scores.
type ModelPerformance struct {
	R2     float64  `json:"r2_score"`
	RMSE   float64  `json:"rmse"`
	MAE    float64  `json:"mae"`
	CVRMSE *float64 `json:"cv_rmse,omitempty"`
	// FeatureImportance is set for models that measure it (random forest).
	FeatureImportance map[string]float64 `json:"feature_importance,omitempty"`
}

// Performance is the bundle-level model report.
type Performance struct {
	BundleID  string                         `json:"bundle_id"`
	TrainedAt time.Time                      `json:"trained_at"`
	BestModel Algorithm                      `json:"best_model"`
	Models    map[Algorithm]ModelPerformance `json:"models"`
	Failures  map[Algorithm]string           `json:"failures,omitempty"`
	Features  []string                       `json:"features"`
}

// Performance reports test scores for every model that carries metrics.
func (b *Bundle) Performance() Performance {
	p := Performance{
		BundleID:  b.ID,
		TrainedAt: b.TrainedAt,
		BestModel: b.Best,
		Models:    make(map[Algorithm]ModelPerformance),
		Failures:  b.Failures(),
		Features:  append([]string(nil), b.Columns...),
	}
	for name, m := range b.Models {
		if m == nil || m.Metrics == nil {
			continue
		}
		p.Models[name] = ModelPerformance{
			R2:     m.Metrics.TestR2,
			RMSE:   math.Sqrt(m.Metrics.TestMSE),
			MAE:    m.Metrics.TestMAE,
			CVRMSE: m.Metrics.CVRMSE,

			FeatureImportance: b.Importances(name),
		}
	}
	return p
}

// Importances maps feature names to alg's importances. It is nil when the
// model records none or they do not match the bundle columns.
func (b *Bundle) Importances(alg Algorithm) map[string]float64 {
	m := b.Models[alg]
	if m == nil || len(m.Importances) != len(b.Columns) {
		return nil
	}
	out := make(map[string]float64, len(b.Columns))
	for i, c := range b.Columns {
		out[c] = m.Importances[i]
	}
	return out
}
