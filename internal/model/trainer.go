package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/flight-delay-engine/internal/domain"
	"github.com/couchcryptid/flight-delay-engine/internal/features"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
)

// Defaults for TrainerConfig.
const (
	DefaultSeed    = 42
	DefaultWorkers = 4
	DefaultTrees   = 100
)

// TrainerConfig tunes a training run.
type TrainerConfig struct {
	// Seed drives the train/test shuffle and forest bootstrap sampling.
	Seed uint64
	// Workers bounds how many algorithms train at once.
	Workers int
	// Trees is the random forest size.
	Trees int
}

// DefaultTrainerConfig returns the standard training settings.
func DefaultTrainerConfig() TrainerConfig {
	return TrainerConfig{Seed: DefaultSeed, Workers: DefaultWorkers, Trees: DefaultTrees}
}

// Trainer fits every algorithm on a batch of historical flights and packages
// the results into a Bundle.
type Trainer struct {
	cfg    TrainerConfig
	clock  clockwork.Clock
	logger *slog.Logger
	fit    map[Algorithm]fitFunc
}

// NewTrainer creates a Trainer. A nil clock uses real time.
func NewTrainer(cfg TrainerConfig, clock clockwork.Clock, logger *slog.Logger) *Trainer {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.Trees <= 0 {
		cfg.Trees = DefaultTrees
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	t := &Trainer{cfg: cfg, clock: clock, logger: logger}
	t.fit = t.fitters()
	return t
}

func (t *Trainer) fitters() map[Algorithm]fitFunc {
	linear := func(fit func([][]float64, []float64) (*Linear, error)) fitFunc {
		return func(_ context.Context, x [][]float64, y []float64) (Regressor, []float64, error) {
			l, err := fit(x, y)
			if err != nil {
				return nil, nil, err
			}
			return l, nil, nil
		}
	}
	return map[Algorithm]fitFunc{
		LinearRegression: linear(fitOLS),
		RidgeRegression: linear(func(x [][]float64, y []float64) (*Linear, error) {
			return fitRidge(x, y, ridgeAlpha)
		}),
		LassoRegression: linear(func(x [][]float64, y []float64) (*Linear, error) {
			return fitLasso(x, y, lassoAlpha)
		}),
		RandomForest: func(ctx context.Context, x [][]float64, y []float64) (Regressor, []float64, error) {
			f, imp, err := fitForest(ctx, x, y, t.cfg.Trees, t.cfg.Seed)
			if err != nil {
				return nil, nil, err
			}
			return f, imp, nil
		},
	}
}

// Train fits every algorithm on batch. An algorithm that fails is recorded in
// Bundle.Results and left out of model selection. Train only fails when the
// batch is empty, the context is cancelled, or every algorithm fails.
func (t *Trainer) Train(ctx context.Context, batch []domain.FlightRecord) (*Bundle, error) {
	if len(batch) == 0 {
		return nil, ErrInsufficientData
	}
	start := t.clock.Now()

	extractor := features.Fit(batch)
	vectors := make([]features.Vector, len(batch))
	target := make([]float64, len(batch))
	for i, rec := range batch {
		vectors[i] = extractor.Extract(rec)
		if rec.DelayMinutes != nil && finite(*rec.DelayMinutes) {
			target[i] = *rec.DelayMinutes
		}
	}
	columns := features.Columns(vectors)
	rows := features.Matrix(vectors, columns)

	sp := trainTestSplit(len(rows), t.cfg.Seed)
	scaler := features.FitScaler(pick(rows, sp.train))
	trainX, err := scaler.TransformAll(pick(rows, sp.train))
	if err != nil {
		return nil, fmt.Errorf("scale training rows: %w", err)
	}
	testX, err := scaler.TransformAll(pick(rows, sp.test))
	if err != nil {
		return nil, fmt.Errorf("scale test rows: %w", err)
	}
	trainY, testY := pick(target, sp.train), pick(target, sp.test)

	t.logger.Info("training models",
		"rows", len(rows),
		"train_rows", len(trainX),
		"test_rows", len(testX),
		"features", len(columns),
	)

	results := make([]AlgorithmResult, len(Algorithms))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.cfg.Workers)
	for i, alg := range Algorithms {
		g.Go(func() error {
			results[i] = t.trainOne(gctx, alg, t.fit[alg], trainX, trainY, testX, testY)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("train: %w", err)
	}

	bundle := &Bundle{
		ID:        uuid.NewString(),
		TrainedAt: t.clock.Now().UTC(),
		Models:    make(map[Algorithm]*TrainedModel),
		Results:   results,
		Scaler:    scaler,
		Extractor: extractor,
		Columns:   columns,
	}

	var errs []error
	bestR2 := 0.0
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Algorithm, r.Err))
			continue
		}
		bundle.Models[r.Algorithm] = r.Model
		if bundle.Best == "" || r.Model.Metrics.TestR2 > bestR2 {
			bundle.Best = r.Algorithm
			bestR2 = r.Model.Metrics.TestR2
		}
	}
	if len(bundle.Models) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrTrainingFailed, errors.Join(errs...))
	}

	t.logger.Info("training complete",
		"bundle_id", bundle.ID,
		"best_model", bundle.Best,
		"test_r2", bestR2,
		"failed", len(errs),
		"duration", t.clock.Since(start),
	)
	return bundle, nil
}

func (t *Trainer) trainOne(ctx context.Context, alg Algorithm, fit fitFunc, trainX [][]float64, trainY []float64, testX [][]float64, testY []float64) (res AlgorithmResult) {
	start := t.clock.Now()
	res.Algorithm = alg
	defer func() { res.Duration = t.clock.Since(start) }()

	r, importances, err := fit(ctx, trainX, trainY)
	if err != nil {
		res.Err = err
		t.logger.Warn("algorithm failed", "algorithm", alg, "error", err)
		return res
	}
	metrics, err := evaluate(ctx, fit, r, trainX, trainY, testX, testY)
	if err != nil {
		res.Err = fmt.Errorf("evaluate: %w", err)
		t.logger.Warn("algorithm evaluation failed", "algorithm", alg, "error", err)
		return res
	}

	m := &TrainedModel{Algorithm: alg, Metrics: metrics, Importances: importances}
	switch v := r.(type) {
	case *Linear:
		m.Linear = v
	case *Forest:
		m.Forest = v
	}
	res.Model = m

	t.logger.Debug("algorithm trained",
		"algorithm", alg,
		"test_r2", metrics.TestR2,
		"test_mse", metrics.TestMSE,
	)
	return res
}
