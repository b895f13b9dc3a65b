package model

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/couchcryptid/flight-delay-engine/internal/domain"
	"github.com/couchcryptid/flight-delay-engine/internal/synth"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestTrainer() *Trainer {
	clock := clockwork.NewFakeClockAt(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))
	return NewTrainer(TrainerConfig{Seed: 42, Workers: 4, Trees: 10}, clock, discardLogger())
}

func trainBundle(t *testing.T, n int) *Bundle {
	t.Helper()
	b, err := newTestTrainer().Train(context.Background(), synth.New(42).Flights(n))
	require.NoError(t, err)
	return b
}

func TestTrain_EmptyBatch(t *testing.T) {
	b, err := newTestTrainer().Train(context.Background(), nil)
	require.ErrorIs(t, err, ErrInsufficientData)
	assert.Nil(t, b)
}

func TestTrain_Bundle(t *testing.T) {
	b := trainBundle(t, 150)

	assert.NotEmpty(t, b.ID)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), b.TrainedAt)
	require.Len(t, b.Results, len(Algorithms))
	for i, r := range b.Results {
		assert.Equal(t, Algorithms[i], r.Algorithm)
		require.NoError(t, r.Err, r.Algorithm)
		require.NotNil(t, r.Model)
		require.NotNil(t, r.Model.Metrics)
		require.NotNil(t, r.Model.Metrics.CVRMSE)
		assert.Equal(t, 5, r.Model.Metrics.CVFolds)
		assert.Equal(t, len(b.Columns), r.Model.Width())
	}
	assert.Len(t, b.Models, len(Algorithms))

	best := b.Models[b.Best]
	require.NotNil(t, best)
	for _, m := range b.Models {
		assert.LessOrEqual(t, m.Metrics.TestR2, best.Metrics.TestR2)
	}

	forest := b.Models[RandomForest]
	require.Len(t, forest.Importances, len(b.Columns))
	var total float64
	for _, v := range forest.Importances {
		assert.GreaterOrEqual(t, v, 0.0)
		total += v
	}
	assert.InDelta(t, 1, total, 1e-9)
	assert.Len(t, forest.Forest.Trees, 10)

	assert.Contains(t, b.Columns, "departure_hour")
	assert.Contains(t, b.Columns, "load_factor")
	assert.NotContains(t, b.Columns, "estimated_load_factor")
}

func TestTrain_Reproducible(t *testing.T) {
	a := trainBundle(t, 80)
	b := trainBundle(t, 80)

	assert.Equal(t, a.Best, b.Best)
	assert.Equal(t, a.Columns, b.Columns)
	for _, alg := range Algorithms {
		assert.Equal(t, a.Models[alg].Metrics, b.Models[alg].Metrics, alg)
	}
	for _, rec := range synth.New(99).Flights(5) {
		pa, err := Predict(a, rec)
		require.NoError(t, err)
		pb, err := Predict(b, rec)
		require.NoError(t, err)
		assert.Equal(t, pa, pb)
	}
}

func TestTrain_SingleRow(t *testing.T) {
	b, err := newTestTrainer().Train(context.Background(), synth.New(3).Flights(1))
	require.NoError(t, err)

	for _, m := range b.Models {
		assert.Nil(t, m.Metrics.CVRMSE)
		assert.Zero(t, m.Metrics.CVFolds)
	}
	p, err := Predict(b, domain.FlightRecord{FlightNumber: "X1"})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, p.PredictedDelayMinutes, 0.0)
}

func TestTrain_FailedAlgorithmIsRecorded(t *testing.T) {
	tr := newTestTrainer()
	boom := errors.New("boom")
	tr.fit[LinearRegression] = func(context.Context, [][]float64, []float64) (Regressor, []float64, error) {
		return nil, nil, boom
	}

	b, err := tr.Train(context.Background(), synth.New(42).Flights(60))
	require.NoError(t, err)

	require.ErrorIs(t, b.Results[0].Err, boom)
	assert.Nil(t, b.Results[0].Model)
	assert.NotContains(t, b.Models, LinearRegression)
	assert.NotEqual(t, LinearRegression, b.Best)
	assert.Equal(t, map[Algorithm]string{LinearRegression: "boom"}, b.Failures())
	assert.NotContains(t, b.Performance().Models, LinearRegression)
}

func TestTrain_AllAlgorithmsFail(t *testing.T) {
	tr := newTestTrainer()
	for _, alg := range Algorithms {
		tr.fit[alg] = func(context.Context, [][]float64, []float64) (Regressor, []float64, error) {
			return nil, nil, errors.New(string(alg) + " failed")
		}
	}

	b, err := tr.Train(context.Background(), synth.New(42).Flights(20))
	require.ErrorIs(t, err, ErrTrainingFailed)
	assert.Contains(t, err.Error(), "random_forest failed")
	assert.Nil(t, b)
}

func TestTrain_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestTrainer().Train(ctx, synth.New(42).Flights(30))
	require.ErrorIs(t, err, context.Canceled)
}

func TestPredict_NonNegativeAndRisk(t *testing.T) {
	b := trainBundle(t, 120)

	recs := append(synth.New(5).Flights(20),
		domain.FlightRecord{FlightNumber: "ONLY"},
		domain.FlightRecord{Airline: "Nowhere Air", Origin: "XXX", Destination: "YYY", Gate: "Q99"},
	)
	for _, rec := range recs {
		p, err := Predict(b, rec)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, p.PredictedDelayMinutes, 0.0)
		assert.Equal(t, domain.CategorizeRisk(p.PredictedDelayMinutes), p.PredictionQuality)
		assert.Equal(t, string(b.Best), p.ModelUsed)
		best := b.Models[b.Best]
		assert.InDelta(t, 1.96*math.Sqrt(best.Metrics.TestMSE), p.ConfidenceInterval, 1e-9)
	}
}

func TestPredict_ClampsNegative(t *testing.T) {
	b := &Bundle{
		Columns: []string{},
		Models: map[Algorithm]*TrainedModel{
			LassoRegression: {Algorithm: LassoRegression, Linear: &Linear{Intercept: -12, Coefficients: []float64{}}},
		},
		Best: LinearRegression,
	}

	p, err := Predict(b, domain.FlightRecord{})
	require.NoError(t, err)
	assert.Zero(t, p.PredictedDelayMinutes)
	assert.Equal(t, domain.RiskLow, p.PredictionQuality)
	assert.Equal(t, "lasso_regression", p.ModelUsed)
	assert.Equal(t, domain.DefaultConfidenceInterval, p.ConfidenceInterval)
}

func TestPredict_NoModel(t *testing.T) {
	_, err := Predict(&Bundle{}, domain.FlightRecord{})
	require.ErrorIs(t, err, ErrModelNotTrained)

	_, err = Predict(nil, domain.FlightRecord{})
	require.ErrorIs(t, err, ErrModelNotTrained)

	wrongWidth := &Bundle{
		Columns: []string{"departure_hour"},
		Models: map[Algorithm]*TrainedModel{
			RidgeRegression: {Algorithm: RidgeRegression, Linear: &Linear{Coefficients: []float64{1, 2}}},
		},
	}
	_, err = Predict(wrongWidth, domain.FlightRecord{})
	require.ErrorIs(t, err, ErrModelNotTrained)
}

func TestPerformance(t *testing.T) {
	b := trainBundle(t, 60)

	perf := b.Performance()

	assert.Equal(t, b.ID, perf.BundleID)
	assert.Equal(t, b.Best, perf.BestModel)
	assert.Equal(t, b.Columns, perf.Features)
	require.Len(t, perf.Models, len(Algorithms))
	for alg, mp := range perf.Models {
		m := b.Models[alg]
		assert.InDelta(t, math.Sqrt(m.Metrics.TestMSE), mp.RMSE, 1e-12)
		assert.Equal(t, m.Metrics.TestR2, mp.R2)
	}
	assert.Empty(t, perf.Failures)

	forest := perf.Models[RandomForest].FeatureImportance
	require.Len(t, forest, len(b.Columns))
	var total float64
	for _, c := range b.Columns {
		require.Contains(t, forest, c)
		total += forest[c]
	}
	assert.InDelta(t, 1, total, 1e-6)
	assert.Nil(t, perf.Models[LinearRegression].FeatureImportance)
}

func TestFitOLS_RecoversCoefficients(t *testing.T) {
	x := [][]float64{{1, 0}, {2, 1}, {3, 0}, {4, 1}, {5, 3}, {6, 2}}
	y := make([]float64, len(x))
	for i, r := range x {
		y[i] = 3 + 2*r[0] - r[1]
	}

	l, err := fitOLS(x, y)
	require.NoError(t, err)
	assert.InDelta(t, 3, l.Intercept, 1e-6)
	assert.InDeltaSlice(t, []float64{2, -1}, l.Coefficients, 1e-6)
}

func TestFitOLS_RankDeficient(t *testing.T) {
	// Second column duplicates the first.
	x := [][]float64{{1, 1}, {2, 2}, {3, 3}, {4, 4}}
	y := []float64{2, 4, 6, 8}

	l, err := fitOLS(x, y)
	require.NoError(t, err)
	assert.InDelta(t, 1, l.Coefficients[0], 1e-6)
	assert.InDelta(t, 1, l.Coefficients[1], 1e-6)
	assert.InDelta(t, 0, l.Intercept, 1e-6)
}

func TestFitRidge_ShrinksTowardZero(t *testing.T) {
	x := [][]float64{{-1}, {0}, {1}}
	y := []float64{-2, 0, 2}

	l, err := fitRidge(x, y, 1.0)
	require.NoError(t, err)
	// (XᵀX + 1)⁻¹Xᵀy = 4 / 3.
	assert.InDelta(t, 4.0/3, l.Coefficients[0], 1e-9)
	assert.InDelta(t, 0, l.Intercept, 1e-9)
}

func TestFitLasso(t *testing.T) {
	x := [][]float64{{-1, 0.1}, {0, -0.1}, {1, 0.1}, {2, -0.1}}
	y := []float64{-2, 0, 2, 4}

	l, err := fitLasso(x, y, 0.1)
	require.NoError(t, err)
	assert.Greater(t, l.Coefficients[0], 1.5)
	assert.Less(t, l.Coefficients[0], 2.0)
	assert.Zero(t, l.Coefficients[1])

	l, err = fitLasso(x, y, 100)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0}, l.Coefficients)
	assert.InDelta(t, 1, l.Intercept, 1e-9)
}

func TestFitForest_FitsStepFunction(t *testing.T) {
	var x [][]float64
	var y []float64
	for i := 0; i < 40; i++ {
		x = append(x, []float64{float64(i)})
		if i < 20 {
			y = append(y, 10)
		} else {
			y = append(y, 50)
		}
	}

	f, imp, err := fitForest(context.Background(), x, y, 15, 42)
	require.NoError(t, err)
	assert.True(t, f.valid())
	assert.InDelta(t, 10, f.Predict([]float64{2}), 1e-9)
	assert.InDelta(t, 50, f.Predict([]float64{38}), 1e-9)
	assert.Equal(t, []float64{1}, imp)
}

func TestR2Score(t *testing.T) {
	assert.Equal(t, 1.0, r2Score([]float64{3, 3}, []float64{3, 3}))
	assert.Equal(t, 0.0, r2Score([]float64{3, 3}, []float64{2, 3}))
	assert.InDelta(t, 1.0, r2Score([]float64{1, 2, 3}, []float64{1, 2, 3}), 1e-12)
	assert.InDelta(t, 0.0, r2Score([]float64{1, 2, 3}, []float64{2, 2, 2}), 1e-12)
}

func TestTrainTestSplit(t *testing.T) {
	tests := []struct {
		n, train, test int
	}{
		{1, 1, 1},
		{2, 1, 1},
		{5, 4, 1},
		{10, 8, 2},
		{11, 8, 3},
	}
	for _, tt := range tests {
		sp := trainTestSplit(tt.n, 42)
		assert.Len(t, sp.train, tt.train, "n=%d", tt.n)
		assert.Len(t, sp.test, tt.test, "n=%d", tt.n)
	}
	assert.Equal(t, trainTestSplit(30, 42), trainTestSplit(30, 42))
}

func TestKFolds(t *testing.T) {
	assert.Equal(t, [][2]int{{0, 3}, {3, 5}, {5, 7}}, kFolds(7, 3))
	assert.Equal(t, [][2]int{{0, 1}, {1, 2}}, kFolds(2, 2))
}

func TestTrainedModel_Validate(t *testing.T) {
	tests := []struct {
		name    string
		model   *TrainedModel
		wantErr bool
	}{
		{"linear", &TrainedModel{Algorithm: RidgeRegression, Linear: &Linear{Coefficients: []float64{1}}}, false},
		{"forest", &TrainedModel{Algorithm: RandomForest, Forest: &Forest{Features: 1, Trees: []Tree{{Nodes: []Node{{Feature: leaf, Value: 3}}}}}}, false},
		{"nil", nil, true},
		{"no parameters", &TrainedModel{Algorithm: LassoRegression}, true},
		{"both", &TrainedModel{Linear: &Linear{}, Forest: &Forest{}}, true},
		{"non-finite", &TrainedModel{Linear: &Linear{Intercept: math.NaN()}}, true},
		{"empty forest", &TrainedModel{Forest: &Forest{Features: 1}}, true},
		{"dangling child", &TrainedModel{Forest: &Forest{Features: 1, Trees: []Tree{{Nodes: []Node{{Feature: 0, Left: 1, Right: 2}}}}}}, true},
		{"feature out of range", &TrainedModel{Forest: &Forest{Features: 1, Trees: []Tree{{Nodes: []Node{
			{Feature: 3, Left: 1, Right: 2}, {Feature: leaf}, {Feature: leaf},
		}}}}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.model.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
