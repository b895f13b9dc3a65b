package filestore

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/couchcryptid/flight-delay-engine/internal/model"
	"github.com/couchcryptid/flight-delay-engine/internal/synth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPrefix = "flight_delay_models"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func trainBundle(t *testing.T) *model.Bundle {
	t.Helper()
	tr := model.NewTrainer(model.TrainerConfig{Seed: 42, Workers: 2, Trees: 5}, nil, discardLogger())
	b, err := tr.Train(context.Background(), synth.New(3).Flights(80))
	require.NoError(t, err)
	return b
}

func savedStore(t *testing.T) (*Store, *model.Bundle) {
	t.Helper()
	s := New(t.TempDir(), testPrefix, discardLogger())
	b := trainBundle(t)
	require.NoError(t, s.Save(b))
	return s, b
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	s, orig := savedStore(t)

	for _, name := range []string{"linear_regression", "random_forest", "scaler", "encoders", "aggregates", "features", "manifest"} {
		assert.FileExists(t, filepath.Join(s.Dir(), testPrefix+"_"+name+".json"))
	}

	loaded, report, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, model.Algorithms, report.Loaded)
	assert.Empty(t, report.Missing)
	assert.Empty(t, report.Unusable)
	assert.False(t, report.FellBack)

	assert.Equal(t, orig.ID, loaded.ID)
	assert.True(t, orig.TrainedAt.Equal(loaded.TrainedAt))
	assert.Equal(t, orig.Best, loaded.Best)
	assert.Equal(t, orig.Columns, loaded.Columns)

	for _, rec := range synth.New(99).Flights(20) {
		want, err := model.Predict(orig, rec)
		require.NoError(t, err)
		got, err := model.Predict(loaded, rec)
		require.NoError(t, err)
		assert.InDelta(t, want.PredictedDelayMinutes, got.PredictedDelayMinutes, 1e-9)
		assert.InDelta(t, want.ConfidenceInterval, got.ConfidenceInterval, 1e-9)
		assert.Equal(t, want.ModelUsed, got.ModelUsed)
	}
}

func TestLoad_EmptyDir(t *testing.T) {
	s := New(t.TempDir(), testPrefix, discardLogger())
	_, report, err := s.Load()
	require.ErrorIs(t, err, ErrNoModels)
	assert.Len(t, report.Missing, 9)
	assert.Contains(t, report.Missing, testPrefix+"_manifest.json")
}

func TestLoad_MissingScalerMeansIdentity(t *testing.T) {
	s, _ := savedStore(t)
	require.NoError(t, os.Remove(s.path(ArtifactScaler)))

	b, report, err := s.Load()
	require.NoError(t, err)
	assert.Nil(t, b.Scaler)
	assert.Equal(t, []string{testPrefix + "_scaler.json"}, report.Missing)

	_, err = model.Predict(b, synth.New(5).Flights(1)[0])
	assert.NoError(t, err)
}

func TestLoad_MissingEncodersStillPredicts(t *testing.T) {
	s, _ := savedStore(t)
	require.NoError(t, os.Remove(s.path(ArtifactEncoders)))
	require.NoError(t, os.Remove(s.path(ArtifactAggregates)))

	b, report, err := s.Load()
	require.NoError(t, err)
	assert.Len(t, report.Missing, 2)
	_, err = model.Predict(b, synth.New(5).Flights(1)[0])
	assert.NoError(t, err)
}

func TestLoad_MissingBestFallsBack(t *testing.T) {
	s, orig := savedStore(t)
	require.NoError(t, os.Remove(s.path(string(orig.Best))))

	b, report, err := s.Load()
	require.NoError(t, err)
	assert.True(t, report.FellBack)
	assert.NotEqual(t, orig.Best, b.Best)
	assert.Equal(t, report.Loaded[0], b.Best)
	assert.Contains(t, report.Missing, testPrefix+"_"+string(orig.Best)+".json")
}

func TestLoad_WidthMismatchIsUnusable(t *testing.T) {
	s, _ := savedStore(t)
	bad := model.TrainedModel{
		Algorithm: model.RidgeRegression,
		Linear:    &model.Linear{Intercept: 1, Coefficients: []float64{1, 2}},
	}
	require.NoError(t, s.write(string(model.RidgeRegression), bad))

	b, report, err := s.Load()
	require.NoError(t, err)
	assert.NotContains(t, b.Models, model.RidgeRegression)
	assert.Contains(t, report.Unusable[model.RidgeRegression], "feature width mismatch")
}

func TestLoad_CorruptModelIsUnusable(t *testing.T) {
	s, _ := savedStore(t)
	require.NoError(t, os.WriteFile(s.path(string(model.LassoRegression)), []byte("{not json"), 0o644))

	b, report, err := s.Load()
	require.NoError(t, err)
	assert.NotContains(t, b.Models, model.LassoRegression)
	assert.Contains(t, report.Unusable, model.LassoRegression)
}

func TestLoad_CorruptScalerFails(t *testing.T) {
	s, _ := savedStore(t)
	require.NoError(t, os.WriteFile(s.path(ArtifactScaler), []byte(`{"mean":[1],"scale":[1]}`), 0o644))

	_, _, err := s.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scaler")
}

func TestSave_RemovesStaleModelsAndKeepsFailures(t *testing.T) {
	s, orig := savedStore(t)

	next := *orig
	next.Models = map[model.Algorithm]*model.TrainedModel{}
	next.Results = nil
	for alg, m := range orig.Models {
		if alg == model.RandomForest {
			next.Results = append(next.Results, model.AlgorithmResult{Algorithm: alg, Err: errors.New("boom")})
			continue
		}
		next.Models[alg] = m
	}
	if next.Best == model.RandomForest {
		next.Best = model.LinearRegression
	}
	require.NoError(t, s.Save(&next))
	assert.NoFileExists(t, s.path(string(model.RandomForest)))

	b, report, err := s.Load()
	require.NoError(t, err)
	assert.NotContains(t, report.Loaded, model.RandomForest)
	assert.NotContains(t, report.Missing, testPrefix+"_random_forest.json")
	assert.Equal(t, map[model.Algorithm]string{model.RandomForest: "boom"}, b.Failures())
}

func TestSave_NilBundle(t *testing.T) {
	s := New(t.TempDir(), testPrefix, discardLogger())
	assert.Error(t, s.Save(nil))
}
