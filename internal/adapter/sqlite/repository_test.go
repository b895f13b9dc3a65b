package sqlite

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/couchcryptid/flight-delay-engine/internal/domain"
	"github.com/couchcryptid/flight-delay-engine/internal/synth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func setupTestRepo(t *testing.T) *Repository {
	t.Helper()
	db, err := gorm.Open(gormsqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	// Every pooled connection to :memory: would get its own database.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	repo, err := NewRepository(db, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestFlights_RoundTrip(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	flights := synth.New(4).Flights(30)

	require.NoError(t, repo.SaveFlights(ctx, flights))

	n, err := repo.CountFlights(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(30), n)

	got, err := repo.Flights(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, 30)
	for i := range flights {
		assert.Equal(t, flights[i].FlightNumber, got[i].FlightNumber)
		assert.Equal(t, *flights[i].DelayMinutes, *got[i].DelayMinutes)
		assert.Equal(t, *flights[i].WeatherDelayMinutes, *got[i].WeatherDelayMinutes)
		assert.Equal(t, *flights[i].SeatsAvailable, *got[i].SeatsAvailable)
		assert.True(t, flights[i].ScheduledDeparture.Equal(*got[i].ScheduledDeparture))
		assert.Nil(t, got[i].DistanceMiles)
	}

	limited, err := repo.Flights(ctx, 5)
	require.NoError(t, err)
	assert.Len(t, limited, 5)
}

func TestFindFlight(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	early := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	late := early.Add(24 * time.Hour)

	require.NoError(t, repo.SaveFlights(ctx, []domain.FlightRecord{
		{FlightNumber: "AA100", Gate: "A1", ScheduledDeparture: &early},
		{FlightNumber: "AA100", Gate: "B2", ScheduledDeparture: &late},
		{FlightNumber: "UA200", Gate: "C3"},
	}))

	rec, err := repo.FindFlight(ctx, "AA100")
	require.NoError(t, err)
	assert.Equal(t, "B2", rec.Gate)
	assert.Equal(t, time.UTC, rec.ScheduledDeparture.Location())

	rec, err = repo.FindFlight(ctx, "UA200")
	require.NoError(t, err)
	assert.Nil(t, rec.ScheduledDeparture)

	_, err = repo.FindFlight(ctx, "ZZ999")
	require.ErrorIs(t, err, ErrFlightNotFound)
}

func TestSaveScores_Upserts(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	rec := domain.FlightRecord{
		FlightNumber:        "DL300",
		FlightDate:          &day,
		DelayMinutes:        domain.Float(40),
		WeatherDelayMinutes: domain.Float(30),
		CrewDelayMinutes:    domain.Float(10),
	}

	first := domain.NewScoredFlight(rec, &domain.PredictionResult{
		PredictedDelayMinutes: 12,
		ConfidenceInterval:    4,
		ModelUsed:             "ridge_regression",
		PredictionQuality:     domain.RiskLow,
	}, "bundle-1")
	require.NoError(t, repo.LoadBatch(ctx, []domain.ScoredFlight{first}))

	second := domain.NewScoredFlight(rec, &domain.PredictionResult{
		PredictedDelayMinutes: 75,
		ConfidenceInterval:    9,
		ModelUsed:             "random_forest",
		PredictionQuality:     domain.RiskHigh,
	}, "bundle-2")
	require.NoError(t, repo.SaveScores(ctx, []domain.ScoredFlight{second, second}))

	var count int64
	require.NoError(t, repo.db.Model(&ScoreRow{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	row, err := repo.LatestScore(ctx, "DL300")
	require.NoError(t, err)
	assert.Equal(t, "DL300-2024-03-01", row.FlightKey)
	assert.Equal(t, "bundle-2", row.BundleID)
	assert.Equal(t, "random_forest", row.ModelUsed)
	require.NotNil(t, row.PredictedDelayMinutes)
	assert.InDelta(t, 75.0, *row.PredictedDelayMinutes, 1e-9)
	assert.Equal(t, string(domain.RiskHigh), row.PredictionQuality)
	assert.Equal(t, "NOT RECOMMENDED - High delay risk", row.Recommendation)
	assert.Equal(t, string(domain.ReasonWeather), row.PrimaryReason)
	assert.Equal(t, string(domain.ReasonCrew), row.SecondaryReason)
	assert.InDelta(t, 75.0, row.Breakdown[string(domain.ReasonWeather)], 1e-9)
	assert.NotEmpty(t, row.RiskFactors)
}

func TestSaveScores_WithoutPrediction(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	s := domain.NewScoredFlight(domain.FlightRecord{FlightNumber: "AS400"}, nil, "")
	require.NoError(t, repo.SaveScores(ctx, []domain.ScoredFlight{s}))

	row, err := repo.LatestScore(ctx, "AS400")
	require.NoError(t, err)
	assert.Nil(t, row.PredictedDelayMinutes)
	assert.Equal(t, string(domain.ReasonUnknown), row.PrimaryReason)

	_, err = repo.LatestScore(ctx, "nope")
	require.ErrorIs(t, err, ErrFlightNotFound)
}

func TestEmptyBatchesAreNoops(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.SaveFlights(ctx, nil))
	require.NoError(t, repo.SaveScores(ctx, nil))
}
