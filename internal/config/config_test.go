package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const defaultBroker = "localhost:9092"

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 50, cfg.BatchSize)
	assert.Equal(t, 500*time.Millisecond, cfg.BatchFlushInterval)

	assert.Equal(t, "models", cfg.ModelDir)
	assert.Equal(t, "flight_delay_models", cfg.ModelPrefix)
	assert.Equal(t, uint64(42), cfg.TrainSeed)
	assert.Equal(t, 4, cfg.TrainWorkers)
	assert.Equal(t, 100, cfg.ForestTrees)
	assert.Empty(t, cfg.DatabasePath)

	assert.False(t, cfg.KafkaEnabled)
	assert.Equal(t, []string{defaultBroker}, cfg.KafkaBrokers)
	assert.Equal(t, "flight-records", cfg.KafkaSourceTopic)
	assert.Equal(t, "flight-delay-scores", cfg.KafkaSinkTopic)
	assert.Equal(t, "flight-delay-engine", cfg.KafkaGroupID)

	assert.Equal(t, 5*time.Minute, cfg.PredictionCacheTTL)
	assert.InDelta(t, 50.0, cfg.RateLimitRPS, 0)
	assert.Equal(t, 100, cfg.RateLimitBurst)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("BATCH_SIZE", "100")
	t.Setenv("BATCH_FLUSH_INTERVAL", "1s")
	t.Setenv("MODEL_DIR", "/var/lib/models")
	t.Setenv("MODEL_PREFIX", "nightly")
	t.Setenv("TRAIN_SEED", "7")
	t.Setenv("TRAIN_WORKERS", "2")
	t.Setenv("FOREST_TREES", "25")
	t.Setenv("DATABASE_PATH", "ontime.db")
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")
	t.Setenv("KAFKA_SOURCE_TOPIC", "custom-source")
	t.Setenv("KAFKA_SINK_TOPIC", "custom-sink")
	t.Setenv("KAFKA_GROUP_ID", "custom-group")
	t.Setenv("PREDICTION_CACHE_TTL", "30s")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("RATE_LIMIT_BURST", "5")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example,")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, 1*time.Second, cfg.BatchFlushInterval)
	assert.Equal(t, "/var/lib/models", cfg.ModelDir)
	assert.Equal(t, "nightly", cfg.ModelPrefix)
	assert.Equal(t, uint64(7), cfg.TrainSeed)
	assert.Equal(t, 2, cfg.TrainWorkers)
	assert.Equal(t, 25, cfg.ForestTrees)
	assert.Equal(t, "ontime.db", cfg.DatabasePath)
	assert.True(t, cfg.KafkaEnabled)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "custom-source", cfg.KafkaSourceTopic)
	assert.Equal(t, "custom-sink", cfg.KafkaSinkTopic)
	assert.Equal(t, "custom-group", cfg.KafkaGroupID)
	assert.Equal(t, 30*time.Second, cfg.PredictionCacheTTL)
	assert.InDelta(t, 2.5, cfg.RateLimitRPS, 0)
	assert.Equal(t, 5, cfg.RateLimitBurst)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
}

func TestLoad_InvalidShutdownTimeout(t *testing.T) {
	t.Setenv("SHUTDOWN_TIMEOUT", "not-a-duration")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SHUTDOWN_TIMEOUT")
}

func TestLoad_InvalidBatchSize(t *testing.T) {
	t.Setenv("BATCH_SIZE", "0")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BATCH_SIZE")
}

func TestLoad_InvalidBatchFlushInterval(t *testing.T) {
	t.Setenv("BATCH_FLUSH_INTERVAL", "not-a-duration")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BATCH_FLUSH_INTERVAL")
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		env, value string
	}{
		{"TRAIN_SEED", "-1"},
		{"TRAIN_SEED", "forty-two"},
		{"TRAIN_WORKERS", "0"},
		{"FOREST_TREES", "many"},
		{"PREDICTION_CACHE_TTL", "soon"},
		{"PREDICTION_CACHE_TTL", "-1s"},
		{"RATE_LIMIT_RPS", "fast"},
		{"RATE_LIMIT_BURST", "-3"},
	}
	for _, tt := range tests {
		t.Run(tt.env+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.env, tt.value)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.env)
		})
	}
}

func TestLoad_ZeroCacheTTLAllowed(t *testing.T) {
	t.Setenv("PREDICTION_CACHE_TTL", "0s")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Zero(t, cfg.PredictionCacheTTL)
}
