package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	BatchSize          int
	BatchFlushInterval time.Duration

	// Model artifacts and training.
	ModelDir     string
	ModelPrefix  string
	TrainSeed    uint64
	TrainWorkers int
	ForestTrees  int

	// DatabasePath is the SQLite file backing flight lookups and stored
	// scores. Empty disables the repository.
	DatabasePath string

	// Kafka scoring pipeline.
	KafkaEnabled     bool
	KafkaBrokers     []string
	KafkaSourceTopic string
	KafkaSinkTopic   string
	KafkaGroupID     string

	// HTTP API.
	PredictionCacheTTL time.Duration
	RateLimitRPS       float64
	RateLimitBurst     int
	CORSAllowedOrigins []string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	seed, err := strconv.ParseUint(sharedcfg.EnvOrDefault("TRAIN_SEED", "42"), 10, 64)
	if err != nil {
		return nil, errors.New("invalid TRAIN_SEED")
	}

	workers, err := parsePositiveInt("TRAIN_WORKERS", 4)
	if err != nil {
		return nil, err
	}

	trees, err := parsePositiveInt("FOREST_TREES", 100)
	if err != nil {
		return nil, err
	}

	cacheTTL, err := time.ParseDuration(sharedcfg.EnvOrDefault("PREDICTION_CACHE_TTL", "5m"))
	if err != nil || cacheTTL < 0 {
		return nil, errors.New("invalid PREDICTION_CACHE_TTL")
	}

	rps, err := strconv.ParseFloat(sharedcfg.EnvOrDefault("RATE_LIMIT_RPS", "50"), 64)
	if err != nil || rps < 0 {
		return nil, errors.New("invalid RATE_LIMIT_RPS")
	}

	burst, err := parsePositiveInt("RATE_LIMIT_BURST", 100)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:           sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:           sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:          sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:    shutdownTimeout,
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,

		ModelDir:     sharedcfg.EnvOrDefault("MODEL_DIR", "models"),
		ModelPrefix:  sharedcfg.EnvOrDefault("MODEL_PREFIX", "flight_delay_models"),
		TrainSeed:    seed,
		TrainWorkers: workers,
		ForestTrees:  trees,

		DatabasePath: os.Getenv("DATABASE_PATH"),

		KafkaEnabled:     os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers:     sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic: sharedcfg.EnvOrDefault("KAFKA_SOURCE_TOPIC", "flight-records"),
		KafkaSinkTopic:   sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "flight-delay-scores"),
		KafkaGroupID:     sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "flight-delay-engine"),

		PredictionCacheTTL: cacheTTL,
		RateLimitRPS:       rps,
		RateLimitBurst:     burst,
		CORSAllowedOrigins: splitList(sharedcfg.EnvOrDefault("CORS_ALLOWED_ORIGINS", "*")),
	}

	if cfg.ModelDir == "" {
		return nil, errors.New("MODEL_DIR is required")
	}
	if cfg.ModelPrefix == "" {
		return nil, errors.New("MODEL_PREFIX is required")
	}
	if cfg.KafkaEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required")
		}
		if cfg.KafkaSourceTopic == "" {
			return nil, errors.New("KAFKA_SOURCE_TOPIC is required")
		}
		if cfg.KafkaSinkTopic == "" {
			return nil, errors.New("KAFKA_SINK_TOPIC is required")
		}
	}

	return cfg, nil
}

func parsePositiveInt(name string, def int) (int, error) {
	s := os.Getenv(name)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return n, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
