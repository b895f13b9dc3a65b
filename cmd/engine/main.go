package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/flight-delay-engine/internal/adapter/filestore"
	httpadapter "github.com/couchcryptid/flight-delay-engine/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/flight-delay-engine/internal/adapter/kafka"
	"github.com/couchcryptid/flight-delay-engine/internal/adapter/sqlite"
	"github.com/couchcryptid/flight-delay-engine/internal/config"
	"github.com/couchcryptid/flight-delay-engine/internal/engine"
	"github.com/couchcryptid/flight-delay-engine/internal/observability"
	"github.com/couchcryptid/flight-delay-engine/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	// A missing bundle is not fatal: the service starts unready and
	// /v1/models/reload picks the bundle up once it has been trained.
	store := filestore.New(cfg.ModelDir, cfg.ModelPrefix, logger)
	holder := engine.NewHolder(nil)
	if report, err := holder.Reload(store, logger); err != nil {
		logger.Warn("no model bundle loaded", "dir", cfg.ModelDir, "missing", report.Missing)
	} else {
		engine.ObservePerformance(metrics, holder.Current().Performance())
		if report.FellBack || len(report.Unusable) > 0 {
			logger.Warn("model bundle loaded with gaps",
				"model", holder.Current().Model(), "unusable", report.Unusable, "missing", report.Missing)
		}
	}
	predictor := engine.NewCachedPredictor(holder, cfg.PredictionCacheTTL, metrics)

	var repo *sqlite.Repository
	if cfg.DatabasePath != "" {
		repo, err = sqlite.Open(cfg.DatabasePath, logger)
		if err != nil {
			logger.Error("failed to open database", "error", err, "path", cfg.DatabasePath)
			os.Exit(1)
		}
		logger.Info("flight database opened", "path", cfg.DatabasePath)
	} else {
		logger.Info("flight database disabled")
	}

	deps := httpadapter.Deps{
		Models:    holder,
		Store:     store,
		Predictor: predictor,
		Metrics:   metrics,
	}
	if repo != nil {
		deps.Flights = repo
	}
	srv := httpadapter.NewServer(cfg, deps, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start the scoring pipeline.
	var reader *kafkaadapter.Reader
	var writer *kafkaadapter.Writer
	if cfg.KafkaEnabled {
		reader = kafkaadapter.NewReader(cfg, logger)
		writer = kafkaadapter.NewWriter(cfg, logger)

		loaders := pipeline.FanOut{}
		if repo != nil {
			loaders = append(loaders, repo)
		}
		loaders = append(loaders, writer)

		transformer := pipeline.NewTransformer(predictor, metrics, logger)
		p := pipeline.New(reader, transformer, loaders, logger, metrics, cfg.BatchSize)

		go func() {
			if err := p.Run(ctx); err != nil {
				logger.Error("pipeline error", "error", err)
			}
		}()
	} else {
		logger.Info("kafka scoring pipeline disabled")
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if reader != nil {
		if err := reader.Close(); err != nil {
			logger.Error("kafka reader close error", "error", err)
		}
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}
	if repo != nil {
		if err := repo.Close(); err != nil {
			logger.Error("database close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
