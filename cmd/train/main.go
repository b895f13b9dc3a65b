// Command train fits every delay model on historical flights and saves the
// bundle to MODEL_DIR, where the engine service loads it.
//
// Usage:
//
//	go run ./cmd/train -source sqlite
//	go run ./cmd/train -source csv -csv data/flights.csv
//	go run ./cmd/train -source synthetic -n 5000
package main

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/couchcryptid/flight-delay-engine/internal/adapter/csvload"
	"github.com/couchcryptid/flight-delay-engine/internal/adapter/filestore"
	"github.com/couchcryptid/flight-delay-engine/internal/adapter/sqlite"
	"github.com/couchcryptid/flight-delay-engine/internal/config"
	"github.com/couchcryptid/flight-delay-engine/internal/domain"
	"github.com/couchcryptid/flight-delay-engine/internal/engine"
	"github.com/couchcryptid/flight-delay-engine/internal/model"
	"github.com/couchcryptid/flight-delay-engine/internal/observability"
	"github.com/couchcryptid/flight-delay-engine/internal/synth"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Training batches smaller than minTrainingRows are topped up with synthetic
// flights.
const (
	minTrainingRows   = 10
	topUpRows         = 1000
	topUpRowsWhenNone = 2000
)

const topImportances = 10

type options struct {
	source      string
	csvPath     string
	n           int
	limit       int
	saveFlights bool
	pushURL     string
}

func main() {
	var opts options
	flag.StringVar(&opts.source, "source", "", "training data source: sqlite, csv, or synthetic (default sqlite when DATABASE_PATH is set, else synthetic)")
	flag.StringVar(&opts.csvPath, "csv", "", "flight history CSV for -source csv")
	flag.IntVar(&opts.n, "n", topUpRows, "number of flights for -source synthetic")
	flag.IntVar(&opts.limit, "limit", 0, "maximum flights read from the database (0 reads all)")
	flag.BoolVar(&opts.saveFlights, "save-flights", false, "store the training flights in DATABASE_PATH")
	flag.StringVar(&opts.pushURL, "pushgateway", "", "Prometheus Pushgateway URL for training metrics")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, opts, logger); err != nil {
		logger.Error("training failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, opts options, logger *slog.Logger) error {
	if opts.source == "" {
		opts.source = "synthetic"
		if cfg.DatabasePath != "" {
			opts.source = "sqlite"
		}
	}

	var repo *sqlite.Repository
	if cfg.DatabasePath != "" && (opts.source == "sqlite" || opts.saveFlights) {
		r, err := sqlite.Open(cfg.DatabasePath, logger)
		if err != nil {
			return err
		}
		defer r.Close()
		repo = r
	}

	flights, err := loadFlights(ctx, cfg, opts, repo)
	if err != nil {
		return err
	}
	logger.Info("training data loaded", "source", opts.source, "flights", len(flights))

	if len(flights) < minTrainingRows {
		extra := topUpRows
		if len(flights) == 0 {
			extra = topUpRowsWhenNone
		}
		flights = append(flights, synth.New(cfg.TrainSeed).Flights(extra)...)
		logger.Warn("too few flights, topped up with synthetic data", "added", extra, "flights", len(flights))
	}

	if opts.saveFlights && repo != nil && opts.source != "sqlite" {
		if err := repo.SaveFlights(ctx, flights); err != nil {
			return err
		}
		logger.Info("training flights stored", "path", cfg.DatabasePath, "flights", len(flights))
	}

	reg := prometheus.NewRegistry()
	metrics := observability.NewMetricsWith(reg)
	defer pushMetrics(opts.pushURL, reg, logger)

	trainer := model.NewTrainer(model.TrainerConfig{
		Seed:    cfg.TrainSeed,
		Workers: cfg.TrainWorkers,
		Trees:   cfg.ForestTrees,
	}, clockwork.NewRealClock(), logger)

	start := time.Now()
	bundle, err := trainer.Train(ctx, flights)
	metrics.TrainingDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.TrainingRuns.WithLabelValues("error").Inc()
		return err
	}
	metrics.TrainingRuns.WithLabelValues("success").Inc()
	engine.ObservePerformance(metrics, bundle.Performance())

	store := filestore.New(cfg.ModelDir, cfg.ModelPrefix, logger)
	if err := store.Save(bundle); err != nil {
		return err
	}
	logger.Info("model bundle saved", "dir", store.Dir(), "bundle_id", bundle.ID, "best_model", bundle.Best)

	printPerformance(bundle.Performance())
	return printSample(bundle, cfg.TrainSeed)
}

func loadFlights(ctx context.Context, cfg *config.Config, opts options, repo *sqlite.Repository) ([]domain.FlightRecord, error) {
	switch opts.source {
	case "sqlite":
		if repo == nil {
			return nil, errors.New("-source sqlite requires DATABASE_PATH")
		}
		return repo.Flights(ctx, opts.limit)
	case "csv":
		if opts.csvPath == "" {
			return nil, errors.New("-source csv requires -csv")
		}
		flights, err := csvload.ReadFile(opts.csvPath)
		if errors.Is(err, csvload.ErrNoRecords) {
			return nil, nil
		}
		return flights, err
	case "synthetic":
		return synth.New(cfg.TrainSeed).Flights(opts.n), nil
	default:
		return nil, fmt.Errorf("unknown source %q", opts.source)
	}
}

func printPerformance(p model.Performance) {
	fmt.Printf("\nBundle %s  trained %s\n\n", p.BundleID, p.TrainedAt.Format(time.RFC3339))

	algs := make([]model.Algorithm, 0, len(p.Models))
	for alg := range p.Models {
		algs = append(algs, alg)
	}
	slices.Sort(algs)

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MODEL\tR2\tRMSE\tMAE\tCV RMSE\t")
	for _, alg := range algs {
		m := p.Models[alg]
		cv := "-"
		if m.CVRMSE != nil {
			cv = fmt.Sprintf("%.2f", *m.CVRMSE)
		}
		marker := ""
		if alg == p.BestModel {
			marker = " *"
		}
		fmt.Fprintf(tw, "%s%s\t%.3f\t%.2f\t%.2f\t%s\t\n", alg, marker, m.R2, m.RMSE, m.MAE, cv)
	}
	for alg, reason := range p.Failures {
		fmt.Fprintf(tw, "%s\tfailed: %s\t\t\t\t\n", alg, reason)
	}
	tw.Flush()
	fmt.Printf("\n%d features\n", len(p.Features))

	for _, alg := range algs {
		if imp := p.Models[alg].FeatureImportance; len(imp) > 0 {
			printImportances(alg, imp)
		}
	}
}

// printImportances lists the topImportances most important features of alg.
func printImportances(alg model.Algorithm, imp map[string]float64) {
	names := make([]string, 0, len(imp))
	for name := range imp {
		names = append(names, name)
	}
	slices.SortFunc(names, func(a, b string) int {
		if c := cmp.Compare(imp[b], imp[a]); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})

	fmt.Printf("\nTop features (%s):\n", alg)
	for _, name := range names[:min(topImportances, len(names))] {
		fmt.Printf("  %-28s %.3f\n", name, imp[name])
	}
}

func printSample(b *model.Bundle, seed uint64) error {
	sample := synth.New(seed + 1).Flights(1)[0]
	p, err := model.Predict(b, sample)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(map[string]any{
		"flight":         sample,
		"prediction":     p,
		"recommendation": domain.Recommend(p, sample),
		"risk_factors":   domain.RiskFactors(sample),
	}, "", "  ")
	if err != nil {
		return err
	}
	fmt.Printf("\nSample prediction:\n%s\n", out)
	return nil
}

func pushMetrics(url string, reg *prometheus.Registry, logger *slog.Logger) {
	if url == "" {
		return
	}
	if err := push.New(url, "flight_delay_train").Gatherer(reg).Push(); err != nil {
		logger.Warn("push training metrics failed", "error", err, "url", url)
	}
}
