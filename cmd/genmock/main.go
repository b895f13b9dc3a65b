// Command genmock generates reproducible flight fixtures from the synthetic
// generator: a CSV training history, a JSON array of flight records, and
// optionally the scored (analyzed) form of each flight. It can also seed the
// SQLite flights table.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -n 500 \
//	  -csv-out data/mock/flights.csv \
//	  -json-out data/mock/flights.json \
//	  -scored-out data/mock/flights_scored.json
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/couchcryptid/flight-delay-engine/internal/adapter/csvload"
	"github.com/couchcryptid/flight-delay-engine/internal/adapter/sqlite"
	"github.com/couchcryptid/flight-delay-engine/internal/domain"
	"github.com/couchcryptid/flight-delay-engine/internal/synth"
	"github.com/jonboulle/clockwork"
)

// scoredAt stamps the scored fixture so reruns produce identical files.
var scoredAt = time.Date(2024, time.April, 27, 6, 0, 0, 0, time.UTC)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	n := flag.Int("n", 500, "number of flights to generate")
	seed := flag.Uint64("seed", 42, "generator seed")
	csvOut := flag.String("csv-out", "", "output path for the CSV flight history")
	jsonOut := flag.String("json-out", "", "output path for the JSON flight records")
	scoredOut := flag.String("scored-out", "", "output path for analyzed flights (optional)")
	dbPath := flag.String("db", "", "SQLite database to seed with the flights (optional)")
	flag.Parse()

	if *csvOut == "" || *jsonOut == "" {
		flag.Usage()
		return fmt.Errorf("missing required flags: -csv-out, -json-out")
	}
	if *n <= 0 {
		return fmt.Errorf("-n must be positive, got %d", *n)
	}

	flights := synth.New(*seed).Flights(*n)

	if err := os.MkdirAll(filepath.Dir(*csvOut), 0o755); err != nil {
		return err
	}
	if err := csvload.WriteFile(*csvOut, flights); err != nil {
		return fmt.Errorf("writing CSV fixture: %w", err)
	}
	log.Printf("wrote CSV fixture: %s", *csvOut)

	if err := writeJSON(*jsonOut, flights); err != nil {
		return fmt.Errorf("writing JSON fixture: %w", err)
	}
	log.Printf("wrote JSON fixture: %s", *jsonOut)

	if *scoredOut != "" {
		if err := writeJSON(*scoredOut, analyzed(flights)); err != nil {
			return fmt.Errorf("writing scored fixture: %w", err)
		}
		log.Printf("wrote scored fixture: %s", *scoredOut)
	}

	if *dbPath != "" {
		if err := seedDatabase(*dbPath, flights); err != nil {
			return fmt.Errorf("seeding database: %w", err)
		}
		log.Printf("seeded %d flights into %s", len(flights), *dbPath)
	}

	printStats(flights)
	return nil
}

// analyzed pairs each flight with its delay analysis. No model is involved,
// so the prediction is absent.
func analyzed(flights []domain.FlightRecord) []domain.ScoredFlight {
	domain.SetClock(clockwork.NewFakeClockAt(scoredAt))
	defer domain.SetClock(nil)

	out := make([]domain.ScoredFlight, len(flights))
	for i, f := range flights {
		out[i] = domain.NewScoredFlight(f, nil, "")
	}
	return out
}

func seedDatabase(path string, flights []domain.FlightRecord) error {
	repo, err := sqlite.Open(path, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		return err
	}
	defer repo.Close()
	return repo.SaveFlights(context.Background(), flights)
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o600)
}

type count struct {
	name string
	n    int
}

func sortedCounts[K ~string](m map[K]int) []count {
	out := make([]count, 0, len(m))
	for k, n := range m {
		out = append(out, count{string(k), n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].n != out[j].n {
			return out[i].n > out[j].n
		}
		return out[i].name < out[j].name
	})
	return out
}

func printStats(flights []domain.FlightRecord) {
	airlines := map[string]int{}
	risks := map[domain.RiskCategory]int{}
	var delayed int
	var totalDelay float64
	for _, f := range flights {
		airlines[f.Airline]++
		if f.DelayMinutes == nil {
			continue
		}
		totalDelay += *f.DelayMinutes
		if *f.DelayMinutes > 0 {
			delayed++
		}
		risks[domain.CategorizeRisk(*f.DelayMinutes)]++
	}
	summary := domain.AnalyzeMany(flights)

	fmt.Println("\n=== Stats for updating test assertions ===")
	fmt.Printf("Total: %d, delayed: %d, mean delay: %.2f min\n",
		len(flights), delayed, totalDelay/float64(len(flights)))
	fmt.Printf("By risk: low=%d, medium=%d, high=%d\n",
		risks[domain.RiskLow], risks[domain.RiskMedium], risks[domain.RiskHigh])

	fmt.Print("Airlines:")
	for _, c := range sortedCounts(airlines) {
		fmt.Printf(" %s=%d", c.name, c.n)
	}
	fmt.Println()

	fmt.Print("Primary reasons:")
	for _, c := range sortedCounts(summary.ReasonCounts) {
		fmt.Printf(" %s=%d", c.name, c.n)
	}
	fmt.Println()
	fmt.Printf("Most common reason: %s\n", summary.MostCommonReason)
}
