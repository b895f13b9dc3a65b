// Command validate checks a saved model bundle and a flight fixture against
// the engine's invariants: fixture parity between CSV and JSON, bundle
// integrity, prediction bounds and determinism, and delay-cause attribution.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -json data/mock/flights.json \
//	  -csv data/mock/flights.csv
//
// The bundle is read from MODEL_DIR with MODEL_PREFIX.
package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/couchcryptid/flight-delay-engine/internal/adapter/csvload"
	"github.com/couchcryptid/flight-delay-engine/internal/adapter/filestore"
	"github.com/couchcryptid/flight-delay-engine/internal/config"
	"github.com/couchcryptid/flight-delay-engine/internal/domain"
	"github.com/couchcryptid/flight-delay-engine/internal/engine"
	"github.com/couchcryptid/flight-delay-engine/internal/model"
)

const epsilon = 1e-6

// maxConfidence mirrors the analyzer's confidence ceiling.
const maxConfidence = 0.95

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	jsonPath := flag.String("json", "", "path to the JSON flight fixture")
	csvPath := flag.String("csv", "", "path to the CSV flight fixture (optional)")
	flag.Parse()

	if *jsonPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load config: %v\n", err)
		os.Exit(1)
	}

	if code := run(cfg, *jsonPath, *csvPath); code != 0 {
		os.Exit(code)
	}
}

func run(cfg *config.Config, jsonPath, csvPath string) int {
	fmt.Println("=== Flight Delay Engine Validation ===")
	fmt.Println()

	flights, err := loadJSON(jsonPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load JSON fixture: %v\n", err)
		return 1
	}

	var csvFlights []domain.FlightRecord
	if csvPath != "" {
		csvFlights, err = csvload.ReadFile(csvPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: load CSV fixture: %v\n", err)
			return 1
		}
	}

	store := filestore.New(cfg.ModelDir, cfg.ModelPrefix, slog.New(slog.NewTextHandler(io.Discard, nil)))
	eng, report, err := engine.Load(store)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load model bundle from %s: %v\n", cfg.ModelDir, err)
		return 1
	}

	phases := []*phase{
		validateFixtureParity(flights, csvFlights),
		validateBundle(eng, report),
		validatePredictions(eng, flights),
		validateAnalyses(flights),
		validateSummary(flights),
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Records: %d JSON, %d CSV; bundle %s using %s\n",
		len(flights), len(csvFlights), eng.BundleID(), eng.Model())

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			if i >= 20 {
				fmt.Printf("  ... and %d more\n", len(p.errors)-20)
				break
			}
			fmt.Printf("  %s\n", e)
		}
	}

	if !allPassed {
		return 1
	}
	return 0
}

func loadJSON(path string) ([]domain.FlightRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return domain.ParseFlightRecords(data)
}

func validateFixtureParity(flights, csvFlights []domain.FlightRecord) *phase {
	p := &phase{name: "Phase 1: Fixture parity (JSON vs CSV)"}
	if len(flights) == 0 {
		p.errorf("JSON fixture is empty")
	}
	if csvFlights == nil {
		return p
	}
	if len(flights) != len(csvFlights) {
		p.errorf("row count: JSON=%d CSV=%d", len(flights), len(csvFlights))
		return p
	}
	for i := range flights {
		j, c := flights[i], csvFlights[i]
		if j.FlightNumber != c.FlightNumber {
			p.errorf("row %d: flight_number JSON=%q CSV=%q", i, j.FlightNumber, c.FlightNumber)
		}
		if !ptrFloatEq(j.DelayMinutes, c.DelayMinutes) {
			p.errorf("row %d (%s): delay_minutes JSON=%s CSV=%s", i, j.FlightNumber, ptrStr(j.DelayMinutes), ptrStr(c.DelayMinutes))
		}
		if !ptrTimeEq(j.ScheduledDeparture, c.ScheduledDeparture) {
			p.errorf("row %d (%s): scheduled_departure differs", i, j.FlightNumber)
		}
	}
	return p
}

func validateBundle(eng *engine.Engine, report model.LoadReport) *phase {
	p := &phase{name: "Phase 2: Model bundle integrity"}
	b := eng.Bundle()

	if len(b.Columns) == 0 {
		p.errorf("bundle has no feature columns")
	}
	selected := b.Models[eng.Model()]
	if selected == nil {
		p.errorf("selected model %s is not in the bundle", eng.Model())
		return p
	}
	if err := selected.Validate(); err != nil {
		p.errorf("selected model %s: %v", eng.Model(), err)
	}
	if selected.Width() != len(b.Columns) {
		p.errorf("selected model width %d != %d feature columns", selected.Width(), len(b.Columns))
	}
	if b.Scaler != nil && len(b.Scaler.Mean) != len(b.Columns) {
		p.errorf("scaler width %d != %d feature columns", len(b.Scaler.Mean), len(b.Columns))
	}
	if report.FellBack && eng.Model() == b.Best {
		p.errorf("load report says fell back, but best model %s is in use", b.Best)
	}
	for alg, reason := range report.Unusable {
		fmt.Printf("  note: %s unusable: %s\n", alg, reason)
	}
	for _, name := range report.Missing {
		fmt.Printf("  note: missing artifact %s\n", name)
	}

	perf := eng.Performance()
	for alg, m := range perf.Models {
		if math.IsNaN(m.R2) || m.RMSE < 0 || m.MAE < 0 {
			p.errorf("%s: invalid metrics r2=%g rmse=%g mae=%g", alg, m.R2, m.RMSE, m.MAE)
		}
	}
	return p
}

func validatePredictions(eng *engine.Engine, flights []domain.FlightRecord) *phase {
	p := &phase{name: "Phase 3: Prediction invariants"}
	for i, f := range flights {
		got, err := eng.Predict(f)
		if err != nil {
			p.errorf("row %d (%s): predict: %v", i, f.FlightNumber, err)
			continue
		}
		d := got.PredictedDelayMinutes
		if math.IsNaN(d) || math.IsInf(d, 0) || d < 0 {
			p.errorf("row %d (%s): predicted delay %g out of range", i, f.FlightNumber, d)
		}
		if want := domain.CategorizeRisk(d); got.PredictionQuality != want {
			p.errorf("row %d (%s): risk %s, want %s for %.2f min", i, f.FlightNumber, got.PredictionQuality, want, d)
		}
		if got.ConfidenceInterval < 0 {
			p.errorf("row %d (%s): negative confidence interval %g", i, f.FlightNumber, got.ConfidenceInterval)
		}
		if got.ModelUsed != string(eng.Model()) {
			p.errorf("row %d (%s): model_used %s, engine selected %s", i, f.FlightNumber, got.ModelUsed, eng.Model())
		}
		again, err := eng.Predict(f)
		if err != nil || again != got {
			p.errorf("row %d (%s): prediction is not deterministic", i, f.FlightNumber)
		}
	}
	return p
}

func validateAnalyses(flights []domain.FlightRecord) *phase {
	p := &phase{name: "Phase 4: Delay-cause attribution"}
	for i, f := range flights {
		a := domain.Analyze(f)
		b := domain.Breakdown(f)

		if a.Confidence < 0 || a.Confidence > maxConfidence+epsilon {
			p.errorf("row %d (%s): confidence %g outside [0, %g]", i, f.FlightNumber, a.Confidence, maxConfidence)
		}
		if b.Total <= 0 {
			if a.PrimaryReason != domain.ReasonUnknown || a.Confidence != 0 {
				p.errorf("row %d (%s): no delay but primary=%s confidence=%g", i, f.FlightNumber, a.PrimaryReason, a.Confidence)
			}
			continue
		}

		var sum float64
		for _, pct := range a.DetailedBreakdown {
			if pct < -epsilon {
				p.errorf("row %d (%s): negative share %g", i, f.FlightNumber, pct)
			}
			sum += pct
		}
		if math.Abs(sum-100) > 1e-3 {
			p.errorf("row %d (%s): shares sum to %.4f, want 100", i, f.FlightNumber, sum)
		}
		if !floatEq(a.PrimaryPercentage, a.DetailedBreakdown[a.PrimaryReason]) {
			p.errorf("row %d (%s): primary %s percentage %g != breakdown %g",
				i, f.FlightNumber, a.PrimaryReason, a.PrimaryPercentage, a.DetailedBreakdown[a.PrimaryReason])
		}
		if !a.PrimaryReason.Valid() {
			p.errorf("row %d (%s): unknown primary reason %q", i, f.FlightNumber, a.PrimaryReason)
		}
		if a.SecondaryReason != nil && *a.SecondaryReason == a.PrimaryReason {
			p.errorf("row %d (%s): secondary equals primary %s", i, f.FlightNumber, a.PrimaryReason)
		}
	}
	return p
}

func validateSummary(flights []domain.FlightRecord) *phase {
	p := &phase{name: "Phase 5: Batch summary"}
	s := domain.AnalyzeMany(flights)

	if s.TotalFlights != len(flights) {
		p.errorf("total_flights %d, want %d", s.TotalFlights, len(flights))
	}
	if len(s.Analyses) != len(flights) {
		p.errorf("individual_analyses %d, want %d", len(s.Analyses), len(flights))
	}

	total, best := 0, 0
	for _, n := range s.ReasonCounts {
		total += n
		best = max(best, n)
	}
	if total != len(flights) {
		p.errorf("reason counts sum to %d, want %d", total, len(flights))
	}
	if len(flights) > 0 && s.ReasonCounts[s.MostCommonReason] != best {
		p.errorf("most common reason %s has %d flights, max is %d", s.MostCommonReason, s.ReasonCounts[s.MostCommonReason], best)
	}

	var pctSum float64
	for _, pct := range s.ReasonPercentages {
		pctSum += pct
	}
	if len(flights) > 0 && math.Abs(pctSum-100) > 1e-3 {
		p.errorf("reason percentages sum to %.4f, want 100", pctSum)
	}
	return p
}

func floatEq(a, b float64) bool {
	return math.Abs(a-b) < epsilon
}

func ptrFloatEq(a, b *float64) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return floatEq(*a, *b)
}

func ptrTimeEq(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func ptrStr(v *float64) string {
	if v == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%g", *v)
}
