// Package synth generates synthetic flight histories for training and test
// fixtures. Delays follow a fixed structure: a per-airline base rate, extra
// delay at peak hours, on weekends, and on a few congested routes, drawn from
// an exponential distribution and capped at five hours.
package synth

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/couchcryptid/flight-delay-engine/internal/domain"
)

// MaxDelayMinutes caps generated delays.
const MaxDelayMinutes = 300

// flightsPerDay spreads generated flights over consecutive days.
const flightsPerDay = 20

var (
	airlines = []string{
		"American Airlines", "United Airlines", "Delta Air Lines",
		"Southwest Airlines", "Alaska Airlines",
	}
	airlineDelayRate = map[string]float64{
		"American Airlines":  0.3,
		"United Airlines":    0.4,
		"Delta Air Lines":    0.25,
		"Southwest Airlines": 0.35,
		"Alaska Airlines":    0.2,
	}
	aircraftTypes = []string{
		"Boeing 737-800", "Boeing 737-900", "Airbus A320", "Boeing 777-200", "Boeing 757-200",
	}
	airports   = []string{"LAX", "ORD", "JFK", "ATL", "DFW", "DEN", "SFO", "SEA"}
	seatCounts = []int{150, 180, 189, 215, 440}
	busyRoutes = map[[2]string]bool{
		{"LAX", "JFK"}: true,
		{"ORD", "LAX"}: true,
		{"ATL", "LAX"}: true,
	}
	// Relative departure-hour weights, midnight first.
	hourWeights = []float64{
		0.02, 0.02, 0.02, 0.02, 0.05, 0.08, 0.12, 0.10, 0.08, 0.06, 0.05, 0.05,
		0.05, 0.06, 0.08, 0.10, 0.12, 0.08, 0.05, 0.03, 0.02, 0.02, 0.02, 0.02,
	}
)

// Generator produces deterministic synthetic flights for a seed.
type Generator struct {
	rng   *rand.Rand
	start time.Time
}

// New returns a Generator whose output depends only on seed.
func New(seed uint64) *Generator {
	return &Generator{
		rng:   rand.New(rand.NewPCG(seed, 0x5eed)),
		start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// Flights generates n flights.
func (g *Generator) Flights(n int) []domain.FlightRecord {
	out := make([]domain.FlightRecord, n)
	for i := range out {
		out[i] = g.flight(i)
	}
	return out
}

func (g *Generator) flight(i int) domain.FlightRecord {
	airline := pickOne(g.rng, airlines)
	origin := pickOne(g.rng, airports)
	destination := origin
	for destination == origin {
		destination = pickOne(g.rng, airports)
	}
	gate := fmt.Sprintf("%c%d", 'A'+rune(g.rng.IntN(5)), 1+g.rng.IntN(20))

	hour := g.weightedHour()
	departure := g.start.AddDate(0, 0, i/flightsPerDay).
		Add(time.Duration(hour)*time.Hour + time.Duration(g.rng.IntN(60))*time.Minute)
	duration := math.Max(120, math.Min(360, g.rng.NormFloat64()*60+240))
	arrival := departure.Add(time.Duration(duration * float64(time.Minute)))

	base := airlineDelayRate[airline] * 20
	switch {
	case (hour >= 6 && hour <= 9) || (hour >= 17 && hour <= 20):
		base += 15
	case hour >= 22 || hour <= 5:
		base += 5
	}
	if wd := departure.Weekday(); wd == time.Saturday || wd == time.Sunday {
		base += 10
	}
	if busyRoutes[[2]string{origin, destination}] {
		base += 20
	}
	delay := math.Min(g.rng.ExpFloat64()*base, MaxDelayMinutes)
	delay = math.Round(delay*10) / 10

	status := "ON_TIME"
	if delay > 15 {
		status = "DELAYED"
	}
	totalSeats := pickOne(g.rng, seatCounts)
	seats := g.rng.IntN(totalSeats / 4)
	actualDep := departure.Add(time.Duration(delay * float64(time.Minute)))
	actualArr := arrival.Add(time.Duration(delay * float64(time.Minute)))
	flightDate := time.Date(departure.Year(), departure.Month(), departure.Day(), 0, 0, 0, 0, time.UTC)

	rec := domain.FlightRecord{
		FlightNumber:       fmt.Sprintf("%s%d", strings.ToUpper(airline[:2]), 1000+g.rng.IntN(9000)),
		Airline:            airline,
		AircraftType:       pickOne(g.rng, aircraftTypes),
		Origin:             origin,
		Destination:        destination,
		Gate:               gate,
		Status:             status,
		ScheduledDeparture: &departure,
		ScheduledArrival:   &arrival,
		ActualDeparture:    &actualDep,
		ActualArrival:      &actualArr,
		FlightDate:         &flightDate,
		DelayMinutes:       domain.Float(delay),
		SeatsAvailable:     domain.Int(seats),
		TotalSeats:         domain.Int(totalSeats),
		OnTimeProbability:  domain.Float(math.Max(0.1, 1-delay/120)),
		DurationMinutes:    domain.Float(math.Round(duration)),
	}
	g.attributeCauses(&rec, delay)
	return rec
}

// attributeCauses splits delay across the named causes and fills in the
// operating context an analyzer would see. Whatever the named causes leave
// over is operational delay.
func (g *Generator) attributeCauses(rec *domain.FlightRecord, delay float64) {
	weights := make([]float64, 6)
	var total float64
	for i := range weights {
		weights[i] = g.rng.ExpFloat64()
		total += weights[i]
	}
	share := func(i int) *float64 {
		return domain.Float(math.Floor(delay*weights[i]/total*10) / 10)
	}
	rec.WeatherDelayMinutes = share(0)
	rec.AirTrafficDelayMinutes = share(1)
	rec.SecurityDelayMinutes = share(2)
	rec.MechanicalDelayMinutes = share(3)
	rec.CrewDelayMinutes = share(4)

	rec.CurrentWeatherDelayRisk = domain.Float(round2(g.rng.Float64()))
	rec.CurrentAirTrafficDelayRisk = domain.Float(round2(g.rng.Float64()))
	rec.CurrentAirportCongestionLevel = domain.Float(round2(g.rng.Float64()))
	rec.SeasonalDelayFactor = domain.Float(round2(0.8 + g.rng.Float64()*0.7))
	rec.RouteOnTimePercentage = domain.Float(round2(0.5 + g.rng.Float64()*0.45))
}

func (g *Generator) weightedHour() int {
	var total float64
	for _, w := range hourWeights {
		total += w
	}
	r := g.rng.Float64() * total
	for h, w := range hourWeights {
		if r < w {
			return h
		}
		r -= w
	}
	return len(hourWeights) - 1
}

func pickOne[T any](rng *rand.Rand, xs []T) T {
	return xs[rng.IntN(len(xs))]
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
