package features

import (
	"math"

	"github.com/couchcryptid/flight-delay-engine/internal/domain"
	"gonum.org/v1/gonum/stat"
)

// DelayStats summarizes historical delay minutes for one group.
type DelayStats struct {
	Mean  float64 `json:"mean"`
	Std   float64 `json:"std"`
	Count int     `json:"count"`
}

// Aggregates are the historical statistics computed once over a training
// batch and reused for every later extraction.
type Aggregates struct {
	// RouteCounts is the number of training rows per route.
	RouteCounts map[string]int        `json:"route_counts"`
	Airline     map[string]DelayStats `json:"airline"`
	Route       map[string]DelayStats `json:"route"`
}

// RouteKey identifies an origin/destination pair.
func RouteKey(origin, destination string) string {
	return origin + "|" + destination
}

func fitAggregates(recs []domain.FlightRecord) Aggregates {
	agg := Aggregates{
		RouteCounts: make(map[string]int),
		Airline:     make(map[string]DelayStats),
		Route:       make(map[string]DelayStats),
	}
	airlineDelays := make(map[string][]float64)
	routeDelays := make(map[string][]float64)

	for _, rec := range recs {
		hasRoute := rec.Origin != "" && rec.Destination != ""
		route := RouteKey(rec.Origin, rec.Destination)
		if hasRoute {
			agg.RouteCounts[route]++
		}
		if rec.DelayMinutes == nil || !finite(*rec.DelayMinutes) {
			continue
		}
		if rec.Airline != "" {
			airlineDelays[rec.Airline] = append(airlineDelays[rec.Airline], *rec.DelayMinutes)
		}
		if hasRoute {
			routeDelays[route] = append(routeDelays[route], *rec.DelayMinutes)
		}
	}

	for k, v := range airlineDelays {
		agg.Airline[k] = summarize(v)
	}
	for k, v := range routeDelays {
		agg.Route[k] = summarize(v)
	}
	return agg
}

// summarize returns the mean and sample standard deviation. A single value
// has no spread, so its std is 0.
func summarize(xs []float64) DelayStats {
	s := DelayStats{Count: len(xs)}
	switch len(xs) {
	case 0:
		return s
	case 1:
		s.Mean = xs[0]
		return s
	}
	s.Mean, s.Std = stat.MeanStdDev(xs, nil)
	if !finite(s.Std) {
		s.Std = 0
	}
	return s
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
