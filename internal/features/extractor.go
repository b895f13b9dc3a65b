package features

import (
	"math"
	"regexp"
	"strconv"

	"github.com/couchcryptid/flight-delay-engine/internal/domain"
)

// Feature names, in canonical column order.
const (
	DepartureHour            = "departure_hour"
	DepartureMinute          = "departure_minute"
	DepartureDayOfWeek       = "departure_day_of_week"
	DepartureMonth           = "departure_month"
	DepartureIsWeekend       = "departure_is_weekend"
	DepartureIsPeak          = "departure_is_peak"
	DepartureIsOffPeak       = "departure_is_off_peak"
	ScheduledDurationMinutes = "scheduled_duration_minutes"
	AircraftTypeEncoded      = "aircraft_type_encoded"
	AirlineEncoded           = "airline_encoded"
	OriginEncoded            = "origin_encoded"
	DestinationEncoded       = "destination_encoded"
	RouteFrequency           = "route_frequency"
	AirlineAvgDelay          = "airline_avg_delay"
	AirlineDelayStd          = "airline_delay_std"
	RouteAvgDelay            = "route_avg_delay"
	RouteDelayStd            = "route_delay_std"
	LoadFactor               = "load_factor"
	EstimatedLoadFactor      = "estimated_load_factor"
	GateNumber               = "gate_number"
	TerminalEncoded          = "terminal_encoded"
)

// CanonicalOrder lists every feature the extractor can produce.
var CanonicalOrder = []string{
	DepartureHour, DepartureMinute, DepartureDayOfWeek, DepartureMonth,
	DepartureIsWeekend, DepartureIsPeak, DepartureIsOffPeak,
	ScheduledDurationMinutes,
	AircraftTypeEncoded, AirlineEncoded, OriginEncoded, DestinationEncoded,
	RouteFrequency,
	AirlineAvgDelay, AirlineDelayStd, RouteAvgDelay, RouteDelayStd,
	LoadFactor, EstimatedLoadFactor, GateNumber, TerminalEncoded,
}

// Categorical fields with a fitted encoder.
const (
	FieldAircraftType = "aircraft_type"
	FieldAirline      = "airline"
	FieldOrigin       = "origin"
	FieldDestination  = "destination"
	FieldTerminal     = "terminal"
)

// unknownTerminal is the terminal assigned to a gate with no letter prefix.
const unknownTerminal = "Unknown"

// Seat count assumed when only seats_available is known.
const assumedCapacity = 200

var (
	gateNumberRe = regexp.MustCompile(`\d+`)
	terminalRe   = regexp.MustCompile(`[A-Z]+`)
)

// Extractor turns flight records into feature vectors using encoder tables
// and historical aggregates fit on a training batch. It is read-only after
// Fit and safe for concurrent use.
type Extractor struct {
	Encoders   map[string]*Encoder `json:"encoders"`
	Aggregates Aggregates          `json:"aggregates"`
}

// Fit builds the encoders and aggregates from a training batch.
func Fit(recs []domain.FlightRecord) *Extractor {
	values := map[string][]string{}
	for _, rec := range recs {
		values[FieldAircraftType] = append(values[FieldAircraftType], rec.AircraftType)
		values[FieldAirline] = append(values[FieldAirline], rec.Airline)
		values[FieldOrigin] = append(values[FieldOrigin], rec.Origin)
		values[FieldDestination] = append(values[FieldDestination], rec.Destination)
		if rec.Gate != "" {
			values[FieldTerminal] = append(values[FieldTerminal], Terminal(rec.Gate))
		}
	}

	enc := make(map[string]*Encoder, len(values))
	for field, vs := range values {
		enc[field] = FitEncoder(vs)
	}
	return &Extractor{
		Encoders:   enc,
		Aggregates: fitAggregates(recs),
	}
}

// Extract computes the features present for rec. Features whose source
// fields are absent are left out; Vector.Align fills them with 0.
func (x *Extractor) Extract(rec domain.FlightRecord) Vector {
	v := Vector{}

	if dep := rec.ScheduledDeparture; dep != nil {
		hour := dep.Hour()
		dow := (int(dep.Weekday()) + 6) % 7
		v[DepartureHour] = float64(hour)
		v[DepartureMinute] = float64(dep.Minute())
		v[DepartureDayOfWeek] = float64(dow)
		v[DepartureMonth] = float64(dep.Month())
		v[DepartureIsWeekend] = flag(dow >= 5)
		v[DepartureIsPeak] = flag((hour >= 6 && hour <= 9) || (hour >= 17 && hour <= 20))
		v[DepartureIsOffPeak] = flag((hour >= 4 && hour <= 6) || hour >= 22 || hour <= 4)

		if arr := rec.ScheduledArrival; arr != nil {
			v[ScheduledDurationMinutes] = arr.Sub(*dep).Minutes()
		}
	}

	x.encode(v, AircraftTypeEncoded, FieldAircraftType, rec.AircraftType)
	x.encode(v, AirlineEncoded, FieldAirline, rec.Airline)
	x.encode(v, OriginEncoded, FieldOrigin, rec.Origin)
	x.encode(v, DestinationEncoded, FieldDestination, rec.Destination)

	if rec.Origin != "" && rec.Destination != "" {
		route := RouteKey(rec.Origin, rec.Destination)
		v[RouteFrequency] = 1
		if n, ok := x.Aggregates.RouteCounts[route]; ok && n > 0 {
			v[RouteFrequency] = float64(n)
		}
		s := x.Aggregates.Route[route]
		v[RouteAvgDelay] = s.Mean
		v[RouteDelayStd] = s.Std
	}

	if rec.Airline != "" {
		s := x.Aggregates.Airline[rec.Airline]
		v[AirlineAvgDelay] = s.Mean
		v[AirlineDelayStd] = s.Std
	}

	switch {
	case rec.SeatsAvailable != nil && rec.TotalSeats != nil:
		total := float64(*rec.TotalSeats)
		if total == 0 {
			total = 1
		}
		v[LoadFactor] = 1 - float64(*rec.SeatsAvailable)/total
	case rec.SeatsAvailable != nil:
		v[EstimatedLoadFactor] = clamp01(1 - float64(*rec.SeatsAvailable)/assumedCapacity)
	}

	if rec.Gate != "" {
		if m := gateNumberRe.FindString(rec.Gate); m != "" {
			if n, err := strconv.ParseFloat(m, 64); err == nil {
				v[GateNumber] = n
			}
		}
		x.encode(v, TerminalEncoded, FieldTerminal, Terminal(rec.Gate))
	}

	for k, val := range v {
		if !finite(val) {
			v[k] = 0
		}
	}
	return v
}

func (x *Extractor) encode(v Vector, feature, field, value string) {
	if value == "" {
		return
	}
	v[feature] = x.Encoders[field].Encode(value)
}

// Terminal returns the leading uppercase letter run of a gate, e.g. "B" for
// "B12", or "Unknown" when the gate has no letters.
func Terminal(gate string) string {
	if m := terminalRe.FindString(gate); m != "" {
		return m
	}
	return unknownTerminal
}

func flag(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
