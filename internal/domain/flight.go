package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ErrFlightNotFound is returned by lookups that match no stored flight.
var ErrFlightNotFound = errors.New("flight not found")

// FlightRecord is a single flight as supplied by a caller. Every field is
// optional: empty strings and nil pointers mean the value was not provided.
type FlightRecord struct {
	FlightNumber string `json:"flight_number,omitempty"`
	Airline      string `json:"airline,omitempty"`
	AircraftType string `json:"aircraft_type,omitempty"`
	Origin       string `json:"origin,omitempty"`
	Destination  string `json:"destination,omitempty"`
	Gate         string `json:"gate,omitempty"`
	Terminal     string `json:"terminal,omitempty"`
	Status       string `json:"status,omitempty"`

	ScheduledDeparture *time.Time `json:"scheduled_departure,omitempty"`
	ScheduledArrival   *time.Time `json:"scheduled_arrival,omitempty"`
	ActualDeparture    *time.Time `json:"actual_departure,omitempty"`
	ActualArrival      *time.Time `json:"actual_arrival,omitempty"`
	FlightDate         *time.Time `json:"flight_date,omitempty"`

	DelayMinutes      *float64 `json:"delay_minutes,omitempty"`
	SeatsAvailable    *int     `json:"seats_available,omitempty"`
	TotalSeats        *int     `json:"total_seats,omitempty"`
	OnTimeProbability *float64 `json:"on_time_probability,omitempty"`
	DurationMinutes   *float64 `json:"duration_minutes,omitempty"`
	DistanceMiles     *float64 `json:"distance_miles,omitempty"`

	// Per-cause delay minutes.
	WeatherDelayMinutes    *float64 `json:"weather_delay_minutes,omitempty"`
	AirTrafficDelayMinutes *float64 `json:"air_traffic_delay_minutes,omitempty"`
	SecurityDelayMinutes   *float64 `json:"security_delay_minutes,omitempty"`
	MechanicalDelayMinutes *float64 `json:"mechanical_delay_minutes,omitempty"`
	CrewDelayMinutes       *float64 `json:"crew_delay_minutes,omitempty"`

	// Operating context at the time of analysis.
	CurrentWeatherDelayRisk       *float64 `json:"current_weather_delay_risk,omitempty"`
	CurrentAirTrafficDelayRisk    *float64 `json:"current_air_traffic_delay_risk,omitempty"`
	CurrentAirportCongestionLevel *float64 `json:"current_airport_congestion_level,omitempty"`
	SeasonalDelayFactor           *float64 `json:"seasonal_delay_factor,omitempty"`
	RouteOnTimePercentage         *float64 `json:"route_on_time_percentage,omitempty"`
}

// RawFlightRecord is the loosely typed JSON shape accepted from upstream
// producers. Timestamps arrive as strings in one of several layouts and
// numbers may be quoted.
type RawFlightRecord struct {
	FlightNumber string `json:"flight_number"`
	Airline      string `json:"airline"`
	AircraftType string `json:"aircraft_type"`
	Origin       string `json:"origin"`
	Destination  string `json:"destination"`
	Gate         string `json:"gate"`
	Terminal     string `json:"terminal"`
	Status       string `json:"status"`

	ScheduledDeparture string `json:"scheduled_departure"`
	ScheduledArrival   string `json:"scheduled_arrival"`
	ActualDeparture    string `json:"actual_departure"`
	ActualArrival      string `json:"actual_arrival"`
	FlightDate         string `json:"flight_date"`

	DelayMinutes      Number `json:"delay_minutes"`
	SeatsAvailable    Number `json:"seats_available"`
	TotalSeats        Number `json:"total_seats"`
	OnTimeProbability Number `json:"on_time_probability"`
	DurationMinutes   Number `json:"duration_minutes"`
	DistanceMiles     Number `json:"distance_miles"`

	WeatherDelayMinutes    Number `json:"weather_delay_minutes"`
	AirTrafficDelayMinutes Number `json:"air_traffic_delay_minutes"`
	SecurityDelayMinutes   Number `json:"security_delay_minutes"`
	MechanicalDelayMinutes Number `json:"mechanical_delay_minutes"`
	CrewDelayMinutes       Number `json:"crew_delay_minutes"`

	CurrentWeatherDelayRisk       Number `json:"current_weather_delay_risk"`
	CurrentAirTrafficDelayRisk    Number `json:"current_air_traffic_delay_risk"`
	CurrentAirportCongestionLevel Number `json:"current_airport_congestion_level"`
	SeasonalDelayFactor           Number `json:"seasonal_delay_factor"`
	RouteOnTimePercentage         Number `json:"route_on_time_percentage"`
}

// Number is a JSON value that may arrive as a number or a quoted string.
// Anything unparseable is kept verbatim and later dropped by ParseNumber.
type Number string

// UnmarshalJSON implements json.Unmarshaler.
func (n *Number) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*n = Number(s)
		return nil
	}
	if string(b) == "null" {
		*n = ""
		return nil
	}
	*n = Number(b)
	return nil
}

// timestampLayouts are tried in order when parsing timestamp strings.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseFlightRecord deserializes a JSON flight payload into a FlightRecord.
// Unparseable optional values are dropped rather than rejected; only
// malformed JSON is an error.
func ParseFlightRecord(data []byte) (FlightRecord, error) {
	var raw RawFlightRecord
	if err := json.Unmarshal(data, &raw); err != nil {
		return FlightRecord{}, fmt.Errorf("parse flight record: %w", err)
	}
	return raw.Record(), nil
}

// ParseFlightRecords deserializes a JSON array of flight payloads.
func ParseFlightRecords(data []byte) ([]FlightRecord, error) {
	var raws []RawFlightRecord
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("parse flight records: %w", err)
	}
	out := make([]FlightRecord, len(raws))
	for i := range raws {
		out[i] = raws[i].Record()
	}
	return out, nil
}

// Record converts the raw payload into a typed FlightRecord.
func (r RawFlightRecord) Record() FlightRecord {
	return FlightRecord{
		FlightNumber: strings.TrimSpace(r.FlightNumber),
		Airline:      strings.TrimSpace(r.Airline),
		AircraftType: strings.TrimSpace(r.AircraftType),
		Origin:       strings.TrimSpace(r.Origin),
		Destination:  strings.TrimSpace(r.Destination),
		Gate:         strings.TrimSpace(r.Gate),
		Terminal:     strings.TrimSpace(r.Terminal),
		Status:       strings.TrimSpace(r.Status),

		ScheduledDeparture: ParseTimestamp(r.ScheduledDeparture),
		ScheduledArrival:   ParseTimestamp(r.ScheduledArrival),
		ActualDeparture:    ParseTimestamp(r.ActualDeparture),
		ActualArrival:      ParseTimestamp(r.ActualArrival),
		FlightDate:         ParseTimestamp(r.FlightDate),

		DelayMinutes:      ParseNumber(string(r.DelayMinutes)),
		SeatsAvailable:    parseCount(string(r.SeatsAvailable)),
		TotalSeats:        parseCount(string(r.TotalSeats)),
		OnTimeProbability: ParseNumber(string(r.OnTimeProbability)),
		DurationMinutes:   ParseNumber(string(r.DurationMinutes)),
		DistanceMiles:     ParseNumber(string(r.DistanceMiles)),

		WeatherDelayMinutes:    ParseNumber(string(r.WeatherDelayMinutes)),
		AirTrafficDelayMinutes: ParseNumber(string(r.AirTrafficDelayMinutes)),
		SecurityDelayMinutes:   ParseNumber(string(r.SecurityDelayMinutes)),
		MechanicalDelayMinutes: ParseNumber(string(r.MechanicalDelayMinutes)),
		CrewDelayMinutes:       ParseNumber(string(r.CrewDelayMinutes)),

		CurrentWeatherDelayRisk:       ParseNumber(string(r.CurrentWeatherDelayRisk)),
		CurrentAirTrafficDelayRisk:    ParseNumber(string(r.CurrentAirTrafficDelayRisk)),
		CurrentAirportCongestionLevel: ParseNumber(string(r.CurrentAirportCongestionLevel)),
		SeasonalDelayFactor:           ParseNumber(string(r.SeasonalDelayFactor)),
		RouteOnTimePercentage:         ParseNumber(string(r.RouteOnTimePercentage)),
	}
}

// ParseTimestamp parses s with the accepted layouts. Returns nil for empty or
// unrecognized input. Layouts without a zone are read as UTC.
func ParseTimestamp(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "null") || s == "NaT" || s == "NaN" {
		return nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

// ParseNumber parses a decimal string. Returns nil for empty, NaN, infinite,
// or invalid input.
func ParseNumber(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// parseCount rounds a seat count. Counts outside [0, MaxInt32] are absent.
func parseCount(s string) *int {
	v := ParseNumber(s)
	if v == nil {
		return nil
	}
	r := math.Round(*v)
	if r < 0 || r > math.MaxInt32 {
		return nil
	}
	n := int(r)
	return &n
}

// Float returns a pointer to v. Handy for building records in code.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }

// Time returns a pointer to t.
func Time(t time.Time) *time.Time { return &t }

// valueOr dereferences p or returns def when p is nil.
func valueOr(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}
