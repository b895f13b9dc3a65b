// Package csvload reads and writes flight histories as CSV through gota
// data frames. Column names match the flight record JSON field names, so a
// CSV row and a JSON payload parse the same way.
package csvload

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/couchcryptid/flight-delay-engine/internal/domain"
	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// ErrNoRecords is returned when there is nothing to read or write.
var ErrNoRecords = errors.New("no flight records")

type column struct {
	name   string
	format func(domain.FlightRecord) string
}

var columns = []column{
	{"flight_number", func(r domain.FlightRecord) string { return r.FlightNumber }},
	{"airline", func(r domain.FlightRecord) string { return r.Airline }},
	{"aircraft_type", func(r domain.FlightRecord) string { return r.AircraftType }},
	{"origin", func(r domain.FlightRecord) string { return r.Origin }},
	{"destination", func(r domain.FlightRecord) string { return r.Destination }},
	{"gate", func(r domain.FlightRecord) string { return r.Gate }},
	{"terminal", func(r domain.FlightRecord) string { return r.Terminal }},
	{"status", func(r domain.FlightRecord) string { return r.Status }},
	{"scheduled_departure", func(r domain.FlightRecord) string { return timestamp(r.ScheduledDeparture) }},
	{"scheduled_arrival", func(r domain.FlightRecord) string { return timestamp(r.ScheduledArrival) }},
	{"actual_departure", func(r domain.FlightRecord) string { return timestamp(r.ActualDeparture) }},
	{"actual_arrival", func(r domain.FlightRecord) string { return timestamp(r.ActualArrival) }},
	{"flight_date", func(r domain.FlightRecord) string { return date(r.FlightDate) }},
	{"delay_minutes", func(r domain.FlightRecord) string { return number(r.DelayMinutes) }},
	{"seats_available", func(r domain.FlightRecord) string { return count(r.SeatsAvailable) }},
	{"total_seats", func(r domain.FlightRecord) string { return count(r.TotalSeats) }},
	{"on_time_probability", func(r domain.FlightRecord) string { return number(r.OnTimeProbability) }},
	{"duration_minutes", func(r domain.FlightRecord) string { return number(r.DurationMinutes) }},
	{"distance_miles", func(r domain.FlightRecord) string { return number(r.DistanceMiles) }},
	{"weather_delay_minutes", func(r domain.FlightRecord) string { return number(r.WeatherDelayMinutes) }},
	{"air_traffic_delay_minutes", func(r domain.FlightRecord) string { return number(r.AirTrafficDelayMinutes) }},
	{"security_delay_minutes", func(r domain.FlightRecord) string { return number(r.SecurityDelayMinutes) }},
	{"mechanical_delay_minutes", func(r domain.FlightRecord) string { return number(r.MechanicalDelayMinutes) }},
	{"crew_delay_minutes", func(r domain.FlightRecord) string { return number(r.CrewDelayMinutes) }},
	{"current_weather_delay_risk", func(r domain.FlightRecord) string { return number(r.CurrentWeatherDelayRisk) }},
	{"current_air_traffic_delay_risk", func(r domain.FlightRecord) string { return number(r.CurrentAirTrafficDelayRisk) }},
	{"current_airport_congestion_level", func(r domain.FlightRecord) string { return number(r.CurrentAirportCongestionLevel) }},
	{"seasonal_delay_factor", func(r domain.FlightRecord) string { return number(r.SeasonalDelayFactor) }},
	{"route_on_time_percentage", func(r domain.FlightRecord) string { return number(r.RouteOnTimePercentage) }},
}

// Header returns the CSV column names in write order.
func Header() []string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = c.name
	}
	return out
}

// Frame builds a string-typed data frame with one row per record.
func Frame(recs []domain.FlightRecord) dataframe.DataFrame {
	rows := make([][]string, 0, len(recs)+1)
	rows = append(rows, Header())
	for _, rec := range recs {
		row := make([]string, len(columns))
		for i, c := range columns {
			row[i] = c.format(rec)
		}
		rows = append(rows, row)
	}
	return dataframe.LoadRecords(rows,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
	)
}

// Write encodes recs as CSV with a header row.
func Write(w io.Writer, recs []domain.FlightRecord) error {
	if len(recs) == 0 {
		return ErrNoRecords
	}
	df := Frame(recs)
	if df.Err != nil {
		return fmt.Errorf("build flight frame: %w", df.Err)
	}
	if err := df.WriteCSV(w); err != nil {
		return fmt.Errorf("write flight csv: %w", err)
	}
	return nil
}

// WriteFile writes recs to a CSV file at path.
func WriteFile(path string, recs []domain.FlightRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Write(f, recs); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Read parses a CSV with a header row into flight records. Columns are
// matched by name; unknown columns are ignored and missing ones read as
// absent. Unparseable cells are dropped the same way JSON input is.
func Read(r io.Reader) ([]domain.FlightRecord, error) {
	df := dataframe.ReadCSV(r,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
	)
	if df.Err != nil {
		return nil, fmt.Errorf("read flight csv: %w", df.Err)
	}
	return Records(df)
}

// ReadFile reads flight records from the CSV file at path.
func ReadFile(path string) ([]domain.FlightRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}

// Records converts every row of df into a flight record.
func Records(df dataframe.DataFrame) ([]domain.FlightRecord, error) {
	if df.Nrow() == 0 {
		return nil, ErrNoRecords
	}
	names := df.Names()
	cols := make([][]string, len(names))
	for j, name := range names {
		cols[j] = df.Col(name).Records()
	}

	out := make([]domain.FlightRecord, df.Nrow())
	row := make(map[string]string, len(names))
	for i := range out {
		clear(row)
		for j, name := range names {
			if v := cell(cols[j][i]); v != "" {
				row[name] = v
			}
		}
		data, err := json.Marshal(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		rec, err := domain.ParseFlightRecord(data)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		out[i] = rec
	}
	return out, nil
}

// cell normalizes the missing-value markers gota may emit.
func cell(v string) string {
	switch v {
	case "NaN", "NA", "<nil>":
		return ""
	}
	return v
}

func timestamp(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func date(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}

func number(p *float64) string {
	if p == nil {
		return ""
	}
	return strconv.FormatFloat(*p, 'f', -1, 64)
}

func count(p *int) string {
	if p == nil {
		return ""
	}
	return strconv.Itoa(*p)
}
