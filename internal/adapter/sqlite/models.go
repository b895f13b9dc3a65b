package sqlite

import (
	"time"

	"github.com/couchcryptid/flight-delay-engine/internal/domain"
)

// FlightRow is one historical or scheduled flight.
type FlightRow struct {
	ID                 uint       `gorm:"column:id;primaryKey"`
	FlightNumber       string     `gorm:"column:flight_number;type:varchar(10);not null;index"`
	Airline            string     `gorm:"column:airline;type:varchar(100)"`
	AircraftType       string     `gorm:"column:aircraft_type;type:varchar(100)"`
	Origin             string     `gorm:"column:origin;type:varchar(10);index:idx_flight_route"`
	Destination        string     `gorm:"column:destination;type:varchar(10);index:idx_flight_route"`
	ScheduledDeparture *time.Time `gorm:"column:scheduled_departure;index"`
	ScheduledArrival   *time.Time `gorm:"column:scheduled_arrival"`
	ActualDeparture    *time.Time `gorm:"column:actual_departure"`
	ActualArrival      *time.Time `gorm:"column:actual_arrival"`
	Gate               string     `gorm:"column:gate;type:varchar(10)"`
	Terminal           string     `gorm:"column:terminal;type:varchar(10)"`
	Status             string     `gorm:"column:status;type:varchar(20);index"`
	DelayMinutes       *float64   `gorm:"column:delay_minutes"`
	SeatsAvailable     *int       `gorm:"column:seats_available"`
	TotalSeats         *int       `gorm:"column:total_seats"`
	OnTimeProbability  *float64   `gorm:"column:on_time_probability"`
	DurationMinutes    *float64   `gorm:"column:duration_minutes"`
	DistanceMiles      *float64   `gorm:"column:distance_miles"`
	FlightDate         *time.Time `gorm:"column:flight_date;index"`

	WeatherDelayMinutes    *float64 `gorm:"column:weather_delay_minutes"`
	AirTrafficDelayMinutes *float64 `gorm:"column:air_traffic_delay_minutes"`
	SecurityDelayMinutes   *float64 `gorm:"column:security_delay_minutes"`
	MechanicalDelayMinutes *float64 `gorm:"column:mechanical_delay_minutes"`
	CrewDelayMinutes       *float64 `gorm:"column:crew_delay_minutes"`

	CurrentWeatherDelayRisk       *float64 `gorm:"column:current_weather_delay_risk"`
	CurrentAirTrafficDelayRisk    *float64 `gorm:"column:current_air_traffic_delay_risk"`
	CurrentAirportCongestionLevel *float64 `gorm:"column:current_airport_congestion_level"`
	SeasonalDelayFactor           *float64 `gorm:"column:seasonal_delay_factor"`
	RouteOnTimePercentage         *float64 `gorm:"column:route_on_time_percentage"`

	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

// TableName specifies the table name for GORM
func (FlightRow) TableName() string {
	return "flights"
}

func newFlightRow(rec domain.FlightRecord) FlightRow {
	return FlightRow{
		FlightNumber:                  rec.FlightNumber,
		Airline:                       rec.Airline,
		AircraftType:                  rec.AircraftType,
		Origin:                        rec.Origin,
		Destination:                   rec.Destination,
		ScheduledDeparture:            rec.ScheduledDeparture,
		ScheduledArrival:              rec.ScheduledArrival,
		ActualDeparture:               rec.ActualDeparture,
		ActualArrival:                 rec.ActualArrival,
		Gate:                          rec.Gate,
		Terminal:                      rec.Terminal,
		Status:                        rec.Status,
		DelayMinutes:                  rec.DelayMinutes,
		SeatsAvailable:                rec.SeatsAvailable,
		TotalSeats:                    rec.TotalSeats,
		OnTimeProbability:             rec.OnTimeProbability,
		DurationMinutes:               rec.DurationMinutes,
		DistanceMiles:                 rec.DistanceMiles,
		FlightDate:                    rec.FlightDate,
		WeatherDelayMinutes:           rec.WeatherDelayMinutes,
		AirTrafficDelayMinutes:        rec.AirTrafficDelayMinutes,
		SecurityDelayMinutes:          rec.SecurityDelayMinutes,
		MechanicalDelayMinutes:        rec.MechanicalDelayMinutes,
		CrewDelayMinutes:              rec.CrewDelayMinutes,
		CurrentWeatherDelayRisk:       rec.CurrentWeatherDelayRisk,
		CurrentAirTrafficDelayRisk:    rec.CurrentAirTrafficDelayRisk,
		CurrentAirportCongestionLevel: rec.CurrentAirportCongestionLevel,
		SeasonalDelayFactor:           rec.SeasonalDelayFactor,
		RouteOnTimePercentage:         rec.RouteOnTimePercentage,
	}
}

// Record converts the row back to a domain record.
func (r FlightRow) Record() domain.FlightRecord {
	return domain.FlightRecord{
		FlightNumber:                  r.FlightNumber,
		Airline:                       r.Airline,
		AircraftType:                  r.AircraftType,
		Origin:                        r.Origin,
		Destination:                   r.Destination,
		ScheduledDeparture:            utc(r.ScheduledDeparture),
		ScheduledArrival:              utc(r.ScheduledArrival),
		ActualDeparture:               utc(r.ActualDeparture),
		ActualArrival:                 utc(r.ActualArrival),
		Gate:                          r.Gate,
		Terminal:                      r.Terminal,
		Status:                        r.Status,
		DelayMinutes:                  r.DelayMinutes,
		SeatsAvailable:                r.SeatsAvailable,
		TotalSeats:                    r.TotalSeats,
		OnTimeProbability:             r.OnTimeProbability,
		DurationMinutes:               r.DurationMinutes,
		DistanceMiles:                 r.DistanceMiles,
		FlightDate:                    utc(r.FlightDate),
		WeatherDelayMinutes:           r.WeatherDelayMinutes,
		AirTrafficDelayMinutes:        r.AirTrafficDelayMinutes,
		SecurityDelayMinutes:          r.SecurityDelayMinutes,
		MechanicalDelayMinutes:        r.MechanicalDelayMinutes,
		CrewDelayMinutes:              r.CrewDelayMinutes,
		CurrentWeatherDelayRisk:       r.CurrentWeatherDelayRisk,
		CurrentAirTrafficDelayRisk:    r.CurrentAirTrafficDelayRisk,
		CurrentAirportCongestionLevel: r.CurrentAirportCongestionLevel,
		SeasonalDelayFactor:           r.SeasonalDelayFactor,
		RouteOnTimePercentage:         r.RouteOnTimePercentage,
	}
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// ScoreRow is the latest prediction and attribution for one flight.
type ScoreRow struct {
	ID                    uint     `gorm:"column:id;primaryKey"`
	FlightKey             string   `gorm:"column:flight_key;type:varchar(40);uniqueIndex;not null"`
	FlightNumber          string   `gorm:"column:flight_number;type:varchar(10);index"`
	BundleID              string   `gorm:"column:bundle_id;type:varchar(36)"`
	ModelUsed             string   `gorm:"column:model_used;type:varchar(40)"`
	PredictedDelayMinutes *float64 `gorm:"column:predicted_delay_minutes"`
	ConfidenceInterval    *float64 `gorm:"column:confidence_interval"`
	PredictionQuality     string   `gorm:"column:prediction_quality;type:varchar(20)"`
	Recommendation        string   `gorm:"column:recommendation;type:text"`
	RiskFactors           []string `gorm:"column:risk_factors;serializer:json"`

	PrimaryReason       string             `gorm:"column:primary_reason;type:varchar(20)"`
	PrimaryPercentage   float64            `gorm:"column:primary_percentage"`
	SecondaryReason     string             `gorm:"column:secondary_reason;type:varchar(20)"`
	SecondaryPercentage float64            `gorm:"column:secondary_percentage"`
	Confidence          float64            `gorm:"column:confidence"`
	Breakdown           map[string]float64 `gorm:"column:breakdown;serializer:json"`

	ProcessedAt time.Time `gorm:"column:processed_at;index"`
	UpdatedAt   time.Time `gorm:"column:updated_at"`
}

// TableName specifies the table name for GORM
func (ScoreRow) TableName() string {
	return "flight_scores"
}

func newScoreRow(s domain.ScoredFlight) ScoreRow {
	row := ScoreRow{
		FlightKey:           s.Key(),
		FlightNumber:        s.Flight.FlightNumber,
		BundleID:            s.BundleID,
		Recommendation:      s.Recommendation,
		RiskFactors:         s.RiskFactors,
		PrimaryReason:       string(s.Analysis.PrimaryReason),
		PrimaryPercentage:   s.Analysis.PrimaryPercentage,
		SecondaryPercentage: s.Analysis.SecondaryPercentage,
		Confidence:          s.Analysis.Confidence,
		Breakdown:           make(map[string]float64, len(s.Analysis.DetailedBreakdown)),
		ProcessedAt:         s.ProcessedAt,
	}
	if s.Analysis.SecondaryReason != nil {
		row.SecondaryReason = string(*s.Analysis.SecondaryReason)
	}
	for reason, pct := range s.Analysis.DetailedBreakdown {
		row.Breakdown[string(reason)] = pct
	}
	if p := s.Prediction; p != nil {
		row.ModelUsed = p.ModelUsed
		row.PredictedDelayMinutes = domain.Float(p.PredictedDelayMinutes)
		row.ConfidenceInterval = domain.Float(p.ConfidenceInterval)
		row.PredictionQuality = string(p.PredictionQuality)
	}
	return row
}
