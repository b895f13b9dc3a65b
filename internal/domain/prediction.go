package domain

import (
	"math"
	"time"
)

// RiskCategory buckets a predicted delay.
type RiskCategory string

const (
	RiskLow    RiskCategory = "LOW_RISK"
	RiskMedium RiskCategory = "MEDIUM_RISK"
	RiskHigh   RiskCategory = "HIGH_RISK"
)

// Risk thresholds in minutes, inclusive upper bounds.
const (
	lowRiskMaxMinutes    = 15
	mediumRiskMaxMinutes = 60
)

// DefaultConfidenceInterval is the half-width used when the model carries no
// test error.
const DefaultConfidenceInterval = 10.0

// PredictionResult is the delay estimate for one flight.
type PredictionResult struct {
	PredictedDelayMinutes float64      `json:"predicted_delay_minutes"`
	ConfidenceInterval    float64      `json:"confidence_interval"`
	ModelUsed             string       `json:"model_used"`
	PredictionQuality     RiskCategory `json:"prediction_quality"`
}

// CategorizeRisk maps a predicted delay to its risk bucket.
func CategorizeRisk(delayMinutes float64) RiskCategory {
	switch {
	case delayMinutes <= lowRiskMaxMinutes:
		return RiskLow
	case delayMinutes <= mediumRiskMaxMinutes:
		return RiskMedium
	default:
		return RiskHigh
	}
}

// ConfidenceInterval returns the 95% half-width for a model's test MSE.
// Pass ok=false when the model has no evaluation metrics.
func ConfidenceInterval(testMSE float64, ok bool) float64 {
	if !ok || math.IsNaN(testMSE) || testMSE < 0 {
		return DefaultConfidenceInterval
	}
	return 1.96 * math.Sqrt(testMSE)
}

// Recommend turns a prediction into booking advice.
func Recommend(p PredictionResult, rec FlightRecord) string {
	switch p.PredictionQuality {
	case RiskLow:
		return "RECOMMENDED - Low delay risk"
	case RiskMedium:
		if rec.SeatsAvailable != nil && *rec.SeatsAvailable > 50 {
			return "CONDITIONAL - Medium delay risk, but good availability"
		}
		return "CAUTION - Medium delay risk with limited seats"
	default:
		return "NOT RECOMMENDED - High delay risk"
	}
}

var (
	highDelayAirlines = map[string]bool{
		"United Airlines":   true,
		"American Airlines": true,
	}
	busyRoutes = map[[2]string]bool{
		{"LAX", "JFK"}: true,
		{"ORD", "LAX"}: true,
		{"ATL", "LAX"}: true,
	}
)

// RiskFactors lists the scheduling conditions that tend to raise delay risk
// for rec.
func RiskFactors(rec FlightRecord) []string {
	var factors []string

	if rec.ScheduledDeparture != nil {
		hour := rec.ScheduledDeparture.Hour()
		switch {
		case hour >= 6 && hour <= 9, hour >= 17 && hour <= 20:
			factors = append(factors, "Peak hour departure")
		case hour >= 22, hour <= 5:
			factors = append(factors, "Off-peak departure")
		}
	}
	if highDelayAirlines[rec.Airline] {
		factors = append(factors, "Airline with higher delay rates")
	}
	if busyRoutes[[2]string{rec.Origin, rec.Destination}] {
		factors = append(factors, "Busy route with higher congestion")
	}
	seats := 0
	if rec.SeatsAvailable != nil {
		seats = *rec.SeatsAvailable
	}
	if seats < 20 {
		factors = append(factors, "Limited seat availability")
	}

	if len(factors) == 0 {
		return []string{"No significant risk factors identified"}
	}
	return factors
}

// ScoredFlight is the pipeline output for one flight: the input record with
// its prediction and delay analysis.
type ScoredFlight struct {
	Flight         FlightRecord      `json:"flight"`
	Prediction     *PredictionResult `json:"prediction,omitempty"`
	Recommendation string            `json:"recommendation,omitempty"`
	RiskFactors    []string          `json:"risk_factors,omitempty"`
	Analysis       DelayAnalysis     `json:"analysis"`
	BundleID       string            `json:"bundle_id,omitempty"`
	ProcessedAt    time.Time         `json:"processed_at"`
}

// NewScoredFlight assembles a ScoredFlight stamped with the package clock.
// A nil prediction means no model was available; the analysis is still set.
func NewScoredFlight(rec FlightRecord, p *PredictionResult, bundleID string) ScoredFlight {
	s := ScoredFlight{
		Flight:      rec,
		Prediction:  p,
		Analysis:    Analyze(rec),
		BundleID:    bundleID,
		ProcessedAt: clock.Now().UTC(),
	}
	if p != nil {
		s.Recommendation = Recommend(*p, rec)
		s.RiskFactors = RiskFactors(rec)
	}
	return s
}

// Key identifies the flight for partitioning and upserts.
func (s ScoredFlight) Key() string {
	if s.Flight.FlightNumber == "" {
		return "unknown"
	}
	if s.Flight.FlightDate != nil {
		return s.Flight.FlightNumber + "-" + s.Flight.FlightDate.Format("2006-01-02")
	}
	if s.Flight.ScheduledDeparture != nil {
		return s.Flight.FlightNumber + "-" + s.Flight.ScheduledDeparture.Format("2006-01-02")
	}
	return s.Flight.FlightNumber
}
