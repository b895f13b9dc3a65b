package domain

import (
	"math"
	"sort"
)

// Confidence never exceeds this ceiling.
const maxConfidence = 0.95

// Context defaults used when a record does not carry the value.
const (
	defaultSeasonalFactor = 1.0
	defaultRouteOnTime    = 0.8
)

// DelayAnalysis is the cause attribution for one flight.
type DelayAnalysis struct {
	PrimaryReason       DelayReason             `json:"primary_reason"`
	PrimaryPercentage   float64                 `json:"primary_percentage"`
	SecondaryReason     *DelayReason            `json:"secondary_reason,omitempty"`
	SecondaryPercentage float64                 `json:"secondary_percentage"`
	Confidence          float64                 `json:"confidence"`
	DetailedBreakdown   map[DelayReason]float64 `json:"detailed_breakdown"`
}

// DelayBreakdown holds delay minutes per attributed cause. Operational is the
// non-negative residual of the total after the named causes.
type DelayBreakdown struct {
	Total       float64
	Weather     float64
	AirTraffic  float64
	Security    float64
	Mechanical  float64
	Crew        float64
	Operational float64
}

// Breakdown builds the per-cause minutes for rec. Negative or absent values
// count as zero.
func Breakdown(rec FlightRecord) DelayBreakdown {
	b := DelayBreakdown{
		Total:      nonNegative(rec.DelayMinutes),
		Weather:    nonNegative(rec.WeatherDelayMinutes),
		AirTraffic: nonNegative(rec.AirTrafficDelayMinutes),
		Security:   nonNegative(rec.SecurityDelayMinutes),
		Mechanical: nonNegative(rec.MechanicalDelayMinutes),
		Crew:       nonNegative(rec.CrewDelayMinutes),
	}
	b.Operational = math.Max(0, b.Total-b.named())
	return b
}

func (b DelayBreakdown) named() float64 {
	return b.Weather + b.AirTraffic + b.Security + b.Mechanical + b.Crew
}

// Percentages returns each attributed cause's share of the total delay. When
// the named causes add up to more than the total, shares are taken against
// the named sum so that no share exceeds 100 and all shares sum to 100.
func (b DelayBreakdown) Percentages() map[DelayReason]float64 {
	out := make(map[DelayReason]float64, len(AttributedReasons))
	for _, r := range AttributedReasons {
		out[r] = 0
	}
	denom := math.Max(b.Total, b.named())
	if b.Total <= 0 || denom <= 0 {
		return out
	}
	out[ReasonWeather] = b.Weather / denom * 100
	out[ReasonAirTraffic] = b.AirTraffic / denom * 100
	out[ReasonSecurity] = b.Security / denom * 100
	out[ReasonMechanical] = b.Mechanical / denom * 100
	out[ReasonCrew] = b.Crew / denom * 100
	out[ReasonOperational] = b.Operational / denom * 100
	return out
}

type share struct {
	reason DelayReason
	pct    float64
}

// Analyze attributes a flight's delay to its causes and scores how clear the
// attribution is.
func Analyze(rec FlightRecord) DelayAnalysis {
	b := Breakdown(rec)
	pcts := b.Percentages()

	if b.Total <= 0 {
		return DelayAnalysis{
			PrimaryReason:     ReasonUnknown,
			DetailedBreakdown: pcts,
		}
	}

	ranked := rank(pcts)
	a := DelayAnalysis{
		PrimaryReason:     ranked[0].reason,
		PrimaryPercentage: ranked[0].pct,
		DetailedBreakdown: pcts,
	}
	if ranked[1].pct > 0 {
		second := ranked[1].reason
		a.SecondaryReason = &second
		a.SecondaryPercentage = ranked[1].pct
	}

	a.Confidence = attributionConfidence(pcts, a.PrimaryPercentage, a.SecondaryPercentage)
	applyContext(&a, rec)
	return a
}

// rank orders the shares descending, keeping AttributedReasons order on ties.
func rank(pcts map[DelayReason]float64) []share {
	ranked := make([]share, 0, len(AttributedReasons))
	for _, r := range AttributedReasons {
		ranked = append(ranked, share{reason: r, pct: pcts[r]})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].pct > ranked[j].pct
	})
	return ranked
}

// BaseConfidence maps the primary cause's share to a starting confidence.
func BaseConfidence(primaryPct float64) float64 {
	switch {
	case primaryPct >= 70:
		return 0.9
	case primaryPct >= 50:
		return 0.8
	case primaryPct >= 30:
		return 0.6
	default:
		return 0.4
	}
}

func attributionConfidence(pcts map[DelayReason]float64, primaryPct, secondaryPct float64) float64 {
	confidence := BaseConfidence(primaryPct)

	// Close runner-up makes the attribution ambiguous.
	if secondaryPct > 0 && primaryPct-secondaryPct < 10 {
		confidence *= 0.7
	}

	if primaryPct > 0 {
		supporting := 0
		for _, p := range pcts {
			if p > 5 {
				supporting++
			}
		}
		if supporting >= 2 {
			confidence = clampConfidence(confidence * 1.1)
		}
	}
	return clampConfidence(confidence)
}

// applyContext adjusts the primary reason and confidence using the operating
// conditions carried on the record.
func applyContext(a *DelayAnalysis, rec FlightRecord) {
	switch a.PrimaryReason {
	case ReasonWeather:
		risk := valueOr(rec.CurrentWeatherDelayRisk, 0)
		if risk > 0.3 {
			a.Confidence = clampConfidence(a.Confidence * 1.2)
		} else if risk < 0.1 {
			a.Confidence = clampConfidence(a.Confidence * 0.8)
			if a.DetailedBreakdown[ReasonAirTraffic] > 20 {
				reassignPrimary(a, ReasonAirTraffic)
				a.Confidence = clampConfidence(a.Confidence * 1.1)
			}
		}
	case ReasonAirTraffic:
		risk := valueOr(rec.CurrentAirTrafficDelayRisk, 0)
		congestion := valueOr(rec.CurrentAirportCongestionLevel, 0)
		if risk > 0.4 || congestion > 0.7 {
			a.Confidence = clampConfidence(a.Confidence * 1.2)
		} else if risk < 0.1 && congestion < 0.3 {
			a.Confidence = clampConfidence(a.Confidence * 0.7)
		}
	}

	if rec.ScheduledDeparture != nil && a.PrimaryReason == ReasonAirTraffic {
		switch hour := rec.ScheduledDeparture.Hour(); {
		case hour >= 7 && hour <= 9, hour >= 17 && hour <= 19:
			a.Confidence = clampConfidence(a.Confidence * 1.1)
		case hour >= 22, hour <= 5:
			a.Confidence = clampConfidence(a.Confidence * 0.8)
		}
	}

	if valueOr(rec.SeasonalDelayFactor, defaultSeasonalFactor) > 1.2 && a.PrimaryReason == ReasonWeather {
		a.Confidence = clampConfidence(a.Confidence * 1.1)
	}

	if valueOr(rec.RouteOnTimePercentage, defaultRouteOnTime) < 0.7 && a.PrimaryReason == ReasonOperational {
		a.Confidence = clampConfidence(a.Confidence * 1.1)
	}
}

// reassignPrimary promotes r to primary. The displaced primary becomes the
// secondary, and each reason keeps its own share, so PrimaryPercentage
// always equals DetailedBreakdown[PrimaryReason]. This deliberately differs
// from relabelling the primary while keeping the former primary's share.
func reassignPrimary(a *DelayAnalysis, r DelayReason) {
	former := a.PrimaryReason
	a.PrimaryReason = r
	a.PrimaryPercentage = a.DetailedBreakdown[r]
	a.SecondaryReason = &former
	a.SecondaryPercentage = a.DetailedBreakdown[former]
}

func clampConfidence(c float64) float64 {
	return math.Max(0, math.Min(c, maxConfidence))
}

func nonNegative(p *float64) float64 {
	return math.Max(0, valueOr(p, 0))
}

// Summary aggregates analyses over a batch of flights.
type Summary struct {
	TotalFlights      int                     `json:"total_flights"`
	TotalDelays       int                     `json:"total_delays"`
	DelayPercentage   float64                 `json:"delay_percentage"`
	ReasonCounts      map[DelayReason]int     `json:"reason_counts"`
	ReasonPercentages map[DelayReason]float64 `json:"reason_percentages"`
	MostCommonReason  DelayReason             `json:"most_common_reason"`
	Analyses          []DelayAnalysis         `json:"individual_analyses"`
}

// AnalyzeMany analyzes each record and aggregates primary reasons across the
// batch. Ties for the most common reason go to the reason seen first.
func AnalyzeMany(recs []FlightRecord) Summary {
	s := Summary{
		ReasonCounts:      make(map[DelayReason]int),
		ReasonPercentages: make(map[DelayReason]float64),
		MostCommonReason:  ReasonUnknown,
		Analyses:          make([]DelayAnalysis, 0, len(recs)),
	}
	if len(recs) == 0 {
		return s
	}

	var order []DelayReason
	for _, rec := range recs {
		a := Analyze(rec)
		s.Analyses = append(s.Analyses, a)
		if _, seen := s.ReasonCounts[a.PrimaryReason]; !seen {
			order = append(order, a.PrimaryReason)
		}
		s.ReasonCounts[a.PrimaryReason]++
		if a.PrimaryPercentage > 0 {
			s.TotalDelays++
		}
	}

	s.TotalFlights = len(recs)
	s.DelayPercentage = float64(s.TotalDelays) / float64(s.TotalFlights) * 100

	best := 0
	for _, r := range order {
		n := s.ReasonCounts[r]
		s.ReasonPercentages[r] = float64(n) / float64(s.TotalFlights) * 100
		if n > best {
			best = n
			s.MostCommonReason = r
		}
	}
	return s
}
