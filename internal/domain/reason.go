package domain

// DelayReason names a delay cause.
type DelayReason string

const (
	ReasonWeather     DelayReason = "WEATHER"
	ReasonAirTraffic  DelayReason = "AIR_TRAFFIC"
	ReasonSecurity    DelayReason = "SECURITY"
	ReasonMechanical  DelayReason = "MECHANICAL"
	ReasonCrew        DelayReason = "CREW"
	ReasonOperational DelayReason = "OPERATIONAL"
	ReasonPassenger   DelayReason = "PASSENGER"
	ReasonATC         DelayReason = "ATC"
	ReasonGate        DelayReason = "GATE"
	ReasonBaggage     DelayReason = "BAGGAGE"
	ReasonFuel        DelayReason = "FUEL"
	ReasonUnknown     DelayReason = "UNKNOWN"
)

// AttributedReasons are the causes the analyzer assigns shares to, in the
// order used to break ties.
var AttributedReasons = []DelayReason{
	ReasonWeather,
	ReasonAirTraffic,
	ReasonSecurity,
	ReasonMechanical,
	ReasonCrew,
	ReasonOperational,
}

type reasonInfo struct {
	description string
	icon        string
	color       string
}

var reasonTable = map[DelayReason]reasonInfo{
	ReasonWeather:     {"Weather conditions (rain, snow, fog, storms)", "🌧️", "#3B82F6"},
	ReasonAirTraffic:  {"Air traffic congestion and delays", "✈️", "#F59E0B"},
	ReasonSecurity:    {"Security screening delays", "🔒", "#EF4444"},
	ReasonMechanical:  {"Aircraft mechanical issues", "🔧", "#8B5CF6"},
	ReasonCrew:        {"Crew-related delays (scheduling, availability)", "👥", "#10B981"},
	ReasonOperational: {"General operational delays", "⚙️", "#6B7280"},
	ReasonPassenger:   {"Passenger-related delays", "👤", "#F97316"},
	ReasonATC:         {"Air Traffic Control delays", "🎯", "#06B6D4"},
	ReasonGate:        {"Gate availability issues", "🚪", "#84CC16"},
	ReasonBaggage:     {"Baggage handling delays", "🎒", "#F59E0B"},
	ReasonFuel:        {"Fuel-related delays", "⛽", "#DC2626"},
	ReasonUnknown:     {"Unknown or unspecified delay", "❓", "#9CA3AF"},
}

// Description returns a human-readable description of the reason.
func (r DelayReason) Description() string {
	if info, ok := reasonTable[r]; ok {
		return info.description
	}
	return "Unknown delay reason"
}

// Icon returns a display glyph for the reason.
func (r DelayReason) Icon() string {
	if info, ok := reasonTable[r]; ok {
		return info.icon
	}
	return "❓"
}

// Color returns a hex display color for the reason.
func (r DelayReason) Color() string {
	if info, ok := reasonTable[r]; ok {
		return info.color
	}
	return "#9CA3AF"
}

// Valid reports whether r is one of the known reasons.
func (r DelayReason) Valid() bool {
	_, ok := reasonTable[r]
	return ok
}
