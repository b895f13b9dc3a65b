// Package domain models flight records and the rule-based parts of delay
// scoring: cause attribution, risk buckets, and booking advice.
//
// # Flight Records
//
// Upstream producers publish one JSON object per flight. Every field is
// optional. Timestamps may be RFC 3339 or naive local layouts
// ("2024-01-15T08:30:00", "2024-01-15 08:30:00"), which are read as UTC.
// Numbers may be JSON numbers or numeric strings. Values that cannot be
// parsed are dropped, never rejected, so a record with only a flight number
// is still valid input.
//
// # Delay Attribution
//
// Total delay is split across five named causes (weather, air traffic,
// security, mechanical, crew) plus an operational residual:
//
//	operational = max(0, total - weather - air_traffic - security - mechanical - crew)
//
// Each cause's share is a percentage of the total. If the named causes add up
// to more than the total, shares are taken against the named sum instead so
// that they still sum to 100.
//
// Confidence starts from the primary share:
//
//	>= 70%: 0.9 | >= 50%: 0.8 | >= 30%: 0.6 | otherwise 0.4
//
// It drops by 30% when the runner-up is within 10 points, rises by 10% when
// at least two causes exceed 5%, and is then adjusted by operating context
// (weather and air-traffic risk, airport congestion, departure hour, seasonal
// factor, route on-time rate). A weather attribution under low weather risk
// with a large air-traffic share is reassigned to air traffic. Confidence is
// capped at 0.95 after every step.
//
// A flight with no delay has primary reason UNKNOWN and confidence 0.
//
// # Risk Buckets
//
// Predicted delays map to risk with inclusive upper bounds:
//
//	<= 15 min: LOW_RISK | <= 60 min: MEDIUM_RISK | otherwise HIGH_RISK
package domain
