package synth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlights_Deterministic(t *testing.T) {
	a := New(7).Flights(50)
	b := New(7).Flights(50)
	assert.Equal(t, a, b)

	c := New(8).Flights(50)
	assert.NotEqual(t, a, c)
}

func TestFlights_Shape(t *testing.T) {
	flights := New(42).Flights(200)
	require.Len(t, flights, 200)

	for i, f := range flights {
		require.NotNil(t, f.DelayMinutes, "flight %d", i)
		assert.GreaterOrEqual(t, *f.DelayMinutes, 0.0)
		assert.LessOrEqual(t, *f.DelayMinutes, float64(MaxDelayMinutes))
		assert.NotEqual(t, f.Origin, f.Destination)
		assert.Regexp(t, `^[A-E]\d{1,2}$`, f.Gate)

		require.NotNil(t, f.ScheduledDeparture)
		require.NotNil(t, f.ScheduledArrival)
		mins := f.ScheduledArrival.Sub(*f.ScheduledDeparture).Minutes()
		assert.GreaterOrEqual(t, mins, 119.9)
		assert.LessOrEqual(t, mins, 360.1)

		require.NotNil(t, f.SeatsAvailable)
		require.NotNil(t, f.TotalSeats)
		assert.Less(t, *f.SeatsAvailable, *f.TotalSeats/4)

		named := *f.WeatherDelayMinutes + *f.AirTrafficDelayMinutes + *f.SecurityDelayMinutes +
			*f.MechanicalDelayMinutes + *f.CrewDelayMinutes
		assert.LessOrEqual(t, named, *f.DelayMinutes+1e-9, "flight %d", i)
	}
}

func TestFlights_SpreadOverDays(t *testing.T) {
	flights := New(1).Flights(41)
	first := flights[0].FlightDate
	last := flights[40].FlightDate
	require.NotNil(t, first)
	require.NotNil(t, last)
	assert.Equal(t, 2, int(last.Sub(*first).Hours()/24))
}
