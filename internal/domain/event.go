package domain

import (
	"context"
	"fmt"
	"time"
)

// RawEvent represents an unprocessed message from the source topic.
type RawEvent struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// ParseRawEvent deserializes a RawEvent's value into a FlightRecord. When the
// payload carries neither a flight date nor a scheduled departure, the flight
// date is taken from the message timestamp.
func ParseRawEvent(raw RawEvent) (FlightRecord, error) {
	rec, err := ParseFlightRecord(raw.Value)
	if err != nil {
		return FlightRecord{}, fmt.Errorf("parse raw event: %w", err)
	}
	if rec.FlightDate == nil && rec.ScheduledDeparture == nil && !raw.Timestamp.IsZero() {
		ts := raw.Timestamp.UTC()
		day := time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
		rec.FlightDate = &day
	}
	return rec, nil
}
