// Package telemetry defines the telemetry record exchanged between nodes
// and its binary wire encoding.
package telemetry

import "time"

// Record is one decoded sensor reading. Records are values: the registry
// replaces them wholesale and never mutates one in place.
type Record struct {
	PublisherID string
	Temperature float64
	// Timestamp is the publisher's clock in epoch seconds.
	Timestamp int64
}

// NewRecord builds a record stamped with t.
func NewRecord(publisherID string, temperature float64, t time.Time) Record {
	return Record{
		PublisherID: publisherID,
		Temperature: temperature,
		Timestamp:   t.Unix(),
	}
}

// Time returns the record timestamp as a time.Time.
func (r Record) Time() time.Time {
	return time.Unix(r.Timestamp, 0)
}
