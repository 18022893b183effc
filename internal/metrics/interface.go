// Package metrics records collector decisions: an optional SQLite log of
// report ticks and Prometheus instruments for live state.
package metrics

import (
	"context"
	"time"
)

// Recorder persists collector reports
type Recorder interface {
	Record(ctx context.Context, report *Report) error
	Close() error
}

// Repository defines the interface for report storage
type Repository interface {
	Record(report *Report) error
	Close() error
}

// Report is the outcome of one collector report tick
type Report struct {
	Timestamp  time.Time
	Mean       float64
	Count      int
	ActuatorOn bool
	// Evicted is the number of publishers evicted since the previous report.
	Evicted int
}
