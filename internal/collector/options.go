package collector

import (
	"time"

	"codeberg.org/mutker/thermonode/internal/logger"
	"codeberg.org/mutker/thermonode/internal/metrics"
)

// Option configures a Collector.
type Option func(*Collector)

// WithClock replaces the wall clock used for eviction and reports.
func WithClock(now func() time.Time) Option {
	return func(c *Collector) {
		c.now = now
	}
}

func WithLogger(log logger.Logger) Option {
	return func(c *Collector) {
		c.logger = log
	}
}

func WithInstruments(ins *metrics.Instruments) Option {
	return func(c *Collector) {
		c.instruments = ins
	}
}

func WithRecorder(rec metrics.Recorder) Option {
	return func(c *Collector) {
		c.recorder = rec
	}
}

// WithInboxSize sets how many inbound messages may queue while the loop is
// busy with a tick.
func WithInboxSize(n int) Option {
	return func(c *Collector) {
		c.inboxSize = n
	}
}
