// Package publisher runs the publisher role: sample the sensor on a fixed
// interval and publish each reading as a telemetry record.
package publisher

import (
	"context"
	"time"

	"codeberg.org/mutker/thermonode/internal/errors"
	"codeberg.org/mutker/thermonode/internal/logger"
	"codeberg.org/mutker/thermonode/internal/metrics"
	"codeberg.org/mutker/thermonode/internal/sensor"
	"codeberg.org/mutker/thermonode/internal/telemetry"
	"codeberg.org/mutker/thermonode/internal/transport"
)

const DefaultInterval = 2 * time.Second

type Config struct {
	PublisherID string
	Topic       string
	Interval    time.Duration
}

type Option func(*Publisher)

func WithClock(now func() time.Time) Option {
	return func(p *Publisher) {
		p.now = now
	}
}

func WithLogger(log logger.Logger) Option {
	return func(p *Publisher) {
		p.logger = log
	}
}

func WithInstruments(ins *metrics.Instruments) Option {
	return func(p *Publisher) {
		p.instruments = ins
	}
}

type Publisher struct {
	cfg         Config
	transport   transport.Transport
	sensor      sensor.Sensor
	logger      logger.Logger
	now         func() time.Time
	instruments *metrics.Instruments
}

func New(cfg Config, tr transport.Transport, s sensor.Sensor, opts ...Option) *Publisher {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}

	p := &Publisher{
		cfg:       cfg,
		transport: tr,
		sensor:    s,
		logger:    logger.Nop(),
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.instruments == nil {
		p.instruments = metrics.NewInstruments(nil)
	}

	return p
}

// Run connects and publishes one reading per interval until ctx is done.
// Only a connect failure is returned.
func (p *Publisher) Run(ctx context.Context) error {
	if err := p.transport.Connect(ctx); err != nil {
		return errors.New().Wrap(errors.ErrConnect, err)
	}

	p.logger.Info().
		Str("publisher_id", p.cfg.PublisherID).
		Str("topic", p.cfg.Topic).
		Dur("interval", p.cfg.Interval).
		Msg("Publisher running")

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := p.tick(ctx); err != nil {
				p.logger.Warn().Err(err).Msg("Skipped publish")
			}
		}
	}
}

// tick samples and publishes a single reading.
func (p *Publisher) tick(ctx context.Context) error {
	errFactory := errors.New()

	temp, err := p.sensor.Temperature()
	if err != nil {
		p.instruments.SensorErrors.Inc()
		return errFactory.Wrap(errors.ErrSensorRead, err)
	}

	rec := telemetry.NewRecord(p.cfg.PublisherID, temp, p.now())
	if err := p.transport.Publish(ctx, p.cfg.Topic, telemetry.Encode(rec)); err != nil {
		p.instruments.PublishErrors.Inc()
		return errFactory.Wrap(errors.ErrPublish, err)
	}

	p.instruments.Published.Inc()
	p.logger.Info().
		Float64("temperature", rec.Temperature).
		Int64("timestamp", rec.Timestamp).
		Msg("Published temperature")

	return nil
}
