// Package collector runs the collector role: it keeps the registry of
// publishers current from inbound telemetry, evicts silent publishers and
// drives the actuator from the mean temperature.
package collector

import (
	"context"
	"sync/atomic"
	"time"

	"codeberg.org/mutker/thermonode/internal/actuator"
	"codeberg.org/mutker/thermonode/internal/errors"
	"codeberg.org/mutker/thermonode/internal/logger"
	"codeberg.org/mutker/thermonode/internal/metrics"
	"codeberg.org/mutker/thermonode/internal/registry"
	"codeberg.org/mutker/thermonode/internal/telemetry"
	"codeberg.org/mutker/thermonode/internal/transport"
	"golang.org/x/time/rate"
)

const (
	DefaultTTL            = 600 * time.Second
	DefaultEvictInterval  = 10 * time.Second
	DefaultReportInterval = 5 * time.Second
	DefaultThreshold      = 30.0

	defaultInboxSize = 64
	// Decode failures are logged at warn level at most this often; the rest
	// go to debug.
	decodeWarnEvery = time.Second
	decodeWarnBurst = 5
)

type Config struct {
	Topic          string
	// TTL is measured against record timestamps, in whole seconds.
	TTL            time.Duration
	EvictInterval  time.Duration
	ReportInterval time.Duration
	// Threshold is compared with strict greater-than.
	Threshold      float64
	EvictOnReceive bool
}

type message struct {
	topic   string
	payload []byte
}

type Collector struct {
	cfg         Config
	transport   transport.Transport
	actuator    actuator.Actuator
	registry    *registry.Registry
	logger      logger.Logger
	now         func() time.Time
	instruments *metrics.Instruments
	recorder    metrics.Recorder
	limiter     *rate.Limiter
	inboxSize   int

	state   atomic.Int32
	// evicted counts evictions since the last report. Loop goroutine only.
	evicted int
}

func New(cfg Config, tr transport.Transport, act actuator.Actuator, opts ...Option) *Collector {
	if cfg.EvictInterval <= 0 {
		cfg.EvictInterval = DefaultEvictInterval
	}
	if cfg.ReportInterval <= 0 {
		cfg.ReportInterval = DefaultReportInterval
	}

	c := &Collector{
		cfg:       cfg,
		transport: tr,
		actuator:  act,
		registry:  registry.New(),
		logger:    logger.Nop(),
		now:       time.Now,
		limiter:   rate.NewLimiter(rate.Every(decodeWarnEvery), decodeWarnBurst),
		inboxSize: defaultInboxSize,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.instruments == nil {
		c.instruments = metrics.NewInstruments(nil)
	}
	if c.recorder == nil {
		c.recorder = metrics.Nop()
	}

	return c
}

// State returns the current lifecycle state.
func (c *Collector) State() State {
	return State(c.state.Load())
}

func (c *Collector) setState(s State) {
	c.state.Store(int32(s))
}

// Snapshot returns copies of the live registry entries.
func (c *Collector) Snapshot() []registry.Entry {
	return c.registry.Snapshot()
}

// Run connects, subscribes and then serves messages and ticks until ctx is
// done. Connect and subscribe failures are returned; everything after that
// is logged and survived.
func (c *Collector) Run(ctx context.Context) error {
	errFactory := errors.New()

	c.setState(StateDisconnected)

	if err := c.transport.Connect(ctx); err != nil {
		return errFactory.Wrap(errors.ErrConnect, err)
	}

	inbox := make(chan message, c.inboxSize)
	handler := func(topic string, payload []byte) {
		select {
		case inbox <- message{topic: topic, payload: payload}:
		case <-ctx.Done():
		}
	}

	if err := c.transport.Subscribe(c.cfg.Topic, handler); err != nil {
		return errFactory.Wrap(errors.ErrSubscribe, err)
	}
	c.setState(StateSubscribed)
	c.logger.Info().Str("topic", c.cfg.Topic).Msg("Subscribed to topic")

	evictTicker := time.NewTicker(c.cfg.EvictInterval)
	defer evictTicker.Stop()
	reportTicker := time.NewTicker(c.cfg.ReportInterval)
	defer reportTicker.Stop()

	c.setState(StateRunning)
	c.logger.Info().
		Dur("ttl", c.cfg.TTL).
		Dur("evict_interval", c.cfg.EvictInterval).
		Dur("report_interval", c.cfg.ReportInterval).
		Float64("threshold", c.cfg.Threshold).
		Msg("Collector running")

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-inbox:
			c.handleMessage(msg.topic, msg.payload)
		case <-evictTicker.C:
			c.evict()
		case <-reportTicker.C:
			c.report(ctx)
		}
	}
}

func (c *Collector) ttlSeconds() int64 {
	return int64(c.cfg.TTL / time.Second)
}

// handleMessage decodes one inbound message into the registry. Messages on
// other topics are ignored; undecodable ones are dropped.
func (c *Collector) handleMessage(topic string, payload []byte) {
	if topic != c.cfg.Topic {
		c.instruments.Messages.WithLabelValues(metrics.StatusIgnored).Inc()
		c.logger.Debug().Str("topic", topic).Msg("Ignored message on topic")
		return
	}

	rec, err := telemetry.Decode(payload)
	if err != nil {
		c.dropped(err, len(payload))
		return
	}

	c.registry.Upsert(rec)
	c.instruments.Messages.WithLabelValues(metrics.StatusAccepted).Inc()
	c.logger.Info().
		Str("publisher_id", rec.PublisherID).
		Float64("temperature", rec.Temperature).
		Int64("timestamp", rec.Timestamp).
		Msg("Temperature received")

	if c.cfg.EvictOnReceive {
		c.evict()
	}
}

func (c *Collector) dropped(err error, size int) {
	status := metrics.StatusMalformed
	if errors.HasCode(err, telemetry.ErrMissingField) {
		status = metrics.StatusMissingField
	}
	c.instruments.Messages.WithLabelValues(status).Inc()

	event := c.logger.Debug()
	if c.limiter.Allow() {
		event = c.logger.Warn()
	}
	event.Err(err).Int("bytes", size).Str("status", status).Msg("Dropped undecodable message")
}

// evict removes publishers whose last record is older than the TTL.
func (c *Collector) evict() []string {
	now := c.now().Unix()

	for id, age := range c.registry.Ages(now) {
		c.logger.Debug().Str("publisher_id", id).Int64("age", age).Msg("Checking publisher age")
	}

	evicted := c.registry.EvictStale(now, c.ttlSeconds())
	for _, id := range evicted {
		c.logger.Info().Str("publisher_id", id).Msg("Removed inactive publisher")
	}

	c.evicted += len(evicted)
	c.instruments.Evictions.Add(float64(len(evicted)))

	return evicted
}

// report computes the aggregate and drives the actuator. The output is
// re-evaluated on every call.
func (c *Collector) report(ctx context.Context) metrics.Report {
	now := c.now()
	agg := registry.Compute(c.registry.Snapshot())
	on := agg.Exceeds(c.cfg.Threshold)

	if err := c.actuator.Set(on); err != nil {
		c.logger.Error().Err(err).Bool("on", on).Msg("Failed to set actuator")
	}

	c.logger.Info().
		Int("publishers", agg.Count).
		Float64("average_temperature", agg.Mean).
		Bool("actuator_on", on).
		Msg("Current average temperature")

	report := metrics.Report{
		Timestamp:  now,
		Mean:       agg.Mean,
		Count:      agg.Count,
		ActuatorOn: on,
		Evicted:    c.evicted,
	}
	c.evicted = 0

	c.instruments.ObserveReport(&report)
	if err := c.recorder.Record(ctx, &report); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to record report")
	}

	return report
}
