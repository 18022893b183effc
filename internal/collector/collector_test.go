package collector

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"codeberg.org/mutker/thermonode/internal/errors"
	"codeberg.org/mutker/thermonode/internal/metrics"
	"codeberg.org/mutker/thermonode/internal/telemetry"
	"codeberg.org/mutker/thermonode/internal/transport"
	"codeberg.org/mutker/thermonode/internal/transport/transporttest"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const topic = "temp/pico"

type fakeActuator struct {
	mu   sync.Mutex
	sets []bool
	err  error
}

func (f *fakeActuator) Set(on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets = append(f.sets, on)
	return f.err
}

func (f *fakeActuator) last() (bool, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sets) == 0 {
		return false, false
	}
	return f.sets[len(f.sets)-1], true
}

type fakeRecorder struct {
	mu      sync.Mutex
	reports []metrics.Report
}

func (f *fakeRecorder) Record(_ context.Context, r *metrics.Report) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports = append(f.reports, *r)
	return nil
}

func (f *fakeRecorder) Close() error { return nil }

type clock struct {
	unix atomic.Int64
}

func (c *clock) set(sec int64)  { c.unix.Store(sec) }
func (c *clock) now() time.Time { return time.Unix(c.unix.Load(), 0) }

func config() Config {
	return Config{
		Topic:          topic,
		TTL:            DefaultTTL,
		EvictInterval:  DefaultEvictInterval,
		ReportInterval: DefaultReportInterval,
		Threshold:      DefaultThreshold,
	}
}

func payload(id string, temp float64, ts int64) []byte {
	return telemetry.Encode(telemetry.Record{PublisherID: id, Temperature: temp, Timestamp: ts})
}

func newTestCollector(t *testing.T, cfg Config) (*Collector, *fakeActuator, *clock) {
	t.Helper()
	clk := &clock{}
	act := &fakeActuator{}
	c := New(cfg, transporttest.NewMemory(), act, WithClock(clk.now))
	return c, act, clk
}

func TestNewAppliesDefaults(t *testing.T) {
	c := New(Config{Topic: topic}, transporttest.NewMemory(), &fakeActuator{})

	assert.Equal(t, DefaultEvictInterval, c.cfg.EvictInterval)
	assert.Equal(t, DefaultReportInterval, c.cfg.ReportInterval)
	assert.Equal(t, StateDisconnected, c.State())
	assert.Empty(t, c.Snapshot())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "disconnected", StateDisconnected.String())
	assert.Equal(t, "subscribed", StateSubscribed.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "unknown", State(42).String())
}

func TestSinglePublisherLifecycle(t *testing.T) {
	c, act, clk := newTestCollector(t, config())

	clk.set(1000)
	c.handleMessage(topic, payload("pico1", 32.0, 1000))

	entries := c.Snapshot()
	require.Len(t, entries, 1)
	assert.Equal(t, "pico1", entries[0].Record.PublisherID)
	assert.Equal(t, int64(1000), entries[0].LastSeen)

	clk.set(1001)
	report := c.report(context.Background())
	assert.InDelta(t, 32.0, report.Mean, 1e-9)
	assert.Equal(t, 1, report.Count)
	assert.True(t, report.ActuatorOn)
	on, ok := act.last()
	require.True(t, ok)
	assert.True(t, on)

	clk.set(1700)
	assert.Equal(t, []string{"pico1"}, c.evict())
	assert.Empty(t, c.Snapshot())

	report = c.report(context.Background())
	assert.Equal(t, 0, report.Count)
	assert.Zero(t, report.Mean)
	assert.False(t, report.ActuatorOn)
	assert.Equal(t, 1, report.Evicted)
	on, _ = act.last()
	assert.False(t, on)
}

func TestTTLBoundaryIsStrict(t *testing.T) {
	c, _, clk := newTestCollector(t, config())
	c.handleMessage(topic, payload("pico1", 25.0, 1000))

	clk.set(1600)
	assert.Empty(t, c.evict())
	assert.Len(t, c.Snapshot(), 1)

	clk.set(1601)
	assert.Equal(t, []string{"pico1"}, c.evict())
}

func TestMeanOverPublishers(t *testing.T) {
	c, act, clk := newTestCollector(t, config())
	clk.set(1000)

	c.handleMessage(topic, payload("a", 28.0, 1000))
	c.handleMessage(topic, payload("b", 34.0, 1000))

	report := c.report(context.Background())
	assert.InDelta(t, 31.0, report.Mean, 1e-9)
	assert.Equal(t, 2, report.Count)
	assert.True(t, report.ActuatorOn)
	on, _ := act.last()
	assert.True(t, on)
}

func TestThresholdIsStrict(t *testing.T) {
	c, _, clk := newTestCollector(t, config())
	clk.set(1000)

	c.handleMessage(topic, payload("a", 30.0, 1000))
	assert.False(t, c.report(context.Background()).ActuatorOn)
}

func TestReportReassertsActuatorEveryTick(t *testing.T) {
	c, act, clk := newTestCollector(t, config())
	clk.set(1000)

	c.report(context.Background())
	c.report(context.Background())

	act.mu.Lock()
	defer act.mu.Unlock()
	assert.Equal(t, []bool{false, false}, act.sets)
}

func TestLatestRecordWins(t *testing.T) {
	c, _, clk := newTestCollector(t, config())
	clk.set(1001)

	c.handleMessage(topic, payload("pico1", 20.0, 1000))
	c.handleMessage(topic, payload("pico1", 35.0, 1001))

	entries := c.Snapshot()
	require.Len(t, entries, 1)
	assert.InDelta(t, 35.0, entries[0].Record.Temperature, 1e-9)
	assert.Equal(t, int64(1001), entries[0].LastSeen)
}

func TestMalformedPayloadDropped(t *testing.T) {
	c, _, clk := newTestCollector(t, config())
	clk.set(1000)
	c.handleMessage(topic, payload("pico1", 25.0, 1000))

	c.handleMessage(topic, []byte{0x0a, 0x05, 'p'})
	c.handleMessage(topic, payload("", 25.0, 1000))

	entries := c.Snapshot()
	require.Len(t, entries, 1)
	assert.Equal(t, "pico1", entries[0].Record.PublisherID)

	assert.InDelta(t, 1.0, testutil.ToFloat64(c.instruments.Messages.WithLabelValues(metrics.StatusMalformed)), 0)
	assert.InDelta(t, 1.0, testutil.ToFloat64(c.instruments.Messages.WithLabelValues(metrics.StatusMissingField)), 0)
	assert.InDelta(t, 1.0, testutil.ToFloat64(c.instruments.Messages.WithLabelValues(metrics.StatusAccepted)), 0)
}

func TestOtherTopicIgnored(t *testing.T) {
	c, _, _ := newTestCollector(t, config())

	c.handleMessage("temp/other", payload("pico1", 25.0, 1000))

	assert.Empty(t, c.Snapshot())
	assert.InDelta(t, 1.0, testutil.ToFloat64(c.instruments.Messages.WithLabelValues(metrics.StatusIgnored)), 0)
}

func TestEvictOnReceive(t *testing.T) {
	cfg := config()
	cfg.EvictOnReceive = true
	c, _, clk := newTestCollector(t, cfg)

	clk.set(1000)
	c.handleMessage(topic, payload("pico1", 25.0, 1000))

	clk.set(2000)
	c.handleMessage(topic, payload("pico2", 26.0, 2000))

	entries := c.Snapshot()
	require.Len(t, entries, 1)
	assert.Equal(t, "pico2", entries[0].Record.PublisherID)
	assert.InDelta(t, 1.0, testutil.ToFloat64(c.instruments.Evictions), 0)
}

func TestEvictionWithoutReceive(t *testing.T) {
	c, _, clk := newTestCollector(t, config())

	clk.set(1000)
	c.handleMessage(topic, payload("pico1", 25.0, 1000))
	clk.set(2000)
	c.handleMessage(topic, payload("pico2", 26.0, 2000))

	assert.Len(t, c.Snapshot(), 2)
}

func TestReportRecorded(t *testing.T) {
	clk := &clock{}
	clk.set(1000)
	rec := &fakeRecorder{}
	c := New(config(), transporttest.NewMemory(), &fakeActuator{}, WithClock(clk.now), WithRecorder(rec))

	c.handleMessage(topic, payload("pico1", 32.0, 1000))
	c.report(context.Background())

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.reports, 1)
	assert.Equal(t, time.Unix(1000, 0), rec.reports[0].Timestamp)
	assert.True(t, rec.reports[0].ActuatorOn)
}

func TestActuatorErrorIsSurvived(t *testing.T) {
	clk := &clock{}
	act := &fakeActuator{err: errors.New().New(errors.ErrActuate)}
	c := New(config(), transporttest.NewMemory(), act, WithClock(clk.now))

	c.handleMessage(topic, payload("pico1", 32.0, 0))
	report := c.report(context.Background())
	assert.True(t, report.ActuatorOn)
}

func TestRun(t *testing.T) {
	mem := transporttest.NewMemory()
	act := &fakeActuator{}
	clk := &clock{}
	clk.set(1000)

	cfg := config()
	cfg.EvictInterval = 10 * time.Millisecond
	cfg.ReportInterval = 10 * time.Millisecond
	c := New(cfg, mem, act, WithClock(clk.now))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool { return c.State() == StateRunning }, time.Second, 5*time.Millisecond)
	assert.True(t, mem.Subscribed(topic))

	require.NoError(t, mem.Publish(ctx, topic, payload("pico1", 40.0, 1000)))
	require.Eventually(t, func() bool { return len(c.Snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		on, ok := act.last()
		return ok && on
	}, time.Second, 5*time.Millisecond)

	clk.set(1700)
	require.Eventually(t, func() bool { return len(c.Snapshot()) == 0 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		on, ok := act.last()
		return ok && !on
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunConnectFailure(t *testing.T) {
	mem := transporttest.NewMemory()
	mem.ConnectErr = errors.New().New(transport.ErrConnectFailed)
	c := New(config(), mem, &fakeActuator{})

	err := c.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrConnect))
	assert.Equal(t, StateDisconnected, c.State())
}
