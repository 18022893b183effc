package publisher

import (
	"context"
	"sync"
	"testing"
	"time"

	"codeberg.org/mutker/thermonode/internal/errors"
	"codeberg.org/mutker/thermonode/internal/telemetry"
	"codeberg.org/mutker/thermonode/internal/transport"
	"codeberg.org/mutker/thermonode/internal/transport/transporttest"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSensor struct {
	mu   sync.Mutex
	temp float64
	err  error
}

func (f *fakeSensor) Temperature() (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.temp, f.err
}

func (f *fakeSensor) Close() error { return nil }

func fixedClock(sec int64) func() time.Time {
	return func() time.Time { return time.Unix(sec, 0) }
}

func connected(t *testing.T) *transporttest.Memory {
	t.Helper()
	mem := transporttest.NewMemory()
	require.NoError(t, mem.Connect(context.Background()))
	return mem
}

func TestNewAppliesDefaultInterval(t *testing.T) {
	p := New(Config{PublisherID: "pico1", Topic: "temp/pico"}, transporttest.NewMemory(), &fakeSensor{})
	assert.Equal(t, DefaultInterval, p.cfg.Interval)
}

func TestTickPublishesDecodableRecord(t *testing.T) {
	mem := connected(t)
	p := New(
		Config{PublisherID: "pico1", Topic: "temp/pico"},
		mem,
		&fakeSensor{temp: 23.5},
		WithClock(fixedClock(1700000000)),
	)

	require.NoError(t, p.tick(context.Background()))

	msgs := mem.Published()
	require.Len(t, msgs, 1)
	assert.Equal(t, "temp/pico", msgs[0].Topic)

	rec, err := telemetry.Decode(msgs[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, telemetry.Record{PublisherID: "pico1", Temperature: 23.5, Timestamp: 1700000000}, rec)
	assert.InDelta(t, 1.0, testutil.ToFloat64(p.instruments.Published), 0)
}

func TestTickSkipsOnSensorError(t *testing.T) {
	mem := connected(t)
	p := New(
		Config{PublisherID: "pico1", Topic: "temp/pico"},
		mem,
		&fakeSensor{err: errors.New().New(errors.ErrSensorRead)},
	)

	err := p.tick(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrSensorRead))
	assert.Empty(t, mem.Published())
	assert.InDelta(t, 1.0, testutil.ToFloat64(p.instruments.SensorErrors), 0)
}

func TestTickReportsPublishError(t *testing.T) {
	mem := connected(t)
	mem.PublishErr = errors.New().New(transport.ErrPublish)
	p := New(Config{PublisherID: "pico1", Topic: "temp/pico"}, mem, &fakeSensor{temp: 20})

	err := p.tick(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrPublish))
	assert.InDelta(t, 1.0, testutil.ToFloat64(p.instruments.PublishErrors), 0)
}

func TestRunPublishesUntilCancelled(t *testing.T) {
	mem := transporttest.NewMemory()
	s := &fakeSensor{temp: 31}
	p := New(Config{PublisherID: "pico1", Topic: "temp/pico", Interval: 5 * time.Millisecond}, mem, s)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool { return len(mem.Published()) >= 3 }, time.Second, 5*time.Millisecond)

	// A failing sensor skips ticks without stopping the loop.
	s.mu.Lock()
	s.err = errors.New().New(errors.ErrSensorRead)
	s.mu.Unlock()
	require.Eventually(t, func() bool { return testutil.ToFloat64(p.instruments.SensorErrors) >= 1 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}

	for _, msg := range mem.Published() {
		rec, err := telemetry.Decode(msg.Payload)
		require.NoError(t, err)
		assert.Equal(t, "pico1", rec.PublisherID)
	}
}

func TestRunConnectFailure(t *testing.T) {
	mem := transporttest.NewMemory()
	mem.ConnectErr = errors.New().New(transport.ErrConnectFailed)
	p := New(Config{PublisherID: "pico1", Topic: "temp/pico"}, mem, &fakeSensor{})

	err := p.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrConnect))
}
