package metrics

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"codeberg.org/mutker/thermonode/internal/errors"
	"codeberg.org/mutker/thermonode/internal/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.NoError(t, Config{Enabled: false}.Validate())

	err := Config{Enabled: true}.Validate()
	assert.True(t, errors.HasCode(err, ErrInvalidDBPath))

	err = Config{BatchSize: -1}.Validate()
	assert.True(t, errors.HasCode(err, ErrInvalidConfig))
}

func TestDisabledServiceIsNoop(t *testing.T) {
	rec, err := NewService(Config{Enabled: false}, logger.Nop())
	require.NoError(t, err)
	assert.IsType(t, &noopRecorder{}, rec)

	assert.NoError(t, rec.Record(context.Background(), &Report{}))
	assert.NoError(t, rec.Close())
}

func TestServiceRejectsNilReport(t *testing.T) {
	s := &service{repo: nil}

	err := s.Record(context.Background(), nil)
	assert.True(t, errors.HasCode(err, ErrInvalidReport))
}

func TestRepositoryPersistsReports(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	cfg := Config{DBPath: path, BatchSize: 2, BatchTimeout: 0, Enabled: true}

	rec, err := NewService(cfg, logger.Nop())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, rec.Record(ctx, &Report{Timestamp: time.Unix(1001, 0), Mean: 32.0, Count: 1, ActuatorOn: true}))
	require.NoError(t, rec.Record(ctx, &Report{Timestamp: time.Unix(1006, 0), Mean: 32.0, Count: 1, ActuatorOn: true}))
	require.NoError(t, rec.Record(ctx, &Report{Timestamp: time.Unix(1705, 0), Mean: 0, Count: 0, Evicted: 1}))
	require.NoError(t, rec.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	version, err := GetSchemaVersion(db)
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, version)

	var count, on int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*), SUM(actuator_on) FROM reports`).Scan(&count, &on))
	assert.Equal(t, 3, count)
	assert.Equal(t, 2, on)

	var evicted int
	require.NoError(t, db.QueryRow(`SELECT evicted FROM reports WHERE timestamp = 1705`).Scan(&evicted))
	assert.Equal(t, 1, evicted)
}

func TestInstruments(t *testing.T) {
	reg := prometheus.NewRegistry()
	ins := NewInstruments(reg)

	ins.ObserveReport(&Report{Mean: 31.0, Count: 2, ActuatorOn: true})
	ins.Messages.WithLabelValues(StatusMalformed).Inc()
	ins.Evictions.Add(2)

	assert.InDelta(t, 2.0, testutil.ToFloat64(ins.Publishers), 1e-9)
	assert.InDelta(t, 31.0, testutil.ToFloat64(ins.MeanTemperature), 1e-9)
	assert.InDelta(t, 1.0, testutil.ToFloat64(ins.ActuatorOn), 1e-9)
	assert.InDelta(t, 1.0, testutil.ToFloat64(ins.Messages.WithLabelValues(StatusMalformed)), 1e-9)
	assert.InDelta(t, 2.0, testutil.ToFloat64(ins.Evictions), 1e-9)

	count, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Positive(t, count)
}
