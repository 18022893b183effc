package sensor

import (
	"os"
	"path/filepath"
	"testing"

	"codeberg.org/mutker/thermonode/internal/errors"
	"codeberg.org/mutker/thermonode/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestADCToCelsius(t *testing.T) {
	// 0.706 V is 27 °C by definition of the transfer function.
	volts := 0.706
	raw := uint16(volts / 3.3 * 65536)
	assert.InDelta(t, 27.0, ADCToCelsius(raw), 0.05)

	// Lower voltage means hotter.
	assert.Greater(t, ADCToCelsius(raw-200), ADCToCelsius(raw))

	// Out-of-range electrical readings still convert.
	assert.InDelta(t, 27+0.706/0.001721, ADCToCelsius(0), 1e-9)
	assert.Less(t, ADCToCelsius(65535), -400.0)
}

func writeSample(t *testing.T, value string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "in_voltage4_raw")
	require.NoError(t, os.WriteFile(path, []byte(value), 0o600))

	return path
}

func TestADCSensorScalesToSixteenBits(t *testing.T) {
	path := writeSample(t, "876\n")

	s, err := New(Config{Kind: KindADC, ADCPath: path, ADCBits: 12}, logger.Nop())
	require.NoError(t, err)
	defer s.Close()

	raw, err := s.(*adcSensor).Raw()
	require.NoError(t, err)
	assert.Equal(t, uint16(876<<4), raw)

	temp, err := s.Temperature()
	require.NoError(t, err)
	assert.InDelta(t, ADCToCelsius(876<<4), temp, 1e-9)
}

func TestADCSensorErrors(t *testing.T) {
	_, err := New(Config{Kind: KindADC, ADCBits: 17}, logger.Nop())
	assert.True(t, errors.HasCode(err, ErrInvalidBits))

	missing, err := New(Config{Kind: KindADC, ADCPath: filepath.Join(t.TempDir(), "absent")}, logger.Nop())
	require.NoError(t, err)
	_, err = missing.Temperature()
	assert.True(t, errors.HasCode(err, ErrReadFailed))

	garbage, err := New(Config{Kind: KindADC, ADCPath: writeSample(t, "hot")}, logger.Nop())
	require.NoError(t, err)
	_, err = garbage.Temperature()
	assert.True(t, errors.HasCode(err, ErrParseFailed))
}

func TestNewUnknownKind(t *testing.T) {
	_, err := New(Config{Kind: "thermistor"}, logger.Nop())
	assert.True(t, errors.HasCode(err, ErrUnknownKind))
}
