package sensor

import (
	"os"
	"strconv"
	"strings"

	"codeberg.org/mutker/thermonode/internal/errors"
	"codeberg.org/mutker/thermonode/internal/logger"
)

const (
	defaultADCPath = "/sys/bus/iio/devices/iio:device0/in_voltage4_raw"
	defaultADCBits = 12
)

// adcSensor reads raw samples from a sysfs/IIO attribute file.
type adcSensor struct {
	path   string
	shift  uint
	logger logger.Logger
}

func newADC(cfg Config, log logger.Logger) (*adcSensor, error) {
	errFactory := errors.New()

	if cfg.ADCPath == "" {
		cfg.ADCPath = defaultADCPath
	}
	if cfg.ADCBits == 0 {
		cfg.ADCBits = defaultADCBits
	}
	if cfg.ADCBits < 1 || cfg.ADCBits > 16 {
		return nil, errFactory.WithData(ErrInvalidBits, cfg.ADCBits)
	}

	log.Debug().Str("path", cfg.ADCPath).Int("bits", cfg.ADCBits).Msg("ADC sensor configured")

	return &adcSensor{
		path:   cfg.ADCPath,
		shift:  uint(16 - cfg.ADCBits),
		logger: log,
	}, nil
}

// Raw returns the sample left-aligned to 16 bits.
func (s *adcSensor) Raw() (uint16, error) {
	errFactory := errors.New()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return 0, errFactory.Wrap(ErrReadFailed, err)
	}

	value, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 16)
	if err != nil {
		return 0, errFactory.Wrap(ErrParseFailed, err)
	}

	return uint16(value) << s.shift, nil
}

func (s *adcSensor) Temperature() (float64, error) {
	raw, err := s.Raw()
	if err != nil {
		return 0, err
	}

	temp := ADCToCelsius(raw)
	s.logger.Debug().Uint16("raw", raw).Float64("temperature", temp).Msg("Sampled ADC")

	return temp, nil
}

func (*adcSensor) Close() error {
	return nil
}
