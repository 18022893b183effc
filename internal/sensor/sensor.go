package sensor

import (
	"codeberg.org/mutker/thermonode/internal/errors"
	"codeberg.org/mutker/thermonode/internal/logger"
)

const (
	adcReference   = 3.3
	adcFullScale   = 1 << 16
	vbeAt27C       = 0.706
	slopeVoltsPerC = 0.001721
)

// ADCToCelsius converts a 16-bit sample of the RP2040-style internal
// temperature sensor to degrees Celsius. Any raw value is accepted.
func ADCToCelsius(raw uint16) float64 {
	voltage := float64(raw) * (adcReference / adcFullScale)
	return 27 - (voltage-vbeAt27C)/slopeVoltsPerC
}

// New returns the sensor selected by cfg.Kind.
func New(cfg Config, log logger.Logger) (Sensor, error) {
	errFactory := errors.New()

	switch cfg.Kind {
	case KindADC, "":
		return newADC(cfg, log.With("adc"))
	case KindNVML:
		return newNVML(cfg, log.With("nvml"))
	default:
		return nil, errFactory.WithData(ErrUnknownKind, cfg.Kind)
	}
}
