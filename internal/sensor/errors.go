package sensor

import (
	"codeberg.org/mutker/thermonode/internal/errors"
	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

const (
	ErrUnknownKind  = errors.ErrInvalidSensor
	ErrInvalidBits  = errors.ErrorCode("sensor_invalid_adc_bits")
	ErrReadFailed   = errors.ErrSensorRead
	ErrParseFailed  = errors.ErrorCode("sensor_parse_failed")
	ErrInitFailed   = errors.ErrorCode("sensor_init_failed")
	ErrDeviceFailed = errors.ErrorCode("sensor_device_not_found")
	ErrShutdown     = errors.ErrorCode("sensor_shutdown_failed")
)

// nvmlError represents an NVML-specific error
type nvmlError struct {
	ret nvml.Return
}

func (e nvmlError) Error() string {
	return nvml.ErrorString(e.ret)
}

// newNVMLError creates an error from an NVML return code
func newNVMLError(ret nvml.Return) error {
	if ret == nvml.SUCCESS {
		return nil
	}
	return &nvmlError{ret: ret}
}
