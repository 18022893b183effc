package sensor

import (
	"sync"

	"codeberg.org/mutker/thermonode/internal/errors"
	"codeberg.org/mutker/thermonode/internal/logger"
	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

// nvmlSensor reports the GPU core temperature of one device.
type nvmlSensor struct {
	device nvml.Device
	logger logger.Logger
	once   sync.Once
}

func newNVML(cfg Config, log logger.Logger) (*nvmlSensor, error) {
	errFactory := errors.New()

	if ret := nvml.Init(); ret != nvml.SUCCESS {
		return nil, errFactory.Wrap(ErrInitFailed, newNVMLError(ret))
	}

	device, ret := nvml.DeviceGetHandleByIndex(cfg.DeviceIndex)
	if ret != nvml.SUCCESS {
		nvml.Shutdown()
		return nil, errFactory.Wrap(ErrDeviceFailed, newNVMLError(ret))
	}

	if name, ret := device.GetName(); ret == nvml.SUCCESS {
		log.Info().Msgf("Detected GPU: %v", name)
	} else {
		log.Warn().Msgf("Failed to get GPU name: %v", nvml.ErrorString(ret))
	}

	return &nvmlSensor{
		device: device,
		logger: log,
	}, nil
}

func (s *nvmlSensor) Temperature() (float64, error) {
	temp, ret := s.device.GetTemperature(nvml.TEMPERATURE_GPU)
	if ret != nvml.SUCCESS {
		return 0, errors.New().Wrap(ErrReadFailed, newNVMLError(ret))
	}

	return float64(temp), nil
}

func (s *nvmlSensor) Close() error {
	var err error
	s.once.Do(func() {
		if ret := nvml.Shutdown(); ret != nvml.SUCCESS {
			err = errors.New().Wrap(ErrShutdown, newNVMLError(ret))
		}
	})

	return err
}
