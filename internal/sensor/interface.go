// Package sensor samples the node's onboard temperature sensor.
package sensor

// Sensor reads one temperature in degrees Celsius per call.
type Sensor interface {
	Temperature() (float64, error)
	Close() error
}

// Kind selects a sensor implementation.
type Kind string

const (
	KindADC  Kind = "adc"
	KindNVML Kind = "nvml"
)

// IsValid returns whether the kind is known
func (k Kind) IsValid() bool {
	switch k {
	case KindADC, KindNVML:
		return true
	default:
		return false
	}
}

// Config selects and configures a sensor.
type Config struct {
	Kind Kind
	// ADCPath is the sysfs file holding the raw sample.
	ADCPath string
	// ADCBits is the resolution of the raw sample.
	ADCBits int
	// DeviceIndex selects the GPU for KindNVML.
	DeviceIndex int
}
