// Package actuator drives the collector's single boolean output.
package actuator

import (
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"codeberg.org/mutker/thermonode/internal/errors"
	"codeberg.org/mutker/thermonode/internal/logger"
)

const (
	ErrUnknownKind = errors.ErrInvalidActuator
	ErrExport      = errors.ErrorCode("actuator_gpio_export_failed")
	ErrDirection   = errors.ErrorCode("actuator_gpio_direction_failed")
	ErrWrite       = errors.ErrActuate
)

const (
	DefaultGPIORoot = "/sys/class/gpio"
	filePerm        = 0o644
)

// Actuator sets a binary output. Set is idempotent.
type Actuator interface {
	Set(on bool) error
}

// Kind selects an actuator implementation.
type Kind string

const (
	KindGPIO Kind = "gpio"
	KindLog  Kind = "log"
)

// IsValid returns whether the kind is known
func (k Kind) IsValid() bool {
	switch k {
	case KindGPIO, KindLog:
		return true
	default:
		return false
	}
}

// New returns the actuator selected by kind, driving pin.
func New(kind Kind, pin int, gpioRoot string, log logger.Logger) (Actuator, error) {
	switch kind {
	case KindGPIO, "":
		return NewGPIO(gpioRoot, pin, log.With("gpio"))
	case KindLog:
		return NewLog(pin, log.With("actuator")), nil
	default:
		return nil, errors.New().WithData(ErrUnknownKind, kind)
	}
}

// GPIO drives a pin through the sysfs GPIO interface.
type GPIO struct {
	pin    int
	value  string
	logger logger.Logger
}

// NewGPIO exports pin under root if needed and configures it as an output.
func NewGPIO(root string, pin int, log logger.Logger) (*GPIO, error) {
	errFactory := errors.New()

	if root == "" {
		root = DefaultGPIORoot
	}

	dir := filepath.Join(root, "gpio"+strconv.Itoa(pin))
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.WriteFile(filepath.Join(root, "export"), []byte(strconv.Itoa(pin)), filePerm); err != nil {
			return nil, errFactory.Wrap(ErrExport, err)
		}
		log.Debug().Int("pin", pin).Msg("Exported GPIO pin")
	}

	if err := os.WriteFile(filepath.Join(dir, "direction"), []byte("out"), filePerm); err != nil {
		return nil, errFactory.Wrap(ErrDirection, err)
	}

	return &GPIO{
		pin:    pin,
		value:  filepath.Join(dir, "value"),
		logger: log,
	}, nil
}

func (g *GPIO) Set(on bool) error {
	level := "0"
	if on {
		level = "1"
	}

	if err := os.WriteFile(g.value, []byte(level), filePerm); err != nil {
		return errors.New().Wrap(ErrWrite, err)
	}

	return nil
}

// Log is an actuator for nodes without an output wired; it only logs
// level changes.
type Log struct {
	pin    int
	logger logger.Logger

	mu    sync.Mutex
	state *bool
}

func NewLog(pin int, log logger.Logger) *Log {
	return &Log{pin: pin, logger: log}
}

func (l *Log) Set(on bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == nil || *l.state != on {
		l.logger.Info().Int("pin", l.pin).Bool("on", on).Msg("Output changed")
	}
	l.state = &on

	return nil
}

// State returns the last value set and whether Set was ever called.
func (l *Log) State() (on, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == nil {
		return false, false
	}

	return *l.state, true
}
