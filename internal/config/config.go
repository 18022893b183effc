package config

import (
	"math"
	"os"
	"strings"

	"codeberg.org/mutker/thermonode/internal/actuator"
	"codeberg.org/mutker/thermonode/internal/errors"
	"codeberg.org/mutker/thermonode/internal/pid"
	"codeberg.org/mutker/thermonode/internal/sensor"
	"codeberg.org/mutker/thermonode/internal/transport"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultEnvPrefix  = "THERMONODE"
	DefaultConfigName = "thermonode"
	DefaultConfigDir  = "/etc"
	DefaultLogLevel   = "info"

	NoOutputPin = -1
)

type Config struct {
	// Channel
	Transport string `mapstructure:"transport"`
	Broker    string `mapstructure:"broker"`
	Port      int    `mapstructure:"port"`
	Topic     string `mapstructure:"topic"`
	KeepAlive int    `mapstructure:"keepalive"`

	// Role selection
	PublisherID string `mapstructure:"publisher_id"`
	OutputPin   int    `mapstructure:"output_pin"`

	// Collector
	Actuator       string  `mapstructure:"actuator"`
	GPIORoot       string  `mapstructure:"gpio_root"`
	TTL            int     `mapstructure:"ttl"`
	EvictInterval  int     `mapstructure:"evict_interval"`
	ReportInterval int     `mapstructure:"report_interval"`
	Threshold      float64 `mapstructure:"threshold"`
	EvictOnReceive bool    `mapstructure:"evict_on_receive"`

	// Publisher
	PublishInterval int    `mapstructure:"publish_interval"`
	Sensor          string `mapstructure:"sensor"`
	ADCPath         string `mapstructure:"adc_path"`
	ADCBits         int    `mapstructure:"adc_bits"`

	// Observability
	MetricsAddr string `mapstructure:"metrics_addr"`
	History     bool   `mapstructure:"history"`
	HistoryDB   string `mapstructure:"history_db"`
	LogLevel    string `mapstructure:"log_level"`
	Debug       bool   `mapstructure:"debug"`
	Verbose     bool   `mapstructure:"verbose"`

	PIDFile string `mapstructure:"pid_file"`
}

var defaults = map[string]any{
	"transport":        string(transport.KindMQTT),
	"broker":           "localhost",
	"port":             1883,
	"topic":            "temp/pico",
	"keepalive":        7000,
	"publisher_id":     "",
	"output_pin":       NoOutputPin,
	"actuator":         string(actuator.KindGPIO),
	"gpio_root":        actuator.DefaultGPIORoot,
	"ttl":              600,
	"evict_interval":   10,
	"report_interval":  5,
	"threshold":        30.0,
	"evict_on_receive": true,
	"publish_interval": 2,
	"sensor":           string(sensor.KindADC),
	"adc_path":         "/sys/bus/iio/devices/iio:device0/in_voltage4_raw",
	"adc_bits":         12,
	"metrics_addr":     "",
	"history":          false,
	"history_db":       "/var/lib/thermonode/history.db",
	"log_level":        DefaultLogLevel,
	"debug":            false,
	"verbose":          false,
	"pid_file":         pid.DefaultPath(),
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("thermonode", pflag.ContinueOnError)

	fs.String("config", "", "Path to the TOML configuration file")
	fs.String("transport", "mqtt", "Pub/sub transport: mqtt or nats")
	fs.String("broker", "localhost", "Broker host")
	fs.Int("port", 1883, "Broker port")
	fs.String("topic", "temp/pico", "Telemetry topic")
	fs.Int("keepalive", 7000, "Broker keepalive in seconds")
	fs.String("publisher-id", "", "Publisher identity; selects the publisher role")
	fs.Int("output-pin", NoOutputPin, "Actuator GPIO pin; selects the collector role")
	fs.String("actuator", "gpio", "Actuator: gpio or log")
	fs.String("gpio-root", actuator.DefaultGPIORoot, "sysfs GPIO root")
	fs.Int("ttl", 600, "Seconds before a silent publisher is evicted")
	fs.Int("evict-interval", 10, "Seconds between eviction passes")
	fs.Int("report-interval", 5, "Seconds between aggregate reports")
	fs.Float64("threshold", 30.0, "Mean temperature above which the actuator turns on")
	fs.Bool("evict-on-receive", true, "Run an eviction pass after every accepted message")
	fs.Int("publish-interval", 2, "Seconds between published readings")
	fs.String("sensor", "adc", "Sensor: adc or nvml")
	fs.String("adc-path", "", "sysfs file holding the raw ADC sample")
	fs.Int("adc-bits", 12, "ADC resolution in bits")
	fs.String("metrics-addr", "", "Prometheus listen address, empty to disable")
	fs.Bool("history", false, "Record aggregate reports to SQLite")
	fs.String("history-db", "", "Path to the report history database")
	fs.String("log-level", DefaultLogLevel, "Log level: debug, info, warning, error")
	fs.Bool("debug", false, "Enable debugging mode")
	fs.Bool("verbose", false, "Enable verbose logging")
	fs.String("pid-file", "", "Path to the PID file")

	return fs
}

func Load(opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := &options{envPrefix: DefaultEnvPrefix}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, errFactory.Wrap(errors.ErrInvalidArgument, err)
		}
	}
	if !o.argsSet {
		o.args = os.Args[1:]
	}

	fs := newFlagSet()
	if err := fs.Parse(o.args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, err
		}
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(o.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	// Only flags given on the command line override file and environment
	fs.Visit(func(f *pflag.Flag) {
		if f.Name == "config" {
			return
		}
		v.Set(strings.ReplaceAll(f.Name, "-", "_"), f.Value.String())
	})

	configPath := o.configPath
	if f := fs.Lookup("config"); f != nil && f.Changed {
		configPath = f.Value.String()
	}
	if configPath == "" {
		configPath = os.Getenv(o.envPrefix + "_CONFIG")
	}

	if err := readConfigFile(v, configPath); err != nil {
		return nil, err
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	if config.Debug {
		config.LogLevel = string(LogLevelDebug)
	} else if config.Verbose && config.LogLevel != string(LogLevelDebug) {
		config.LogLevel = string(LogLevelInfo)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func readConfigFile(v *viper.Viper, path string) error {
	errFactory := errors.New()

	v.SetConfigType("toml")
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return errFactory.Wrap(errors.ErrReadConfig, err)
		}
		return nil
	}

	v.SetConfigName(DefaultConfigName)
	v.AddConfigPath(DefaultConfigDir)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return errFactory.Wrap(errors.ErrReadConfig, err)
		}
	}

	return nil
}

// Validate checks every field that does not depend on the role
func (c *Config) Validate() error {
	errFactory := errors.New()

	intervals := map[string]int{
		"evict_interval":   c.EvictInterval,
		"report_interval":  c.ReportInterval,
		"publish_interval": c.PublishInterval,
	}
	for name, value := range intervals {
		if value <= 0 {
			return errFactory.WithData(errors.ErrInvalidInterval, struct {
				Field string
				Value int
			}{name, value})
		}
	}

	if c.TTL < 0 || c.KeepAlive < 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, "ttl and keepalive must not be negative")
	}

	if !LogLevel(c.LogLevel).IsValid() {
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}

	if !transport.Kind(c.Transport).IsValid() {
		return errFactory.WithData(errors.ErrInvalidTransport, c.Transport)
	}
	if !sensor.Kind(c.Sensor).IsValid() {
		return errFactory.WithData(errors.ErrInvalidSensor, c.Sensor)
	}
	if !actuator.Kind(c.Actuator).IsValid() {
		return errFactory.WithData(errors.ErrInvalidActuator, c.Actuator)
	}

	switch {
	case c.Topic == "":
		return errFactory.WithData(errors.ErrMissingConfig, "topic")
	case c.Broker == "":
		return errFactory.WithData(errors.ErrMissingConfig, "broker")
	case c.Port <= 0 || c.Port > math.MaxUint16:
		return errFactory.WithData(errors.ErrInvalidConfig, struct {
			Field string
			Value int
		}{"port", c.Port})
	case math.IsNaN(c.Threshold):
		return errFactory.WithData(errors.ErrInvalidConfig, "threshold is NaN")
	}

	return nil
}

// Role selects the node's role: a collector when an output pin is
// configured, a publisher when a publisher id is configured. Any other
// combination is a configuration error.
func (c *Config) Role() (Role, error) {
	collector := c.OutputPin != NoOutputPin && c.OutputPin >= 0
	publisher := c.PublisherID != ""

	switch {
	case collector && !publisher:
		return RoleCollector, nil
	case publisher && !collector:
		return RolePublisher, nil
	default:
		return "", errors.New().WithData(errors.ErrInvalidRole, struct {
			PublisherID string
			OutputPin   int
		}{c.PublisherID, c.OutputPin})
	}
}
