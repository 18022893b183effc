package errors

// Common error codes
const (
	// System errors
	ErrInternal        ErrorCode = "internal_error"
	ErrInvalidArgument ErrorCode = "invalid_argument"

	// Configuration errors
	ErrInvalidConfig    ErrorCode = "invalid_configuration"
	ErrMissingConfig    ErrorCode = "missing_configuration"
	ErrBindFlags        ErrorCode = "bind_flags_failed"
	ErrReadConfig       ErrorCode = "read_config_failed"
	ErrInvalidInterval  ErrorCode = "invalid_interval"
	ErrInvalidRole      ErrorCode = "invalid_role"
	ErrInvalidTransport ErrorCode = "invalid_transport"
	ErrInvalidSensor    ErrorCode = "invalid_sensor"
	ErrInvalidActuator  ErrorCode = "invalid_actuator"

	// Logging errors
	ErrInvalidLogLevel ErrorCode = "invalid_log_level"

	// Initialization errors
	ErrInitFailed     ErrorCode = "initialization_failed"
	ErrShutdownFailed ErrorCode = "shutdown_failed"
	ErrAlreadyRunning ErrorCode = "already_running"

	// Application errors
	ErrConnect    ErrorCode = "connect_failed"
	ErrSubscribe  ErrorCode = "subscribe_failed"
	ErrPublish    ErrorCode = "publish_failed"
	ErrSensorRead ErrorCode = "sensor_read_failed"
	ErrActuate    ErrorCode = "actuate_failed"

	// Operation errors
	ErrTimeout ErrorCode = "operation_timeout"
)

// Common error messages
var errorMessages = map[ErrorCode]string{
	ErrInternal:         "Internal error occurred",
	ErrInvalidArgument:  "Invalid argument provided",
	ErrInvalidConfig:    "Invalid configuration",
	ErrMissingConfig:    "Missing configuration",
	ErrBindFlags:        "Failed to bind flags",
	ErrReadConfig:       "Failed to read config file",
	ErrInvalidInterval:  "Invalid interval value",
	ErrInvalidRole:      "Exactly one of collector or publisher must be configured",
	ErrInvalidTransport: "Unknown transport",
	ErrInvalidSensor:    "Unknown sensor",
	ErrInvalidActuator:  "Unknown actuator",
	ErrInvalidLogLevel:  "Invalid log level",
	ErrInitFailed:       "Initialization failed",
	ErrShutdownFailed:   "Shutdown failed",
	ErrAlreadyRunning:   "Another instance is already running",
	ErrConnect:          "Failed to connect to broker",
	ErrSubscribe:        "Failed to subscribe to topic",
	ErrPublish:          "Failed to publish message",
	ErrSensorRead:       "Failed to read sensor",
	ErrActuate:          "Failed to drive actuator",
	ErrTimeout:          "Operation timed out",
}

// GetErrorMessage returns the message for a given error code
func GetErrorMessage(code ErrorCode) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}

	return string(code)
}
