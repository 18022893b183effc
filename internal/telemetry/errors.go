package telemetry

import "codeberg.org/mutker/thermonode/internal/errors"

const (
	// Decode Errors
	ErrMalformed    = errors.ErrorCode("telemetry_malformed")
	ErrMissingField = errors.ErrorCode("telemetry_missing_field")
)
