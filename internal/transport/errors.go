package transport

import "codeberg.org/mutker/thermonode/internal/errors"

const (
	ErrNotConnected  = errors.ErrorCode("transport_not_connected")
	ErrUnknownKind   = errors.ErrInvalidTransport
	ErrConnectFailed = errors.ErrConnect
	ErrSubscribe     = errors.ErrSubscribe
	ErrPublish       = errors.ErrPublish
	ErrTimeout       = errors.ErrTimeout
)
