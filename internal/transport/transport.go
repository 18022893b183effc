package transport

import (
	"fmt"
	"time"

	"codeberg.org/mutker/thermonode/internal/errors"
	"codeberg.org/mutker/thermonode/internal/logger"
	"github.com/google/uuid"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultQoS            = 1
)

// New returns the transport selected by opts.Kind.
func New(opts Options, log logger.Logger) (Transport, error) {
	errFactory := errors.New()

	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = defaultConnectTimeout
	}

	switch opts.Kind {
	case KindMQTT, "":
		return newMQTT(opts, log.With("mqtt")), nil
	case KindNATS:
		return newNATS(opts, log.With("nats")), nil
	default:
		return nil, errFactory.WithData(ErrUnknownKind, opts.Kind)
	}
}

// ClientID builds a broker client id unique to this process, so that several
// nodes sharing a broker never take over each other's session.
func ClientID(role string) string {
	return fmt.Sprintf("thermonode-%s-%s", role, uuid.NewString())
}
