// Package transport connects a node to the shared publish/subscribe channel.
package transport

import (
	"context"
	"time"
)

// Handler receives one message. The payload is exactly one encoded record.
type Handler func(topic string, payload []byte)

// Transport is the node's view of the pub/sub channel. Delivery is
// at-least-once with message boundaries preserved; reconnection is the
// implementation's concern.
type Transport interface {
	Connect(ctx context.Context) error
	Subscribe(topic string, h Handler) error
	Publish(ctx context.Context, topic string, payload []byte) error
	Close() error
}

// Kind selects a transport implementation.
type Kind string

const (
	KindMQTT Kind = "mqtt"
	KindNATS Kind = "nats"
)

// IsValid returns whether the kind is known
func (k Kind) IsValid() bool {
	switch k {
	case KindMQTT, KindNATS:
		return true
	default:
		return false
	}
}

// Options configures a transport.
type Options struct {
	Kind      Kind
	Broker    string
	Port      int
	ClientID  string
	KeepAlive time.Duration
	// QoS applies to MQTT only.
	QoS byte
	// ConnectTimeout bounds Connect when ctx has no deadline.
	ConnectTimeout time.Duration
}
