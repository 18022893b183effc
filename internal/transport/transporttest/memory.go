// Package transporttest provides an in-process transport for tests.
package transporttest

import (
	"context"
	"sync"

	"codeberg.org/mutker/thermonode/internal/errors"
	"codeberg.org/mutker/thermonode/internal/transport"
)

// Message is one published message.
type Message struct {
	Topic   string
	Payload []byte
}

// Memory is a loopback transport: Publish delivers synchronously to every
// handler subscribed to the exact topic, and is recorded for inspection.
type Memory struct {
	mu         sync.Mutex
	connected  bool
	handlers   map[string][]transport.Handler
	published  []Message
	ConnectErr error
	PublishErr error
}

var _ transport.Transport = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{handlers: make(map[string][]transport.Handler)}
}

func (m *Memory) Connect(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ConnectErr != nil {
		return m.ConnectErr
	}
	m.connected = true

	return nil
}

func (m *Memory) Subscribe(topic string, h transport.Handler) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return errors.New().New(transport.ErrNotConnected)
	}
	m.handlers[topic] = append(m.handlers[topic], h)

	return nil
}

func (m *Memory) Publish(_ context.Context, topic string, payload []byte) error {
	m.mu.Lock()
	if m.PublishErr != nil {
		err := m.PublishErr
		m.mu.Unlock()
		return err
	}
	if !m.connected {
		m.mu.Unlock()
		return errors.New().New(transport.ErrNotConnected)
	}
	m.published = append(m.published, Message{Topic: topic, Payload: append([]byte(nil), payload...)})
	handlers := append([]transport.Handler(nil), m.handlers[topic]...)
	m.mu.Unlock()

	for _, h := range handlers {
		h(topic, payload)
	}

	return nil
}

// Deliver hands a message to every handler regardless of topic, the way a
// broker with a wildcard subscription would.
func (m *Memory) Deliver(topic string, payload []byte) {
	m.mu.Lock()
	var handlers []transport.Handler
	for _, hs := range m.handlers {
		handlers = append(handlers, hs...)
	}
	m.mu.Unlock()

	for _, h := range handlers {
		h(topic, payload)
	}
}

// Published returns a copy of every message published so far.
func (m *Memory) Published() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]Message(nil), m.published...)
}

// Subscribed reports whether any handler is registered for topic.
func (m *Memory) Subscribed(topic string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.handlers[topic]) > 0
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.connected = false

	return nil
}
