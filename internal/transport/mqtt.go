package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"codeberg.org/mutker/thermonode/internal/errors"
	"codeberg.org/mutker/thermonode/internal/logger"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const disconnectQuiesce = 250 // milliseconds

type mqttTransport struct {
	opts   Options
	logger logger.Logger
	client mqtt.Client

	mu   sync.Mutex
	subs map[string]Handler
}

func newMQTT(opts Options, log logger.Logger) *mqttTransport {
	if opts.QoS == 0 {
		opts.QoS = defaultQoS
	}

	return &mqttTransport{
		opts:   opts,
		logger: log,
		subs:   make(map[string]Handler),
	}
}

func (t *mqttTransport) Connect(ctx context.Context) error {
	errFactory := errors.New()

	broker := fmt.Sprintf("tcp://%s:%d", t.opts.Broker, t.opts.Port)
	clientOpts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(t.opts.ClientID).
		SetKeepAlive(t.opts.KeepAlive).
		SetAutoReconnect(true).
		SetCleanSession(true).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			t.logger.Warn().Err(err).Msg("Connection lost")
		}).
		SetOnConnectHandler(t.resubscribe)

	t.client = mqtt.NewClient(clientOpts)

	t.logger.Debug().Str("broker", broker).Str("client_id", t.opts.ClientID).Msg("Connecting")

	if err := wait(ctx, t.client.Connect(), t.opts.ConnectTimeout); err != nil {
		return errFactory.Wrap(ErrConnectFailed, err)
	}

	t.logger.Info().Str("broker", broker).Msg("Connected")

	return nil
}

// resubscribe restores subscriptions after an automatic reconnect; the
// session is clean so the broker does not remember them.
func (t *mqttTransport) resubscribe(c mqtt.Client) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for topic, h := range t.subs {
		token := c.Subscribe(topic, t.opts.QoS, messageHandler(h))
		if token.WaitTimeout(t.opts.ConnectTimeout) && token.Error() != nil {
			t.logger.Error().Err(token.Error()).Str("topic", topic).Msg("Failed to resubscribe")
		}
	}
}

func (t *mqttTransport) Subscribe(topic string, h Handler) error {
	errFactory := errors.New()

	if t.client == nil || !t.client.IsConnectionOpen() {
		return errFactory.New(ErrNotConnected)
	}

	token := t.client.Subscribe(topic, t.opts.QoS, messageHandler(h))
	if err := wait(context.Background(), token, t.opts.ConnectTimeout); err != nil {
		return errFactory.Wrap(ErrSubscribe, err)
	}

	t.mu.Lock()
	t.subs[topic] = h
	t.mu.Unlock()

	t.logger.Info().Str("topic", topic).Msg("Subscribed")

	return nil
}

func (t *mqttTransport) Publish(ctx context.Context, topic string, payload []byte) error {
	errFactory := errors.New()

	if t.client == nil {
		return errFactory.New(ErrNotConnected)
	}

	token := t.client.Publish(topic, t.opts.QoS, false, payload)
	if err := wait(ctx, token, t.opts.ConnectTimeout); err != nil {
		return errFactory.Wrap(ErrPublish, err)
	}

	return nil
}

func (t *mqttTransport) Close() error {
	if t.client != nil && t.client.IsConnected() {
		t.client.Disconnect(disconnectQuiesce)
		t.logger.Debug().Msg("Disconnected")
	}

	return nil
}

func messageHandler(h Handler) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		h(msg.Topic(), msg.Payload())
	}
}

// wait blocks until token completes, ctx ends or timeout elapses.
func wait(ctx context.Context, token mqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return errors.New().New(ErrTimeout)
	}
}
