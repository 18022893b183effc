package transport

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"codeberg.org/mutker/thermonode/internal/errors"
	"codeberg.org/mutker/thermonode/internal/logger"
	"github.com/nats-io/nats.go"
)

type natsTransport struct {
	opts   Options
	logger logger.Logger

	mu   sync.Mutex
	conn *nats.Conn
	subs []*nats.Subscription
}

func newNATS(opts Options, log logger.Logger) *natsTransport {
	return &natsTransport{
		opts:   opts,
		logger: log,
	}
}

// subject maps an MQTT-style topic onto a NATS subject.
func subject(topic string) string {
	return strings.ReplaceAll(topic, "/", ".")
}

func (t *natsTransport) Connect(ctx context.Context) error {
	errFactory := errors.New()

	url := fmt.Sprintf("nats://%s:%d", t.opts.Broker, t.opts.Port)
	timeout := t.opts.ConnectTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = min(timeout, time.Until(deadline))
	}

	natsOpts := []nats.Option{
		nats.Name(t.opts.ClientID),
		nats.Timeout(timeout),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			t.logger.Warn().Err(err).Msg("Connection lost")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			t.logger.Info().Str("url", c.ConnectedUrl()).Msg("Reconnected")
		}),
	}
	// Zero keeps the client's default ping interval.
	if t.opts.KeepAlive > 0 {
		natsOpts = append(natsOpts, nats.PingInterval(t.opts.KeepAlive))
	}

	conn, err := nats.Connect(url, natsOpts...)
	if err != nil {
		return errFactory.Wrap(ErrConnectFailed, err)
	}

	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()

	t.logger.Info().Str("url", url).Msg("Connected")

	return nil
}

func (t *natsTransport) Subscribe(topic string, h Handler) error {
	errFactory := errors.New()

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return errFactory.New(ErrNotConnected)
	}

	sub, err := t.conn.Subscribe(subject(topic), func(msg *nats.Msg) {
		h(topicOf(topic, msg.Subject), msg.Data)
	})
	if err != nil {
		return errFactory.Wrap(ErrSubscribe, err)
	}
	t.subs = append(t.subs, sub)

	t.logger.Info().Str("topic", topic).Str("subject", subject(topic)).Msg("Subscribed")

	return nil
}

// topicOf returns the topic a message arrived on: the subscribed topic when
// the subjects match exactly, otherwise the subject with dots mapped back.
func topicOf(topic, msgSubject string) string {
	if msgSubject == subject(topic) {
		return topic
	}

	return strings.ReplaceAll(msgSubject, ".", "/")
}

func (t *natsTransport) Publish(_ context.Context, topic string, payload []byte) error {
	errFactory := errors.New()

	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()

	if conn == nil {
		return errFactory.New(ErrNotConnected)
	}

	if err := conn.Publish(subject(topic), payload); err != nil {
		return errFactory.Wrap(ErrPublish, err)
	}

	return nil
}

func (t *natsTransport) Close() error {
	errFactory := errors.New()

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return nil
	}

	if err := t.conn.Drain(); err != nil {
		t.conn.Close()
		return errFactory.Wrap(errors.ErrShutdownFailed, err)
	}
	t.conn = nil
	t.subs = nil

	return nil
}
