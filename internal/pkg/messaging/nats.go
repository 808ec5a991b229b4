package messaging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
)

// ErrNATSURLRequired is returned when the NATS server URL is missing.
var ErrNATSURLRequired = errors.New("messaging: nats url is required")

// NATSConfig configures the NATS implementation.
type NATSConfig struct {
	// URL is the NATS server address.
	URL string
	// Options are passed to the NATS client.
	Options []nats.Option
}

// NATS is a messaging implementation backed by core NATS.
//
// Core NATS has no redelivery, so Ack only marks the message as handled and
// Nack is not offered.
type NATS struct {
	conn *nats.Conn

	mu     sync.Mutex
	subs   map[*nats.Subscription]struct{}
	closed bool
}

// NewNATS constructs a NATS messaging client.
func NewNATS(cfg NATSConfig) (*NATS, error) {
	if cfg.URL == "" {
		return nil, ErrNATSURLRequired
	}

	conn, err := nats.Connect(cfg.URL, cfg.Options...)
	if err != nil {
		return nil, fmt.Errorf("messaging: nats connect: %w", err)
	}

	return &NATS{conn: conn, subs: map[*nats.Subscription]struct{}{}}, nil
}

// Close drains subscriptions and closes the NATS connection.
func (n *NATS) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	subs := n.subs
	n.subs = nil
	n.mu.Unlock()

	var err error
	for sub := range subs {
		err = errors.Join(err, sub.Drain())
	}
	err = errors.Join(err, n.conn.Drain())
	n.conn.Close()
	return err
}

// Publish sends a message to a NATS subject and flushes the connection.
func (n *NATS) Publish(ctx context.Context, destination string, msg OutgoingMessage) (PublishResult, error) {
	if err := ctx.Err(); err != nil {
		return PublishResult{}, err
	}
	if destination == "" {
		return PublishResult{}, ErrDestinationRequired
	}
	if msg.Delay > 0 {
		return PublishResult{}, ErrUnsupported
	}

	nm := nats.NewMsg(destination)
	nm.Data = msg.Body
	for _, h := range msg.Headers {
		if h.Key != "" {
			nm.Header.Add(h.Key, string(h.Value))
		}
	}

	if err := n.conn.PublishMsg(nm); err != nil {
		return PublishResult{}, fmt.Errorf("messaging: nats publish: %w", err)
	}
	if err := n.conn.Flush(); err != nil {
		return PublishResult{}, fmt.Errorf("messaging: nats flush: %w", err)
	}

	return PublishResult{Topic: destination, Timestamp: time.Now()}, nil
}

// Consume subscribes to a subject, optionally as part of a queue group, and
// dispatches messages to handler until ctx is done.
func (n *NATS) Consume(ctx context.Context, source string, handler Handler, opts ...ConsumeOption) error {
	if err := validateConsume(ctx, source, handler); err != nil {
		return err
	}

	co := newConsumeOptions(opts...)

	msgCh := make(chan *nats.Msg, concurrencyOrDefault(co.concurrency, 1))
	sub, err := n.conn.QueueSubscribe(source, co.queueGroup, func(m *nats.Msg) {
		select {
		case msgCh <- m:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return fmt.Errorf("messaging: nats subscribe: %w", err)
	}

	var wg sync.WaitGroup
	for range cap(msgCh) {
		wg.Go(func() {
			for m := range msgCh {
				wrapped := &natsMessage{msg: m, received: time.Now()}
				_ = runHandler(ctx, "nats", func() error { return handler(ctx, wrapped) })
				if co.autoAck {
					_ = wrapped.Ack(ctx)
				}
			}
		})
	}

	stop := func() error {
		derr := sub.Drain()
		close(msgCh)
		wg.Wait()
		return derr
	}

	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return errors.Join(io.ErrClosedPipe, stop())
	}
	n.subs[sub] = struct{}{}
	n.mu.Unlock()

	defer func() {
		n.mu.Lock()
		delete(n.subs, sub)
		n.mu.Unlock()
	}()

	if err := n.conn.Flush(); err != nil {
		return errors.Join(fmt.Errorf("messaging: nats flush: %w", err), stop())
	}

	<-ctx.Done()
	return errors.Join(ctx.Err(), stop())
}

func concurrencyOrDefault(n, def int) int {
	if n <= 0 {
		return def
	}
	return n
}

type natsMessage struct {
	msg       *nats.Msg
	received  time.Time
	responded atomic.Bool
}

func (m *natsMessage) Body() []byte                  { return m.msg.Data }
func (m *natsMessage) Key() []byte                   { return nil }
func (m *natsMessage) Attributes() map[string]string { return nil }
func (m *natsMessage) ID() string                    { return m.msg.Header.Get(nats.MsgIdHdr) }
func (m *natsMessage) Topic() string                 { return m.msg.Subject }
func (m *natsMessage) Subject() string               { return m.msg.Subject }
func (m *natsMessage) Timestamp() time.Time          { return m.received }

func (m *natsMessage) Headers() []Header {
	var out []Header
	for k, vs := range m.msg.Header {
		for _, v := range vs {
			out = append(out, Header{Key: k, Value: []byte(v)})
		}
	}
	return out
}

// Ack replies when the publisher asked for one; otherwise it only marks the
// message as handled.
func (m *natsMessage) Ack(context.Context) error {
	if m.responded.Swap(true) || m.msg.Reply == "" {
		return nil
	}
	return m.msg.Respond(nil)
}
