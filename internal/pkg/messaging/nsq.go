package messaging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nsqio/go-nsq"
)

var (
	ErrNSQChannelRequired       = errors.New("messaging: nsq channel is required")
	ErrNSQProducerAddrRequired  = errors.New("messaging: nsq producer address is required")
	ErrNSQConsumerAddrsRequired = errors.New("messaging: nsq consumer nsqd/lookupd addresses are required")
)

// NSQConfig leaves ProducerAddr empty for consume-only clients. Lookupd
// addresses win over direct nsqd addresses when both are set.
type NSQConfig struct {
	ProducerAddr         string
	ConsumerNSQDAddrs    []string
	ConsumerLookupdAddrs []string
}

// NSQ has no message headers, so OutgoingMessage.Headers are dropped and the
// audit consumer falls back to a fresh correlation id.
type NSQ struct {
	producer *nsq.Producer

	nsqdAddrs    []string
	lookupdAddrs []string

	mu        sync.Mutex
	consumers map[*nsq.Consumer]struct{}
	closed    bool
}

func NewNSQ(cfg NSQConfig) (*NSQ, error) {
	n := &NSQ{
		nsqdAddrs:    append([]string{}, cfg.ConsumerNSQDAddrs...),
		lookupdAddrs: append([]string{}, cfg.ConsumerLookupdAddrs...),
		consumers:    map[*nsq.Consumer]struct{}{},
	}

	if cfg.ProducerAddr != "" {
		p, err := nsq.NewProducer(cfg.ProducerAddr, nsq.NewConfig())
		if err != nil {
			return nil, fmt.Errorf("messaging: nsq new producer: %w", err)
		}
		p.SetLoggerLevel(nsq.LogLevelError)
		n.producer = p
	}

	return n, nil
}

func (n *NSQ) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	consumers := n.consumers
	n.consumers = nil
	n.mu.Unlock()

	for c := range consumers {
		c.Stop()
		<-c.StopChan
	}
	if n.producer != nil {
		n.producer.Stop()
	}
	return nil
}

// Publish sends a message to an NSQ topic. A positive Delay uses deferred
// publishing.
func (n *NSQ) Publish(ctx context.Context, destination string, msg OutgoingMessage) (PublishResult, error) {
	if err := ctx.Err(); err != nil {
		return PublishResult{}, err
	}
	if destination == "" {
		return PublishResult{}, ErrDestinationRequired
	}
	if n.producer == nil {
		return PublishResult{}, ErrNSQProducerAddrRequired
	}

	var err error
	if msg.Delay > 0 {
		err = n.producer.DeferredPublish(destination, msg.Delay, msg.Body)
	} else {
		err = n.producer.Publish(destination, msg.Body)
	}
	if err != nil {
		return PublishResult{}, fmt.Errorf("messaging: nsq publish: %w", err)
	}

	return PublishResult{Topic: destination, Timestamp: time.Now()}, nil
}

// Consume reads a topic through the channel given by WithChannel until ctx is
// done. Failed handlers requeue the message when auto-ack is on.
func (n *NSQ) Consume(ctx context.Context, source string, handler Handler, opts ...ConsumeOption) error {
	if err := validateConsume(ctx, source, handler); err != nil {
		return err
	}
	if len(n.nsqdAddrs) == 0 && len(n.lookupdAddrs) == 0 {
		return ErrNSQConsumerAddrsRequired
	}

	co := newConsumeOptions(opts...)
	if co.channel == "" {
		return ErrNSQChannelRequired
	}
	concurrency := concurrencyOrDefault(co.concurrency, 1)

	ccfg := nsq.NewConfig()
	ccfg.MaxInFlight = max(co.maxInFlight, concurrency)

	consumer, err := nsq.NewConsumer(source, co.channel, ccfg)
	if err != nil {
		return fmt.Errorf("messaging: nsq new consumer: %w", err)
	}
	consumer.SetLoggerLevel(nsq.LogLevelError)
	consumer.AddConcurrentHandlers(nsq.HandlerFunc(func(m *nsq.Message) error {
		m.DisableAutoResponse()

		wrapped := &nsqMessage{topic: source, msg: m}
		herr := runHandler(ctx, "nsq", func() error { return handler(ctx, wrapped) })
		if !co.autoAck || wrapped.responded.Load() {
			return herr
		}
		if herr != nil {
			return wrapped.Nack(ctx)
		}
		return wrapped.Ack(ctx)
	}), concurrency)

	stop := func() {
		consumer.Stop()
		<-consumer.StopChan
	}

	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		stop()
		return io.ErrClosedPipe
	}
	n.consumers[consumer] = struct{}{}
	n.mu.Unlock()

	if len(n.lookupdAddrs) > 0 {
		err = consumer.ConnectToNSQLookupds(n.lookupdAddrs)
	} else {
		err = consumer.ConnectToNSQDs(n.nsqdAddrs)
	}
	if err != nil {
		stop()
		return fmt.Errorf("messaging: nsq connect: %w", err)
	}

	select {
	case <-ctx.Done():
		stop()
		return ctx.Err()
	case <-consumer.StopChan:
		return nil
	}
}

type nsqMessage struct {
	topic     string
	msg       *nsq.Message
	responded atomic.Bool
}

func (m *nsqMessage) Body() []byte                  { return m.msg.Body }
func (m *nsqMessage) Key() []byte                   { return nil }
func (m *nsqMessage) Headers() []Header             { return nil }
func (m *nsqMessage) Attributes() map[string]string { return nil }
func (m *nsqMessage) ID() string                    { return string(m.msg.ID[:]) }
func (m *nsqMessage) Topic() string                 { return m.topic }
func (m *nsqMessage) Subject() string               { return "" }
func (m *nsqMessage) Timestamp() time.Time          { return time.Unix(0, m.msg.Timestamp) }

// Ack finishes the message.
func (m *nsqMessage) Ack(context.Context) error {
	if !m.responded.Swap(true) {
		m.msg.Finish()
	}
	return nil
}

// Nack requeues the message with the client's default backoff.
func (m *nsqMessage) Nack(context.Context) error {
	if !m.responded.Swap(true) {
		m.msg.Requeue(-1)
	}
	return nil
}
