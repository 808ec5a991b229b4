package messaging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"
)

var (
	ErrKafkaBrokersRequired = errors.New("messaging: kafka brokers are required")
	ErrKafkaGroupRequired   = errors.New("messaging: kafka consumer group is required")
)

type KafkaConfig struct {
	Brokers     []string
	ClientID    string
	DialTimeout time.Duration
}

// Kafka shares one writer across topics; the topic travels on each message.
// Every Consume call owns a group reader and commits only acked offsets.
type Kafka struct {
	dialer *kafka.Dialer
	cfg    KafkaConfig
	writer *kafka.Writer

	mu      sync.Mutex
	readers []*kafka.Reader
	closed  bool
}

func NewKafka(cfg KafkaConfig) (*Kafka, error) {
	if len(cfg.Brokers) == 0 {
		return nil, ErrKafkaBrokersRequired
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}

	dialer := &kafka.Dialer{ClientID: cfg.ClientID, Timeout: cfg.DialTimeout, DualStack: true}
	return &Kafka{
		dialer: dialer,
		cfg:    cfg,
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
			Transport:              &kafka.Transport{ClientID: cfg.ClientID, DialTimeout: cfg.DialTimeout},
		},
	}, nil
}

func (k *Kafka) Close() error {
	k.mu.Lock()
	if k.closed {
		k.mu.Unlock()
		return nil
	}
	k.closed = true
	readers := k.readers
	k.readers = nil
	k.mu.Unlock()

	errs := make([]error, 0, len(readers)+1)
	for _, r := range readers {
		errs = append(errs, r.Close())
	}
	errs = append(errs, k.writer.Close())
	return errors.Join(errs...)
}

// Publish writes msg to topic destination. Messages with the same Key land on
// the same partition.
func (k *Kafka) Publish(ctx context.Context, destination string, msg OutgoingMessage) (PublishResult, error) {
	switch {
	case ctx.Err() != nil:
		return PublishResult{}, ctx.Err()
	case destination == "":
		return PublishResult{}, ErrDestinationRequired
	case msg.Delay > 0:
		return PublishResult{}, ErrUnsupported
	case k.isClosed():
		return PublishResult{}, io.ErrClosedPipe
	}

	out := kafka.Message{Topic: destination, Key: msg.Key, Value: msg.Body, Time: time.Now().UTC()}
	for _, h := range msg.Headers {
		if h.Key == "" {
			continue
		}
		out.Headers = append(out.Headers, kafka.Header{Key: h.Key, Value: h.Value})
	}

	if err := k.writer.WriteMessages(ctx, out); err != nil {
		return PublishResult{}, fmt.Errorf("messaging: kafka publish to %s: %w", destination, err)
	}
	return PublishResult{Topic: destination, Timestamp: out.Time}, nil
}

// Consume fetches from source as consumer group co.group. At most
// concurrency handlers run at once. A failed handler or commit stops the loop
// and is returned, leaving the group offset before the failed message so the
// next Consume call fetches it again. With concurrency above one, a later
// offset of the same partition that finished first may already be committed.
func (k *Kafka) Consume(ctx context.Context, source string, handler Handler, opts ...ConsumeOption) error {
	co := newConsumeOptions(opts...)
	if err := validateConsume(ctx, source, handler); err != nil {
		return err
	}
	if co.group == "" {
		return ErrKafkaGroupRequired
	}

	reader, err := k.openReader(source, co.group)
	if err != nil {
		return err
	}
	defer k.closeReader(reader)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrencyOrDefault(co.concurrency, 1))

	for {
		m, err := reader.FetchMessage(gctx)
		if err != nil {
			werr := g.Wait()
			switch {
			case ctx.Err() != nil:
				return ctx.Err()
			case werr != nil:
				return werr
			}
			return fmt.Errorf("messaging: kafka fetch from %s: %w", source, err)
		}

		g.Go(func() error {
			km := &kafkaMessage{reader: reader, msg: m}
			if herr := runHandler(gctx, "kafka", func() error { return handler(gctx, km) }); herr != nil {
				return fmt.Errorf("messaging: kafka handle %s: %w", km.ID(), herr)
			}
			if !co.autoAck || km.acked.Load() {
				return nil
			}
			if err := km.Ack(gctx); err != nil && gctx.Err() == nil {
				return fmt.Errorf("messaging: kafka commit %s: %w", km.ID(), err)
			}
			return nil
		})
	}
}

func (k *Kafka) isClosed() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.closed
}

func (k *Kafka) openReader(topic, group string) (*kafka.Reader, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return nil, io.ErrClosedPipe
	}

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     k.cfg.Brokers,
		GroupID:     group,
		Topic:       topic,
		Dialer:      k.dialer,
		MaxBytes:    1 << 20,
		StartOffset: kafka.FirstOffset,
	})
	k.readers = append(k.readers, r)
	return r, nil
}

func (k *Kafka) closeReader(r *kafka.Reader) {
	k.mu.Lock()
	owned := false
	for i, cur := range k.readers {
		if cur == r {
			k.readers = append(k.readers[:i], k.readers[i+1:]...)
			owned = true
			break
		}
	}
	k.mu.Unlock()

	if owned {
		_ = r.Close()
	}
}

type kafkaMessage struct {
	reader *kafka.Reader
	msg    kafka.Message
	acked  atomic.Bool
}

func (m *kafkaMessage) ID() string {
	return strconv.Itoa(m.msg.Partition) + "-" + strconv.FormatInt(m.msg.Offset, 10)
}

func (m *kafkaMessage) Body() []byte                  { return m.msg.Value }
func (m *kafkaMessage) Key() []byte                   { return m.msg.Key }
func (m *kafkaMessage) Topic() string                 { return m.msg.Topic }
func (m *kafkaMessage) Subject() string               { return "" }
func (m *kafkaMessage) Timestamp() time.Time          { return m.msg.Time }
func (m *kafkaMessage) Attributes() map[string]string { return nil }

func (m *kafkaMessage) Headers() []Header {
	hs := make([]Header, len(m.msg.Headers))
	for i, h := range m.msg.Headers {
		hs[i] = Header{Key: h.Key, Value: h.Value}
	}
	return hs
}

// Ack commits the offset once; later calls are no-ops.
func (m *kafkaMessage) Ack(ctx context.Context) error {
	if !m.acked.CompareAndSwap(false, true) {
		return nil
	}
	return m.reader.CommitMessages(ctx, m.msg)
}
