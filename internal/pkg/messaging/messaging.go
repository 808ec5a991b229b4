// Package messaging hides the broker behind Publisher and Consumer. The
// driver (nats, nsq, kafka, google-pubsub or an in-process memory broker) is
// chosen by name at startup.
package messaging

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	ErrUnsupported         = errors.New("messaging: unsupported operation")
	ErrDestinationRequired = errors.New("messaging: destination is required")
	ErrSourceRequired      = errors.New("messaging: source is required")
	ErrHandlerRequired     = errors.New("messaging: handler is required")
)

// Messaging publishes and consumes through one configured broker.
type Messaging interface {
	io.Closer
	Publisher
	Consumer
}

type Publisher interface {
	Publish(ctx context.Context, destination string, msg OutgoingMessage) (PublishResult, error)
}

type Consumer interface {
	// Consume blocks, dispatching deliveries from source to handler, until
	// ctx is done or the broker connection fails.
	Consume(ctx context.Context, source string, handler Handler, opts ...ConsumeOption) error
}

// Handler processes one delivery. What a returned error means for
// redelivery depends on the broker and on WithAutoAck.
type Handler func(ctx context.Context, msg Message) error

// OutgoingMessage is a message to publish. Brokers ignore fields they have
// no equivalent for.
type OutgoingMessage struct {
	Body    []byte
	Key     []byte // kafka partition key
	Headers []Header
	// Attributes are string metadata for brokers without binary headers
	// (pub/sub).
	Attributes  map[string]string
	OrderingKey string
	// Delay defers delivery on brokers that support it and is rejected with
	// ErrUnsupported elsewhere.
	Delay time.Duration
}

type Header struct {
	Key   string
	Value []byte
}

// PublishResult reports what the broker said about an accepted message.
type PublishResult struct {
	MessageID string
	Topic     string
	Partition int32
	Offset    int64
	Timestamp time.Time
}

// Message is a received delivery.
type Message interface {
	Body() []byte
	Key() []byte
	Headers() []Header
	Attributes() map[string]string
	ID() string
	Topic() string
	Subject() string
	Timestamp() time.Time
	Ack(ctx context.Context) error
}

// Nackable is implemented by deliveries that can be requeued.
type Nackable interface {
	Nack(ctx context.Context) error
}

// HeaderValue returns the first header named key, falling back to the
// attribute of that name, or "".
func HeaderValue(msg Message, key string) string {
	for _, h := range msg.Headers() {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return msg.Attributes()[key]
}

func validateConsume(ctx context.Context, source string, handler Handler) error {
	switch {
	case ctx.Err() != nil:
		return ctx.Err()
	case source == "":
		return ErrSourceRequired
	case handler == nil:
		return ErrHandlerRequired
	}
	return nil
}
