package messaging

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

const memoryBuffer = 256

// Memory is an in-process broker for local runs and tests.
//
// Every Consume call on a source receives its own copy of each message
// published after it subscribed. Nothing is persisted, and a consumer that
// falls more than memoryBuffer messages behind loses messages.
type Memory struct {
	mu     sync.RWMutex
	subs   map[string][]chan memoryMessage
	seq    atomic.Uint64
	closed bool
}

// NewMemory returns an empty in-process broker.
func NewMemory() *Memory {
	return &Memory{subs: map[string][]chan memoryMessage{}}
}

// Close stops all consumers.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	for _, chans := range m.subs {
		for _, ch := range chans {
			close(ch)
		}
	}
	m.subs = nil
	return nil
}

// Publish delivers msg to every current consumer of destination.
func (m *Memory) Publish(ctx context.Context, destination string, msg OutgoingMessage) (PublishResult, error) {
	if err := ctx.Err(); err != nil {
		return PublishResult{}, err
	}
	if destination == "" {
		return PublishResult{}, ErrDestinationRequired
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return PublishResult{}, io.ErrClosedPipe
	}

	id := strconv.FormatUint(m.seq.Add(1), 10)
	now := time.Now()
	for _, ch := range m.subs[destination] {
		select {
		case ch <- memoryMessage{id: id, topic: destination, out: msg, at: now}:
		default:
			slog.WarnContext(ctx, "memory broker consumer is full, message dropped", "topic", destination, "message_id", id)
		}
	}

	return PublishResult{MessageID: id, Topic: destination, Timestamp: now}, nil
}

// Consume dispatches messages published to source until ctx is done or the
// broker is closed.
func (m *Memory) Consume(ctx context.Context, source string, handler Handler, _ ...ConsumeOption) error {
	if err := validateConsume(ctx, source, handler); err != nil {
		return err
	}

	ch := make(chan memoryMessage, memoryBuffer)
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return io.ErrClosedPipe
	}
	m.subs[source] = append(m.subs[source], ch)
	m.mu.Unlock()

	defer m.unsubscribe(source, ch)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			_ = runHandler(ctx, "memory", func() error { return handler(ctx, &msg) })
		}
	}
}

// Subscribed reports how many consumers are attached to source.
func (m *Memory) Subscribed(source string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subs[source])
}

func (m *Memory) unsubscribe(source string, ch chan memoryMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	chans := m.subs[source]
	for i := range chans {
		if chans[i] == ch {
			m.subs[source] = append(chans[:i], chans[i+1:]...)
			return
		}
	}
}

type memoryMessage struct {
	id    string
	topic string
	out   OutgoingMessage
	at    time.Time
}

func (m *memoryMessage) Body() []byte                  { return m.out.Body }
func (m *memoryMessage) Key() []byte                   { return m.out.Key }
func (m *memoryMessage) Headers() []Header             { return m.out.Headers }
func (m *memoryMessage) Attributes() map[string]string { return m.out.Attributes }
func (m *memoryMessage) ID() string                    { return m.id }
func (m *memoryMessage) Topic() string                 { return m.topic }
func (m *memoryMessage) Subject() string               { return m.topic }
func (m *memoryMessage) Timestamp() time.Time          { return m.at }
func (m *memoryMessage) Ack(context.Context) error     { return nil }
