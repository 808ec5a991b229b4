package messaging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFromDriverUnknown(t *testing.T) {
	_, err := NewFromDriver(context.Background(), "carrier-pigeon", FactoryOptions{})
	assert.ErrorIs(t, err, ErrUnknownDriver)
}

func TestNewFromDriverValidatesConfig(t *testing.T) {
	_, err := NewFromDriver(context.Background(), DriverKafka, FactoryOptions{})
	assert.ErrorIs(t, err, ErrKafkaBrokersRequired)

	_, err = NewFromDriver(context.Background(), DriverNATS, FactoryOptions{})
	assert.ErrorIs(t, err, ErrNATSURLRequired)

	_, err = NewFromDriver(context.Background(), DriverGooglePubSub, FactoryOptions{})
	assert.ErrorIs(t, err, ErrPubSubProjectIDRequired)
}

func TestMemoryPublishConsume(t *testing.T) {
	// Arrange
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	broker := NewMemory()
	t.Cleanup(func() { _ = broker.Close() })

	got := make(chan Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- broker.Consume(ctx, "admin.stepup.events", func(_ context.Context, msg Message) error {
			got <- msg
			return nil
		})
	}()
	require.Eventually(t, func() bool { return broker.Subscribed("admin.stepup.events") == 1 }, time.Second, 5*time.Millisecond)

	// Act
	_, err := broker.Publish(ctx, "admin.stepup.events", OutgoingMessage{
		Body:    []byte(`{"type":"challenge.issued"}`),
		Headers: []Header{{Key: "cID", Value: []byte("cid-1")}},
	})
	require.NoError(t, err)

	// Assert
	select {
	case msg := <-got:
		assert.JSONEq(t, `{"type":"challenge.issued"}`, string(msg.Body()))
		assert.Equal(t, "cid-1", HeaderValue(msg, "cID"))
		assert.Equal(t, "admin.stepup.events", msg.Topic())
	case <-ctx.Done():
		t.Fatal("message not delivered")
	}

	cancel()
	assert.True(t, errors.Is(<-done, context.Canceled))
}

func TestMemoryHandlerPanicIsContained(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	broker := NewMemory()
	handled := make(chan struct{}, 2)
	go func() {
		_ = broker.Consume(ctx, "t", func(_ context.Context, msg Message) error {
			handled <- struct{}{}
			if string(msg.Body()) == "boom" {
				panic("boom")
			}
			return nil
		})
	}()
	require.Eventually(t, func() bool { return broker.Subscribed("t") == 1 }, time.Second, 5*time.Millisecond)

	_, _ = broker.Publish(ctx, "t", OutgoingMessage{Body: []byte("boom")})
	_, _ = broker.Publish(ctx, "t", OutgoingMessage{Body: []byte("ok")})

	<-handled
	<-handled
	require.NoError(t, broker.Close())
}

func TestConsumeValidation(t *testing.T) {
	broker := NewMemory()

	assert.ErrorIs(t, broker.Consume(context.Background(), "", func(context.Context, Message) error { return nil }), ErrSourceRequired)
	assert.ErrorIs(t, broker.Consume(context.Background(), "t", nil), ErrHandlerRequired)

	_, err := broker.Publish(context.Background(), "", OutgoingMessage{})
	assert.ErrorIs(t, err, ErrDestinationRequired)
}
