package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Driver names accepted by messaging.driver.
const (
	DriverNSQ          = "nsq"
	DriverNATS         = "nats"
	DriverKafka        = "kafka"
	DriverGooglePubSub = "google-pubsub"
	DriverMemory       = "memory"
)

var ErrUnknownDriver = errors.New("messaging: unknown driver")

// FactoryOptions carries the settings of every broker; only the selected
// driver's section is read.
type FactoryOptions struct {
	NSQ    NSQConfig
	Kafka  KafkaConfig
	NATS   NATSConfig
	PubSub PubSubConfig
}

// NewFromDriver connects to the broker named by driver.
func NewFromDriver(ctx context.Context, driver string, opts FactoryOptions) (Messaging, error) {
	constructors := map[string]func() (Messaging, error){
		DriverNSQ:          func() (Messaging, error) { return NewNSQ(opts.NSQ) },
		DriverKafka:        func() (Messaging, error) { return NewKafka(opts.Kafka) },
		DriverNATS:         func() (Messaging, error) { return NewNATS(opts.NATS) },
		DriverGooglePubSub: func() (Messaging, error) { return NewPubSub(ctx, opts.PubSub) },
		DriverMemory:       func() (Messaging, error) { return NewMemory(), nil },
	}

	newBroker, ok := constructors[strings.ToLower(strings.TrimSpace(driver))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
	return newBroker()
}
