package inbound

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/shandysiswandi/stepguard/internal/pkg/config"
	"github.com/shandysiswandi/stepguard/internal/pkg/goroutine"
	"github.com/shandysiswandi/stepguard/internal/pkg/instrument"
	"github.com/shandysiswandi/stepguard/internal/pkg/messaging"
	"github.com/shandysiswandi/stepguard/internal/pkg/uid"
	"github.com/shandysiswandi/stepguard/internal/shared/event"
)

var (
	consumerBackoff    = 200 * time.Millisecond
	consumerMaxBackoff = 5 * time.Second
)

type consumer struct {
	// name doubles as the NSQ channel, NATS queue group, Kafka group and
	// Pub/Sub subscription.
	name    string
	topic   string
	handler messaging.Handler
}

// RegisterMQConsumer starts the consumers listed in
// modules.audit.consumer_names on routine. Unlisted consumers stay idle. A
// consumer whose Consume call fails is subscribed again after a backoff, so
// brokers that keep unacked deliveries hand them out again.
func RegisterMQConsumer(
	ctx context.Context,
	cfg config.Config,
	routine *goroutine.Manager,
	messenger messaging.Messaging,
	uuid uid.StringID,
	uc ucConsumer,
	ins instrument.Instrumentation,
) {
	h := &MQHandler{uc: uc, uuid: uuid, ins: ins}
	enabled := cfg.GetArray("modules.audit.consumer_names")
	concurrency := max(cfg.GetInt("modules.audit.consumer_concurrency"), 1)

	all := []consumer{
		{name: event.StepUpConsumerAudit, topic: event.StepUpDestination, handler: h.StepUpAudit},
	}

	for _, c := range all {
		if !slices.Contains(enabled, c.name) {
			continue
		}

		routine.Go(ctx, func(ctx context.Context) error {
			b := retry.WithCappedDuration(consumerMaxBackoff, retry.NewFibonacci(consumerBackoff))
			err := retry.Do(ctx, b, func(ctx context.Context) error {
				slog.InfoContext(ctx, "consumer started", "consumer", c.name, "topic", c.topic, "concurrency", concurrency)
				err := messenger.Consume(ctx, c.topic, c.handler,
					messaging.WithChannel(c.name),
					messaging.WithQueueGroup(c.name),
					messaging.WithGroup(c.name),
					messaging.WithSubscription(c.name),
					messaging.WithAutoAck(true),
					messaging.WithConcurrency(concurrency),
					messaging.WithMaxInFlight(concurrency),
				)
				if ctx.Err() != nil {
					return nil
				}
				slog.WarnContext(ctx, "consumer stopped, subscribing again", "consumer", c.name, "topic", c.topic, "error", err)
				return retry.RetryableError(err)
			})
			if ctx.Err() != nil {
				return nil
			}
			return err
		})
	}
}
