package mq

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shandysiswandi/stepguard/internal/admin/entity"
	"github.com/shandysiswandi/stepguard/internal/pkg/instrument"
	"github.com/shandysiswandi/stepguard/internal/pkg/messaging"
	"github.com/shandysiswandi/stepguard/internal/shared/event"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Messaging publishes step-up events keyed by admin address, so brokers that
// partition or order by key keep one admin's events in sequence.
type Messaging struct {
	client messaging.Messaging
	tracer trace.Tracer
}

func NewMessaging(client messaging.Messaging, ins instrument.Instrumentation) *Messaging {
	return &Messaging{client: client, tracer: ins.Tracer("admin.outbound.mq")}
}

func (m *Messaging) PublishStepUp(ctx context.Context, e entity.Event) (err error) {
	ctx, span := m.tracer.Start(ctx, "PublishStepUp", trace.WithSpanKind(trace.SpanKindProducer))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()
	span.SetAttributes(
		attribute.String("event.type", e.Type),
		attribute.String("messaging.destination.name", event.StepUpDestination),
	)

	body, err := json.Marshal(event.StepUpMessage{
		Type:       e.Type,
		Address:    e.Address,
		SessionID:  e.SessionID,
		Detail:     e.Detail,
		OccurredAt: e.OccurredAt,
	})
	if err != nil {
		return fmt.Errorf("encode %s: %w", e.Type, err)
	}

	res, err := m.client.Publish(ctx, event.StepUpDestination, messaging.OutgoingMessage{
		Body:        body,
		Key:         []byte(e.Address),
		OrderingKey: e.Address,
		Headers: []messaging.Header{
			{Key: event.HeaderCorrelationID, Value: []byte(instrument.GetCorrelationID(ctx))},
			{Key: event.HeaderEventType, Value: []byte(e.Type)},
		},
	})
	if err != nil {
		return err
	}

	span.SetAttributes(attribute.String("messaging.message.id", res.MessageID))
	return nil
}
