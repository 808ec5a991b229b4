package inbound

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shandysiswandi/stepguard/internal/audit/usecase"
	"github.com/shandysiswandi/stepguard/internal/pkg/instrument"
	"github.com/shandysiswandi/stepguard/internal/pkg/messaging"
	"github.com/shandysiswandi/stepguard/internal/pkg/uid"
	"github.com/shandysiswandi/stepguard/internal/shared/event"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type MQHandler struct {
	uc   ucConsumer
	uuid uid.StringID
	ins  instrument.Instrumentation
}

// StepUpAudit records one step-up event. Undecodable messages are logged and
// acked; a store failure is returned so the broker redelivers.
func (h *MQHandler) StepUpAudit(ctx context.Context, msg messaging.Message) error {
	cID := messaging.HeaderValue(msg, event.HeaderCorrelationID)
	if cID == "" {
		cID = h.uuid.Generate()
	}
	ctx = instrument.SetCorrelationID(ctx, cID)

	ctx, span := h.ins.Tracer("audit.inbound.mq").Start(ctx, "StepUpAudit", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()

	m, err := event.ParseStepUp(msg.Body())
	if err != nil {
		level := slog.LevelError
		if errors.Is(err, event.ErrIncompleteStepUp) {
			level = slog.LevelWarn
		}
		slog.Log(ctx, level, "drop unreadable step-up event", "message_id", msg.ID(), "error", err)
		return nil
	}
	span.SetAttributes(attribute.String("event.type", m.Type))

	err = h.uc.ConsumeStepUp(ctx, usecase.ConsumeStepUpInput{
		Type:       m.Type,
		Address:    m.Address,
		SessionID:  m.SessionID,
		Detail:     m.Detail,
		OccurredAt: m.OccurredAt,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to store step-up event", "type", m.Type, "error", err)
	}
	return err
}
