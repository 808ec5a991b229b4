package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/shandysiswandi/stepguard/internal/audit/entity"
	"github.com/shandysiswandi/stepguard/internal/pkg/goerror"
	"github.com/shandysiswandi/stepguard/internal/pkg/instrument"
)

type ConsumeStepUpInput struct {
	Type       string `validate:"required,max=64"`
	Address    string `validate:"omitempty,max=320"`
	SessionID  string `validate:"omitempty,max=64"`
	Detail     map[string]string
	OccurredAt time.Time
}

// ConsumeStepUp stores one step-up event. Invalid events are dropped with a
// log line so the broker does not redeliver them forever.
func (s *Usecase) ConsumeStepUp(ctx context.Context, in ConsumeStepUpInput) error {
	ctx, span := s.startSpan(ctx, "ConsumeStepUp")
	defer span.End()

	if err := s.validator.Validate(in); err != nil {
		slog.WarnContext(ctx, "dropping invalid step-up event", "type", in.Type, "error", err)
		return nil
	}

	now := s.clock.Now()
	if in.OccurredAt.IsZero() {
		in.OccurredAt = now
	}

	event := entity.Event{
		ID:            s.eventID.Generate(),
		Type:          in.Type,
		Address:       in.Address,
		SessionID:     in.SessionID,
		Detail:        in.Detail,
		CorrelationID: instrument.GetCorrelationID(ctx),
		OccurredAt:    in.OccurredAt,
		RecordedAt:    now,
	}

	if err := s.repoDB.CreateEvent(ctx, event); err != nil {
		slog.ErrorContext(ctx, "failed to repo create audit event", "type", in.Type, "address", in.Address, "error", err)
		return goerror.NewServer(err)
	}

	return nil
}
