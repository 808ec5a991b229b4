package inbound

import (
	"context"

	"github.com/shandysiswandi/stepguard/internal/audit/usecase"
)

// ucConsumer is what the broker side needs; uc adds the HTTP queries.
type (
	ucConsumer interface {
		ConsumeStepUp(ctx context.Context, in usecase.ConsumeStepUpInput) error
	}

	uc interface {
		ucConsumer
		ListEvents(ctx context.Context, in usecase.ListEventsInput) (*usecase.ListEventsOutput, error)
	}
)
