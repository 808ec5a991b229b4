package usecase

import (
	"context"
	"log/slog"
	"strings"

	"github.com/shandysiswandi/stepguard/internal/audit/entity"
	"github.com/shandysiswandi/stepguard/internal/pkg/goerror"
	"golang.org/x/sync/errgroup"
)

type ListEventsInput struct {
	Address string `validate:"omitempty,max=320"`
	Type    string `validate:"omitempty,max=64"`
	Limit   int32  `validate:"omitempty,gte=1,lte=200"`
	Offset  int32  `validate:"omitempty,gte=0"`
}

type ListEventsOutput struct {
	Events []entity.Event
	Total  int64
	Limit  int32
	Offset int32
}

func (s *Usecase) ListEvents(ctx context.Context, in ListEventsInput) (*ListEventsOutput, error) {
	ctx, span := s.startSpan(ctx, "ListEvents")
	defer span.End()

	if err := s.allow(ctx, "audit", "read"); err != nil {
		return nil, err
	}

	if err := s.validator.Validate(in); err != nil {
		return nil, goerror.NewInvalidInput(err)
	}

	if in.Limit == 0 {
		in.Limit = 50
	}

	filter := entity.EventFilter{
		Address: strings.ToLower(strings.TrimSpace(in.Address)),
		Type:    in.Type,
		Limit:   in.Limit,
		Offset:  in.Offset,
	}

	out := &ListEventsOutput{Limit: in.Limit, Offset: in.Offset}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		out.Events, err = s.repoDB.ListEvents(gctx, filter)
		return err
	})
	g.Go(func() (err error) {
		out.Total, err = s.repoDB.CountEvents(gctx, filter)
		return err
	})
	if err := g.Wait(); err != nil {
		slog.ErrorContext(ctx, "failed to repo list audit events", "error", err)
		return nil, goerror.NewServer(err)
	}

	return out, nil
}
