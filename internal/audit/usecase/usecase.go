// Package usecase stores and lists the step-up audit trail.
package usecase

import (
	"context"
	"log/slog"

	"github.com/shandysiswandi/stepguard/internal/audit/entity"
	"github.com/shandysiswandi/stepguard/internal/pkg/clock"
	"github.com/shandysiswandi/stepguard/internal/pkg/goerror"
	"github.com/shandysiswandi/stepguard/internal/pkg/instrument"
	"github.com/shandysiswandi/stepguard/internal/pkg/jwt"
	"github.com/shandysiswandi/stepguard/internal/pkg/uid"
	"github.com/shandysiswandi/stepguard/internal/pkg/validator"
	"go.opentelemetry.io/otel/trace"
)

type repoDB interface {
	CreateEvent(ctx context.Context, e entity.Event) error
	ListEvents(ctx context.Context, f entity.EventFilter) ([]entity.Event, error)
	CountEvents(ctx context.Context, f entity.EventFilter) (int64, error)
}

type enforcer interface {
	Enforce(rvals ...any) (bool, error)
}

var (
	errUnauthenticated = goerror.NewReason("Authentication required", goerror.CodeUnauthorized, "unauthorized")
	errForbidden       = goerror.NewBusiness("Account not allowed", goerror.CodeForbidden)
)

type Usecase struct {
	repoDB    repoDB
	enforcer  enforcer
	eventID   uid.NumberID
	clock     clock.Clocker
	validator validator.Validator
	tracer    trace.Tracer
}

type Dependency struct {
	RepoDB     repoDB
	Enforcer   enforcer
	EventID    uid.NumberID
	Clock      clock.Clocker
	Validator  validator.Validator
	Instrument instrument.Instrumentation
}

func New(dep Dependency) *Usecase {
	return &Usecase{
		repoDB:    dep.RepoDB,
		enforcer:  dep.Enforcer,
		eventID:   dep.EventID,
		clock:     dep.Clock,
		validator: dep.Validator,
		tracer:    dep.Instrument.Tracer("audit.usecase"),
	}
}

func (s *Usecase) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name)
}

// allow checks the caller's role against the casbin policy for obj/act.
func (s *Usecase) allow(ctx context.Context, obj, act string) error {
	clm := jwt.GetAuth(ctx)
	if clm == nil {
		return errUnauthenticated
	}

	ok, err := s.enforcer.Enforce(clm.Role, obj, act)
	switch {
	case err != nil:
		slog.ErrorContext(ctx, "failed to enforce policy", "role", clm.Role, "object", obj, "action", act, "error", err)
		return goerror.NewServer(err)
	case !ok:
		return errForbidden
	}
	return nil
}
