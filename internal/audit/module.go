// Package audit records the step-up events published by the admin module and
// serves them to auditors.
package audit

import (
	"context"

	"github.com/casbin/casbin/v3"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shandysiswandi/stepguard/internal/audit/inbound"
	"github.com/shandysiswandi/stepguard/internal/audit/outbound/db"
	"github.com/shandysiswandi/stepguard/internal/audit/usecase"
	"github.com/shandysiswandi/stepguard/internal/pkg/clock"
	"github.com/shandysiswandi/stepguard/internal/pkg/config"
	"github.com/shandysiswandi/stepguard/internal/pkg/goroutine"
	"github.com/shandysiswandi/stepguard/internal/pkg/instrument"
	"github.com/shandysiswandi/stepguard/internal/pkg/messaging"
	"github.com/shandysiswandi/stepguard/internal/pkg/router"
	"github.com/shandysiswandi/stepguard/internal/pkg/uid"
	"github.com/shandysiswandi/stepguard/internal/pkg/validator"
)

type Dependency struct {
	Ctx           context.Context            `validate:"required"`
	DBConn        *pgxpool.Pool              `validate:"required"`
	Enforcer      *casbin.Enforcer           `validate:"required"`
	Messaging     messaging.Messaging        `validate:"required"`
	Config        config.Config              `validate:"required"`
	Instrument    instrument.Instrumentation `validate:"required"`
	EventID       uid.NumberID               `validate:"required"`
	CorrelationID uid.StringID               `validate:"required"`
	Clock         clock.Clocker              `validate:"required"`
	Goroutine     *goroutine.Manager         `validate:"required"`
	Validator     validator.Validator        `validate:"required"`
	Router        *router.Router             `validate:"required"`
}

func New(dep Dependency) error {
	if err := dep.Validator.Validate(dep); err != nil {
		return err
	}

	uc := usecase.New(usecase.Dependency{
		RepoDB:     db.NewDB(dep.DBConn, dep.Instrument),
		Enforcer:   dep.Enforcer,
		EventID:    dep.EventID,
		Clock:      dep.Clock,
		Validator:  dep.Validator,
		Instrument: dep.Instrument,
	})

	inbound.RegisterHTTPEndpoint(dep.Router, uc)
	inbound.RegisterMQConsumer(dep.Ctx, dep.Config, dep.Goroutine, dep.Messaging, dep.CorrelationID, uc, dep.Instrument)

	return nil
}
