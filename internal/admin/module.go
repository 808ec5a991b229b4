package admin

import (
	"cmp"
	"context"

	"github.com/casbin/casbin/v3"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shandysiswandi/stepguard/internal/admin/inbound"
	"github.com/shandysiswandi/stepguard/internal/admin/outbound/cache"
	"github.com/shandysiswandi/stepguard/internal/admin/outbound/db"
	"github.com/shandysiswandi/stepguard/internal/admin/outbound/devcode"
	"github.com/shandysiswandi/stepguard/internal/admin/outbound/email"
	"github.com/shandysiswandi/stepguard/internal/admin/outbound/idp"
	"github.com/shandysiswandi/stepguard/internal/admin/outbound/mq"
	"github.com/shandysiswandi/stepguard/internal/admin/usecase"
	"github.com/shandysiswandi/stepguard/internal/pkg/clock"
	"github.com/shandysiswandi/stepguard/internal/pkg/config"
	"github.com/shandysiswandi/stepguard/internal/pkg/goroutine"
	"github.com/shandysiswandi/stepguard/internal/pkg/hash"
	"github.com/shandysiswandi/stepguard/internal/pkg/idempotency"
	"github.com/shandysiswandi/stepguard/internal/pkg/instrument"
	"github.com/shandysiswandi/stepguard/internal/pkg/jwt"
	"github.com/shandysiswandi/stepguard/internal/pkg/mail"
	"github.com/shandysiswandi/stepguard/internal/pkg/messaging"
	"github.com/shandysiswandi/stepguard/internal/pkg/otp"
	"github.com/shandysiswandi/stepguard/internal/pkg/router"
	"github.com/shandysiswandi/stepguard/internal/pkg/uid"
	"github.com/shandysiswandi/stepguard/internal/pkg/validator"
)

// DebugEndpoints lists the routes that skip authentication in debug builds.
func DebugEndpoints() map[string][]string {
	if !devcode.Enabled {
		return nil
	}
	return map[string][]string{"GET": {inbound.DebugOTPPath}}
}

type Dependency struct {
	Ctx         context.Context            `validate:"required"`
	DBConn      *pgxpool.Pool              `validate:"required"`
	CacheConn   *redis.Client              `validate:"required"`
	Goroutine   *goroutine.Manager         `validate:"required"`
	Enforcer    *casbin.Enforcer           `validate:"required"`
	Router      *router.Router             `validate:"required"`
	Idempotency idempotency.Idempotency    `validate:"required"`
	Messaging   messaging.Messaging        `validate:"required"`
	Config      config.Config              `validate:"required"`
	Instrument  instrument.Instrumentation `validate:"required"`
	SessionID   uid.StringID               `validate:"required"`
	HMAC        hash.Hash                  `validate:"required"`
	Clock       clock.Clocker              `validate:"required"`
	Validator   validator.Validator        `validate:"required"`
	JWT         jwt.JWT                    `validate:"required"`

	// Mail may be nil; codes are then reported as skipped/misconfigured.
	Mail mail.Mail
}

func New(dep Dependency) error {
	if err := dep.Validator.Validate(dep); err != nil {
		return err
	}

	numeric, err := otp.NewNumeric(6)
	if err != nil {
		return err
	}

	google, err := idp.NewGoogle(dep.Ctx, dep.CacheConn, idp.Config{
		ClientID:     dep.Config.GetString("idp.google.client_id"),
		HostedDomain: dep.Config.GetString("idp.google.hosted_domain"),
		SignOutTTL:   dep.Config.GetMinute("idp.signout_ttl_minutes"),
	}, dep.Clock, dep.Instrument)
	if err != nil {
		return err
	}

	notifier, err := email.New(dep.Mail, email.Config{
		From:    dep.Config.GetString("mail.from"),
		Subject: dep.Config.GetString("modules.admin.notifier.subject"),
		OrgName: dep.Config.GetString("modules.admin.notifier.org_name"),
		Timeout: dep.Config.GetSecond("modules.admin.notifier.timeout_seconds"),
	}, dep.Instrument)
	if err != nil {
		return err
	}

	sink := devcode.New(dep.Clock)

	uc := usecase.New(usecase.Dependency{
		RepoDB:        db.NewDB(dep.DBConn, dep.Instrument),
		RepoCache:     cache.NewCache(dep.CacheConn, dep.Instrument),
		RepoMessaging: mq.NewMessaging(dep.Messaging, dep.Instrument),
		IdentityProv:  google,
		Notifier:      notifier,
		CodeSink:      sink,
		Enforcer:      dep.Enforcer,
		Idempotency:   dep.Idempotency,
		Validator:     dep.Validator,
		Config:        dep.Config,
		HMAC:          dep.HMAC,
		OTP:           numeric,
		SessionID:     dep.SessionID,
		Clock:         dep.Clock,
		JWT:           dep.JWT,
		Instrument:    dep.Instrument,
		Goroutine:     dep.Goroutine,
	})

	if err := uc.Bootstrap(dep.Ctx, usecase.BootstrapInput{
		Addresses: dep.Config.GetArray("modules.admin.bootstrap.members"),
		Role:      cmp.Or(dep.Config.GetString("modules.admin.bootstrap.role"), "superadmin"),
	}); err != nil {
		return err
	}

	dep.Router.UseSessionGuard(inbound.NewSessionGuard(uc))
	inbound.RegisterHTTPEndpoint(dep.Router, uc, dep.Config, sink, devcode.Enabled)

	return nil
}
