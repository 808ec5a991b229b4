package app

import (
	"fmt"

	"github.com/shandysiswandi/stepguard/internal/admin"
	"github.com/shandysiswandi/stepguard/internal/audit"
)

func (a *App) initModules() error {
	if a.config.GetBool("modules.admin.enabled") {
		err := admin.New(admin.Dependency{
			Ctx:         a.ctx,
			DBConn:      a.dbConn,
			CacheConn:   a.cacheConn,
			Goroutine:   a.goroutine,
			Enforcer:    a.casbin,
			Router:      a.router,
			Idempotency: a.idemp,
			Messaging:   a.messaging,
			Config:      a.config,
			Instrument:  a.ins,
			SessionID:   a.uuid,
			HMAC:        a.hmac,
			Clock:       a.clock,
			Validator:   a.validator,
			JWT:         a.jwt,
			Mail:        a.mail,
		})
		if err != nil {
			return fmt.Errorf("admin: %w", err)
		}
	}

	if a.config.GetBool("modules.audit.enabled") {
		err := audit.New(audit.Dependency{
			Ctx:           a.ctx,
			DBConn:        a.dbConn,
			Enforcer:      a.casbin,
			Messaging:     a.messaging,
			Config:        a.config,
			Instrument:    a.ins,
			EventID:       a.snowflake,
			CorrelationID: a.uuid,
			Clock:         a.clock,
			Goroutine:     a.goroutine,
			Validator:     a.validator,
			Router:        a.router,
		})
		if err != nil {
			return fmt.Errorf("audit: %w", err)
		}
	}

	return nil
}
