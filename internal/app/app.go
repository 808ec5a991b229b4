// Package app builds the step-up service from configuration and runs it.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/casbin/casbin/v3"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shandysiswandi/stepguard/internal/pkg/clock"
	"github.com/shandysiswandi/stepguard/internal/pkg/config"
	"github.com/shandysiswandi/stepguard/internal/pkg/goroutine"
	"github.com/shandysiswandi/stepguard/internal/pkg/hash"
	"github.com/shandysiswandi/stepguard/internal/pkg/idempotency"
	"github.com/shandysiswandi/stepguard/internal/pkg/instrument"
	"github.com/shandysiswandi/stepguard/internal/pkg/jwt"
	"github.com/shandysiswandi/stepguard/internal/pkg/mail"
	"github.com/shandysiswandi/stepguard/internal/pkg/messaging"
	"github.com/shandysiswandi/stepguard/internal/pkg/router"
	"github.com/shandysiswandi/stepguard/internal/pkg/uid"
	"github.com/shandysiswandi/stepguard/internal/pkg/validator"
)

type closer struct {
	name string
	fn   func(context.Context) error
}

// App owns every shared resource and the HTTP server.
type App struct {
	ctx    context.Context
	cancel context.CancelFunc

	config config.Config
	ins    instrument.Instrumentation

	goroutine *goroutine.Manager
	validator validator.Validator
	clock     clock.Clocker
	hmac      hash.Hash
	snowflake uid.NumberID
	uuid      uid.StringID
	jwt       jwt.JWT

	dbConn    *pgxpool.Pool
	cacheConn *redis.Client
	idemp     idempotency.Idempotency
	mail      mail.Mail
	messaging messaging.Messaging
	casbin    *casbin.Enforcer

	router     *router.Router
	httpServer *http.Server

	// closers run in reverse registration order on shutdown.
	closers []closer
}

// New connects to every backing service and registers the enabled modules.
// Resources opened before a failing step are closed again.
func New(ctx context.Context) (*App, error) {
	a := &App{}
	a.ctx, a.cancel = context.WithCancel(context.WithoutCancel(ctx))

	steps := []struct {
		name string
		run  func() error
	}{
		{"config", a.initConfig},
		{"instrument", a.initInstrument},
		{"libraries", a.initLibraries},
		{"jwt", a.initJWT},
		{"database", a.initDatabase},
		{"migration", a.initMigration},
		{"cache", a.initCache},
		{"mail", a.initMail},
		{"messaging", a.initMessaging},
		{"casbin", a.initCasbin},
		{"http server", a.initHTTPServer},
		{"modules", a.initModules},
	}

	for _, step := range steps {
		if err := step.run(); err != nil {
			a.cancel()
			a.close(context.WithoutCancel(ctx))
			return nil, fmt.Errorf("init %s: %w", step.name, err)
		}
	}

	return a, nil
}

func (a *App) onClose(name string, fn func(context.Context) error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

func (a *App) close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(ctx); err != nil {
			slog.ErrorContext(ctx, "failed to close resource", "name", c.name, "error", err)
		}
	}
	a.closers = nil
}
