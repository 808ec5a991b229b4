package inbound

import (
	"context"

	"github.com/shandysiswandi/stepguard/internal/admin/entity"
	"github.com/shandysiswandi/stepguard/internal/pkg/jwt"
)

type guardUsecase interface {
	GuardSession(ctx context.Context, clm jwt.Claims) (*entity.Session, error)
	ExpireSession(ctx context.Context, clm jwt.Claims) error
}

type sessionContextKey struct{}

// SessionGuard plugs the admin session check into the router. Every
// authenticated request carries fresh role and permissions afterwards, so a
// role change applies without the client re-authenticating.
type SessionGuard struct {
	uc guardUsecase
}

func NewSessionGuard(uc guardUsecase) *SessionGuard {
	return &SessionGuard{uc: uc}
}

func (g *SessionGuard) Guard(ctx context.Context, clm jwt.Claims) (context.Context, error) {
	sess, err := g.uc.GuardSession(ctx, clm)
	if err != nil {
		return ctx, err
	}

	clm.Role = sess.Role
	clm.Level = sess.Level
	clm.Permissions = sess.Permissions
	ctx = jwt.SetAuth(ctx, clm)

	return context.WithValue(ctx, sessionContextKey{}, *sess), nil
}

func (g *SessionGuard) Expire(ctx context.Context, clm jwt.Claims) error {
	return g.uc.ExpireSession(ctx, clm)
}

// SessionFromContext returns the session the guard admitted, if any.
func SessionFromContext(ctx context.Context) (entity.Session, bool) {
	sess, ok := ctx.Value(sessionContextKey{}).(entity.Session)
	return sess, ok
}
