package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/shandysiswandi/stepguard/internal/admin/entity"
	"github.com/shandysiswandi/stepguard/internal/pkg/clock"
	"github.com/shandysiswandi/stepguard/internal/pkg/config"
	"github.com/shandysiswandi/stepguard/internal/pkg/goerror"
	"github.com/shandysiswandi/stepguard/internal/pkg/goroutine"
	"github.com/shandysiswandi/stepguard/internal/pkg/hash"
	"github.com/shandysiswandi/stepguard/internal/pkg/idempotency"
	"github.com/shandysiswandi/stepguard/internal/pkg/instrument"
	"github.com/shandysiswandi/stepguard/internal/pkg/jwt"
	"github.com/shandysiswandi/stepguard/internal/pkg/otp"
	"github.com/shandysiswandi/stepguard/internal/pkg/uid"
	"github.com/shandysiswandi/stepguard/internal/pkg/validator"
	"go.opentelemetry.io/otel/trace"
)

type repoDB interface {
	GetMember(ctx context.Context, address string) (*entity.Member, error)
	ListMembers(ctx context.Context, onlyEnabled bool) ([]entity.Member, error)
	UpsertMember(ctx context.Context, m entity.Member) error
	DisableMember(ctx context.Context, address string) error
}

type repoCache interface {
	SaveChallenge(ctx context.Context, c entity.Challenge, keepUntil time.Time) error
	GetChallenge(ctx context.Context, address string) (*entity.Challenge, error)
	// UpdateChallenge loads the challenge, applies fn and persists the result
	// atomically when fn returns true. fn may run more than once on conflicts.
	UpdateChallenge(ctx context.Context, address string, fn func(c *entity.Challenge) bool) error

	SaveSession(ctx context.Context, sid string, p entity.SessionPointer, keepUntil time.Time) error
	GetSession(ctx context.Context, sid string) (*entity.SessionPointer, error)
	DeleteSession(ctx context.Context, sid string) error
}

type repoMessaging interface {
	PublishStepUp(ctx context.Context, e entity.Event) error
}

type identityProvider interface {
	Authenticate(ctx context.Context, credential string) (*entity.Identity, error)
	SignOut(ctx context.Context, identity entity.Identity) error
}

type notifier interface {
	Send(ctx context.Context, address string, params map[string]string) (entity.Delivery, error)
}

// codeSink receives plaintext codes in debug builds; release builds get a no-op.
type codeSink interface {
	Record(ctx context.Context, address, code string, expiresAt time.Time)
}

type enforcer interface {
	Enforce(rvals ...any) (bool, error)
	GetImplicitPermissionsForUser(user string, domain ...string) ([][]string, error)
	GetPermissionsForUser(user string, domain ...string) ([][]string, error)
	AddPermissionForUser(user string, permission ...string) (bool, error)
	DeletePermissionForUser(user string, permission ...string) (bool, error)
}

type Usecase struct {
	repoDB        repoDB
	repoCache     repoCache
	repoMessaging repoMessaging
	idp           identityProvider
	notifier      notifier
	codeSink      codeSink
	enforcer      enforcer
	idemp         idempotency.Idempotency
	validator     validator.Validator
	cfg           config.Config
	hmac          hash.Hash
	otp           otp.Generator
	sessionID     uid.StringID
	clock         clock.Clocker
	jwt           jwt.JWT
	ins           instrument.Instrumentation
	goroutine     *goroutine.Manager
}

type Dependency struct {
	RepoDB        repoDB
	RepoCache     repoCache
	RepoMessaging repoMessaging
	IdentityProv  identityProvider
	Notifier      notifier
	CodeSink      codeSink
	Enforcer      enforcer
	Idempotency   idempotency.Idempotency
	Validator     validator.Validator
	Config        config.Config
	HMAC          hash.Hash
	OTP           otp.Generator
	SessionID     uid.StringID
	Clock         clock.Clocker
	JWT           jwt.JWT
	Instrument    instrument.Instrumentation
	Goroutine     *goroutine.Manager
}

func New(dep Dependency) *Usecase {
	return &Usecase{
		repoDB:        dep.RepoDB,
		repoCache:     dep.RepoCache,
		repoMessaging: dep.RepoMessaging,
		idp:           dep.IdentityProv,
		notifier:      dep.Notifier,
		codeSink:      dep.CodeSink,
		enforcer:      dep.Enforcer,
		idemp:         dep.Idempotency,
		validator:     dep.Validator,
		cfg:           dep.Config,
		hmac:          dep.HMAC,
		otp:           dep.OTP,
		sessionID:     dep.SessionID,
		clock:         dep.Clock,
		jwt:           dep.JWT,
		ins:           dep.Instrument,
		goroutine:     dep.Goroutine,
	}
}

func (s *Usecase) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.ins.Tracer("admin.usecase").Start(ctx, name)
}

func (s *Usecase) maxAttempts() int {
	if n := s.cfg.GetInt("modules.admin.otp.max_attempts"); n > 0 {
		return n
	}
	return 5
}

func (s *Usecase) otpTTL() time.Duration {
	if d := s.cfg.GetMinute("modules.admin.otp.ttl_minutes"); d > 0 {
		return d
	}
	return 10 * time.Minute
}

// challengeRetention is how long a challenge outlives its expiry so a late
// verify still reports it as expired. Never below a day.
func (s *Usecase) challengeRetention() time.Duration {
	return max(s.cfg.GetMinute("modules.admin.otp.retention_minutes"), 24*time.Hour)
}

func (s *Usecase) sessionTimeout() time.Duration {
	if d := s.cfg.GetMinute("modules.admin.session.timeout_minutes"); d > 0 {
		return d
	}
	return 60 * time.Minute
}

// publish hands an audit event to the broker without holding up the caller.
func (s *Usecase) publish(ctx context.Context, e entity.Event) {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = s.clock.Now()
	}
	if ip := instrument.GetClientIP(ctx); ip != "" {
		if e.Detail == nil {
			e.Detail = make(map[string]string, 1)
		}
		e.Detail["client_ip"] = ip
	}

	s.goroutine.Go(context.WithoutCancel(ctx), func(ctx context.Context) error {
		if err := s.repoMessaging.PublishStepUp(ctx, e); err != nil {
			slog.WarnContext(ctx, "failed to publish step-up event", "type", e.Type, "address", e.Address, "error", err)
		}
		return nil
	})
}

// authorize checks the session claims in ctx against obj/act.
func (s *Usecase) authorize(ctx context.Context, obj, act string) (*jwt.Claims, error) {
	clm := jwt.GetAuth(ctx)
	if clm == nil {
		return nil, goerror.NewReason("Authentication required", goerror.CodeUnauthorized, "unauthorized")
	}

	ok, err := s.enforcer.Enforce(clm.Role, obj, act)
	if err != nil {
		slog.ErrorContext(ctx, "failed to check authorization", "address", clm.Address, "role", clm.Role, "error", err)
		return nil, goerror.NewServer(err)
	}

	if !ok {
		return nil, goerror.NewBusiness("Account not allowed", goerror.CodeForbidden)
	}

	return clm, nil
}
