package idp

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shandysiswandi/stepguard/internal/admin/entity"
	"github.com/shandysiswandi/stepguard/internal/pkg/clock"
	"github.com/shandysiswandi/stepguard/internal/pkg/instrument"
	"go.opentelemetry.io/otel/codes"
	"google.golang.org/api/idtoken"
)

const prefixSignOut = "admin:idp:signout:"

type tokenValidator interface {
	Validate(ctx context.Context, idToken, audience string) (*idtoken.Payload, error)
}

type Config struct {
	ClientID     string
	HostedDomain string
	SignOutTTL   time.Duration
}

// Google verifies Google ID tokens. Google keeps no server-side session for
// an ID token, so sign-out is recorded locally and every token issued before
// the mark is refused.
type Google struct {
	validator tokenValidator
	client    *redis.Client
	cfg       Config
	clock     clock.Clocker
	ins       instrument.Instrumentation
}

func NewGoogle(ctx context.Context, client *redis.Client, cfg Config, clk clock.Clocker, ins instrument.Instrumentation) (*Google, error) {
	v, err := idtoken.NewValidator(ctx)
	if err != nil {
		return nil, err
	}

	return newGoogle(v, client, cfg, clk, ins), nil
}

func newGoogle(v tokenValidator, client *redis.Client, cfg Config, clk clock.Clocker, ins instrument.Instrumentation) *Google {
	if cfg.SignOutTTL <= 0 {
		cfg.SignOutTTL = 24 * time.Hour
	}

	return &Google{validator: v, client: client, cfg: cfg, clock: clk, ins: ins}
}

func (g *Google) Authenticate(ctx context.Context, credential string) (_ *entity.Identity, err error) {
	ctx, span := g.ins.Tracer("admin.outbound.idp").Start(ctx, "Authenticate")
	defer func() {
		if err != nil && !errors.Is(err, entity.ErrInvalidCredential) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	payload, err := g.validator.Validate(ctx, credential, g.cfg.ClientID)
	if err != nil {
		var uErr *url.Error
		if errors.As(err, &uErr) {
			return nil, err
		}
		return nil, errors.Join(entity.ErrInvalidCredential, err)
	}

	address, _ := payload.Claims["email"].(string)
	verified, _ := payload.Claims["email_verified"].(bool)
	if address == "" || !verified {
		return nil, errors.Join(entity.ErrInvalidCredential, errors.New("email missing or unverified"))
	}

	if hd := g.cfg.HostedDomain; hd != "" {
		claimed, _ := payload.Claims["hd"].(string)
		if !strings.EqualFold(claimed, hd) {
			return nil, errors.Join(entity.ErrInvalidCredential, errors.New("hosted domain mismatch"))
		}
	}

	mark, err := g.client.Get(ctx, prefixSignOut+payload.Subject).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	if err == nil {
		signedOutAt, _ := strconv.ParseInt(mark, 10, 64)
		if payload.IssuedAt <= signedOutAt {
			return nil, errors.Join(entity.ErrInvalidCredential, errors.New("credential issued before sign-out"))
		}
	}

	name, _ := payload.Claims["name"].(string)
	return &entity.Identity{
		Address:     address,
		DisplayName: name,
		ProviderRef: payload.Subject,
		IssuedAt:    time.Unix(payload.IssuedAt, 0).UTC(),
	}, nil
}

func (g *Google) SignOut(ctx context.Context, identity entity.Identity) error {
	ctx, span := g.ins.Tracer("admin.outbound.idp").Start(ctx, "SignOut")
	defer span.End()

	if identity.ProviderRef == "" {
		return nil
	}

	now := g.clock.Now().Unix()
	if err := g.client.Set(ctx, prefixSignOut+identity.ProviderRef, now, g.cfg.SignOutTTL).Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	return nil
}
