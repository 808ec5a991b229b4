package usecase

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shandysiswandi/stepguard/internal/admin/entity"
	"github.com/shandysiswandi/stepguard/internal/pkg/goerror"
	"github.com/shandysiswandi/stepguard/internal/shared/event"
)

func errUnauthorizedAccount() error {
	return goerror.NewReason("Unauthorized account", goerror.CodeUnauthorized, "unauthorized")
}

// Authenticate asks the identity provider to vouch for credential.
func (s *Usecase) Authenticate(ctx context.Context, credential string) (*entity.Identity, error) {
	ctx, span := s.startSpan(ctx, "Authenticate")
	defer span.End()

	if credential == "" {
		return nil, errUnauthorizedAccount()
	}

	identity, err := s.idp.Authenticate(ctx, credential)
	if errors.Is(err, entity.ErrInvalidCredential) {
		slog.WarnContext(ctx, "identity provider rejected credential", "error", err)
		return nil, errUnauthorizedAccount()
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to authenticate with identity provider", "error", err)
		return nil, goerror.NewServiceUnavailable(err)
	}

	identity.Address = entity.NormalizeAddress(identity.Address)
	return identity, nil
}

// CheckIdentity is the Identity Gate. It allows an identity only when its
// normalized address is an enabled member. Every other outcome, including a
// failed lookup, denies and signs the identity out at the provider.
func (s *Usecase) CheckIdentity(ctx context.Context, identity entity.Identity) (*entity.Member, error) {
	ctx, span := s.startSpan(ctx, "CheckIdentity")
	defer span.End()

	address := entity.NormalizeAddress(identity.Address)

	var member *entity.Member
	var err error
	if address != "" {
		member, err = s.repoDB.GetMember(ctx, address)
	}
	switch {
	case address == "":
		slog.WarnContext(ctx, "identity gate denied empty address")
	case errors.Is(err, goerror.ErrNotFound):
		slog.WarnContext(ctx, "identity gate denied unknown address", "address", address)
	case err != nil:
		slog.ErrorContext(ctx, "identity gate failed to look up member, denying", "address", address, "error", err)
	case !member.Enabled:
		slog.WarnContext(ctx, "identity gate denied disabled member", "address", address)
	default:
		return member, nil
	}

	if err := s.idp.SignOut(ctx, identity); err != nil {
		slog.ErrorContext(ctx, "failed to sign out denied identity", "address", address, "error", err)
	}
	s.publish(ctx, entity.Event{Type: event.ChallengeDenied, Address: address})

	return nil, errUnauthorizedAccount()
}
