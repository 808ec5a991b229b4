package usecase

import (
	"context"
	"log/slog"

	"github.com/samber/lo"
	"github.com/shandysiswandi/stepguard/internal/admin/entity"
	"github.com/shandysiswandi/stepguard/internal/pkg/goerror"
)

type BootstrapInput struct {
	Addresses []string `validate:"dive,required,email"`
	Role      string   `validate:"required,max=64"`
}

// Bootstrap seeds the allow-list with in.Addresses when it holds no member
// at all, so a fresh deployment has someone who can manage it. A non-empty
// table is left untouched.
func (s *Usecase) Bootstrap(ctx context.Context, in BootstrapInput) error {
	ctx, span := s.startSpan(ctx, "Bootstrap")
	defer span.End()

	if len(in.Addresses) == 0 {
		return nil
	}
	in.Addresses = lo.Map(in.Addresses, func(a string, _ int) string { return entity.NormalizeAddress(a) })
	if err := s.validator.Validate(in); err != nil {
		return goerror.NewInvalidInput(err)
	}

	existing, err := s.repoDB.ListMembers(ctx, false)
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo list members", "error", err)
		return goerror.NewServer(err)
	}
	if len(existing) > 0 {
		slog.InfoContext(ctx, "allow-list already seeded", "members", len(existing))
		return nil
	}

	perms, err := s.permissionsOf(ctx, in.Role)
	if err != nil {
		return err
	}
	if len(perms) == 0 {
		return goerror.NewInvalidInput(nil, "role", "role has no permissions defined")
	}

	for _, address := range in.Addresses {
		m := entity.Member{
			Address: address,
			Role:    in.Role,
			Level:   1,
			Enabled: true,
		}
		if err := s.repoDB.UpsertMember(ctx, m); err != nil {
			slog.ErrorContext(ctx, "failed to repo upsert member", "address", m.Address, "error", err)
			return goerror.NewServer(err)
		}
		slog.InfoContext(ctx, "bootstrap member added", "address", m.Address, "role", m.Role)
	}

	return nil
}
