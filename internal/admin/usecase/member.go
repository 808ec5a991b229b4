package usecase

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shandysiswandi/stepguard/internal/admin/entity"
	"github.com/shandysiswandi/stepguard/internal/pkg/goerror"
)

type UpsertMemberInput struct {
	Address     string `validate:"required,email"`
	DisplayName string `validate:"max=200"`
	DisplayRole string `validate:"max=100"`
	Role        string `validate:"required,max=64"`
	Level       int    `validate:"gte=0,lte=100"`
	Enabled     bool
}

type ListMembersInput struct {
	OnlyEnabled bool
}

func (s *Usecase) ListMembers(ctx context.Context, in ListMembersInput) ([]entity.Member, error) {
	ctx, span := s.startSpan(ctx, "ListMembers")
	defer span.End()

	if _, err := s.authorize(ctx, "members", "read"); err != nil {
		return nil, err
	}

	members, err := s.repoDB.ListMembers(ctx, in.OnlyEnabled)
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo list members", "error", err)
		return nil, goerror.NewServer(err)
	}

	return members, nil
}

// UpsertMember adds an address to the allow-list or updates its role entry.
func (s *Usecase) UpsertMember(ctx context.Context, in UpsertMemberInput) error {
	ctx, span := s.startSpan(ctx, "UpsertMember")
	defer span.End()

	clm, err := s.authorize(ctx, "members", "write")
	if err != nil {
		return err
	}

	if err := s.validator.Validate(in); err != nil {
		return goerror.NewInvalidInput(err)
	}

	perms, err := s.permissionsOf(ctx, in.Role)
	if err != nil {
		return err
	}
	if len(perms) == 0 {
		return goerror.NewInvalidInput(nil, "role", "role has no permissions defined")
	}

	m := entity.Member{
		Address:     entity.NormalizeAddress(in.Address),
		DisplayName: in.DisplayName,
		DisplayRole: in.DisplayRole,
		Role:        in.Role,
		Level:       in.Level,
		Enabled:     in.Enabled,
	}
	if err := s.repoDB.UpsertMember(ctx, m); err != nil {
		slog.ErrorContext(ctx, "failed to repo upsert member", "address", m.Address, "error", err)
		return goerror.NewServer(err)
	}

	slog.InfoContext(ctx, "member upserted", "address", m.Address, "role", m.Role, "enabled", m.Enabled, "by", clm.Address)
	return nil
}

// RevokeMember disables an address; its live sessions fail the next guard check.
func (s *Usecase) RevokeMember(ctx context.Context, address string) error {
	ctx, span := s.startSpan(ctx, "RevokeMember")
	defer span.End()

	clm, err := s.authorize(ctx, "members", "write")
	if err != nil {
		return err
	}

	address = entity.NormalizeAddress(address)
	if address == entity.NormalizeAddress(clm.Address) {
		return goerror.NewReason("Cannot revoke your own access", goerror.CodeConflict, "self_revoke")
	}

	err = s.repoDB.DisableMember(ctx, address)
	if errors.Is(err, goerror.ErrNotFound) {
		return goerror.NewBusiness("Member not found", goerror.CodeNotFound)
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo disable member", "address", address, "error", err)
		return goerror.NewServer(err)
	}

	slog.InfoContext(ctx, "member revoked", "address", address, "by", clm.Address)
	return nil
}
