package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/shandysiswandi/stepguard/internal/admin/entity"
	"github.com/shandysiswandi/stepguard/internal/pkg/goerror"
	"github.com/shandysiswandi/stepguard/internal/pkg/jwt"
	"github.com/shandysiswandi/stepguard/internal/shared/event"
)

var (
	errLoggedOut = goerror.NewReason("Session not found, please sign in again",
		goerror.CodeUnauthorized, "logged_out")
	errSessionExpired = goerror.NewReason("Session expired, please sign in again",
		goerror.CodeUnauthorized, "session_expired")
	errRoleRevoked = goerror.NewReason("Account no longer has administrator access",
		goerror.CodeForbidden, "role_revoked")
)

type IssueSessionInput struct {
	Address     string `validate:"required,email"`
	ProviderRef string
}

type ExtendSessionInput struct {
	ExtendMs int64 `validate:"required,gt=0"`
}

// IssueSession mints a session for a freshly verified address. Role and
// permissions are looked up again instead of trusting the gate's result.
func (s *Usecase) IssueSession(ctx context.Context, in IssueSessionInput) (*entity.Session, error) {
	ctx, span := s.startSpan(ctx, "IssueSession")
	defer span.End()

	if err := s.validator.Validate(in); err != nil {
		return nil, goerror.NewInvalidInput(err)
	}

	address := entity.NormalizeAddress(in.Address)
	member, err := s.activeMember(ctx, address)
	if err != nil {
		return nil, err
	}

	perms, err := s.permissionsOf(ctx, member.Role)
	if err != nil {
		return nil, err
	}

	sess, err := s.mintSession(ctx, s.sessionID.Generate(), in.ProviderRef, *member, perms, s.clock.Now().Add(s.sessionTimeout()))
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "admin session started", "address", address, "session_id", sess.ID, "role", member.Role)
	s.publish(ctx, entity.Event{
		Type:      event.SessionStarted,
		Address:   address,
		SessionID: sess.ID,
		Detail:    map[string]string{"role": member.Role, "expires_at": sess.ExpiresAt.UTC().Format(time.RFC3339)},
	})

	return sess, nil
}

// ExtendSession resets the session expiry to now+delta. The delta replaces the
// remaining lifetime instead of adding to it, and the token id is rotated so
// the previous token stops passing the guard.
func (s *Usecase) ExtendSession(ctx context.Context, in ExtendSessionInput) (*entity.Session, error) {
	ctx, span := s.startSpan(ctx, "ExtendSession")
	defer span.End()

	if err := s.validator.Validate(in); err != nil {
		return nil, goerror.NewInvalidInput(err)
	}

	delta := time.Duration(in.ExtendMs) * time.Millisecond
	minExtend := s.cfg.GetMinute("modules.admin.session.min_extend_minutes")
	maxExtend := s.cfg.GetMinute("modules.admin.session.max_extend_minutes")
	if delta < minExtend || (maxExtend > 0 && delta > maxExtend) {
		return nil, goerror.NewInvalidInput(nil, "extend_ms",
			"extend_ms must be between "+strconv.FormatInt(minExtend.Milliseconds(), 10)+
				" and "+strconv.FormatInt(maxExtend.Milliseconds(), 10))
	}

	clm := jwt.GetAuth(ctx)
	if clm == nil {
		return nil, errLoggedOut
	}

	ptr, err := s.repoCache.GetSession(ctx, clm.SessionID)
	if errors.Is(err, goerror.ErrNotFound) {
		return nil, errLoggedOut
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo get session", "session_id", clm.SessionID, "error", err)
		return nil, goerror.NewServiceUnavailable(err)
	}

	member, err := s.activeMember(ctx, clm.Address)
	if err != nil {
		return nil, err
	}

	sess, err := s.mintSession(ctx, clm.SessionID, ptr.ProviderRef, *member, clm.Permissions, s.clock.Now().Add(delta))
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "admin session extended", "address", clm.Address, "session_id", sess.ID, "expires_at", sess.ExpiresAt)
	s.publish(ctx, entity.Event{
		Type:      event.SessionExtended,
		Address:   clm.Address,
		SessionID: sess.ID,
		Detail:    map[string]string{"expires_at": sess.ExpiresAt.UTC().Format(time.RFC3339)},
	})

	return sess, nil
}

func (s *Usecase) mintSession(
	ctx context.Context,
	sid, providerRef string,
	member entity.Member,
	perms []string,
	expiresAt time.Time,
) (*entity.Session, error) {
	token, err := s.jwt.Generate(jwt.Payload{
		SessionID:   sid,
		Address:     member.Address,
		Role:        member.Role,
		Level:       member.Level,
		Permissions: perms,
	}, expiresAt)
	if err != nil {
		slog.ErrorContext(ctx, "failed to generate session token", "address", member.Address, "error", err)
		return nil, goerror.NewServer(err)
	}

	ptr := entity.SessionPointer{
		IdentityRef: member.Address,
		ProviderRef: providerRef,
		ExpiresAt:   expiresAt,
		TokenID:     token.ID,
	}
	keepUntil := expiresAt.Add(s.cfg.GetMinute("modules.admin.session.pointer_grace_minutes"))
	if err := s.repoCache.SaveSession(ctx, sid, ptr, keepUntil); err != nil {
		slog.ErrorContext(ctx, "failed to repo save session", "session_id", sid, "error", err)
		return nil, goerror.NewServiceUnavailable(err)
	}

	return &entity.Session{
		ID:          sid,
		Token:       token.Value,
		TokenID:     token.ID,
		Address:     member.Address,
		DisplayName: member.DisplayName,
		DisplayRole: member.DisplayRole,
		Role:        member.Role,
		Level:       member.Level,
		Permissions: perms,
		ExpiresAt:   expiresAt,
	}, nil
}

// GuardSession validates the persisted pointer behind clm and re-hydrates the
// member's role from the authoritative store.
func (s *Usecase) GuardSession(ctx context.Context, clm jwt.Claims) (*entity.Session, error) {
	ctx, span := s.startSpan(ctx, "GuardSession")
	defer span.End()

	ptr, err := s.repoCache.GetSession(ctx, clm.SessionID)
	if errors.Is(err, goerror.ErrNotFound) {
		return nil, errLoggedOut
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo get session", "session_id", clm.SessionID, "error", err)
		return nil, goerror.NewServiceUnavailable(err)
	}

	if ptr.TokenID != clm.ID {
		slog.WarnContext(ctx, "session token superseded", "session_id", clm.SessionID, "address", ptr.IdentityRef)
		return nil, errLoggedOut
	}

	if !ptr.Valid(s.clock.Now()) {
		s.endSession(ctx, clm.SessionID, *ptr, event.SessionExpired)
		return nil, errSessionExpired
	}

	member, err := s.repoDB.GetMember(ctx, ptr.IdentityRef)
	if errors.Is(err, goerror.ErrNotFound) || (err == nil && !member.Enabled) {
		slog.WarnContext(ctx, "session member no longer allowed", "session_id", clm.SessionID, "address", ptr.IdentityRef)
		if err := s.repoCache.DeleteSession(ctx, clm.SessionID); err != nil {
			slog.ErrorContext(ctx, "failed to repo delete session", "session_id", clm.SessionID, "error", err)
		}
		s.publish(ctx, entity.Event{Type: event.SessionRevoked, Address: ptr.IdentityRef, SessionID: clm.SessionID})
		return nil, errRoleRevoked
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo get member", "address", ptr.IdentityRef, "error", err)
		return nil, goerror.NewServiceUnavailable(err)
	}

	perms, err := s.permissionsOf(ctx, member.Role)
	if err != nil {
		return nil, err
	}

	return &entity.Session{
		ID:          clm.SessionID,
		TokenID:     ptr.TokenID,
		Address:     member.Address,
		DisplayName: member.DisplayName,
		DisplayRole: member.DisplayRole,
		Role:        member.Role,
		Level:       member.Level,
		Permissions: perms,
		ExpiresAt:   ptr.ExpiresAt,
	}, nil
}

// ExpireSession handles a token that is well-formed but past its expiry. The
// pointer is removed only when it has expired too, so a session extended by a
// newer token survives.
func (s *Usecase) ExpireSession(ctx context.Context, clm jwt.Claims) error {
	ctx, span := s.startSpan(ctx, "ExpireSession")
	defer span.End()

	ptr, err := s.repoCache.GetSession(ctx, clm.SessionID)
	if errors.Is(err, goerror.ErrNotFound) {
		return nil
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo get session", "session_id", clm.SessionID, "error", err)
		return goerror.NewServiceUnavailable(err)
	}

	if ptr.TokenID != clm.ID || ptr.Valid(s.clock.Now()) {
		return nil
	}

	s.endSession(ctx, clm.SessionID, *ptr, event.SessionExpired)
	return nil
}

// Logout ends the caller's session and signs it out at the identity provider.
func (s *Usecase) Logout(ctx context.Context) error {
	ctx, span := s.startSpan(ctx, "Logout")
	defer span.End()

	clm := jwt.GetAuth(ctx)
	if clm == nil {
		return errLoggedOut
	}

	ptr, err := s.repoCache.GetSession(ctx, clm.SessionID)
	if errors.Is(err, goerror.ErrNotFound) {
		return nil
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo get session", "session_id", clm.SessionID, "error", err)
		return goerror.NewServiceUnavailable(err)
	}

	s.endSession(ctx, clm.SessionID, *ptr, event.SessionLogout)
	return nil
}

func (s *Usecase) endSession(ctx context.Context, sid string, ptr entity.SessionPointer, eventType string) {
	if err := s.repoCache.DeleteSession(ctx, sid); err != nil {
		slog.ErrorContext(ctx, "failed to repo delete session", "session_id", sid, "error", err)
	}

	if err := s.idp.SignOut(ctx, entity.Identity{Address: ptr.IdentityRef, ProviderRef: ptr.ProviderRef}); err != nil {
		slog.ErrorContext(ctx, "failed to sign out at identity provider", "session_id", sid, "error", err)
	}

	slog.InfoContext(ctx, "admin session ended", "session_id", sid, "address", ptr.IdentityRef, "type", eventType)
	s.publish(ctx, entity.Event{Type: eventType, Address: ptr.IdentityRef, SessionID: sid})
}

func (s *Usecase) activeMember(ctx context.Context, address string) (*entity.Member, error) {
	member, err := s.repoDB.GetMember(ctx, address)
	if errors.Is(err, goerror.ErrNotFound) || (err == nil && !member.Enabled) {
		return nil, errUnauthorizedAccount()
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo get member", "address", address, "error", err)
		return nil, goerror.NewServiceUnavailable(err)
	}

	return member, nil
}
