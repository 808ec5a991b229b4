package inbound

import (
	"github.com/samber/lo"
	"github.com/shandysiswandi/stepguard/internal/admin/entity"
	"github.com/shandysiswandi/stepguard/internal/admin/usecase"
	"github.com/shandysiswandi/stepguard/internal/pkg/config"
	"github.com/shandysiswandi/stepguard/internal/pkg/goerror"
	"github.com/shandysiswandi/stepguard/internal/pkg/router"
)

// HTTPEndpoint exposes the admin step-up flow and its administration over HTTP.
type HTTPEndpoint struct {
	uc    uc
	cfg   config.Config
	codes codeLookup
}

func (h *HTTPEndpoint) pollInterval() int {
	if n := h.cfg.GetInt("modules.admin.session.poll_interval_seconds"); n > 0 {
		return n
	}
	return 60
}

func (h *HTTPEndpoint) toSessionResponse(s entity.Session) SessionResponse {
	return SessionResponse{
		SessionID:           s.ID,
		Token:               s.Token,
		Address:             s.Address,
		DisplayName:         s.DisplayName,
		DisplayRole:         s.DisplayRole,
		Role:                s.Role,
		Level:               s.Level,
		Permissions:         s.Permissions,
		ExpiresAt:           s.ExpiresAt,
		PollIntervalSeconds: h.pollInterval(),
	}
}

// RequestChallenge runs the identity gate and sends a fresh code.
func (h *HTTPEndpoint) RequestChallenge(r *router.Request) (any, error) {
	var req ChallengeRequest
	if err := r.DecodeBody(&req); err != nil {
		return nil, err
	}

	resp, err := h.uc.RequestChallenge(r.Context(), usecase.RequestChallengeInput{Credential: req.Credential})
	if err != nil {
		return nil, err
	}

	return ChallengeResponse{
		Address:     resp.Address,
		ExpiresAt:   resp.ExpiresAt,
		MaxAttempts: resp.MaxAttempts,
		Delivery: DeliveryResponse{
			Status: string(resp.Delivery.Status),
			Reason: string(resp.Delivery.Reason),
		},
	}, nil
}

// VerifyChallenge checks the submitted code and starts a session.
func (h *HTTPEndpoint) VerifyChallenge(r *router.Request) (any, error) {
	var req VerifyChallengeRequest
	if err := r.DecodeBody(&req); err != nil {
		return nil, err
	}

	sess, err := h.uc.CompleteChallenge(r.Context(), usecase.CompleteChallengeInput{
		Credential: req.Credential,
		Code:       req.Code,
	})
	if err != nil {
		return nil, err
	}

	return h.toSessionResponse(*sess), nil
}

// Session reports the guarded session. The guard has already run by the time
// this handler is reached.
func (h *HTTPEndpoint) Session(r *router.Request) (any, error) {
	sess, ok := SessionFromContext(r.Context())
	if !ok {
		return nil, goerror.NewReason("Session not found, please sign in again", goerror.CodeUnauthorized, "logged_out")
	}

	return h.toSessionResponse(sess), nil
}

func (h *HTTPEndpoint) ExtendSession(r *router.Request) (any, error) {
	var req ExtendSessionRequest
	if err := r.DecodeBody(&req); err != nil {
		return nil, err
	}

	sess, err := h.uc.ExtendSession(r.Context(), usecase.ExtendSessionInput{ExtendMs: req.ExtendMs})
	if err != nil {
		return nil, err
	}

	return h.toSessionResponse(*sess), nil
}

func (h *HTTPEndpoint) Logout(r *router.Request) (any, error) {
	if err := h.uc.Logout(r.Context()); err != nil {
		return nil, err
	}

	return LogoutResponse{}, nil
}

func (h *HTTPEndpoint) ListMembers(r *router.Request) (any, error) {
	members, err := h.uc.ListMembers(r.Context(), usecase.ListMembersInput{
		OnlyEnabled: r.GetQuery("only_enabled") == "true",
	})
	if err != nil {
		return nil, err
	}

	return ListMembersResponse(lo.Map(members, func(m entity.Member, _ int) MemberResponse {
		return MemberResponse{
			Address:     m.Address,
			DisplayName: m.DisplayName,
			DisplayRole: m.DisplayRole,
			Role:        m.Role,
			Level:       m.Level,
			Enabled:     m.Enabled,
			UpdatedAt:   m.UpdatedAt,
		}
	})), nil
}

func (h *HTTPEndpoint) UpsertMember(r *router.Request) (any, error) {
	var req UpsertMemberRequest
	if err := r.DecodeBody(&req); err != nil {
		return nil, err
	}

	err := h.uc.UpsertMember(r.Context(), usecase.UpsertMemberInput{
		Address:     req.Address,
		DisplayName: req.DisplayName,
		DisplayRole: req.DisplayRole,
		Role:        req.Role,
		Level:       req.Level,
		Enabled:     lo.FromPtrOr(req.Enabled, true),
	})
	if err != nil {
		return nil, err
	}

	return UpsertMemberResponse{}, nil
}

func (h *HTTPEndpoint) RevokeMember(r *router.Request) (any, error) {
	if err := h.uc.RevokeMember(r.Context(), r.GetParam("address")); err != nil {
		return nil, err
	}

	return RevokeMemberResponse{}, nil
}

func (h *HTTPEndpoint) ListRolePermissions(r *router.Request) (any, error) {
	role := r.GetParam("role")
	perms, err := h.uc.ListRolePermissions(r.Context(), role)
	if err != nil {
		return nil, err
	}

	return RolePermissionsResponse{Role: role, Permissions: perms}, nil
}

func (h *HTTPEndpoint) GrantRolePermission(r *router.Request) (any, error) {
	var req RolePermissionRequest
	if err := r.DecodeBody(&req); err != nil {
		return nil, err
	}

	in := usecase.RolePermissionInput{Role: r.GetParam("role"), Permission: req.Permission}
	if err := h.uc.GrantRolePermission(r.Context(), in); err != nil {
		return nil, err
	}

	return RolePermissionResponse{Role: in.Role, Permission: in.Permission}, nil
}

func (h *HTTPEndpoint) RevokeRolePermission(r *router.Request) (any, error) {
	in := usecase.RolePermissionInput{Role: r.GetParam("role"), Permission: r.GetQuery("permission")}
	if err := h.uc.RevokeRolePermission(r.Context(), in); err != nil {
		return nil, err
	}

	return RolePermissionResponse{Role: in.Role, Permission: in.Permission}, nil
}

// DebugOTP returns the latest code recorded for ?address= in debug builds.
func (h *HTTPEndpoint) DebugOTP(r *router.Request) (any, error) {
	address := entity.NormalizeAddress(r.GetQuery("address"))
	code, expiresAt, ok := h.codes.Lookup(address)
	if !ok {
		return nil, goerror.NewBusiness("No code recorded for this address", goerror.CodeNotFound)
	}

	return DebugOTPResponse{Address: address, Code: code, ExpiresAt: expiresAt}, nil
}
