package inbound

import (
	"context"
	"time"

	"github.com/shandysiswandi/stepguard/internal/admin/entity"
	"github.com/shandysiswandi/stepguard/internal/admin/usecase"
	"github.com/shandysiswandi/stepguard/internal/pkg/config"
	"github.com/shandysiswandi/stepguard/internal/pkg/router"
)

type uc interface {
	RequestChallenge(ctx context.Context, in usecase.RequestChallengeInput) (*usecase.IssueChallengeOutput, error)
	CompleteChallenge(ctx context.Context, in usecase.CompleteChallengeInput) (*entity.Session, error)

	ExtendSession(ctx context.Context, in usecase.ExtendSessionInput) (*entity.Session, error)
	Logout(ctx context.Context) error

	ListMembers(ctx context.Context, in usecase.ListMembersInput) ([]entity.Member, error)
	UpsertMember(ctx context.Context, in usecase.UpsertMemberInput) error
	RevokeMember(ctx context.Context, address string) error

	ListRolePermissions(ctx context.Context, role string) ([]string, error)
	GrantRolePermission(ctx context.Context, in usecase.RolePermissionInput) error
	RevokeRolePermission(ctx context.Context, in usecase.RolePermissionInput) error
}

type codeLookup interface {
	Lookup(address string) (string, time.Time, bool)
}

// DebugOTPPath is served only by builds with the otpdebug tag.
const DebugOTPPath = "/api/v1/admin/debug/otp"

func RegisterHTTPEndpoint(r *router.Router, uc uc, cfg config.Config, codes codeLookup, debug bool) {
	end := &HTTPEndpoint{uc: uc, cfg: cfg, codes: codes}

	// Step-up (public, the credential is checked by the usecase)
	r.POST("/api/v1/admin/challenge", end.RequestChallenge)
	r.POST("/api/v1/admin/challenge/verify", end.VerifyChallenge)

	// Session (need authenticated)
	r.GET("/api/v1/admin/session", end.Session)
	r.POST("/api/v1/admin/session/extend", end.ExtendSession)
	r.POST("/api/v1/admin/session/logout", end.Logout)

	// Allow-list (need authenticated & authorization)
	r.GET("/api/v1/admin/members", end.ListMembers)
	r.PUT("/api/v1/admin/members", end.UpsertMember)
	r.DELETE("/api/v1/admin/members/:address", end.RevokeMember)

	// Role permissions (need authenticated & authorization)
	r.GET("/api/v1/admin/roles/:role/permissions", end.ListRolePermissions)
	r.POST("/api/v1/admin/roles/:role/permissions", end.GrantRolePermission)
	r.DELETE("/api/v1/admin/roles/:role/permissions", end.RevokeRolePermission)

	if debug {
		r.GET(DebugOTPPath, end.DebugOTP)
	}
}
