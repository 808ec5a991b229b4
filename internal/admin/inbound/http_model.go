package inbound

import (
	"time"

	"github.com/shandysiswandi/stepguard/internal/admin/entity"
)

type ChallengeRequest struct {
	Credential string `json:"credential"`
}

type DeliveryResponse struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

type ChallengeResponse struct {
	Address     string           `json:"address"`
	ExpiresAt   time.Time        `json:"expires_at"`
	MaxAttempts int              `json:"max_attempts"`
	Delivery    DeliveryResponse `json:"delivery"`
}

func (c ChallengeResponse) Message() string {
	if c.Delivery.Status != string(entity.DeliveryStatusDelivered) {
		return "Verification code created but could not be delivered"
	}
	return "Verification code sent"
}

type VerifyChallengeRequest struct {
	Credential string `json:"credential"`
	Code       string `json:"code"`
}

type SessionResponse struct {
	SessionID           string    `json:"session_id"`
	Token               string    `json:"token,omitempty"`
	Address             string    `json:"address"`
	DisplayName         string    `json:"display_name"`
	DisplayRole         string    `json:"display_role"`
	Role                string    `json:"role"`
	Level               int       `json:"level"`
	Permissions         []string  `json:"permissions"`
	ExpiresAt           time.Time `json:"expires_at"`
	PollIntervalSeconds int       `json:"poll_interval_seconds"`
}

type ExtendSessionRequest struct {
	ExtendMs int64 `json:"extend_ms"`
}

type LogoutResponse struct{}

func (LogoutResponse) Message() string {
	return "Signed out"
}

type MemberResponse struct {
	Address     string    `json:"address"`
	DisplayName string    `json:"display_name"`
	DisplayRole string    `json:"display_role"`
	Role        string    `json:"role"`
	Level       int       `json:"level"`
	Enabled     bool      `json:"enabled"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type ListMembersResponse []MemberResponse

func (l ListMembersResponse) Meta() map[string]any {
	return map[string]any{"count": len(l)}
}

type UpsertMemberRequest struct {
	Address     string `json:"address"`
	DisplayName string `json:"display_name"`
	DisplayRole string `json:"display_role"`
	Role        string `json:"role"`
	Level       int    `json:"level"`
	Enabled     *bool  `json:"enabled"`
}

type UpsertMemberResponse struct{}

func (UpsertMemberResponse) Message() string {
	return "Member saved"
}

type RevokeMemberResponse struct{}

func (RevokeMemberResponse) Message() string {
	return "Member access revoked"
}

type RolePermissionsResponse struct {
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
}

type RolePermissionRequest struct {
	Permission string `json:"permission"`
}

type RolePermissionResponse struct {
	Role       string `json:"role"`
	Permission string `json:"permission"`
}

type DebugOTPResponse struct {
	Address   string    `json:"address"`
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
}
