package inbound

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shandysiswandi/stepguard/internal/admin/entity"
	"github.com/shandysiswandi/stepguard/internal/admin/usecase"
	"github.com/shandysiswandi/stepguard/internal/pkg/config"
	"github.com/shandysiswandi/stepguard/internal/pkg/goerror"
	"github.com/shandysiswandi/stepguard/internal/pkg/instrument"
	"github.com/shandysiswandi/stepguard/internal/pkg/jwt"
	"github.com/shandysiswandi/stepguard/internal/pkg/router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var expiresAt = time.Date(2026, 3, 4, 10, 10, 0, 0, time.UTC)

type fakeUsecase struct {
	issued     *usecase.IssueChallengeOutput
	session    *entity.Session
	err        error
	guardErr   error
	credential string
	code       string
	revoked    usecase.RolePermissionInput
	upserted   usecase.UpsertMemberInput
	expired    []string
}

func (f *fakeUsecase) RequestChallenge(_ context.Context, in usecase.RequestChallengeInput) (*usecase.IssueChallengeOutput, error) {
	f.credential = in.Credential
	return f.issued, f.err
}

func (f *fakeUsecase) CompleteChallenge(_ context.Context, in usecase.CompleteChallengeInput) (*entity.Session, error) {
	f.credential, f.code = in.Credential, in.Code
	return f.session, f.err
}

func (f *fakeUsecase) GuardSession(context.Context, jwt.Claims) (*entity.Session, error) {
	return f.session, f.guardErr
}

func (f *fakeUsecase) ExpireSession(_ context.Context, clm jwt.Claims) error {
	f.expired = append(f.expired, clm.SessionID)
	return nil
}

func (f *fakeUsecase) ExtendSession(context.Context, usecase.ExtendSessionInput) (*entity.Session, error) {
	return f.session, f.err
}

func (f *fakeUsecase) Logout(context.Context) error { return f.err }

func (f *fakeUsecase) ListMembers(context.Context, usecase.ListMembersInput) ([]entity.Member, error) {
	return []entity.Member{
		{Address: "admin@example.org", Role: "superadmin", Level: 1, Enabled: true},
		{Address: "auditor@example.org", Role: "auditor", Level: 3, Enabled: true},
	}, f.err
}

func (f *fakeUsecase) UpsertMember(_ context.Context, in usecase.UpsertMemberInput) error {
	f.upserted = in
	return f.err
}

func (f *fakeUsecase) RevokeMember(context.Context, string) error { return f.err }

func (f *fakeUsecase) ListRolePermissions(context.Context, string) ([]string, error) {
	return []string{"audit:read"}, f.err
}

func (f *fakeUsecase) GrantRolePermission(context.Context, usecase.RolePermissionInput) error {
	return f.err
}

func (f *fakeUsecase) RevokeRolePermission(_ context.Context, in usecase.RolePermissionInput) error {
	f.revoked = in
	return f.err
}

type fakeVerifier struct {
	claims jwt.Claims
	err    error
}

func (f *fakeVerifier) Generate(jwt.Payload, time.Time) (jwt.Token, error) {
	return jwt.Token{}, nil
}

func (f *fakeVerifier) Verify(string) (jwt.Claims, error) { return f.claims, f.err }

type fakeCodes map[string]string

func (f fakeCodes) Lookup(address string) (string, time.Time, bool) {
	code, ok := f[address]
	return code, expiresAt, ok
}

type body struct {
	Message string          `json:"message"`
	Reason  string          `json:"reason"`
	Details map[string]any  `json:"details"`
	Data    json.RawMessage `json:"data"`
	Meta    map[string]any  `json:"meta"`
}

// fields decodes an object payload.
func (b body) fields(t *testing.T) map[string]any {
	t.Helper()

	var m map[string]any
	require.NoError(t, json.Unmarshal(b.Data, &m))
	return m
}

func newTestRouter(t *testing.T, uc *fakeUsecase, v jwt.JWT, debug bool) *router.Router {
	t.Helper()

	cfg, err := config.NewViperFromBytes("yaml", []byte("modules:\n  admin:\n    session:\n      poll_interval_seconds: 30\n"))
	require.NoError(t, err)

	var public map[string][]string
	if debug {
		public = map[string][]string{http.MethodGet: {DebugOTPPath}}
	}

	r := router.NewRouter(router.Config{JWT: v, Instrument: instrument.NewNoop(), PublicEndpoints: public})
	r.UseSessionGuard(NewSessionGuard(uc))
	RegisterHTTPEndpoint(r, uc, cfg, fakeCodes{"admin@example.org": "481516"}, debug)

	return r
}

func serve(t *testing.T, r http.Handler, method, path, token string, payload any) (int, body) {
	t.Helper()

	var buf bytes.Buffer
	if payload != nil {
		switch p := payload.(type) {
		case string:
			buf.WriteString(p)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(p))
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var b body
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &b))
	}
	return rec.Code, b
}

func testSession() *entity.Session {
	return &entity.Session{
		ID:          "sid-1",
		Token:       "signed.jwt.value",
		Address:     "admin@example.org",
		DisplayName: "Ada Admin",
		DisplayRole: "Chair",
		Role:        "superadmin",
		Level:       1,
		Permissions: []string{"members:*"},
		ExpiresAt:   expiresAt,
	}
}

func TestRequestChallenge(t *testing.T) {
	tests := []struct {
		name     string
		delivery entity.Delivery
		message  string
	}{
		{
			name:     "delivered",
			delivery: entity.Delivery{Status: entity.DeliveryStatusDelivered},
			message:  "Verification code sent",
		},
		{
			name:     "delivery failed",
			delivery: entity.Delivery{Status: entity.DeliveryStatusFailed, Reason: entity.DeliveryReasonTimeout},
			message:  "Verification code created but could not be delivered",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			uc := &fakeUsecase{issued: &usecase.IssueChallengeOutput{
				Address: "admin@example.org", ExpiresAt: expiresAt, MaxAttempts: 5, Delivery: tt.delivery,
			}}
			r := newTestRouter(t, uc, &fakeVerifier{}, false)

			// Act
			code, b := serve(t, r, http.MethodPost, "/api/v1/admin/challenge", "", ChallengeRequest{Credential: "cred-admin"})

			// Assert
			assert.Equal(t, http.StatusOK, code)
			assert.Equal(t, tt.message, b.Message)
			assert.Equal(t, "cred-admin", uc.credential)
			assert.EqualValues(t, 5, b.fields(t)["max_attempts"])
			assert.Equal(t, string(tt.delivery.Status), b.fields(t)["delivery"].(map[string]any)["status"])
		})
	}
}

func TestRequestChallengeRejectsUnknownFields(t *testing.T) {
	r := newTestRouter(t, &fakeUsecase{}, &fakeVerifier{}, false)

	code, _ := serve(t, r, http.MethodPost, "/api/v1/admin/challenge", "", `{"credential":"x","role":"superadmin"}`)

	assert.Equal(t, http.StatusBadRequest, code)
}

func TestVerifyChallenge(t *testing.T) {
	// Arrange
	uc := &fakeUsecase{session: testSession()}
	r := newTestRouter(t, uc, &fakeVerifier{}, false)

	// Act
	code, b := serve(t, r, http.MethodPost, "/api/v1/admin/challenge/verify", "",
		VerifyChallengeRequest{Credential: "cred-admin", Code: "481516"})

	// Assert
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "481516", uc.code)
	assert.Equal(t, "signed.jwt.value", b.fields(t)["token"])
	assert.Equal(t, "superadmin", b.fields(t)["role"])
	assert.EqualValues(t, 30, b.fields(t)["poll_interval_seconds"])
}

func TestVerifyChallengeCarriesReason(t *testing.T) {
	uc := &fakeUsecase{err: goerror.NewReason("Invalid code", goerror.CodeUnauthorized, "invalid_code", "remaining_attempts", 3)}
	r := newTestRouter(t, uc, &fakeVerifier{}, false)

	code, b := serve(t, r, http.MethodPost, "/api/v1/admin/challenge/verify", "",
		VerifyChallengeRequest{Credential: "cred-admin", Code: "000000"})

	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "invalid_code", b.Reason)
	assert.EqualValues(t, 3, b.Details["remaining_attempts"])
}

func TestSessionUsesGuardedState(t *testing.T) {
	// Arrange
	sess := testSession()
	sess.Token = ""
	sess.Role = "auditor"
	uc := &fakeUsecase{session: sess}
	v := &fakeVerifier{claims: jwt.Claims{SessionID: "sid-1", Role: "superadmin"}}
	r := newTestRouter(t, uc, v, false)

	// Act
	code, b := serve(t, r, http.MethodGet, "/api/v1/admin/session", "tok", nil)

	// Assert
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "auditor", b.fields(t)["role"])
	assert.NotContains(t, b.fields(t), "token")
}

func TestSessionGuardRejects(t *testing.T) {
	uc := &fakeUsecase{guardErr: goerror.NewReason("Session not found", goerror.CodeUnauthorized, "logged_out")}
	r := newTestRouter(t, uc, &fakeVerifier{claims: jwt.Claims{SessionID: "sid-1"}}, false)

	code, b := serve(t, r, http.MethodPost, "/api/v1/admin/session/logout", "tok", nil)

	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "logged_out", b.Reason)
}

func TestExpiredTokenReachesUsecase(t *testing.T) {
	// Arrange
	uc := &fakeUsecase{}
	v := &fakeVerifier{claims: jwt.Claims{SessionID: "sid-7"}, err: jwt.ErrTokenExpired}
	r := newTestRouter(t, uc, v, false)

	// Act
	code, b := serve(t, r, http.MethodGet, "/api/v1/admin/session", "tok", nil)

	// Assert
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "session_expired", b.Reason)
	assert.Equal(t, []string{"sid-7"}, uc.expired)
}

func TestAdministrationEndpoints(t *testing.T) {
	uc := &fakeUsecase{session: testSession()}
	r := newTestRouter(t, uc, &fakeVerifier{claims: jwt.Claims{SessionID: "sid-1"}}, false)

	t.Run("list members", func(t *testing.T) {
		code, b := serve(t, r, http.MethodGet, "/api/v1/admin/members", "tok", nil)

		var members []MemberResponse
		require.NoError(t, json.Unmarshal(b.Data, &members))

		assert.Equal(t, http.StatusOK, code)
		assert.EqualValues(t, 2, b.Meta["count"])
		require.Len(t, members, 2)
		assert.Equal(t, "admin@example.org", members[0].Address)
		assert.Equal(t, "auditor", members[1].Role)
		assert.True(t, members[1].Enabled)
	})

	t.Run("upsert member defaults to enabled", func(t *testing.T) {
		code, b := serve(t, r, http.MethodPut, "/api/v1/admin/members", "tok",
			UpsertMemberRequest{Address: "new@example.org", Role: "auditor", Level: 3})

		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "Member saved", b.Message)
		assert.True(t, uc.upserted.Enabled)
	})

	t.Run("revoke role permission reads the query", func(t *testing.T) {
		code, b := serve(t, r, http.MethodDelete, "/api/v1/admin/roles/auditor/permissions?permission=audit:read", "tok", nil)

		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, usecase.RolePermissionInput{Role: "auditor", Permission: "audit:read"}, uc.revoked)
		assert.Equal(t, "audit:read", b.fields(t)["permission"])
	})
}

func TestDebugOTP(t *testing.T) {
	t.Run("not registered in release builds", func(t *testing.T) {
		r := newTestRouter(t, &fakeUsecase{}, &fakeVerifier{}, false)

		code, _ := serve(t, r, http.MethodGet, DebugOTPPath+"?address=admin@example.org", "", nil)

		assert.Equal(t, http.StatusNotFound, code)
	})

	t.Run("returns the recorded code", func(t *testing.T) {
		r := newTestRouter(t, &fakeUsecase{}, &fakeVerifier{}, true)

		code, b := serve(t, r, http.MethodGet, DebugOTPPath+"?address=Admin@Example.org", "", nil)

		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "481516", b.fields(t)["code"])
	})

	t.Run("unknown address", func(t *testing.T) {
		r := newTestRouter(t, &fakeUsecase{}, &fakeVerifier{}, true)

		code, _ := serve(t, r, http.MethodGet, DebugOTPPath+"?address=nobody@example.org", "", nil)

		assert.Equal(t, http.StatusNotFound, code)
	})
}
