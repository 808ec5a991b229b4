package idp

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shandysiswandi/stepguard/internal/admin/entity"
	"github.com/shandysiswandi/stepguard/internal/pkg/instrument"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"google.golang.org/api/idtoken"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type fakeValidator struct {
	payload *idtoken.Payload
	err     error
}

func (f *fakeValidator) Validate(_ context.Context, _, audience string) (*idtoken.Payload, error) {
	if f.err != nil {
		return nil, f.err
	}
	if audience != "client-1" {
		return nil, errors.New("audience mismatch")
	}
	return f.payload, nil
}

func newRedis(t *testing.T) *redis.Client {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping redis container test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	ctr, err := tcredis.Run(ctx, "redis:7-alpine")
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	uri, err := ctr.ConnectionString(ctx)
	require.NoError(t, err)
	opt, err := redis.ParseURL(uri)
	require.NoError(t, err)

	client := redis.NewClient(opt)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func payload(issuedAt time.Time, claims map[string]any) *idtoken.Payload {
	return &idtoken.Payload{Subject: "sub-1", IssuedAt: issuedAt.Unix(), Claims: claims}
}

func TestAuthenticate(t *testing.T) {
	client := newRedis(t)
	issued := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	verified := map[string]any{"email": "Admin@Example.org", "email_verified": true, "name": "Ada", "hd": "example.org"}

	tests := []struct {
		name        string
		validator   *fakeValidator
		hd          string
		wantInvalid bool
		wantErr     bool
	}{
		{name: "valid", validator: &fakeValidator{payload: payload(issued, verified)}, hd: "example.org"},
		{
			name:        "unverified email",
			validator:   &fakeValidator{payload: payload(issued, map[string]any{"email": "a@example.org", "email_verified": false})},
			wantInvalid: true, wantErr: true,
		},
		{
			name:        "other hosted domain",
			validator:   &fakeValidator{payload: payload(issued, verified)},
			hd:          "example.com",
			wantInvalid: true, wantErr: true,
		},
		{name: "bad signature", validator: &fakeValidator{err: errors.New("invalid signature")}, wantInvalid: true, wantErr: true},
		{name: "certs unreachable", validator: &fakeValidator{err: &url.Error{Op: "Get", Err: errors.New("dial tcp")}}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			g := newGoogle(tt.validator, client, Config{ClientID: "client-1", HostedDomain: tt.hd}, fixedClock{now: issued}, instrument.NewNoop())

			// Act
			id, err := g.Authenticate(context.Background(), "token")

			// Assert
			if !tt.wantErr {
				require.NoError(t, err)
				assert.Equal(t, "Admin@Example.org", id.Address)
				assert.Equal(t, "Ada", id.DisplayName)
				assert.Equal(t, "sub-1", id.ProviderRef)
				assert.Equal(t, issued, id.IssuedAt)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantInvalid, errors.Is(err, entity.ErrInvalidCredential))
		})
	}
}

func TestSignOutRefusesEarlierTokens(t *testing.T) {
	// Arrange
	client := newRedis(t)
	issued := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	claims := map[string]any{"email": "admin@example.org", "email_verified": true}
	v := &fakeValidator{payload: payload(issued, claims)}
	g := newGoogle(v, client, Config{ClientID: "client-1"}, fixedClock{now: issued.Add(time.Minute)}, instrument.NewNoop())
	ctx := context.Background()

	// Act
	errSignOut := g.SignOut(ctx, entity.Identity{Address: "admin@example.org", ProviderRef: "sub-1"})
	_, errOld := g.Authenticate(ctx, "token")
	v.payload = payload(issued.Add(2*time.Minute), claims)
	_, errNew := g.Authenticate(ctx, "token")

	// Assert
	require.NoError(t, errSignOut)
	assert.ErrorIs(t, errOld, entity.ErrInvalidCredential)
	assert.NoError(t, errNew)
	assert.Greater(t, client.TTL(ctx, prefixSignOut+"sub-1").Val(), time.Hour)
}
