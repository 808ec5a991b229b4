package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

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

func TestExecCooldown(t *testing.T) {
	// Arrange
	ctx := context.Background()
	st := New(newRedis(t))
	calls := 0
	fn := func(context.Context) error {
		calls++
		return nil
	}

	// Act
	errFirst := st.Exec(ctx, "admin:otp:cooldown:a@example.org", fn, WithStateTTL(time.Minute))
	errSecond := st.Exec(ctx, "admin:otp:cooldown:a@example.org", fn, WithStateTTL(time.Minute))

	// Assert
	require.NoError(t, errFirst)
	assert.ErrorIs(t, errSecond, ErrAlreadyCompleted)
	assert.Equal(t, 1, calls)
}

func TestExecRetryOnFailure(t *testing.T) {
	// Arrange
	ctx := context.Background()
	st := New(newRedis(t))
	boom := errors.New("store down")
	calls := 0

	// Act
	errFirst := st.Exec(ctx, "k", func(context.Context) error { calls++; return boom }, WithRetryOnFailure())
	errSecond := st.Exec(ctx, "k", func(context.Context) error { calls++; return nil }, WithRetryOnFailure())

	// Assert
	assert.ErrorIs(t, errFirst, boom)
	assert.NoError(t, errSecond)
	assert.Equal(t, 2, calls)
}

func TestExecRecordsFailure(t *testing.T) {
	ctx := context.Background()
	st := New(newRedis(t))

	_ = st.Exec(ctx, "k", func(context.Context) error { return errors.New("x") })
	err := st.Exec(ctx, "k", func(context.Context) error { return nil })

	assert.ErrorIs(t, err, ErrAlreadyFailed)
}

func TestExecInProgress(t *testing.T) {
	ctx := context.Background()
	st := New(newRedis(t))

	var inner error
	err := st.Exec(ctx, "k", func(ctx context.Context) error {
		inner = st.Exec(ctx, "k", func(context.Context) error { return nil })
		return nil
	})

	require.NoError(t, err)
	assert.ErrorIs(t, inner, ErrAlreadyInProgress)
}
