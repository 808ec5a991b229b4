// Package idempotency runs an operation at most once per key within a
// window, with the key state kept in Redis so every replica sees it. The
// admin module uses it as the OTP resend cooldown.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrAlreadyInProgress = errors.New("idempotency: operation in progress")
	ErrAlreadyCompleted  = errors.New("idempotency: operation already completed")
	ErrAlreadyFailed     = errors.New("idempotency: operation already failed")
)

const (
	keyPrefix = "idempotency:"

	stateRunning   = "in_progress"
	stateCompleted = "completed"
	stateFailed    = "failed"
)

type Idempotency interface {
	// Exec runs fn unless key already has a recorded state, in which case the
	// matching ErrAlready* sentinel is returned.
	Exec(ctx context.Context, key string, fn func(context.Context) error, opts ...Option) error
}

type options struct {
	lock          time.Duration
	ttl           time.Duration
	retryOnFailed bool
}

type Option func(*options)

// WithLockDuration bounds how long a running fn holds the key.
func WithLockDuration(d time.Duration) Option {
	return func(o *options) { o.lock = d }
}

// WithStateTTL sets how long the completed or failed state is remembered.
func WithStateTTL(d time.Duration) Option {
	return func(o *options) { o.ttl = d }
}

// WithRetryOnFailure forgets the key when fn fails, so the next call runs fn
// again instead of getting ErrAlreadyFailed.
func WithRetryOnFailure() Option {
	return func(o *options) { o.retryOnFailed = true }
}

// Redis implements Idempotency with SETNX plus a state value per key.
type Redis struct {
	client redis.UniversalClient
}

func New(client redis.UniversalClient) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Exec(ctx context.Context, key string, fn func(context.Context) error, opts ...Option) error {
	o := options{lock: time.Minute, ttl: time.Minute}
	for _, opt := range opts {
		opt(&o)
	}
	o.lock = max(o.lock, time.Second)
	o.ttl = max(o.ttl, time.Second)

	key = keyPrefix + key
	if err := r.claim(ctx, key, o.lock); err != nil {
		return err
	}

	if err := fn(ctx); err != nil {
		if o.retryOnFailed {
			return errors.Join(err, r.client.Del(ctx, key).Err())
		}
		return errors.Join(err, r.client.Set(ctx, key, stateFailed, o.ttl).Err())
	}

	return r.client.Set(ctx, key, stateCompleted, o.ttl).Err()
}

func (r *Redis) claim(ctx context.Context, key string, lock time.Duration) error {
	ok, err := r.client.SetNX(ctx, key, stateRunning, lock).Result()
	if err != nil {
		return fmt.Errorf("idempotency: claim %s: %w", key, err)
	}
	if ok {
		return nil
	}

	state, err := r.client.Get(ctx, key).Result()
	switch {
	case errors.Is(err, redis.Nil):
		// Expired between SETNX and GET; another caller will win the next claim.
		return ErrAlreadyInProgress
	case err != nil:
		return fmt.Errorf("idempotency: read %s: %w", key, err)
	}

	switch state {
	case stateCompleted:
		return ErrAlreadyCompleted
	case stateFailed:
		return ErrAlreadyFailed
	default:
		return ErrAlreadyInProgress
	}
}
