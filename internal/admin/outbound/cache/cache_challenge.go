package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-retry"
	"github.com/shandysiswandi/stepguard/internal/admin/entity"
	"github.com/shandysiswandi/stepguard/internal/pkg/goerror"
)

const updateBudget = 3 * time.Second

// challengeRecord is the redis hash layout of a challenge. Times are unix
// milliseconds.
type challengeRecord struct {
	Address        string `redis:"address"`
	CodeHash       string `redis:"code_hash"`
	ExpiresAt      int64  `redis:"expires_at"`
	Consumed       bool   `redis:"consumed"`
	ConsumedReason string `redis:"consumed_reason"`
	AttemptCount   int    `redis:"attempt_count"`
	IssuedAt       int64  `redis:"issued_at"`
}

func toRecord(c entity.Challenge) challengeRecord {
	return challengeRecord{
		Address:        c.Address,
		CodeHash:       c.CodeHash,
		ExpiresAt:      c.ExpiresAt.UnixMilli(),
		Consumed:       c.Consumed,
		ConsumedReason: string(c.ConsumedReason),
		AttemptCount:   c.AttemptCount,
		IssuedAt:       c.IssuedAt.UnixMilli(),
	}
}

func (r challengeRecord) toEntity() entity.Challenge {
	return entity.Challenge{
		Address:        r.Address,
		CodeHash:       r.CodeHash,
		ExpiresAt:      time.UnixMilli(r.ExpiresAt).UTC(),
		Consumed:       r.Consumed,
		ConsumedReason: entity.ConsumedReason(r.ConsumedReason),
		AttemptCount:   r.AttemptCount,
		IssuedAt:       time.UnixMilli(r.IssuedAt).UTC(),
	}
}

func readChallenge(cmd *redis.MapStringStringCmd) (*entity.Challenge, error) {
	vals, err := cmd.Result()
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, goerror.ErrNotFound
	}

	var rec challengeRecord
	if err := cmd.Scan(&rec); err != nil {
		return nil, err
	}

	ch := rec.toEntity()
	return &ch, nil
}

// SaveChallenge replaces whatever challenge address had. The key outlives the
// challenge's own expiry until keepUntil so late attempts still see it.
func (c *Cache) SaveChallenge(ctx context.Context, ch entity.Challenge, keepUntil time.Time) (err error) {
	ctx, span := c.startSpan(ctx, "SaveChallenge")
	defer func() { c.endSpan(span, err) }()

	key := prefixChallenge + ch.Address
	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, toRecord(ch))
		pipe.PExpireAt(ctx, key, keepUntil)
		return nil
	})

	return err
}

func (c *Cache) GetChallenge(ctx context.Context, address string) (_ *entity.Challenge, err error) {
	ctx, span := c.startSpan(ctx, "GetChallenge")
	defer func() { c.endSpan(span, err) }()

	return readChallenge(c.client.HGetAll(ctx, prefixChallenge+address))
}

// UpdateChallenge runs fn under WATCH so concurrent verifications of the same
// challenge serialize. A lost race reruns fn against the fresh state.
func (c *Cache) UpdateChallenge(ctx context.Context, address string, fn func(*entity.Challenge) bool) (err error) {
	ctx, span := c.startSpan(ctx, "UpdateChallenge")
	defer func() { c.endSpan(span, err) }()

	key := prefixChallenge + address
	txf := func(tx *redis.Tx) error {
		ch, err := readChallenge(tx.HGetAll(ctx, key))
		if err != nil {
			return err
		}

		if !fn(ch) {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, toRecord(*ch))
			return nil
		})
		return err
	}

	// one writer wins each contended round; losers retry until updateBudget
	b := retry.WithMaxDuration(updateBudget,
		retry.WithJitterPercent(50, retry.WithCappedDuration(50*time.Millisecond, retry.NewExponential(2*time.Millisecond))))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := c.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			return retry.RetryableError(err)
		}
		return err
	})
}
