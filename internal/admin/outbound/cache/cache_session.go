package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shandysiswandi/stepguard/internal/admin/entity"
	"github.com/shandysiswandi/stepguard/internal/pkg/goerror"
)

func (c *Cache) SaveSession(ctx context.Context, sid string, p entity.SessionPointer, keepUntil time.Time) (err error) {
	ctx, span := c.startSpan(ctx, "SaveSession")
	defer func() { c.endSpan(span, err) }()

	body, err := json.Marshal(p)
	if err != nil {
		return err
	}

	return c.client.SetArgs(ctx, prefixSession+sid, body, redis.SetArgs{ExpireAt: keepUntil}).Err()
}

func (c *Cache) GetSession(ctx context.Context, sid string) (_ *entity.SessionPointer, err error) {
	ctx, span := c.startSpan(ctx, "GetSession")
	defer func() { c.endSpan(span, err) }()

	body, err := c.client.Get(ctx, prefixSession+sid).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, goerror.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var p entity.SessionPointer
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, err
	}

	return &p, nil
}

func (c *Cache) DeleteSession(ctx context.Context, sid string) (err error) {
	ctx, span := c.startSpan(ctx, "DeleteSession")
	defer func() { c.endSpan(span, err) }()

	return c.client.Del(ctx, prefixSession+sid).Err()
}
