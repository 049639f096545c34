package quota

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	redisadapter "github.com/jasonsutter87/veilforms-api/internal/adapters/redis"
	"github.com/jasonsutter87/veilforms-api/internal/domain"
	"github.com/jasonsutter87/veilforms-api/internal/ports/out/quota"
)

// bucketTTL keeps a monthly bucket around a little past the end of its month.
const bucketTTL = 40 * 24 * time.Hour

// Counter is a Redis implementation of quota.Counter. Buckets are shared by every instance.
type Counter struct {
	client goredis.UniversalClient
	prefix string
}

func NewCounter(client goredis.UniversalClient, prefix string) *Counter {
	return &Counter{client: client, prefix: prefix}
}

func (c *Counter) key(owner domain.OwnerID, at time.Time) string {
	return redisadapter.Key(c.prefix, "quota", string(owner), quota.Period(at))
}

func (c *Counter) Current(ctx context.Context, owner domain.OwnerID, at time.Time) (int, error) {
	v, err := c.client.Get(ctx, c.key(owner, at)).Result()
	if err != nil {
		if redisadapter.IsNil(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("get quota usage: %w", err)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse quota usage: %w", err)
	}
	return n, nil
}

func (c *Counter) Increment(ctx context.Context, owner domain.OwnerID, at time.Time) (int, error) {
	key := c.key(owner, at)
	var incr *goredis.IntCmd
	_, err := c.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, bucketTTL)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("increment quota usage: %w", err)
	}
	return int(incr.Val()), nil
}
