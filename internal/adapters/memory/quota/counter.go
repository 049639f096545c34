package quota

import (
	"context"
	"sync"
	"time"

	"github.com/jasonsutter87/veilforms-api/internal/domain"
	"github.com/jasonsutter87/veilforms-api/internal/ports/out/quota"
)

type bucket struct {
	owner  domain.OwnerID
	period string
}

// Counter is an in-memory implementation of quota.Counter.
// It is safe for concurrent use.
type Counter struct {
	mu sync.Mutex
	m  map[bucket]int
}

func NewCounter() *Counter {
	return &Counter{m: make(map[bucket]int)}
}

func (c *Counter) Current(ctx context.Context, owner domain.OwnerID, at time.Time) (int, error) {
	_ = ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.m[bucket{owner, quota.Period(at)}], nil
}

func (c *Counter) Increment(ctx context.Context, owner domain.OwnerID, at time.Time) (int, error) {
	_ = ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	b := bucket{owner, quota.Period(at)}
	c.m[b]++
	return c.m[b], nil
}

// Set overrides the counter for tests.
func (c *Counter) Set(owner domain.OwnerID, at time.Time, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[bucket{owner, quota.Period(at)}] = n
}
