package ratelimit

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// BlockingLimiter remembers throttled identities in process until their retry
// time so repeated attempts do not reach the backing store.
type BlockingLimiter struct {
	inner   Limiter
	blocked *expirable.LRU[string, time.Time]
	now     func() time.Time
}

func NewBlockingLimiter(inner Limiter, size int, now func() time.Time) *BlockingLimiter {
	if size <= 0 {
		size = 10_000
	}
	if now == nil {
		now = time.Now
	}
	return &BlockingLimiter{
		inner:   inner,
		blocked: expirable.NewLRU[string, time.Time](size, nil, inner.Policy().Window),
		now:     now,
	}
}

func (l *BlockingLimiter) Policy() Policy { return l.inner.Policy() }

func (l *BlockingLimiter) Consume(ctx context.Context, identity string) Result {
	now := l.now()
	if until, ok := l.blocked.Get(identity); ok {
		if now.Before(until) {
			return Result{Outcome: Throttled, Limit: l.inner.Policy().Points, RetryAfter: until.Sub(now)}
		}
		l.blocked.Remove(identity)
	}
	res := l.inner.Consume(ctx, identity)
	if res.Outcome == Throttled && res.RetryAfter > 0 {
		l.blocked.Add(identity, now.Add(res.RetryAfter))
	}
	return res
}
