package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemorySlidingWindowLimiter keeps consumption timestamps in process. It has
// the same semantics as the Redis limiter for single-instance deployments.
type MemorySlidingWindowLimiter struct {
	mu      sync.Mutex
	policy  Policy
	now     func() time.Time
	hits    map[string][]time.Time
	cleanup time.Time
}

func NewMemorySlidingWindowLimiter(policy Policy, now func() time.Time) *MemorySlidingWindowLimiter {
	if now == nil {
		now = time.Now
	}
	policy = normalizePolicy(policy)
	return &MemorySlidingWindowLimiter{
		policy:  policy,
		now:     now,
		hits:    make(map[string][]time.Time),
		cleanup: now().Add(policy.Window),
	}
}

func (l *MemorySlidingWindowLimiter) Policy() Policy { return l.policy }

func (l *MemorySlidingWindowLimiter) Consume(_ context.Context, identity string) Result {
	now := l.now()
	cutoff := now.Add(-l.policy.Window)

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.After(l.cleanup) {
		for k, hits := range l.hits {
			if len(hits) == 0 || !hits[len(hits)-1].After(cutoff) {
				delete(l.hits, k)
			}
		}
		l.cleanup = now.Add(l.policy.Window)
	}

	hits := l.hits[identity]
	pruned := hits[:0]
	for _, hit := range hits {
		if hit.After(cutoff) {
			pruned = append(pruned, hit)
		}
	}

	if len(pruned) < l.policy.Points {
		pruned = append(pruned, now)
		l.hits[identity] = pruned
		return Result{Outcome: Admitted, Limit: l.policy.Points, Remaining: l.policy.Points - len(pruned)}
	}
	l.hits[identity] = pruned

	retry := pruned[0].Add(l.policy.Window).Sub(now)
	if retry < time.Millisecond {
		retry = time.Millisecond
	}
	return Result{Outcome: Throttled, Limit: l.policy.Points, RetryAfter: retry}
}
