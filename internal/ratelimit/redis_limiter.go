package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Each member of the sorted set is one consumption scored by its unix-ms
// timestamp. Returns {admitted, remaining, retryAfterMs}.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local points = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
if count < points then
  redis.call('ZADD', key, now, ARGV[4])
  redis.call('PEXPIRE', key, window)
  return {1, points - count - 1, 0}
end

local retry = window
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if oldest[2] then
  retry = tonumber(oldest[2]) + window - now
end
if retry < 1 then
  retry = 1
end
return {0, 0, retry}
`)

type RedisSlidingWindowLimiter struct {
	client  redis.UniversalClient
	policy  Policy
	prefix  string
	timeout time.Duration
	now     func() time.Time
}

func NewRedisSlidingWindowLimiter(client redis.UniversalClient, policy Policy, prefix string, timeout time.Duration, now func() time.Time) *RedisSlidingWindowLimiter {
	if now == nil {
		now = time.Now
	}
	return &RedisSlidingWindowLimiter{
		client:  client,
		policy:  normalizePolicy(policy),
		prefix:  prefix,
		timeout: timeout,
		now:     now,
	}
}

func (l *RedisSlidingWindowLimiter) Policy() Policy { return l.policy }

func (l *RedisSlidingWindowLimiter) Consume(ctx context.Context, identity string) Result {
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}
	nowMs := l.now().UnixMilli()
	raw, err := slidingWindowScript.Run(ctx, l.client,
		[]string{l.key(identity)},
		nowMs, l.policy.Window.Milliseconds(), l.policy.Points, uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return Result{Outcome: StoreUnavailable, Limit: l.policy.Points, Err: fmt.Errorf("consume %s: %w", l.policy.Name, err)}
	}
	if len(raw) != 3 {
		return Result{Outcome: StoreUnavailable, Limit: l.policy.Points, Err: fmt.Errorf("consume %s: unexpected reply %v", l.policy.Name, raw)}
	}
	if raw[0] == 1 {
		return Result{Outcome: Admitted, Limit: l.policy.Points, Remaining: int(raw[1])}
	}
	return Result{
		Outcome:    Throttled,
		Limit:      l.policy.Points,
		RetryAfter: time.Duration(raw[2]) * time.Millisecond,
	}
}

func (l *RedisSlidingWindowLimiter) key(identity string) string {
	return l.prefix + l.policy.Name + ":" + identity
}
