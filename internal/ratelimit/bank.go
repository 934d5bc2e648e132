package ratelimit

import (
	"time"

	"github.com/redis/go-redis/v9"
)

// Bank holds the independently configured limiters. Enforced is false outside
// production; middleware skips limiting entirely in that case.
type Bank struct {
	Authenticate   Limiter
	ForgotPassword Limiter
	ResetPassword  Limiter
	Platform       Limiter
	OpenPlatform   Limiter
	Enforced       bool
}

type bankOptions struct {
	now        func() time.Time
	timeout    time.Duration
	prefix     string
	blockCache int
}

// DefaultKeyPrefix namespaces limiter keys away from session sets.
const DefaultKeyPrefix = "rl:"

type Option func(*bankOptions)

func WithClock(now func() time.Time) Option {
	return func(o *bankOptions) { o.now = now }
}

func WithTimeout(d time.Duration) Option {
	return func(o *bankOptions) { o.timeout = d }
}

// WithBlockCache keeps up to size throttled identities per limiter in process.
// Zero disables the cache.
func WithBlockCache(size int) Option {
	return func(o *bankOptions) { o.blockCache = size }
}

func NewRedisBank(client redis.UniversalClient, enforced bool, opts ...Option) *Bank {
	o := applyOptions(opts)
	return newBank(enforced, o, func(p Policy) Limiter {
		return NewRedisSlidingWindowLimiter(client, p, o.prefix, o.timeout, o.now)
	})
}

func NewMemoryBank(enforced bool, opts ...Option) *Bank {
	o := applyOptions(opts)
	return newBank(enforced, o, func(p Policy) Limiter {
		return NewMemorySlidingWindowLimiter(p, o.now)
	})
}

func applyOptions(opts []Option) bankOptions {
	o := bankOptions{now: time.Now, prefix: DefaultKeyPrefix}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func newBank(enforced bool, o bankOptions, build func(Policy) Limiter) *Bank {
	wrap := func(p Policy) Limiter {
		l := build(p)
		if o.blockCache > 0 {
			return NewBlockingLimiter(l, o.blockCache, o.now)
		}
		return l
	}
	return &Bank{
		Authenticate:   wrap(AuthenticatePolicy),
		ForgotPassword: wrap(ForgotPasswordPolicy),
		ResetPassword:  wrap(ResetPasswordPolicy),
		Platform:       wrap(PlatformPolicy),
		OpenPlatform:   wrap(OpenPlatformPolicy),
		Enforced:       enforced,
	}
}
