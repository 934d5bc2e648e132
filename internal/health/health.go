// Package health runs readiness checks against the service's backing stores.
package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

type CheckResult struct {
	Name       string `json:"name"`
	Healthy    bool   `json:"healthy"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

type Checker interface {
	Check(ctx context.Context) CheckResult
}

// Runner runs every checker concurrently under one timeout. Results are
// reused for cacheTTL so a burst of readiness calls does not hammer the stores.
type Runner struct {
	timeout  time.Duration
	cacheTTL time.Duration
	checkers []Checker

	mu       sync.Mutex
	cachedAt time.Time
	ready    bool
	results  []CheckResult
}

func NewRunner(timeout, cacheTTL time.Duration, checkers ...Checker) *Runner {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Runner{timeout: timeout, cacheTTL: cacheTTL, checkers: checkers}
}

func (p *Runner) Ready(ctx context.Context) (bool, []CheckResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cacheTTL > 0 && !p.cachedAt.IsZero() && time.Since(p.cachedAt) < p.cacheTTL {
		return p.ready, append([]CheckResult(nil), p.results...)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	results := make([]CheckResult, len(p.checkers))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range p.checkers {
		g.Go(func() error {
			results[i] = c.Check(gctx)
			return nil
		})
	}
	_ = g.Wait()

	ready := true
	for _, r := range results {
		if !r.Healthy {
			ready = false
		}
	}
	p.ready, p.results, p.cachedAt = ready, results, time.Now()
	return ready, append([]CheckResult(nil), results...)
}

type DBChecker struct{ DB *gorm.DB }

func (c DBChecker) Check(ctx context.Context) CheckResult {
	return timed("db", func() error {
		sqlDB, err := c.DB.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	})
}

type RedisChecker struct{ Client redis.UniversalClient }

func (c RedisChecker) Check(ctx context.Context) CheckResult {
	return timed("redis", func() error {
		return c.Client.Ping(ctx).Err()
	})
}

func timed(name string, fn func() error) CheckResult {
	start := time.Now()
	err := fn()
	res := CheckResult{Name: name, Healthy: err == nil, DurationMS: time.Since(start).Milliseconds()}
	if err != nil {
		res.Error = fmt.Sprintf("%s unavailable: %v", name, err)
	}
	return res
}
