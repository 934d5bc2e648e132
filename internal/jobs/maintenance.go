package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/stackhq/stack-api/internal/domain"
	"github.com/stackhq/stack-api/internal/observability"
)

type MaintainerConfig struct {
	Interval              time.Duration
	StuckAfter            time.Duration
	LongRunningStuckAfter time.Duration
}

// Maintainer periodically releases locks held by workers that died mid-job.
type Maintainer struct {
	db          *gorm.DB
	longRunning []string
	cfg         MaintainerConfig
	logger      *slog.Logger
	now         func() time.Time
}

func NewMaintainer(db *gorm.DB, registry *Registry, cfg MaintainerConfig, logger *slog.Logger) *Maintainer {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.StuckAfter <= 0 {
		cfg.StuckAfter = 5 * time.Minute
	}
	if cfg.LongRunningStuckAfter <= 0 {
		cfg.LongRunningStuckAfter = time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Maintainer{
		db:          db,
		longRunning: registry.LongRunningJobs(),
		cfg:         cfg,
		logger:      logger.With("component", "worker_maintenance"),
		now:         time.Now,
	}
}

// Run ticks until ctx is cancelled. Failures are logged and the next tick
// proceeds normally.
func (m *Maintainer) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Tick(ctx)
		}
	}
}

func (m *Maintainer) Tick(ctx context.Context) {
	unlocked, err := m.UnlockStuckJobs(ctx)
	if err != nil {
		observability.RecordJobMaintenance(ctx, "error", 0)
		m.logger.ErrorContext(ctx, "could not unlock stuck jobs", "error", err)
		return
	}
	observability.RecordJobMaintenance(ctx, "ok", unlocked)
	if unlocked > 0 {
		m.logger.WarnContext(ctx, "unlocked stuck jobs", "count", unlocked)
	}
}

// UnlockStuckJobs clears locks older than the stuck threshold on jobs and
// their queues in one transaction. Differing counts roll the transaction back.
func (m *Maintainer) UnlockStuckJobs(ctx context.Context) (int64, error) {
	now := m.now().UTC()
	shortCutoff := now.Add(-m.cfg.StuckAfter)
	longCutoff := now.Add(-m.cfg.LongRunningStuckAfter)

	var unlocked int64
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		release := map[string]any{"locked_at": nil, "locked_by": nil}
		jobRes := m.stale(tx.Model(&domain.Job{}), shortCutoff, longCutoff).Updates(release)
		if jobRes.Error != nil {
			return fmt.Errorf("unlock jobs: %w", jobRes.Error)
		}
		if jobRes.RowsAffected == 0 {
			return nil
		}
		queueRes := m.stale(tx.Model(&domain.JobQueue{}), shortCutoff, longCutoff).Updates(release)
		if queueRes.Error != nil {
			return fmt.Errorf("unlock job queues: %w", queueRes.Error)
		}
		if jobRes.RowsAffected != queueRes.RowsAffected {
			return fmt.Errorf("found mismatched entries in jobs (%d) and job_queues (%d)", jobRes.RowsAffected, queueRes.RowsAffected)
		}
		unlocked = jobRes.RowsAffected
		return nil
	})
	if err != nil {
		return 0, err
	}
	return unlocked, nil
}

func (m *Maintainer) stale(q *gorm.DB, shortCutoff, longCutoff time.Time) *gorm.DB {
	q = q.Where("locked_at IS NOT NULL")
	if len(m.longRunning) == 0 {
		return q.Where("locked_at <= ?", shortCutoff)
	}
	return q.Where(
		"((queue_name IN ? AND locked_at <= ?) OR (queue_name NOT IN ? AND locked_at <= ?))",
		m.longRunning, longCutoff, m.longRunning, shortCutoff,
	)
}
