package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/semaphore"
	"gorm.io/gorm"

	"github.com/stackhq/stack-api/internal/domain"
	"github.com/stackhq/stack-api/internal/observability"
)

type RunnerConfig struct {
	Concurrency  int
	PollInterval time.Duration
}

type Runner struct {
	db       *gorm.DB
	registry *Registry
	queue    *Queue
	logger   *slog.Logger
	workerID string
	cfg      RunnerConfig
	now      func() time.Time

	wg sync.WaitGroup
}

func NewRunner(db *gorm.DB, registry *Registry, cfg RunnerConfig, logger *slog.Logger) *Runner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 32
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		db:       db,
		registry: registry,
		queue:    NewQueue(db, registry),
		logger:   logger.With("component", "worker"),
		workerID: "worker-" + uuid.NewString()[:8],
		cfg:      cfg,
		now:      time.Now,
	}
}

// Run polls for due jobs until ctx is cancelled, then waits for in-flight
// jobs to finish.
func (r *Runner) Run(ctx context.Context) error {
	scheduler := cron.New()
	for _, c := range r.registry.Crons() {
		task := c.Task
		if _, err := scheduler.AddFunc(c.Spec, func() {
			if _, err := r.queue.Enqueue(ctx, task, nil, 0); err != nil {
				r.logger.ErrorContext(ctx, "cron enqueue failed", "task", task, "error", err)
			}
		}); err != nil {
			return fmt.Errorf("schedule cron %s: %w", task, err)
		}
	}
	scheduler.Start()
	defer func() { <-scheduler.Stop().Done() }()

	sem := semaphore.NewWeighted(int64(r.cfg.Concurrency))
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	r.logger.InfoContext(ctx, "worker started", "worker_id", r.workerID, "concurrency", r.cfg.Concurrency, "jobs", r.registry.Names())
	for {
		r.drain(ctx, sem)
		select {
		case <-ctx.Done():
			r.wg.Wait()
			r.logger.Info("worker stopped", "worker_id", r.workerID)
			return nil
		case <-ticker.C:
		}
	}
}

// drain claims jobs while slots are free and work is due.
func (r *Runner) drain(ctx context.Context, sem *semaphore.Weighted) {
	for ctx.Err() == nil {
		if !sem.TryAcquire(1) {
			return
		}
		job, err := r.claim(ctx)
		if err != nil || job == nil {
			sem.Release(1)
			if err != nil {
				r.logger.ErrorContext(ctx, "claim job failed", "error", err)
			}
			return
		}
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			defer sem.Release(1)
			r.execute(context.WithoutCancel(ctx), job)
		}()
	}
}

// RunOnce claims and executes due jobs synchronously until none are left.
func (r *Runner) RunOnce(ctx context.Context) (int, error) {
	n := 0
	for {
		job, err := r.claim(ctx)
		if err != nil {
			return n, err
		}
		if job == nil {
			return n, nil
		}
		r.execute(ctx, job)
		n++
	}
}

func (r *Runner) claim(ctx context.Context) (*domain.Job, error) {
	now := r.now().UTC()
	var candidates []domain.Job
	err := r.db.WithContext(ctx).
		Where("run_at <= ? AND locked_at IS NULL AND attempts < max_attempts", now).
		Where("queue_name IN (?)", r.db.Model(&domain.JobQueue{}).Select("queue_name").Where("locked_at IS NULL")).
		Order("run_at ASC, id ASC").
		Limit(r.cfg.Concurrency).
		Find(&candidates).Error
	if err != nil {
		return nil, err
	}
	for i := range candidates {
		job := candidates[i]
		claimed := false
		err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			res := tx.Model(&domain.JobQueue{}).
				Where("queue_name = ? AND locked_at IS NULL", job.QueueName).
				Updates(map[string]any{"locked_at": now, "locked_by": r.workerID})
			if res.Error != nil || res.RowsAffected == 0 {
				return res.Error
			}
			res = tx.Model(&domain.Job{}).
				Where("id = ? AND locked_at IS NULL", job.ID).
				Updates(map[string]any{"locked_at": now, "locked_by": r.workerID, "attempts": gorm.Expr("attempts + 1")})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return errLostRace
			}
			claimed = true
			return nil
		})
		if err != nil && !errors.Is(err, errLostRace) {
			return nil, err
		}
		if claimed {
			job.Attempts++
			job.LockedAt = &now
			job.LockedBy = &r.workerID
			return &job, nil
		}
	}
	return nil, nil
}

var errLostRace = errors.New("job claimed elsewhere")

func (r *Runner) execute(ctx context.Context, job *domain.Job) {
	logger := r.logger.With("job_id", job.ID, "task", job.TaskIdentifier, "attempt", job.Attempts)
	handler, ok := r.registry.Handler(job.TaskIdentifier)

	var runErr error
	if !ok {
		runErr = fmt.Errorf("no handler registered for %q", job.TaskIdentifier)
	} else {
		runErr = safeRun(ctx, handler, json.RawMessage(job.Payload))
	}

	if runErr == nil {
		err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Delete(&domain.Job{}, job.ID).Error; err != nil {
				return err
			}
			return unlockQueue(tx, job.QueueName, r.workerID)
		})
		if err != nil {
			logger.ErrorContext(ctx, "complete job failed", "error", err)
		}
		observability.RecordJobExecution(ctx, job.TaskIdentifier, "success")
		logger.InfoContext(ctx, "job completed")
		return
	}

	msg := runErr.Error()
	runAt := r.now().UTC().Add(Backoff(job.Attempts))
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&domain.Job{}).Where("id = ?", job.ID).Updates(map[string]any{
			"last_error": msg,
			"run_at":     runAt,
			"locked_at":  nil,
			"locked_by":  nil,
		}).Error; err != nil {
			return err
		}
		return unlockQueue(tx, job.QueueName, r.workerID)
	})
	if err != nil {
		logger.ErrorContext(ctx, "record job failure failed", "error", err)
	}
	outcome := "retry"
	if job.Attempts >= job.MaxAttempts {
		outcome = "exhausted"
	}
	observability.RecordJobExecution(ctx, job.TaskIdentifier, outcome)
	logger.WarnContext(ctx, "job failed", "error", msg, "outcome", outcome, "next_run_at", runAt)
}

func unlockQueue(tx *gorm.DB, queue, workerID string) error {
	return tx.Model(&domain.JobQueue{}).
		Where("queue_name = ? AND locked_by = ?", queue, workerID).
		Updates(map[string]any{"locked_at": nil, "locked_by": nil}).Error
}

func safeRun(ctx context.Context, h Handler, payload json.RawMessage) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("job panicked: %v", rec)
		}
	}()
	return h(ctx, payload)
}

// Backoff is the delay before retrying after the given attempt count: e^n
// seconds, capped at e^10.
func Backoff(attempts int) time.Duration {
	n := math.Min(float64(attempts), 10)
	return time.Duration(math.Exp(n) * float64(time.Second))
}
