package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/stackhq/stack-api/internal/domain"
)

const DefaultMaxAttempts = 25

var ErrUnknownJob = domain.Benign("Unknown job.")

type Queue struct {
	db    *gorm.DB
	known func(name string) bool
	now   func() time.Time
}

// NewQueue returns a producer. When registry is non-nil, only registered
// job names are accepted.
func NewQueue(db *gorm.DB, registry *Registry) *Queue {
	q := &Queue{db: db, now: time.Now}
	if registry != nil {
		q.known = func(name string) bool {
			_, ok := registry.Handler(name)
			return ok
		}
	}
	return q
}

// Enqueue adds a job on the queue named after the job so jobs of one kind
// never run concurrently.
func (q *Queue) Enqueue(ctx context.Context, name string, payload any, delay time.Duration) (*domain.Job, error) {
	if name == "" {
		return nil, errors.New("enqueue: job name is required")
	}
	if q.known != nil && !q.known(name) {
		return nil, ErrUnknownJob
	}
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload for %s: %w", name, err)
	}
	if delay < 0 {
		delay = 0
	}
	job := &domain.Job{
		QueueName:      name,
		TaskIdentifier: name,
		Payload:        string(raw),
		RunAt:          q.now().UTC().Add(delay),
		MaxAttempts:    DefaultMaxAttempts,
	}
	err = q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&domain.JobQueue{QueueName: name}).Error; err != nil {
			return err
		}
		return tx.Create(job).Error
	})
	if err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", name, err)
	}
	return job, nil
}
