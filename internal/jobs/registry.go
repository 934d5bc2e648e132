// Package jobs is a Postgres-backed job queue with one-at-a-time queues,
// retries with exponential backoff, cron scheduling and stuck-job recovery.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/robfig/cron/v3"
)

// Handler executes one job. A returned error schedules a retry.
type Handler func(ctx context.Context, payload json.RawMessage) error

type Cron struct {
	Spec string
	Task string
}

type RegisterOption func(*entry)

type entry struct {
	handler     Handler
	longRunning bool
}

// LongRunning relaxes the stuck-lock threshold for the job's queue.
func LongRunning() RegisterOption {
	return func(e *entry) { e.longRunning = true }
}

type Registry struct {
	jobs  map[string]entry
	crons []Cron
}

func NewRegistry() *Registry {
	return &Registry{jobs: make(map[string]entry)}
}

func (r *Registry) Register(name string, h Handler, opts ...RegisterOption) error {
	if name == "" || h == nil {
		return fmt.Errorf("register job: name and handler are required")
	}
	if _, exists := r.jobs[name]; exists {
		return fmt.Errorf("jobs can't be defined more than once: %q", name)
	}
	e := entry{handler: h}
	for _, opt := range opts {
		opt(&e)
	}
	r.jobs[name] = e
	return nil
}

// AddCron schedules task on a standard five-field cron spec.
func (r *Registry) AddCron(spec, task string) error {
	if _, ok := r.jobs[task]; !ok {
		return fmt.Errorf("cron %q needs a registered job", task)
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("parse cron %q: %w", spec, err)
	}
	r.crons = append(r.crons, Cron{Spec: spec, Task: task})
	return nil
}

func (r *Registry) Handler(name string) (Handler, bool) {
	e, ok := r.jobs[name]
	return e.handler, ok
}

func (r *Registry) Crons() []Cron {
	return append([]Cron(nil), r.crons...)
}

func (r *Registry) LongRunningJobs() []string {
	out := make([]string, 0)
	for name, e := range r.jobs {
		if e.longRunning {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.jobs))
	for name := range r.jobs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
