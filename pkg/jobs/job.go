package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/observability"
	"github.com/robfig/cron/v3"
)

// Task is one unit of background work
type Task func(ctx context.Context) error

// Job runs a Task on a cron schedule. Runs never overlap.
type Job struct {
	name    string
	task    Task
	logger  *observability.Logger
	timeout time.Duration

	mu      sync.Mutex
	running bool
	cron    *cron.Cron
}

// Option configures a Job
type Option func(*Job)

// WithLogger sets the job logger
func WithLogger(logger *observability.Logger) Option {
	return func(j *Job) { j.logger = logger }
}

// WithTimeout bounds a single run
func WithTimeout(d time.Duration) Option {
	return func(j *Job) { j.timeout = d }
}

// New creates a job named name
func New(name string, task Task, opts ...Option) *Job {
	j := &Job{
		name:    name,
		task:    task,
		logger:  observability.NopLogger(),
		timeout: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(j)
	}
	j.logger = j.logger.WithField("job", name)
	return j
}

// RunOnce runs the task now. It returns nil without running when another
// run is still in progress.
func (j *Job) RunOnce(ctx context.Context) (err error) {
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		j.logger.Warn("Previous run still in progress, skipping")
		return nil
	}
	j.running = true
	j.mu.Unlock()
	defer func() {
		j.mu.Lock()
		j.running = false
		j.mu.Unlock()
	}()
	defer observability.RecoverPanic(j.logger, j.name, func(r any) {
		err = fmt.Errorf("%s panicked: %v", j.name, r)
	})

	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	started := time.Now()
	if err := j.task(ctx); err != nil {
		return fmt.Errorf("%s failed: %w", j.name, err)
	}
	j.logger.WithField("duration_ms", time.Since(started).Milliseconds()).Debug("Job run complete")
	return nil
}

// Start schedules the job with a standard five-field cron spec
func (j *Job) Start(schedule string) error {
	c := cron.New(cron.WithLocation(time.UTC))
	if _, err := c.AddFunc(schedule, func() {
		if err := j.RunOnce(context.Background()); err != nil {
			j.logger.WithError(err).Error("Scheduled run failed")
		}
	}); err != nil {
		return fmt.Errorf("invalid schedule %q for %s: %w", schedule, j.name, err)
	}

	j.mu.Lock()
	j.cron = c
	j.mu.Unlock()
	c.Start()
	j.logger.WithField("schedule", schedule).Info("Job scheduled")
	return nil
}

// Stop halts scheduling and waits for a running task or ctx
func (j *Job) Stop(ctx context.Context) error {
	j.mu.Lock()
	c := j.cron
	j.cron = nil
	j.mu.Unlock()
	if c == nil {
		return nil
	}
	select {
	case <-c.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
