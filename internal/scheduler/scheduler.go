// Package scheduler runs periodic maintenance jobs, such as purging expired
// sessions, on cron expressions.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// parser accepts standard 5-field expressions (min, hour, dom, month, dow)
// and descriptors such as @hourly or @every 10m.
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Task is one run of a job.
type Task func(ctx context.Context) error

type job struct {
	name     string
	schedule cron.Schedule
	task     Task
}

// Scheduler collects jobs and runs them while Run is active.
type Scheduler struct {
	mu      sync.Mutex
	jobs    []job
	running bool
}

// New returns an empty scheduler.
func New() *Scheduler {
	return &Scheduler{}
}

// AddJob schedules task under name. It returns an error if the expression is
// invalid or the scheduler is already running.
func (s *Scheduler) AddJob(name, spec string, task Task) error {
	schedule, err := parser.Parse(spec)
	if err != nil {
		return fmt.Errorf("invalid schedule %q for job %s: %w", spec, name, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("cannot add job %s: scheduler is running", name)
	}
	s.jobs = append(s.jobs, job{name: name, schedule: schedule, task: task})
	return nil
}

// Len returns the number of scheduled jobs.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Run starts the jobs and blocks until ctx is cancelled, then waits for
// running jobs to finish. Job errors and panics are logged, never returned.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler is already running")
	}
	s.running = true
	jobs := append([]job(nil), s.jobs...)
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cronLogger{}), cron.SkipIfStillRunning(cronLogger{})))
	for _, j := range jobs {
		j := j
		c.Schedule(j.schedule, cron.FuncJob(func() {
			if err := j.task(ctx); err != nil {
				slog.Warn("Scheduler: job failed", "job", j.name, "error", err)
			}
		}))
	}

	slog.Info("Scheduler.Run: starting", "jobs", len(jobs))
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	slog.Info("Scheduler.Run: stopped")
	return nil
}

// cronLogger routes cron's own messages through slog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	slog.Debug("Scheduler: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	slog.Error("Scheduler: "+msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
