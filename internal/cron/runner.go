package cron

import (
	"context"
	"time"

	"github.com/omnish-dev/omnish/internal/logger"
)

// Job pairs a parsed Schedule with the function to run when it fires.
type Job struct {
	Name     string
	Schedule *Schedule
	Run      func(ctx context.Context)
}

// Runner drives a set of Jobs off a single ticker, checking each job's
// next-fire time on every tick. A job whose Run panics is recovered and
// logged so one misbehaving job never takes down the others.
type Runner struct {
	jobs []scheduledJob
	tick time.Duration
	now  func() time.Time
}

type scheduledJob struct {
	job  Job
	next time.Time
}

// NewRunner builds a Runner over jobs, checking schedules every tick
// (typically a minute, since cron expressions are minute-granular).
func NewRunner(jobs []Job, tick time.Duration) *Runner {
	now := time.Now
	r := &Runner{tick: tick, now: now}
	for _, j := range jobs {
		r.jobs = append(r.jobs, scheduledJob{job: j, next: j.Schedule.Next(now())})
	}
	return r
}

// Run blocks until ctx is cancelled, firing due jobs on each tick.
func (r *Runner) Run(ctx context.Context) {
	ticker := time.NewTicker(r.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.fireDue(ctx, now)
		}
	}
}

func (r *Runner) fireDue(ctx context.Context, now time.Time) {
	for i := range r.jobs {
		sj := &r.jobs[i]
		if now.Before(sj.next) {
			continue
		}
		r.runOne(ctx, sj.job)
		sj.next = sj.job.Schedule.Next(now)
	}
}

func (r *Runner) runOne(ctx context.Context, job Job) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Warn("cron: job panicked", "job", job.Name, "recover", rec)
		}
	}()
	logger.Info("cron: firing job", "job", job.Name)
	job.Run(ctx)
}
