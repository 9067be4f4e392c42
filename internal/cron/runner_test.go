package cron

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunnerFiresDueJobs(t *testing.T) {
	sched, err := Parse("* * * * *")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	var fired atomic.Int32
	r := NewRunner([]Job{
		{Name: "every-minute", Schedule: sched, Run: func(ctx context.Context) { fired.Add(1) }},
	}, 10*time.Millisecond)

	// Force the job's next-fire time into the past so the first tick fires it.
	r.jobs[0].next = time.Now().Add(-time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	r.Run(ctx)

	if fired.Load() == 0 {
		t.Fatal("expected job to fire at least once")
	}
}

func TestRunnerRecoversFromPanic(t *testing.T) {
	sched, _ := Parse("* * * * *")
	var ran atomic.Int32
	r := NewRunner([]Job{
		{Name: "panics", Schedule: sched, Run: func(ctx context.Context) { panic("boom") }},
		{Name: "fine", Schedule: sched, Run: func(ctx context.Context) { ran.Add(1) }},
	}, 10*time.Millisecond)
	r.jobs[0].next = time.Now().Add(-time.Minute)
	r.jobs[1].next = time.Now().Add(-time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	r.Run(ctx)

	if ran.Load() == 0 {
		t.Fatal("expected the non-panicking job to still run")
	}
}
