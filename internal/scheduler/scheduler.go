// Package scheduler wraps robfig/cron/v3 to drive the bridge's two
// periodic timers — dead letter TTL pruning and health-rule evaluation —
// the same way the teacher's internal/service/scheduler.Scheduler wraps
// cron for its task commands: Recover and SkipIfStillRunning chains so a
// panicking or overrunning job can never wedge the clock, and a
// context-driven Start/Stop pair a caller can fold into graceful
// shutdown.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	applog "github.com/cellbridge/sms-bridge/pkg/log"
)

const component = "scheduler"

// Job is one periodic unit of work: a seconds-precision cron spec plus
// the function to run on each tick.
type Job struct {
	Name string
	Spec string
	Run  func()
}

// Scheduler runs a fixed set of Jobs on a shared cron.Cron engine.
type Scheduler struct {
	jobs []Job

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// New builds a Scheduler for jobs. Call Start to begin ticking.
func New(jobs []Job) *Scheduler {
	return &Scheduler{jobs: jobs}
}

// Start registers every job on a fresh cron engine (6-field, seconds
// precision) and begins ticking. Start returns once every job has been
// registered; a bad cron spec is logged and that job is skipped, it
// never prevents the rest of the schedule from starting.
func (s *Scheduler) Start(ctx context.Context, wg *sync.WaitGroup) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}

	s.cron = cron.New(
		cron.WithSeconds(),
		cron.WithLogger(cron.VerbosePrintfLogger(applog.StandardLogger())),
		cron.WithChain(
			cron.Recover(cron.VerbosePrintfLogger(applog.StandardLogger())),
			cron.SkipIfStillRunning(cron.VerbosePrintfLogger(applog.StandardLogger())),
		),
	)

	for _, job := range s.jobs {
		job := job
		if _, err := s.cron.AddFunc(job.Spec, job.Run); err != nil {
			applog.WithComponentAndFields(component, applog.Fields{"job": job.Name, "spec": job.Spec, "error": err}).Error("failed to register scheduled job")
			continue
		}
	}

	s.cron.Start()
	s.running = true

	applog.WithComponentAndFields(component, applog.Fields{"jobs": len(s.cron.Entries())}).Info("scheduler started")

	if wg != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-ctx.Done()
			s.Stop()
		}()
	}
}

// Stop halts the cron engine and waits up to 30 seconds for any
// in-flight job to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(30 * time.Second):
		applog.WithComponent(component).Warn("scheduler stop timed out waiting for a job to finish")
	}

	s.cron = nil
	s.running = false
	applog.WithComponent(component).Info("scheduler stopped")
}
