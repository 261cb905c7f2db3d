package scheduler_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cellbridge/sms-bridge/internal/scheduler"
	"github.com/stretchr/testify/assert"
)

func TestSchedulerRunsJobOnTick(t *testing.T) {
	var hits atomic.Int64
	s := scheduler.New([]scheduler.Job{
		{Name: "tick", Spec: "* * * * * *", Run: func() { hits.Add(1) }},
	})

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	s.Start(ctx, &wg)

	time.Sleep(1200 * time.Millisecond)
	cancel()
	wg.Wait()

	assert.GreaterOrEqual(t, hits.Load(), int64(1))
}

func TestSchedulerSkipsBadSpecWithoutBlockingOthers(t *testing.T) {
	var hits atomic.Int64
	s := scheduler.New([]scheduler.Job{
		{Name: "bad", Spec: "not-a-cron-spec", Run: func() {}},
		{Name: "good", Spec: "* * * * * *", Run: func() { hits.Add(1) }},
	})

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	s.Start(ctx, &wg)

	time.Sleep(1200 * time.Millisecond)
	cancel()
	wg.Wait()

	assert.GreaterOrEqual(t, hits.Load(), int64(1))
}
