// Package queue implements the bounded in-memory work queue at the heart
// of the bridge: fixed-capacity FIFO buckets per priority drained by N
// worker goroutines each running the primary-then-fallback-then-DLO
// algorithm, process-lifetime sms_id deduplication, and a graceful,
// bounded-timeout drain on Stop. Grounded on the teacher's
// sendNotifications/drainRemainingNotifications in
// internal/service/notification/notifier/telegram/sender_worker.go for the
// shutdown shape and per-message panic isolation pattern, generalized from
// one FIFO channel to a small fixed set of priority buckets scanned
// high-to-low since the teacher only ever had one notification priority.
package queue

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/cellbridge/sms-bridge/internal/dispatch"
	"github.com/cellbridge/sms-bridge/internal/domain"
	"github.com/cellbridge/sms-bridge/internal/events"
	"github.com/cellbridge/sms-bridge/internal/metrics"
	apperrors "github.com/cellbridge/sms-bridge/internal/pkg/errors"
	applog "github.com/cellbridge/sms-bridge/pkg/log"
)

const component = "queue"

// Topics published on the event bus. The queue never imports the DLO or
// CTO-Agent packages directly — this is the §9 cyclic-reference break.
const (
	TopicDLOCapture    = "dlo.capture"
	TopicMessageResult = "queue.message_result"
)

// numPriorities is the size of the fixed priority-bucket set: low, normal,
// high. A heap would scale to arbitrary priority counts; three fixed FIFO
// buckets scanned high-to-low is simpler and faster for this small a set.
const numPriorities = 3

// rateLimitJitterPct is the ±10% jitter applied to a rate-limit wait
// before re-inserting at the head of its priority bucket.
const rateLimitJitterPct = 0.10

// Config configures a Queue. Workers == 0 is a valid, explicit "start no
// worker goroutines" (useful in tests that only exercise Enqueue); a
// negative value falls back to the default pool size.
type Config struct {
	Capacity      int
	Workers       int
	MaxRetries    int
	BaseBackoff   time.Duration
	MaxBackoff    time.Duration
	Jitter        time.Duration
	ShutdownGrace time.Duration
}

func (c *Config) setDefaults() {
	if c.Capacity <= 0 {
		c.Capacity = 10000
	}
	if c.Workers < 0 {
		c.Workers = 4
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 5
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = 2 * time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 60 * time.Second
	}
	if c.Jitter <= 0 {
		c.Jitter = time.Second
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = 10 * time.Second
	}
}

// DLOCapturePayload is published on TopicDLOCapture when a message
// exhausts both channels.
type DLOCapturePayload struct {
	Message   domain.Message
	LastError string
}

// DurableDedup is the interface internal/queue/durable.Store satisfies.
// The queue only ever needs this one operation, so it depends on the
// interface rather than the concrete Redis-backed type — keeping the
// in-memory default dedup path free of any Redis import.
type DurableDedup interface {
	MarkIfNew(ctx context.Context, smsID string) (bool, error)
}

// Queue is the bounded priority-bucketed FIFO work queue plus its worker
// pool. Each bucket is scanned high-to-low on pop, FIFO within a bucket.
type Queue struct {
	cfg Config

	primary  dispatch.Dispatcher
	fallback dispatch.Dispatcher
	bus      *events.Bus
	durable  DurableDedup

	mu      sync.Mutex
	cond    *sync.Cond
	buckets [numPriorities][]domain.Message
	depth   int

	inflight  map[string]struct{}
	running   bool
	workersWG sync.WaitGroup

	totalEnqueued  int64
	totalDelivered int64
	totalFailed    int64
}

// New builds a Queue. primary is tried first for every message (Telegram
// per spec), fallback is tried once primary is exhausted (Email).
func New(cfg Config, primary, fallback dispatch.Dispatcher, bus *events.Bus) *Queue {
	cfg.setDefaults()
	q := &Queue{
		cfg:      cfg,
		primary:  primary,
		fallback: fallback,
		bus:      bus,
		inflight: make(map[string]struct{}),
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// WithDurableDedup attaches an optional Redis-backed dedup store so
// sms_id duplicate detection survives a process restart. Unset by
// default — per spec, dedup is process-lifetime and in-memory only
// unless an operator opts in via QUEUE_DURABLE_REDIS_ADDR.
func (q *Queue) WithDurableDedup(store DurableDedup) *Queue {
	q.durable = store
	return q
}

// Start spins up the worker pool. Must be called once before Enqueue.
func (q *Queue) Start() {
	q.mu.Lock()
	q.running = true
	q.mu.Unlock()

	for i := 0; i < q.cfg.Workers; i++ {
		q.workersWG.Add(1)
		go q.worker(i)
	}

	applog.WithComponentAndFields(component, applog.Fields{"workers": q.cfg.Workers, "capacity": q.cfg.Capacity}).Info("queue started")
}

// bucketIndex clamps an arbitrary priority value into the fixed bucket
// range, so a negative value lands in the lowest bucket and a value past
// the top lands in the highest one instead of panicking.
func bucketIndex(priority int) int {
	if priority < 0 {
		return 0
	}
	if priority >= numPriorities {
		return numPriorities - 1
	}
	return priority
}

// pushLocked inserts msg into its priority bucket, at the tail (normal
// enqueue and post-backoff re-insertion) or the head (a rate-limited
// message that was never actually attempted). Caller holds q.mu.
func (q *Queue) pushLocked(msg domain.Message, atHead bool) {
	idx := bucketIndex(msg.Priority)
	if atHead {
		q.buckets[idx] = append(q.buckets[idx], domain.Message{})
		copy(q.buckets[idx][1:], q.buckets[idx][:len(q.buckets[idx])-1])
		q.buckets[idx][0] = msg
	} else {
		q.buckets[idx] = append(q.buckets[idx], msg)
	}
	q.depth++
}

// popLocked returns the next message to process, scanning priority
// buckets high-to-low. Caller holds q.mu.
func (q *Queue) popLocked() (domain.Message, bool) {
	for idx := numPriorities - 1; idx >= 0; idx-- {
		if len(q.buckets[idx]) > 0 {
			msg := q.buckets[idx][0]
			q.buckets[idx] = q.buckets[idx][1:]
			q.depth--
			return msg, true
		}
	}
	return domain.Message{}, false
}

// Enqueue admits msg to the queue. Returns an apperrors.Conflict error if
// sms_id is already queued or in flight, and apperrors.Unavailable if the
// queue is at capacity.
func (q *Queue) Enqueue(msg domain.Message) error {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		metrics.RecordIngestRejection("queue_not_running")
		return apperrors.New(apperrors.Unavailable, "queue is not running")
	}
	if _, dup := q.inflight[msg.SMSID]; dup {
		q.mu.Unlock()
		metrics.RecordIngestRejection("duplicate_sms_id")
		return apperrors.Newf(apperrors.Conflict, "sms_id %s is already queued or in flight", msg.SMSID)
	}
	if q.depth >= q.cfg.Capacity {
		q.mu.Unlock()
		metrics.RecordIngestRejection("queue_full")
		return apperrors.New(apperrors.Unavailable, "queue is at capacity")
	}
	q.inflight[msg.SMSID] = struct{}{}
	q.mu.Unlock()

	if q.durable != nil {
		isNew, err := q.durable.MarkIfNew(context.Background(), msg.SMSID)
		if err != nil {
			applog.WithComponentAndFields(component, applog.Fields{"sms_id": msg.SMSID, "error": err}).Warn("durable dedup check failed, proceeding on in-memory check alone")
		} else if !isNew {
			q.mu.Lock()
			delete(q.inflight, msg.SMSID)
			q.mu.Unlock()
			metrics.RecordIngestRejection("duplicate_sms_id")
			return apperrors.Newf(apperrors.Conflict, "sms_id %s was already seen by the durable dedup store", msg.SMSID)
		}
	}

	msg.Status = domain.StatusQueued
	if msg.EnqueuedAt.IsZero() {
		msg.EnqueuedAt = time.Now()
	}

	q.mu.Lock()
	q.pushLocked(msg, false)
	q.totalEnqueued++
	depth := q.depth
	q.mu.Unlock()
	q.cond.Signal()

	metrics.SMSReceived.Inc()
	metrics.QueueEnqueued.Inc()
	metrics.QueueDepth.Set(float64(depth))
	return nil
}

// Depth returns the current number of messages buffered across every
// priority bucket (not counting the one each worker currently holds).
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.depth
}

// Snapshot is a point-in-time view of the queue's counters, for GET /api/metrics.
type Snapshot struct {
	Running        bool
	Depth          int
	Capacity       int
	Workers        int
	TotalEnqueued  int64
	TotalDelivered int64
	TotalFailed    int64
}

func (q *Queue) Snapshot() Snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Snapshot{
		Running:        q.running,
		Depth:          q.depth,
		Capacity:       q.cfg.Capacity,
		Workers:        q.cfg.Workers,
		TotalEnqueued:  q.totalEnqueued,
		TotalDelivered: q.totalDelivered,
		TotalFailed:    q.totalFailed,
	}
}

// worker pulls the highest-priority record available, blocking on cond
// (never busy-waiting) when every bucket is empty. It never blocks on a
// backoff wait itself — that's scheduleRetry's job, via time.AfterFunc —
// so a string of failing messages never shrinks the effective pool.
func (q *Queue) worker(id int) {
	defer q.workersWG.Done()

	for {
		q.mu.Lock()
		for q.depth == 0 && q.running {
			q.cond.Wait()
		}
		if q.depth == 0 && !q.running {
			q.mu.Unlock()
			return
		}
		msg, ok := q.popLocked()
		depth := q.depth
		q.mu.Unlock()
		if !ok {
			continue
		}

		metrics.QueueDepth.Set(float64(depth))
		q.processWithRecover(msg)
	}
}

// processWithRecover isolates a panic in a single message's processing so
// it cannot take down the worker pool, mirroring the teacher's
// per-notification recover in sendNotifications. A panicked message is
// abandoned rather than retried — its inflight slot is freed here since
// process never reached a terminal state to free it itself.
func (q *Queue) processWithRecover(msg domain.Message) {
	defer func() {
		if r := recover(); r != nil {
			applog.WithComponentAndFields(component, applog.Fields{
				"sms_id": msg.SMSID,
				"panic":  r,
			}).Error("worker recovered from panic processing message")
			q.mu.Lock()
			delete(q.inflight, msg.SMSID)
			q.mu.Unlock()
		}
	}()

	q.process(msg)
}

// process runs one pass of the primary → fallback → retry-or-DLO
// algorithm for one message (spec §4.4). It returns as soon as the
// message is delivered, dead, or rescheduled — it never blocks waiting
// out a backoff or rate-limit delay itself.
func (q *Queue) process(msg domain.Message) {
	ctx := context.Background()

	primaryMsg := msg
	primaryMsg.LastChannel = domain.ChannelTelegram
	primary := q.primary.Send(ctx, primaryMsg)
	metrics.RecordDispatch(string(domain.ChannelTelegram), dispatchResultLabel(primary.Result))

	if primary.Result == dispatch.Delivered {
		q.markDelivered(msg, domain.ChannelTelegram)
		return
	}

	if primary.Result == dispatch.RateLimited {
		wait := primary.RetryAfter
		if wait <= 0 {
			wait = q.cfg.BaseBackoff
		}
		wait = jitterPct(wait, rateLimitJitterPct)
		applog.WithComponentAndFields(component, applog.Fields{
			"sms_id": msg.SMSID, "channel": "telegram", "retry_after": wait,
		}).Info("primary channel rate limited, re-inserting at head of priority bucket")
		q.scheduleRetry(msg, wait, true)
		return
	}

	applog.WithComponentAndFields(component, applog.Fields{
		"sms_id": msg.SMSID, "channel": "telegram", "reason": primary.Reason,
	}).Warn("primary channel failed, falling back to email")

	fallbackMsg := msg
	fallbackMsg.LastChannel = domain.ChannelEmail
	fallback := q.fallback.Send(ctx, fallbackMsg)
	metrics.RecordDispatch(string(domain.ChannelEmail), dispatchResultLabel(fallback.Result))

	if fallback.Result == dispatch.Delivered {
		q.markDelivered(msg, domain.ChannelEmail)
		return
	}

	msg.Attempts++
	msg.LastChannel = domain.ChannelEmail
	reason := fallback.Reason
	if fallback.Err != nil {
		reason = fallback.Err.Error()
	}
	msg.LastError = reason

	if msg.Attempts < q.cfg.MaxRetries {
		wait := backoffFor(msg.Attempts, q.cfg.BaseBackoff, q.cfg.MaxBackoff, q.cfg.Jitter)
		applog.WithComponentAndFields(component, applog.Fields{
			"sms_id": msg.SMSID, "retry_count": msg.Attempts, "wait": wait,
		}).Warn("primary and fallback both failed, scheduling backoff retry")
		q.scheduleRetry(msg, wait, false)
		return
	}

	q.captureDeadLetter(msg, fallback)
}

// scheduleRetry re-inserts msg after wait without blocking the worker
// that handled it — the delay-wheel/timer-task mechanism spec §4.4 and §5
// require, built on stdlib's time.AfterFunc rather than a hand-rolled
// wheel since a handful of pending timers never needs one. atHead places
// msg at the head of its priority bucket (a rate-limited message that was
// never actually attempted); otherwise it goes to the tail (a genuine
// retry, so other queued traffic keeps its relative freshness).
func (q *Queue) scheduleRetry(msg domain.Message, wait time.Duration, atHead bool) {
	time.AfterFunc(wait, func() {
		q.mu.Lock()
		if !q.running {
			q.mu.Unlock()
			q.captureDeadLetter(msg, dispatch.Outcome{Reason: "queue stopped while message awaited retry"})
			return
		}
		q.pushLocked(msg, atHead)
		q.mu.Unlock()
		q.cond.Signal()
	})
}

// jitterPct adds up to ±pct of d as jitter, per spec §4.4's "sleep for d
// (with ±10% jitter)" on a rate-limited retry.
func jitterPct(d time.Duration, pct float64) time.Duration {
	if d <= 0 {
		return d
	}
	span := int64(float64(d) * pct)
	if span <= 0 {
		return d
	}
	delta := rand.Int63n(2*span+1) - span
	return d + time.Duration(delta)
}

// backoffFor computes the wait before a retry-count-bearing re-insertion:
// min(base*2^(retryCount-1) + U(0, jitter), maxBackoff), per spec §4.4's
// exact formula (BASE=2s, CAP=60s, JITTER=1s by default).
func backoffFor(retryCount int, base, maxBackoff, jitter time.Duration) time.Duration {
	backoff := base * time.Duration(uint64(1)<<uint(retryCount-1))
	if backoff > maxBackoff {
		backoff = maxBackoff
	}
	var j time.Duration
	if jitter > 0 {
		j = time.Duration(rand.Int63n(int64(jitter) + 1))
	}
	total := backoff + j
	if total > maxBackoff {
		total = maxBackoff
	}
	return total
}

// dispatchResultLabel maps a dispatch.Result to the metric label used by
// DispatchAttempts.
func dispatchResultLabel(r dispatch.Result) string {
	switch r {
	case dispatch.Delivered:
		return "delivered"
	case dispatch.RateLimited:
		return "rate_limited"
	case dispatch.TerminalError:
		return "terminal_error"
	default:
		return "transient_error"
	}
}

func (q *Queue) markDelivered(msg domain.Message, via domain.DeliveryChannel) {
	q.mu.Lock()
	q.totalDelivered++
	delete(q.inflight, msg.SMSID)
	q.mu.Unlock()
	metrics.QueueDelivered.Inc()

	applog.WithComponentAndFields(component, applog.Fields{
		"sms_id":  msg.SMSID,
		"channel": via,
	}).Info("message delivered")

	if q.bus != nil {
		q.bus.Publish(TopicMessageResult, domain.Message{SMSID: msg.SMSID, Status: domain.StatusDelivered, DeliveredVia: via, DeliveredAt: time.Now()})
	}
}

// captureDeadLetter hands msg off to the DLO with its final retry_count
// intact — msg is the caller's own copy, already carrying every Attempts
// increment process() made along the way, so no separate plumbing is
// needed to get retry_count to the DLO.
func (q *Queue) captureDeadLetter(msg domain.Message, outcome dispatch.Outcome) {
	q.mu.Lock()
	q.totalFailed++
	delete(q.inflight, msg.SMSID)
	q.mu.Unlock()
	metrics.QueueFailed.Inc()

	reason := outcome.Reason
	if outcome.Err != nil {
		reason = outcome.Err.Error()
	}
	if reason == "" {
		reason = msg.LastError
	}

	applog.WithComponentAndFields(component, applog.Fields{
		"sms_id":      msg.SMSID,
		"retry_count": msg.Attempts,
		"reason":      reason,
	}).Error("message exhausted all channels, capturing to dead letter office")

	msg.Status = domain.StatusDeadLetter
	msg.LastError = reason

	if q.bus != nil {
		q.bus.Publish(TopicDLOCapture, DLOCapturePayload{Message: msg, LastError: reason})
	}
}

// Stop flips the queue to non-accepting and lets worker goroutines drain
// whatever is still buffered, bounded by ShutdownGrace. A message that is
// mid-backoff when Stop is called is captured straight to the DLO by its
// pending scheduleRetry timer rather than silently dropped (see
// scheduleRetry).
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.running = false
	q.mu.Unlock()
	q.cond.Broadcast()

	done := make(chan struct{})
	go func() {
		q.workersWG.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(q.cfg.ShutdownGrace):
		applog.WithComponent(component).Warn("queue shutdown grace period exceeded, some workers may still be running")
	}
}
