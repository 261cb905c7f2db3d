// Package dlo implements the Dead Letter Office: a bounded, TTL-pruned
// store of messages that exhausted every delivery channel, with manual
// retry back into the queue. Grounded on the size-capped, oldest-first
// eviction and FirstError/LastError/RetryAfter bookkeeping of
// DeadLetterQueue in nasnet-panel's internal/notifications/deadletter.go,
// adapted from an unlimited-backoff retry store to the bridge's fixed
// TTL + manual-retry model.
package dlo

import (
	"sync"
	"time"

	"github.com/cellbridge/sms-bridge/internal/domain"
	"github.com/cellbridge/sms-bridge/internal/metrics"
	apperrors "github.com/cellbridge/sms-bridge/internal/pkg/errors"
	applog "github.com/cellbridge/sms-bridge/pkg/log"
)

const component = "dlo"

// Config configures an Office.
type Config struct {
	MaxSize int
	TTL     time.Duration
}

func (c *Config) setDefaults() {
	if c.MaxSize <= 0 {
		c.MaxSize = 1000
	}
	if c.TTL <= 0 {
		c.TTL = 72 * time.Hour
	}
}

// Office is the Dead Letter Office store.
type Office struct {
	cfg Config

	mu       sync.RWMutex
	order    []string // sms_id, oldest first
	byID     map[string]domain.DeadLetter
	overflow int64
}

// New builds an Office.
func New(cfg Config) *Office {
	cfg.setDefaults()
	return &Office{
		cfg:  cfg,
		byID: make(map[string]domain.DeadLetter),
	}
}

// Capture records a message that exhausted all channels. If the office is
// at MaxSize, the oldest entry is evicted and dlo_overflow is incremented
// — the same oldest-first eviction nasnet's DeadLetterQueue.Enqueue uses.
func (o *Office) Capture(msg domain.Message, lastError string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	now := time.Now()
	dl := domain.DeadLetter{
		SMSID:       msg.SMSID,
		Sender:      msg.Sender,
		Body:        msg.Body,
		Timestamp:   msg.Timestamp,
		NodeID:      msg.NodeID,
		Priority:    msg.Priority,
		Encrypted:   msg.Encrypted,
		RetryCount:  msg.Attempts,
		LastError:   lastError,
		LastChannel: msg.LastChannel,
		CapturedAt:  now,
		ExpiresAt:   now.Add(o.cfg.TTL),
	}

	if _, exists := o.byID[dl.SMSID]; !exists {
		if len(o.order) >= o.cfg.MaxSize {
			oldest := o.order[0]
			o.order = o.order[1:]
			delete(o.byID, oldest)
			o.overflow++
			metrics.DLOOverflow.Inc()
			applog.WithComponentAndFields(component, applog.Fields{"evicted_sms_id": oldest}).Warn("dead letter office at capacity, evicted oldest entry")
		}
		o.order = append(o.order, dl.SMSID)
	}
	o.byID[dl.SMSID] = dl
	metrics.DLOSize.Set(float64(len(o.order)))

	applog.WithComponentAndFields(component, applog.Fields{"sms_id": dl.SMSID, "reason": lastError}).Error("message captured to dead letter office")
}

// List returns all current dead letters, oldest first.
func (o *Office) List() []domain.DeadLetter {
	o.mu.RLock()
	defer o.mu.RUnlock()

	result := make([]domain.DeadLetter, 0, len(o.order))
	for _, id := range o.order {
		result = append(result, o.byID[id])
	}
	return result
}

// Get returns a single dead letter by sms_id.
func (o *Office) Get(smsID string) (domain.DeadLetter, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	dl, ok := o.byID[smsID]
	return dl, ok
}

// Retry removes smsID from the office and returns it converted back into
// a fresh domain.Message (Attempts reset to zero, Status reset to
// StatusQueued), ready for Enqueue. Returns apperrors.NotFound if smsID
// is not present, or apperrors.InvalidInput if it has already expired.
func (o *Office) Retry(smsID string) (domain.Message, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	dl, ok := o.byID[smsID]
	if !ok {
		return domain.Message{}, apperrors.Newf(apperrors.NotFound, "no dead letter with sms_id %s", smsID)
	}
	if dl.Expired(time.Now()) {
		return domain.Message{}, apperrors.Newf(apperrors.InvalidInput, "dead letter %s has expired", smsID)
	}

	o.removeLocked(smsID)
	applog.WithComponentAndFields(component, applog.Fields{"sms_id": smsID}).Info("dead letter requeued for retry")

	return dl.ToMessage(time.Now()), nil
}

// Purge removes smsID unconditionally, regardless of expiry, and reports
// whether it was present. The DELETE endpoint empties the office through
// PurgeAll instead, and PruneExpired removes entries directly.
func (o *Office) Purge(smsID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, ok := o.byID[smsID]; !ok {
		return false
	}
	o.removeLocked(smsID)
	return true
}

// PurgeAll empties the office and returns how many entries were removed.
func (o *Office) PurgeAll() int {
	o.mu.Lock()
	defer o.mu.Unlock()

	n := len(o.order)
	o.order = nil
	o.byID = make(map[string]domain.DeadLetter)
	metrics.DLOSize.Set(0)
	return n
}

// PruneExpired removes every entry whose TTL has elapsed. Intended to be
// driven by the scheduler on a periodic tick.
func (o *Office) PruneExpired() int {
	o.mu.Lock()
	defer o.mu.Unlock()

	now := time.Now()
	var expired []string
	for _, id := range o.order {
		if o.byID[id].Expired(now) {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		o.removeLocked(id)
	}

	if len(expired) > 0 {
		applog.WithComponentAndFields(component, applog.Fields{"count": len(expired)}).Info("pruned expired dead letters")
	}
	return len(expired)
}

// removeLocked assumes o.mu is already held.
func (o *Office) removeLocked(smsID string) {
	delete(o.byID, smsID)
	for i, id := range o.order {
		if id == smsID {
			o.order = append(o.order[:i], o.order[i+1:]...)
			break
		}
	}
	metrics.DLOSize.Set(float64(len(o.order)))
}

// Snapshot is a point-in-time view of the office's size and overflow
// counter, for GET /api/metrics.
type Snapshot struct {
	Size     int
	MaxSize  int
	Overflow int64
}

func (o *Office) Snapshot() Snapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return Snapshot{Size: len(o.order), MaxSize: o.cfg.MaxSize, Overflow: o.overflow}
}
