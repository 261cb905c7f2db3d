// Package ctoagent implements the autonomous alerting agent: it consumes
// health alerts off the event bus, suppresses duplicates within a
// per-alert-kind cooldown, derives an operator action, signs a canonical
// JSON payload with HMAC-SHA256 the way the teacher's auth.Authenticator
// hashes App Keys (constant-time compare, crypto/sha256), and posts it to
// an external automation webhook (n8n) with a bounded timeout.
package ctoagent

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cellbridge/sms-bridge/internal/domain"
	"github.com/cellbridge/sms-bridge/internal/metrics"
	applog "github.com/cellbridge/sms-bridge/pkg/log"
)

const component = "ctoagent"

// actionFor derives the recommended operator action from an alert kind
// (spec §4.7 step 1).
var actionFor = map[domain.AlertKind]string{
	domain.AlertHeartbeatTimeout: "restart_network_switch",
	domain.AlertWeakSignal:       "restart_network_switch",
	domain.AlertLowBattery:       "notify_operator",
	domain.AlertWDTStorm:         "restart_gateway_node",
	domain.AlertQueueNearFull:    "emergency_queue_drain",
	domain.AlertDLOGrowth:        "notify_operator",
}

// Config configures an Agent.
type Config struct {
	WebhookURL    string
	WebhookSecret string
	Cooldown      time.Duration
	HTTPTimeout   time.Duration
	RingSize      int
}

func (c *Config) setDefaults() {
	if c.Cooldown <= 0 {
		c.Cooldown = 300 * time.Second
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 10 * time.Second
	}
	if c.RingSize <= 0 {
		c.RingSize = 200
	}
}

// Agent is the CTO-Agent component.
type Agent struct {
	cfg    Config
	client *http.Client

	mu          sync.Mutex
	cooldownAt  map[domain.AlertKind]time.Time
	ring        []domain.Incident
	seq         int
	totalSent   int64
	totalSuppr  int64
	totalFailed int64
}

// New builds an Agent.
func New(cfg Config) *Agent {
	cfg.setDefaults()
	return &Agent{
		cfg:        cfg,
		client:     &http.Client{Timeout: cfg.HTTPTimeout},
		cooldownAt: make(map[domain.AlertKind]time.Time),
	}
}

// Handle processes one alert: checks its cooldown, and if clear, composes,
// signs and posts an Incident. Safe to call from the event bus's
// Publish — it holds its lock only for bookkeeping, never across the
// network call, matching the teacher's "lock for state, unlock for I/O"
// shape in Authenticator.Authenticate.
func (a *Agent) Handle(alert domain.Alert) domain.Incident {
	if alert.RaisedAt.IsZero() {
		alert.RaisedAt = time.Now()
	}

	a.mu.Lock()
	if until, ok := a.cooldownAt[alert.Kind]; ok && time.Now().Before(until) {
		a.totalSuppr++
		incident := a.newIncidentLocked(alert, domain.WebhookSuppressed)
		a.mu.Unlock()
		applog.WithComponentAndFields(component, applog.Fields{"kind": alert.Kind}).Info("alert suppressed by cooldown")
		metrics.RecordIncident(string(domain.WebhookSuppressed))
		return incident
	}
	a.mu.Unlock()

	action := actionFor[alert.Kind]
	incidentID := a.nextID()

	payload := domain.WebhookPayload{
		ID:        incidentID,
		AlertType: alert.Kind,
		Severity:  alert.Severity,
		Action:    action,
		Issues:    alert.Issues,
		Timestamp: alert.RaisedAt.UTC().Format(time.RFC3339),
	}
	if alert.NodeID != "" {
		nodeID := alert.NodeID
		payload.SubjectNodeID = &nodeID
	}

	status := a.post(payload)

	a.mu.Lock()
	defer a.mu.Unlock()

	incident := domain.Incident{
		ID:            incidentID,
		Kind:          alert.Kind,
		Severity:      alert.Severity,
		NodeID:        alert.NodeID,
		Issues:        alert.Issues,
		Action:        action,
		RaisedAt:      alert.RaisedAt,
		WebhookStatus: status,
	}

	// Cooldown engages only on a non-network-failure outcome, so a
	// transport failure lets the very next alert of this kind retry.
	if status != domain.WebhookFailed {
		a.cooldownAt[alert.Kind] = time.Now().Add(a.cfg.Cooldown)
	}
	if status == domain.WebhookDelivered {
		a.totalSent++
	} else if status == domain.WebhookFailed {
		a.totalFailed++
	}
	metrics.RecordIncident(string(status))

	a.appendRingLocked(incident)
	return incident
}

// post canonicalizes payload, signs it, and POSTs it to the webhook URL.
func (a *Agent) post(payload domain.WebhookPayload) domain.WebhookStatus {
	if a.cfg.WebhookURL == "" {
		return domain.WebhookFailed
	}

	body, err := canonicalJSON(payload)
	if err != nil {
		applog.WithComponentAndFields(component, applog.Fields{"error": err}).Error("failed to marshal incident payload")
		return domain.WebhookFailed
	}

	signature := sign(a.cfg.WebhookSecret, body)

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTPTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return domain.WebhookFailed
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Signature", "sha256="+signature)
	req.Header.Set("X-Incident-Id", payload.ID)

	resp, err := a.client.Do(req)
	if err != nil {
		applog.WithComponentAndFields(component, applog.Fields{"error": err}).Warn("webhook delivery failed")
		return domain.WebhookFailed
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return domain.WebhookDelivered
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		// A 4xx is the endpoint rejecting us, not a transport failure —
		// still engages the cooldown per spec §4.7 step 6.
		return domain.WebhookDelivered
	default:
		return domain.WebhookFailed
	}
}

// canonicalJSON marshals v with sorted keys and no extraneous whitespace, so
// the bytes that get HMAC-signed are independent of struct field order.
// encoding/json sorts map keys on Marshal but not struct-tag keys, so this
// round-trips through a map to get the sort for free rather than hand-rolling
// a key-ordering marshaler.
func canonicalJSON(v domain.WebhookPayload) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return json.Marshal(m)
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (a *Agent) nextID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.seq++
	return fmt.Sprintf("inc-%s-%d", time.Now().UTC().Format("20060102"), a.seq)
}

func (a *Agent) newIncidentLocked(alert domain.Alert, status domain.WebhookStatus) domain.Incident {
	a.seq++
	incident := domain.Incident{
		ID:            fmt.Sprintf("inc-%s-%d", time.Now().UTC().Format("20060102"), a.seq),
		Kind:          alert.Kind,
		Severity:      alert.Severity,
		NodeID:        alert.NodeID,
		Issues:        alert.Issues,
		Action:        actionFor[alert.Kind],
		RaisedAt:      alert.RaisedAt,
		WebhookStatus: status,
	}
	a.appendRingLocked(incident)
	return incident
}

// appendRingLocked assumes a.mu is already held.
func (a *Agent) appendRingLocked(incident domain.Incident) {
	a.ring = append(a.ring, incident)
	if len(a.ring) > a.cfg.RingSize {
		a.ring = a.ring[len(a.ring)-a.cfg.RingSize:]
	}
}

// Incidents returns up to limit of the most recent incidents, newest
// first. limit <= 0 returns the full ring.
func (a *Agent) Incidents(limit int) []domain.Incident {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := len(a.ring)
	if limit > 0 && limit < n {
		n = limit
	}

	result := make([]domain.Incident, n)
	for i := 0; i < n; i++ {
		result[i] = a.ring[len(a.ring)-1-i]
	}
	return result
}

// Snapshot is a point-in-time view of the agent's counters, for GET
// /api/metrics.
type Snapshot struct {
	TotalSent      int64
	TotalSuppressed int64
	TotalFailed    int64
}

func (a *Agent) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Snapshot{TotalSent: a.totalSent, TotalSuppressed: a.totalSuppr, TotalFailed: a.totalFailed}
}
