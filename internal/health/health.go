// Package health implements the node health aggregator: it ingests
// telemetry samples from edge nodes, keeps a read-mostly per-node state
// table guarded by a sync.RWMutex (the concurrency model the teacher
// uses for its job registry in internal/service/scheduler), evaluates a
// fixed rule table for threshold breaches and heartbeat timeouts, and
// publishes resulting alerts to the event bus for the CTO-Agent to pick
// up — it never dispatches anything itself.
package health

import (
	"time"

	"github.com/cellbridge/sms-bridge/internal/domain"
	"github.com/cellbridge/sms-bridge/internal/events"
	"github.com/cellbridge/sms-bridge/internal/metrics"
	applog "github.com/cellbridge/sms-bridge/pkg/log"

	"sync"
)

const component = "health"

// TopicAlert is published on the event bus every time evaluate() produces
// a new alert, node-specific or system-wide.
const TopicAlert = "health.alert"

// Config configures a Monitor's thresholds. Any zero value falls back to
// the default in setDefaults; the caller decides where each value comes
// from.
type Config struct {
	HeartbeatTimeout time.Duration
	BatteryLowMV     int
	WifiWeakDBM      int
	WDTStormWindow   time.Duration
	WDTStormDelta    int
	QueueNearFullPct float64
	DLOGrowthMax     int
}

func (c *Config) setDefaults() {
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = 120 * time.Second
	}
	if c.BatteryLowMV <= 0 {
		c.BatteryLowMV = 3300
	}
	if c.WifiWeakDBM == 0 {
		c.WifiWeakDBM = -100
	}
	if c.WDTStormWindow <= 0 {
		c.WDTStormWindow = time.Hour
	}
	if c.WDTStormDelta <= 0 {
		c.WDTStormDelta = 5
	}
	if c.QueueNearFullPct <= 0 {
		c.QueueNearFullPct = 0.9
	}
	if c.DLOGrowthMax <= 0 {
		c.DLOGrowthMax = 500
	}
}

// wdtBaseline tracks the watchdog-reset count and the time it was last
// reset, so wdt_storm can measure a delta within a rolling window.
type wdtBaseline struct {
	count   int
	sinceAt time.Time
}

// Monitor is the Health Monitor component.
type Monitor struct {
	cfg Config
	bus *events.Bus

	mu    sync.RWMutex
	nodes map[string]domain.NodeState
	wdt   map[string]wdtBaseline
}

// New builds a Monitor.
func New(cfg Config, bus *events.Bus) *Monitor {
	cfg.setDefaults()
	return &Monitor{
		cfg:   cfg,
		bus:   bus,
		nodes: make(map[string]domain.NodeState),
		wdt:   make(map[string]wdtBaseline),
	}
}

// Ingest records one telemetry sample and immediately evaluates the
// node-scoped rules for it (per spec: "evaluated on every ingest and on
// a 15-second timer").
func (m *Monitor) Ingest(sample domain.TelemetrySample) []domain.Alert {
	if sample.ReceivedAt.IsZero() {
		sample.ReceivedAt = time.Now()
	}

	m.mu.Lock()
	state := m.nodes[sample.NodeID]
	state.NodeID = sample.NodeID
	state.LastSeen = sample.ReceivedAt
	state.LastBatteryMV = sample.BatteryMV
	state.LastWifiRSSI = sample.WifiRSSI
	state.LastWifiState = sample.WifiState
	state.Reconnects = sample.Reconnects
	state.WDTResets = sample.WDTResets
	state.UptimeSec = sample.UptimeSec
	state.HeapFree = sample.HeapFree
	state.SamplesTotal++
	m.nodes[sample.NodeID] = state

	base, ok := m.wdt[sample.NodeID]
	if !ok || sample.ReceivedAt.Sub(base.sinceAt) > m.cfg.WDTStormWindow {
		base = wdtBaseline{count: sample.WDTResets, sinceAt: sample.ReceivedAt}
		m.wdt[sample.NodeID] = base
	}
	m.mu.Unlock()

	alerts := m.evaluateNode(state, base)
	m.publish(alerts)
	return alerts
}

// Snapshot returns a copy of every node's current state, for GET
// /api/health and GET /api/metrics.
func (m *Monitor) Snapshot() []domain.NodeState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]domain.NodeState, 0, len(m.nodes))
	for _, st := range m.nodes {
		result = append(result, st)
	}
	return result
}

// Evaluate is the timer-driven pass over every known node plus the
// two externally-fed system-wide rules (queue_near_full, dlo_growth).
// Intended to be driven by the scheduler on a 15-second tick.
func (m *Monitor) Evaluate(queueDepth, queueCapacity, dloSize int) []domain.Alert {
	m.mu.RLock()
	states := make([]domain.NodeState, 0, len(m.nodes))
	for _, st := range m.nodes {
		states = append(states, st)
	}
	bases := make(map[string]wdtBaseline, len(m.wdt))
	for k, v := range m.wdt {
		bases[k] = v
	}
	m.mu.RUnlock()

	var alerts []domain.Alert
	for _, st := range states {
		alerts = append(alerts, m.evaluateNode(st, bases[st.NodeID])...)
	}

	if queueCapacity > 0 && float64(queueDepth) > m.cfg.QueueNearFullPct*float64(queueCapacity) {
		alerts = append(alerts, domain.Alert{
			Kind:      domain.AlertQueueNearFull,
			Severity:  domain.SeverityEmergency,
			Issues:    []string{"queue depth exceeds 90% of capacity"},
			Value:     float64(queueDepth),
			Threshold: m.cfg.QueueNearFullPct * float64(queueCapacity),
			RaisedAt:  time.Now(),
		})
	}

	if dloSize > m.cfg.DLOGrowthMax {
		alerts = append(alerts, domain.Alert{
			Kind:      domain.AlertDLOGrowth,
			Severity:  domain.SeverityWarning,
			Issues:    []string{"dead letter office size crossed configured threshold"},
			Value:     float64(dloSize),
			Threshold: float64(m.cfg.DLOGrowthMax),
			RaisedAt:  time.Now(),
		})
	}

	m.publish(alerts)
	return alerts
}

// evaluateNode runs the per-node rule table (heartbeat_timeout,
// low_battery, weak_signal, wdt_storm) against one node's current state.
func (m *Monitor) evaluateNode(st domain.NodeState, base wdtBaseline) []domain.Alert {
	if st.NodeID == "" {
		return nil
	}

	now := time.Now()
	var alerts []domain.Alert

	if st.Stale(now, m.cfg.HeartbeatTimeout) {
		alerts = append(alerts, domain.Alert{
			Kind:      domain.AlertHeartbeatTimeout,
			Severity:  domain.SeverityCritical,
			NodeID:    st.NodeID,
			Issues:    []string{"node has not reported within the heartbeat timeout"},
			Value:     now.Sub(st.LastSeen).Seconds(),
			Threshold: m.cfg.HeartbeatTimeout.Seconds(),
			RaisedAt:  now,
		})
	}

	if st.LastBatteryMV > 0 && st.LastBatteryMV < m.cfg.BatteryLowMV {
		alerts = append(alerts, domain.Alert{
			Kind:      domain.AlertLowBattery,
			Severity:  domain.SeverityWarning,
			NodeID:    st.NodeID,
			Issues:    []string{"battery voltage below configured threshold"},
			Value:     float64(st.LastBatteryMV),
			Threshold: float64(m.cfg.BatteryLowMV),
			RaisedAt:  now,
		})
	}

	if st.LastWifiRSSI < m.cfg.WifiWeakDBM {
		alerts = append(alerts, domain.Alert{
			Kind:      domain.AlertWeakSignal,
			Severity:  domain.SeverityWarning,
			NodeID:    st.NodeID,
			Issues:    []string{"wifi signal below configured threshold"},
			Value:     float64(st.LastWifiRSSI),
			Threshold: float64(m.cfg.WifiWeakDBM),
			RaisedAt:  now,
		})
	}

	if delta := st.WDTResets - base.count; delta > m.cfg.WDTStormDelta {
		alerts = append(alerts, domain.Alert{
			Kind:      domain.AlertWDTStorm,
			Severity:  domain.SeverityWarning,
			NodeID:    st.NodeID,
			Issues:    []string{"watchdog reset count spiked within the window"},
			Value:     float64(delta),
			Threshold: float64(m.cfg.WDTStormDelta),
			RaisedAt:  now,
		})
	}

	return alerts
}

func (m *Monitor) publish(alerts []domain.Alert) {
	if m.bus == nil {
		return
	}
	for _, a := range alerts {
		applog.WithComponentAndFields(component, applog.Fields{"kind": a.Kind, "node_id": a.NodeID}).Warn("health alert raised")
		metrics.RecordAlert(string(a.Kind))
		m.bus.Publish(TopicAlert, a)
	}
}
