package domain

import "time"

// TelemetrySample is one heartbeat reported by an edge node.
type TelemetrySample struct {
	NodeID     string
	ReceivedAt time.Time
	BatteryMV  int
	WifiRSSI   int
	WifiState  int // enum 0..4, meaning defined by the edge firmware
	Reconnects int
	WDTResets  int
	UptimeSec  int64
	HeapFree   int // bytes
}

// NodeState is the health monitor's current view of one edge node,
// aggregated from the telemetry samples it has ingested.
type NodeState struct {
	NodeID        string
	LastSeen      time.Time
	LastBatteryMV int
	LastWifiRSSI  int
	LastWifiState int
	Reconnects    int
	WDTResets     int
	UptimeSec     int64
	HeapFree      int
	SamplesTotal  int64
}

// Stale reports whether the node has not been heard from within timeout.
func (n NodeState) Stale(now time.Time, timeout time.Duration) bool {
	return n.LastSeen.IsZero() || now.Sub(n.LastSeen) > timeout
}

// AlertKind names a distinct class of health condition, used both for the
// health monitor's rule table and for the CTO-Agent's per-kind cooldown.
type AlertKind string

const (
	AlertHeartbeatTimeout AlertKind = "heartbeat_timeout"
	AlertLowBattery       AlertKind = "low_battery"
	AlertWeakSignal       AlertKind = "weak_signal"
	AlertWDTStorm         AlertKind = "wdt_storm"
	AlertQueueNearFull    AlertKind = "queue_near_full"
	AlertDLOGrowth        AlertKind = "dlo_growth"
)

// Severity ranks an Alert/Incident for display and action derivation.
type Severity string

const (
	SeverityInfo      Severity = "info"
	SeverityWarning   Severity = "warning"
	SeverityCritical  Severity = "critical"
	SeverityEmergency Severity = "emergency"
)

// Alert is a single rule-evaluation hit, raised by the health monitor.
type Alert struct {
	Kind      AlertKind
	Severity  Severity
	NodeID    string // empty for system-wide alerts (queue/DLO growth)
	Issues    []string
	Value     float64
	Threshold float64
	RaisedAt  time.Time
}

// WebhookStatus records what happened when the CTO-Agent tried to deliver
// an Incident to the external automation endpoint.
type WebhookStatus string

const (
	WebhookDelivered  WebhookStatus = "delivered"
	WebhookSuppressed WebhookStatus = "suppressed"
	WebhookFailed     WebhookStatus = "failed"
)

// Incident is what the CTO-Agent derives from an Alert that survives its
// cooldown gate: an action recommendation plus the signed payload it POSTs.
type Incident struct {
	ID            string
	Kind          AlertKind
	Severity      Severity
	NodeID        string
	Issues        []string
	Action        string
	RaisedAt      time.Time
	WebhookStatus WebhookStatus
}

// WebhookPayload is the canonical JSON body signed and POSTed for an
// Incident: {id, alert_type, severity, action, issues, timestamp, subject_node_id}.
type WebhookPayload struct {
	ID             string   `json:"id"`
	AlertType      AlertKind `json:"alert_type"`
	Severity       Severity `json:"severity"`
	Action         string   `json:"action"`
	Issues         []string `json:"issues"`
	Timestamp      string   `json:"timestamp"`
	SubjectNodeID  *string  `json:"subject_node_id"`
}
