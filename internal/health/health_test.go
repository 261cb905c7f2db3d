package health_test

import (
	"testing"
	"time"

	"github.com/cellbridge/sms-bridge/internal/domain"
	"github.com/cellbridge/sms-bridge/internal/events"
	"github.com/cellbridge/sms-bridge/internal/health"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIngestDetectsLowBatteryAndWeakSignal(t *testing.T) {
	m := health.New(health.Config{}, events.New())

	alerts := m.Ingest(domain.TelemetrySample{NodeID: "node-1", BatteryMV: 3000, WifiRSSI: -110})

	var kinds []domain.AlertKind
	for _, a := range alerts {
		kinds = append(kinds, a.Kind)
	}
	assert.Contains(t, kinds, domain.AlertLowBattery)
	assert.Contains(t, kinds, domain.AlertWeakSignal)
}

func TestIngestHealthyNodeRaisesNoAlerts(t *testing.T) {
	m := health.New(health.Config{}, events.New())
	alerts := m.Ingest(domain.TelemetrySample{NodeID: "node-1", BatteryMV: 4000, WifiRSSI: -60})
	assert.Empty(t, alerts)
}

func TestEvaluateDetectsHeartbeatTimeout(t *testing.T) {
	m := health.New(health.Config{HeartbeatTimeout: 100 * time.Millisecond}, events.New())
	m.Ingest(domain.TelemetrySample{NodeID: "node-1", BatteryMV: 4000, WifiRSSI: -60, ReceivedAt: time.Now().Add(-time.Second)})

	alerts := m.Evaluate(0, 100, 0)
	var found bool
	for _, a := range alerts {
		if a.Kind == domain.AlertHeartbeatTimeout {
			found = true
		}
	}
	assert.True(t, found)
}

func TestEvaluateDetectsQueueNearFull(t *testing.T) {
	m := health.New(health.Config{}, events.New())
	alerts := m.Evaluate(95, 100, 0)
	require.Len(t, alerts, 1)
	assert.Equal(t, domain.AlertQueueNearFull, alerts[0].Kind)
	assert.Equal(t, domain.SeverityEmergency, alerts[0].Severity)
}

func TestEvaluateDetectsDLOGrowth(t *testing.T) {
	m := health.New(health.Config{DLOGrowthMax: 10}, events.New())
	alerts := m.Evaluate(0, 100, 20)
	require.Len(t, alerts, 1)
	assert.Equal(t, domain.AlertDLOGrowth, alerts[0].Kind)
}

func TestIngestRecordsFullTelemetrySample(t *testing.T) {
	m := health.New(health.Config{}, events.New())
	m.Ingest(domain.TelemetrySample{
		NodeID:     "node-1",
		BatteryMV:  4000,
		WifiRSSI:   -60,
		WifiState:  2,
		Reconnects: 3,
		WDTResets:  1,
		UptimeSec:  3600,
		HeapFree:   18000,
	})

	states := m.Snapshot()
	require.Len(t, states, 1)
	assert.Equal(t, 2, states[0].LastWifiState)
	assert.Equal(t, 3, states[0].Reconnects)
	assert.EqualValues(t, 3600, states[0].UptimeSec)
	assert.Equal(t, 18000, states[0].HeapFree)
}

func TestIngestPublishesToBus(t *testing.T) {
	bus := events.New()
	received := make(chan domain.Alert, 4)
	bus.Subscribe(health.TopicAlert, func(payload any) {
		received <- payload.(domain.Alert)
	})

	m := health.New(health.Config{}, bus)
	m.Ingest(domain.TelemetrySample{NodeID: "node-1", BatteryMV: 3000, WifiRSSI: -60})

	select {
	case a := <-received:
		assert.Equal(t, domain.AlertLowBattery, a.Kind)
	case <-time.After(time.Second):
		t.Fatal("expected an alert to be published")
	}
}
