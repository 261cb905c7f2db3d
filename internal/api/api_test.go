package api_test

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cellbridge/sms-bridge/internal/api"
	"github.com/cellbridge/sms-bridge/internal/bridge"
	"github.com/cellbridge/sms-bridge/internal/ctoagent"
	"github.com/cellbridge/sms-bridge/internal/cryptobox"
	"github.com/cellbridge/sms-bridge/internal/dispatch"
	"github.com/cellbridge/sms-bridge/internal/dlo"
	"github.com/cellbridge/sms-bridge/internal/domain"
	"github.com/cellbridge/sms-bridge/internal/events"
	"github.com/cellbridge/sms-bridge/internal/health"
	"github.com/cellbridge/sms-bridge/internal/queue"
)

type stubDispatcher struct{ outcome dispatch.Outcome }

func (s stubDispatcher) Send(ctx context.Context, msg domain.Message) dispatch.Outcome {
	return s.outcome
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	key := make([]byte, cryptobox.KeySize)
	_, err := rand.Read(key)
	require.NoError(t, err)
	box, err := cryptobox.New(key)
	require.NoError(t, err)

	bus := events.New()
	primary := stubDispatcher{outcome: dispatch.DeliveredOutcome()}
	q := queue.New(queue.Config{Capacity: 4, Workers: 1}, primary, primary, bus)
	q.Start()
	t.Cleanup(func() { q.Stop() })

	office := dlo.New(dlo.Config{})
	monitor := health.New(health.Config{}, bus)
	agent := ctoagent.New(ctoagent.Config{})

	facade := bridge.New(bus, q, office, monitor, agent, box)
	handler := api.NewHandler(facade, agent, nil)
	e := api.NewServer(api.ServerConfig{}, handler)

	return httptest.NewServer(e)
}

func TestIngestSMSEndpointAcceptsValidRequest(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	body := `{"sms_id":"sms-1","sender":"+1000","body":"hello","node_id":"node-a"}`
	resp, err := http.Post(srv.URL+"/api/sms/inbound", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var env map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	assert.Equal(t, true, env["success"])
}

func TestIngestSMSEndpointAcceptsTimestampAndEncryptedFlag(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	body := `{"sms_id":"sms-ts","sender":"+1000","body":"hello","node_id":"node-a","timestamp":1700000000,"encrypted":false}`
	resp, err := http.Post(srv.URL+"/api/sms/inbound", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestIngestSMSEndpointRejectsMissingSender(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	body := `{"sms_id":"sms-2","sender":"","body":"hello"}`
	resp, err := http.Post(srv.URL+"/api/sms/inbound", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTelemetryEndpointAcceptsFullSample(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	body := `{"node_id":"node-a","battery_mv":3900,"wifi_rssi":-55,"wifi_state":2,"reconnects":1,"wdt_resets":0,"uptime_sec":86400,"heap_free":20480}`
	resp, err := http.Post(srv.URL+"/api/telemetry", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHealthEndpointReportsHealthy(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestDLORetryEndpointReturnsNotFoundForUnknownID(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/dlo/does-not-exist/retry", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestIncidentsEndpointRejectsNonIntegerLimit(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/incidents?limit=nope")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
