package ctoagent_test

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cellbridge/sms-bridge/internal/ctoagent"
	"github.com/cellbridge/sms-bridge/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var jsonKeyPattern = regexp.MustCompile(`"([a-z_]+)":`)

func TestHandleDeliversAndSigns(t *testing.T) {
	var gotSig string
	var gotBody []byte
	var hits atomic.Int64

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		gotSig = r.Header.Get("X-Signature")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	secret := "webhook-secret"
	agent := ctoagent.New(ctoagent.Config{WebhookURL: srv.URL, WebhookSecret: secret, Cooldown: time.Minute})

	incident := agent.Handle(domain.Alert{Kind: domain.AlertLowBattery, Severity: domain.SeverityWarning, NodeID: "node-1", Issues: []string{"low battery"}})

	require.EqualValues(t, 1, hits.Load())
	assert.Equal(t, domain.WebhookDelivered, incident.WebhookStatus)
	assert.Equal(t, "notify_operator", incident.Action)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(gotBody)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	assert.Equal(t, expected, gotSig)

	var payload domain.WebhookPayload
	require.NoError(t, json.Unmarshal(gotBody, &payload))
	assert.Equal(t, domain.AlertLowBattery, payload.AlertType)

	matches := jsonKeyPattern.FindAllStringSubmatch(string(gotBody), -1)
	var keys []string
	for _, m := range matches {
		keys = append(keys, m[1])
	}
	require.NotEmpty(t, keys)
	sorted := make([]string, len(keys))
	copy(sorted, keys)
	assert.True(t, func() bool {
		for i := 1; i < len(sorted); i++ {
			if sorted[i-1] > sorted[i] {
				return false
			}
		}
		return true
	}(), "signed payload keys must be in sorted order, got %v", keys)
}

func TestHandleSuppressesWithinCooldown(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	agent := ctoagent.New(ctoagent.Config{WebhookURL: srv.URL, Cooldown: time.Minute})

	first := agent.Handle(domain.Alert{Kind: domain.AlertLowBattery, Severity: domain.SeverityWarning})
	second := agent.Handle(domain.Alert{Kind: domain.AlertLowBattery, Severity: domain.SeverityWarning})

	assert.Equal(t, domain.WebhookDelivered, first.WebhookStatus)
	assert.Equal(t, domain.WebhookSuppressed, second.WebhookStatus)
	assert.EqualValues(t, 1, hits.Load())
}

func TestHandleNetworkFailureDoesNotEngageCooldown(t *testing.T) {
	agent := ctoagent.New(ctoagent.Config{WebhookURL: "http://127.0.0.1:1", HTTPTimeout: 200 * time.Millisecond, Cooldown: time.Minute})

	first := agent.Handle(domain.Alert{Kind: domain.AlertWDTStorm, Severity: domain.SeverityWarning})
	second := agent.Handle(domain.Alert{Kind: domain.AlertWDTStorm, Severity: domain.SeverityWarning})

	assert.Equal(t, domain.WebhookFailed, first.WebhookStatus)
	assert.Equal(t, domain.WebhookFailed, second.WebhookStatus)
}

func TestIncidentsReturnsNewestFirst(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	agent := ctoagent.New(ctoagent.Config{WebhookURL: srv.URL, Cooldown: time.Millisecond})

	agent.Handle(domain.Alert{Kind: domain.AlertLowBattery})
	time.Sleep(2 * time.Millisecond)
	agent.Handle(domain.Alert{Kind: domain.AlertWeakSignal})

	incidents := agent.Incidents(0)
	require.Len(t, incidents, 2)
	assert.Equal(t, domain.AlertWeakSignal, incidents[0].Kind)
}
