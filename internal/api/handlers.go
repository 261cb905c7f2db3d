package api

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/cellbridge/sms-bridge/internal/api/httputil"
	"github.com/cellbridge/sms-bridge/internal/bridge"
	"github.com/cellbridge/sms-bridge/internal/domain"
)

// inboundSMSRequest is the wire shape of POST /api/sms/inbound.
type inboundSMSRequest struct {
	SMSID     string `json:"sms_id"`
	Sender    string `json:"sender"`
	Body      string `json:"body"`
	Timestamp int64  `json:"timestamp"`
	NodeID    string `json:"node_id"`
	Priority  int    `json:"priority"`
	Encrypted bool   `json:"encrypted"`
}

// IngestSMS godoc
// @Summary Accept one inbound SMS record for delivery
// @Tags Ingest
// @Accept json
// @Produce json
// @Success 200 {object} httputil.Envelope
// @Failure 400 {object} httputil.Envelope
// @Failure 503 {object} httputil.Envelope
// @Router /api/sms/inbound [post]
func (h *Handler) IngestSMS(c echo.Context) error {
	var req inboundSMSRequest
	if err := c.Bind(&req); err != nil {
		return httputil.NewBadRequestError("malformed request body")
	}

	result, err := h.facade.IngestSMS(bridge.InboundSMS{
		SMSID:     req.SMSID,
		Sender:    req.Sender,
		Body:      req.Body,
		Timestamp: time.Unix(req.Timestamp, 0).UTC(),
		NodeID:    req.NodeID,
		Priority:  req.Priority,
		Encrypted: req.Encrypted,
	})
	if err != nil {
		return httputil.FromAppError(err)
	}

	return httputil.OK(c, map[string]any{
		"sms_id":      result.SMSID,
		"queue_depth": result.QueueDepth,
	})
}

// telemetryRequest is the wire shape of POST /api/telemetry.
type telemetryRequest struct {
	NodeID     string `json:"node_id"`
	BatteryMV  int    `json:"battery_mv"`
	WifiRSSI   int    `json:"wifi_rssi"`
	WifiState  int    `json:"wifi_state"`
	Reconnects int    `json:"reconnects"`
	WDTResets  int    `json:"wdt_resets"`
	UptimeSec  int64  `json:"uptime_sec"`
	HeapFree   int    `json:"heap_free"`
}

// IngestTelemetry godoc
// @Summary Record one edge-node telemetry sample
// @Tags Telemetry
// @Accept json
// @Produce json
// @Success 200 {object} httputil.Envelope
// @Failure 400 {object} httputil.Envelope
// @Router /api/telemetry [post]
func (h *Handler) IngestTelemetry(c echo.Context) error {
	var req telemetryRequest
	if err := c.Bind(&req); err != nil {
		return httputil.NewBadRequestError("malformed request body")
	}

	sample := domain.TelemetrySample{
		NodeID:     req.NodeID,
		BatteryMV:  req.BatteryMV,
		WifiRSSI:   req.WifiRSSI,
		WifiState:  req.WifiState,
		Reconnects: req.Reconnects,
		WDTResets:  req.WDTResets,
		UptimeSec:  req.UptimeSec,
		HeapFree:   req.HeapFree,
	}
	if err := h.facade.IngestTelemetry(sample); err != nil {
		return httputil.FromAppError(err)
	}

	return httputil.Message(c, "telemetry recorded")
}

// Health godoc
// @Summary Report overall system health
// @Tags System
// @Produce json
// @Success 200 {object} httputil.Envelope
// @Router /api/health [get]
func (h *Handler) Health(c echo.Context) error {
	connected := h.telegram != nil && h.telegram.Connected()
	report := h.facade.Report(connected)

	return httputil.OK(c, map[string]any{
		"status":     report.Status,
		"timestamp":  report.Timestamp,
		"components": report.Components,
	})
}

// Version godoc
// @Summary Report build version metadata
// @Tags System
// @Produce json
// @Success 200 {object} httputil.Envelope
// @Router /api/version [get]
func (h *Handler) Version(c echo.Context) error {
	return httputil.OK(c, buildInfoResponse())
}

// ListDeadLetters godoc
// @Summary List captured dead letters, bodies redacted
// @Tags DLO
// @Produce json
// @Success 200 {object} httputil.Envelope
// @Router /api/dlo [get]
func (h *Handler) ListDeadLetters(c echo.Context) error {
	letters := h.facade.ListDeadLetters()
	return httputil.OK(c, map[string]any{
		"count":        len(letters),
		"dead_letters": letters,
	})
}

// RetryDeadLetter godoc
// @Summary Re-enqueue a captured dead letter
// @Tags DLO
// @Produce json
// @Success 200 {object} httputil.Envelope
// @Failure 404 {object} httputil.Envelope
// @Router /api/dlo/{sms_id}/retry [post]
func (h *Handler) RetryDeadLetter(c echo.Context) error {
	smsID := c.Param("sms_id")
	if err := h.facade.RetryDeadLetter(smsID); err != nil {
		return httputil.FromAppError(err)
	}
	return httputil.Message(c, "re-enqueued")
}

// PurgeDeadLetters godoc
// @Summary Purge every dead letter
// @Tags DLO
// @Produce json
// @Success 200 {object} httputil.Envelope
// @Router /api/dlo [delete]
func (h *Handler) PurgeDeadLetters(c echo.Context) error {
	purged := h.facade.PurgeDeadLetters()
	return httputil.OK(c, map[string]any{"purged": purged})
}

// ListIncidents godoc
// @Summary List recent CTO-Agent incidents, newest first
// @Tags Incidents
// @Produce json
// @Param limit query int false "maximum number of incidents to return"
// @Success 200 {object} httputil.Envelope
// @Router /api/incidents [get]
func (h *Handler) ListIncidents(c echo.Context) error {
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		} else {
			return httputil.NewBadRequestError("limit must be an integer")
		}
	}

	incidents := h.facade.ListIncidents(limit)
	return httputil.OK(c, map[string]any{
		"count":     len(incidents),
		"incidents": incidents,
	})
}
