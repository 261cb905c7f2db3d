// Package api is the HTTP transport for the Ingest Facade: it exposes
// the bridge's operations over echo, translating requests into
// bridge.Facade calls and facade errors into the shared response
// envelope. Grounded on the teacher's internal/service/api/http_server.go
// middleware stack and ordering (recovery, request id, logging, body
// limit, timeout, CORS, security headers).
package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cellbridge/sms-bridge/internal/api/httputil"
	appmw "github.com/cellbridge/sms-bridge/internal/api/middleware"
	"github.com/cellbridge/sms-bridge/internal/bridge"
	"github.com/cellbridge/sms-bridge/internal/ctoagent"
	"github.com/cellbridge/sms-bridge/internal/dispatch/telegram"
	"github.com/cellbridge/sms-bridge/internal/pkg/version"
)

// ServerConfig configures the echo instance's cross-cutting behavior.
type ServerConfig struct {
	Debug          bool
	AllowOrigins   []string
	RequestTimeout time.Duration
	BodyLimit      string
}

func (c *ServerConfig) setDefaults() {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.BodyLimit == "" {
		c.BodyLimit = "1M"
	}
	if len(c.AllowOrigins) == 0 {
		c.AllowOrigins = []string{"*"}
	}
}

// Handler wires a Facade and its auxiliary components to the HTTP routes.
type Handler struct {
	facade    *bridge.Facade
	agent     *ctoagent.Agent
	telegram  *telegram.Dispatcher
	startedAt time.Time
}

// NewHandler builds a Handler. telegram may be nil in configurations
// that run email-only.
func NewHandler(facade *bridge.Facade, agent *ctoagent.Agent, tg *telegram.Dispatcher) *Handler {
	return &Handler{facade: facade, agent: agent, telegram: tg, startedAt: time.Now()}
}

// NewServer builds an echo.Echo with the standard middleware stack and
// every route from the external interface registered.
func NewServer(cfg ServerConfig, h *Handler) *echo.Echo {
	cfg.setDefaults()

	e := echo.New()
	e.Debug = cfg.Debug
	e.HideBanner = true
	e.HTTPErrorHandler = httputil.ErrorHandler

	e.Use(appmw.PanicRecovery())
	e.Use(echomw.RequestID())
	e.Use(appmw.RequestLogger())
	e.Use(echomw.BodyLimit(cfg.BodyLimit))
	e.Use(echomw.TimeoutWithConfig(echomw.TimeoutConfig{Timeout: cfg.RequestTimeout}))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
	}))
	e.Use(echomw.Secure())

	registerRoutes(e, h)

	return e
}

func registerRoutes(e *echo.Echo, h *Handler) {
	api := e.Group("/api")

	api.POST("/sms/inbound", h.IngestSMS)
	api.POST("/telemetry", h.IngestTelemetry)
	api.GET("/health", h.Health)
	api.GET("/version", h.Version)
	api.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	api.GET("/dlo", h.ListDeadLetters)
	api.POST("/dlo/:sms_id/retry", h.RetryDeadLetter)
	api.DELETE("/dlo", h.PurgeDeadLetters)
	api.GET("/incidents", h.ListIncidents)
}

// buildInfoResponse exposes the same build metadata the teacher's
// /version endpoint does.
func buildInfoResponse() version.Info {
	return version.Get()
}
