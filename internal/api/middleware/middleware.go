// Package middleware holds the echo middleware shared across every
// Ingest Facade route: panic recovery and structured request logging.
// Grounded on the teacher's internal/service/api/middleware
// (panic_recovery.go, http_logging.go) — same recover-log-forward shape,
// generalized from "notify-server" logging fields to this module's.
package middleware

import (
	"fmt"
	"runtime"
	"time"

	"github.com/labstack/echo/v4"

	apperrors "github.com/cellbridge/sms-bridge/internal/pkg/errors"
	applog "github.com/cellbridge/sms-bridge/pkg/log"
)

const component = "api.middleware"

const stackBufferSize = 4 << 10

// PanicRecovery recovers a panicking handler, logs it with a stack
// trace, and hands the error to echo's error handler instead of
// crashing the process.
func PanicRecovery() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			defer func() {
				if r := recover(); r != nil {
					err, ok := r.(error)
					if !ok {
						err = apperrors.New(apperrors.Internal, fmt.Sprintf("%v", r))
					}

					stack := make([]byte, stackBufferSize)
					length := runtime.Stack(stack, false)

					applog.WithComponentAndFields(component, applog.Fields{
						"error":      err,
						"stack":      string(stack[:length]),
						"request_id": c.Response().Header().Get(echo.HeaderXRequestID),
					}).Error("panic recovered in handler")

					c.Error(err)
				}
			}()
			return next(c)
		}
	}
}

// RequestLogger logs one structured line per completed request.
func RequestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			res := c.Response()
			start := time.Now()

			if err := next(c); err != nil {
				c.Error(err)
			}

			latency := time.Since(start)
			applog.WithComponentAndFields(component, applog.Fields{
				"remote_ip":  c.RealIP(),
				"method":     req.Method,
				"path":       req.URL.Path,
				"status":     res.Status,
				"latency_ms": latency.Milliseconds(),
				"request_id": res.Header().Get(echo.HeaderXRequestID),
			}).Info("http request")

			return nil
		}
	}
}
