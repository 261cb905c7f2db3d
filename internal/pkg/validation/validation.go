// Package validation holds small validators shared by config loading and
// request handling that don't fit a single struct tag on validator/v10.
package validation

import (
	"fmt"
	"net/url"
	"os"
	"time"

	apperrors "github.com/cellbridge/sms-bridge/internal/pkg/errors"
	applog "github.com/cellbridge/sms-bridge/pkg/log"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

var cronParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateCronExpression validates a robfig/cron seconds-resolution
// expression, the format used by the DLO prune and health-eval timers.
func ValidateCronExpression(spec string) error {
	if _, err := cronParser.Parse(spec); err != nil {
		return apperrors.Wrap(err, apperrors.InvalidInput, fmt.Sprintf("invalid cron expression: %s", spec))
	}
	return nil
}

// ValidateDuration validates a Go duration string (e.g. "10s", "2m").
func ValidateDuration(d string) error {
	if _, err := time.ParseDuration(d); err != nil {
		return apperrors.Wrap(err, apperrors.InvalidInput, fmt.Sprintf("invalid duration: %s (example: 2s, 100ms, 1m)", d))
	}
	return nil
}

// ValidateURL checks that urlStr is an absolute http(s) URL with a host,
// used for N8N_WEBHOOK_URL.
func ValidateURL(urlStr string) error {
	if urlStr == "" {
		return nil
	}

	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return apperrors.Wrap(err, apperrors.InvalidInput, fmt.Sprintf("invalid URL: %s", urlStr))
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return apperrors.New(apperrors.InvalidInput, fmt.Sprintf("URL must use http or https scheme: %s", urlStr))
	}
	if parsedURL.Host == "" {
		return apperrors.New(apperrors.InvalidInput, fmt.Sprintf("URL has no host: %s", urlStr))
	}
	return nil
}

// ValidatePort checks port is in the valid TCP range, warning (not failing)
// on privileged ports below 1024.
func ValidatePort(port int) error {
	if port < 1 || port > 65535 {
		return apperrors.New(apperrors.InvalidInput, fmt.Sprintf("port must be in range 1-65535, got %d", port))
	}
	if port < 1024 {
		applog.WithComponentAndFields("validation", log.Fields{"port": port}).
			Warn("ports below 1024 are privileged and may require elevated permissions")
	}
	return nil
}

// ValidateFileExists checks path exists, optionally degrading a missing
// file to a warning instead of an error.
func ValidateFileExists(path string, warnOnly bool) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			msg := apperrors.New(apperrors.NotFound, fmt.Sprintf("file does not exist: %s", path))
			if warnOnly {
				applog.WithComponentAndFields("validation", log.Fields{"file_path": path}).Warn(msg.Error())
				return nil
			}
			return msg
		}
		return apperrors.Wrap(err, apperrors.Internal, fmt.Sprintf("error accessing file: %s", path))
	}
	return nil
}
