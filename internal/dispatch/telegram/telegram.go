// Package telegram implements the primary OTP delivery channel: one chat,
// one bot token, a send-permit rate limiter and response classification
// into dispatch.Outcome. Grounded on the teacher's
// internal/service/notification/notifier/telegram/message_sender.go
// attemptSendWithRetry/parseTelegramError/shouldRetry, trimmed to a single
// attempt per call (the queue owns retry/backoff policy, §4.4) and to
// plain text (an OTP body carries no HTML formatting).
package telegram

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cellbridge/sms-bridge/internal/cryptobox"
	"github.com/cellbridge/sms-bridge/internal/dispatch"
	"github.com/cellbridge/sms-bridge/internal/domain"
	apperrors "github.com/cellbridge/sms-bridge/internal/pkg/errors"
	applog "github.com/cellbridge/sms-bridge/pkg/log"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"
)

const component = "dispatch.telegram"

// messageMaxLength is Telegram's hard per-message byte limit.
const messageMaxLength = 4096

// Config configures a Dispatcher.
type Config struct {
	BotToken string
	ChatID   int64

	// RatePerSecond bounds outbound sends; spec §4.2 step 1 calls for a
	// 30/sec permit limiter shared across all Telegram sends.
	RatePerSecond rate.Limit
	Burst         int
}

// Dispatcher sends OTP messages to a single Telegram chat.
type Dispatcher struct {
	client      *tgbotapi.BotAPI
	chatID      int64
	rateLimiter *rate.Limiter
	box         *cryptobox.Box

	totalSent        atomic.Int64
	totalRateLimited atomic.Int64
	totalErrors      atomic.Int64
}

// New builds a Dispatcher from cfg, dialing the Telegram Bot API to
// validate the token up front.
func New(cfg Config, box *cryptobox.Box) (*Dispatcher, error) {
	client, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.Unavailable, "failed to initialize telegram bot client")
	}

	limit := cfg.RatePerSecond
	if limit <= 0 {
		limit = rate.Limit(30)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = int(limit)
		if burst < 1 {
			burst = 1
		}
	}

	return &Dispatcher{
		client:      client,
		chatID:      cfg.ChatID,
		rateLimiter: rate.NewLimiter(limit, burst),
		box:         box,
	}, nil
}

// Connected reports whether the underlying bot client successfully
// authenticated with Telegram at construction time.
func (d *Dispatcher) Connected() bool {
	return d.client != nil
}

// Send decrypts msg's body and delivers it to the configured chat in a
// single attempt, returning a dispatch.Outcome classifying the result.
func (d *Dispatcher) Send(ctx context.Context, msg domain.Message) dispatch.Outcome {
	if err := d.rateLimiter.Wait(ctx); err != nil {
		return dispatch.TransientOutcome("rate_limiter_wait_cancelled", err)
	}

	plaintext, err := d.box.Decrypt(msg.Body)
	if err != nil {
		return dispatch.TerminalOutcome("invalid_token", err)
	}

	text := msg.Sender + ": " + string(plaintext)
	if len(text) > messageMaxLength {
		chunk, _ := safeSplit(text, messageMaxLength)
		text = chunk
	}

	messageConfig := tgbotapi.NewMessage(d.chatID, text)
	messageConfig.ParseMode = ""

	select {
	case <-ctx.Done():
		return dispatch.TransientOutcome("context_cancelled", ctx.Err())
	default:
	}

	_, sendErr := d.client.Send(messageConfig)
	if sendErr == nil {
		d.totalSent.Add(1)
		applog.WithComponentAndFields(component, applog.Fields{
			"sms_id":  msg.SMSID,
			"node_id": msg.NodeID,
		}).Info("telegram delivery succeeded")
		return dispatch.DeliveredOutcome()
	}

	code, retryAfter := parseTelegramError(sendErr)
	applog.WithComponentAndFields(component, applog.Fields{
		"sms_id":  msg.SMSID,
		"node_id": msg.NodeID,
		"code":    code,
		"error":   sendErr,
	}).Warn("telegram delivery attempt failed")

	if code == 429 {
		d.totalRateLimited.Add(1)
		wait := time.Duration(retryAfter) * time.Second
		return dispatch.RateLimitedOutcome(wait, sendErr)
	}

	d.totalErrors.Add(1)
	if code >= 400 && code < 500 {
		return dispatch.TerminalOutcome("telegram_client_error", sendErr)
	}
	return dispatch.TransientOutcome("telegram_unavailable", sendErr)
}

// Counters is a point-in-time snapshot for GET /api/metrics.
type Counters struct {
	TotalSent        int64
	TotalRateLimited int64
	TotalErrors      int64
	Connected        bool
}

// Snapshot returns the current counters.
func (d *Dispatcher) Snapshot() Counters {
	return Counters{
		TotalSent:        d.totalSent.Load(),
		TotalRateLimited: d.totalRateLimited.Load(),
		TotalErrors:      d.totalErrors.Load(),
		Connected:        d.Connected(),
	}
}

func parseTelegramError(err error) (code int, retryAfter int) {
	if apiErr, ok := err.(tgbotapi.Error); ok {
		return apiErr.Code, apiErr.ResponseParameters.RetryAfter
	}
	if apiErrPtr, ok := err.(*tgbotapi.Error); ok {
		return apiErrPtr.Code, apiErrPtr.ResponseParameters.RetryAfter
	}
	return 0, 0
}
