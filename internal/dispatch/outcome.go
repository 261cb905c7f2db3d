// Package dispatch defines the result shape shared by every delivery
// channel (Telegram, Email): a dispatcher classifies its own failures into
// one of four buckets so the queue worker can apply one retry/backoff
// policy regardless of which channel produced the outcome.
package dispatch

import (
	"context"
	"time"

	"github.com/cellbridge/sms-bridge/internal/domain"
)

// Dispatcher is the interface the queue worker drives; Telegram and Email
// both implement it so the worker's retry/fallback logic never depends on
// channel-specific types.
type Dispatcher interface {
	Send(ctx context.Context, msg domain.Message) Outcome
}

// Result is the coarse-grained classification a dispatcher reduces its
// send attempt to.
type Result int

const (
	// Delivered means the channel accepted the message.
	Delivered Result = iota

	// RateLimited means the channel is throttling; RetryAfter (if > 0)
	// names how long to wait before the next attempt.
	RateLimited

	// TransientError means the attempt failed for a reason likely to
	// clear on its own (network error, timeout, 5xx).
	TransientError

	// TerminalError means the attempt failed for a reason retrying will
	// not fix (bad credentials, malformed recipient, 4xx other than 429).
	TerminalError
)

// Outcome is what Send returns: a classification plus enough context for
// the queue worker to log and decide on the next step.
type Outcome struct {
	Result     Result
	RetryAfter time.Duration
	Reason     string
	Err        error
}

// DeliveredOutcome builds a success Outcome.
func DeliveredOutcome() Outcome {
	return Outcome{Result: Delivered}
}

// RateLimitedOutcome builds a rate-limited Outcome with the wait duration
// the channel asked for (zero if none was given).
func RateLimitedOutcome(retryAfter time.Duration, err error) Outcome {
	return Outcome{Result: RateLimited, RetryAfter: retryAfter, Reason: "rate_limited", Err: err}
}

// TransientOutcome builds a retryable-failure Outcome.
func TransientOutcome(reason string, err error) Outcome {
	return Outcome{Result: TransientError, Reason: reason, Err: err}
}

// TerminalOutcome builds a non-retryable-failure Outcome.
func TerminalOutcome(reason string, err error) Outcome {
	return Outcome{Result: TerminalError, Reason: reason, Err: err}
}
