package domain

import "time"

// DeadLetter is a Message that exhausted both dispatch channels, held for
// manual inspection/retry until it expires.
type DeadLetter struct {
	SMSID       string
	Sender      string
	Body        string // still the ciphertext envelope
	Timestamp   time.Time
	NodeID      string
	Priority    int
	Encrypted   bool
	RetryCount  int
	LastError   string
	LastChannel DeliveryChannel
	CapturedAt  time.Time
	ExpiresAt   time.Time
}

// Redacted returns a copy of d with Body replaced by a sentinel.
func (d DeadLetter) Redacted() DeadLetter {
	d.Body = "[ENCRYPTED]"
	return d
}

// Expired reports whether d's TTL has elapsed as of now.
func (d DeadLetter) Expired(now time.Time) bool {
	return !d.ExpiresAt.IsZero() && now.After(d.ExpiresAt)
}

// ToMessage rebuilds a Message from d for re-enqueue via a DLO retry.
// Per spec, a manual retry resets retry state: Attempts and Status start
// clean, as if the message had just arrived.
func (d DeadLetter) ToMessage(enqueuedAt time.Time) Message {
	return Message{
		SMSID:      d.SMSID,
		Sender:     d.Sender,
		Body:       d.Body,
		Timestamp:  d.Timestamp,
		NodeID:     d.NodeID,
		Priority:   d.Priority,
		Encrypted:  true, // Body in the DLO is always already our own ciphertext envelope
		EnqueuedAt: enqueuedAt,
		Status:     StatusQueued,
		Attempts:   0,
	}
}
