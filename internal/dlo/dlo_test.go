package dlo_test

import (
	"testing"
	"time"

	"github.com/cellbridge/sms-bridge/internal/dlo"
	"github.com/cellbridge/sms-bridge/internal/domain"
	apperrors "github.com/cellbridge/sms-bridge/internal/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCaptureAndList(t *testing.T) {
	o := dlo.New(dlo.Config{MaxSize: 10, TTL: time.Hour})

	o.Capture(domain.Message{SMSID: "sms-1", Sender: "+1", Body: "enc"}, "smtp_permanent_failure")
	o.Capture(domain.Message{SMSID: "sms-2", Sender: "+2", Body: "enc"}, "rate_limited")

	list := o.List()
	require.Len(t, list, 2)
	assert.Equal(t, "sms-1", list[0].SMSID)
	assert.Equal(t, "sms-2", list[1].SMSID)
}

func TestCaptureEvictsOldestOnOverflow(t *testing.T) {
	o := dlo.New(dlo.Config{MaxSize: 2, TTL: time.Hour})

	o.Capture(domain.Message{SMSID: "sms-1"}, "err")
	o.Capture(domain.Message{SMSID: "sms-2"}, "err")
	o.Capture(domain.Message{SMSID: "sms-3"}, "err")

	list := o.List()
	require.Len(t, list, 2)
	assert.Equal(t, "sms-2", list[0].SMSID)
	assert.Equal(t, "sms-3", list[1].SMSID)
	assert.EqualValues(t, 1, o.Snapshot().Overflow)
}

func TestRetryRemovesAndResetsMessage(t *testing.T) {
	o := dlo.New(dlo.Config{MaxSize: 10, TTL: time.Hour})
	o.Capture(domain.Message{SMSID: "sms-1", Body: "enc", Attempts: 3}, "err")

	msg, err := o.Retry("sms-1")
	require.NoError(t, err)
	assert.Equal(t, "sms-1", msg.SMSID)
	assert.Equal(t, 0, msg.Attempts)
	assert.Equal(t, domain.StatusQueued, msg.Status)

	_, ok := o.Get("sms-1")
	assert.False(t, ok)
}

func TestRetryUnknownReturnsNotFound(t *testing.T) {
	o := dlo.New(dlo.Config{MaxSize: 10, TTL: time.Hour})
	_, err := o.Retry("missing")
	require.Error(t, err)
	assert.Equal(t, apperrors.NotFound, apperrors.GetType(err))
}

func TestRetryExpiredReturnsInvalidInput(t *testing.T) {
	o := dlo.New(dlo.Config{MaxSize: 10, TTL: -time.Second})
	o.Capture(domain.Message{SMSID: "sms-1"}, "err")

	_, err := o.Retry("sms-1")
	require.Error(t, err)
	assert.Equal(t, apperrors.InvalidInput, apperrors.GetType(err))
}

func TestPruneExpiredRemovesOnlyExpired(t *testing.T) {
	o := dlo.New(dlo.Config{MaxSize: 10, TTL: time.Hour})
	o.Capture(domain.Message{SMSID: "sms-1"}, "err")

	n := o.PruneExpired()
	assert.Equal(t, 0, n)
	assert.Len(t, o.List(), 1)
}

func TestPurgeAll(t *testing.T) {
	o := dlo.New(dlo.Config{MaxSize: 10, TTL: time.Hour})
	o.Capture(domain.Message{SMSID: "sms-1"}, "err")
	o.Capture(domain.Message{SMSID: "sms-2"}, "err")

	n := o.PurgeAll()
	assert.Equal(t, 2, n)
	assert.Empty(t, o.List())
}
