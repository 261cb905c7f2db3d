package errors_test

import (
	"errors"
	"fmt"
	"testing"

	apperrors "github.com/cellbridge/sms-bridge/internal/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAndGetType(t *testing.T) {
	err := apperrors.New(apperrors.NotFound, "sms_id not found")
	assert.Equal(t, apperrors.NotFound, apperrors.GetType(err))
	assert.Contains(t, err.Error(), "not_found")
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.NoError(t, apperrors.Wrap(nil, apperrors.Internal, "unreachable"))
	assert.NoError(t, apperrors.Wrapf(nil, apperrors.Internal, "unreachable %d", 1))
}

func TestWrapPreservesCauseAndIs(t *testing.T) {
	root := errors.New("dial tcp: timeout")
	wrapped := apperrors.Wrap(root, apperrors.Unavailable, "telegram send failed")

	assert.True(t, apperrors.Is(wrapped, apperrors.Unavailable))
	assert.False(t, apperrors.Is(wrapped, apperrors.NotFound))
	assert.Equal(t, root, apperrors.RootCause(wrapped))
}

func TestGetTypeNonAppError(t *testing.T) {
	assert.Equal(t, apperrors.Unknown, apperrors.GetType(errors.New("plain")))
	assert.Equal(t, apperrors.Unknown, apperrors.GetType(nil))
}

func TestAsExtractsAppError(t *testing.T) {
	err := apperrors.New(apperrors.Conflict, "sms_id already queued")

	var appErr *apperrors.AppError
	require.True(t, apperrors.As(err, &appErr))
	assert.Equal(t, apperrors.Conflict, appErr.Type)
}

func TestFormatVerbose(t *testing.T) {
	root := errors.New("connection refused")
	err := apperrors.Wrap(root, apperrors.Unavailable, "smtp dial failed")

	appErr, ok := err.(*apperrors.AppError)
	require.True(t, ok)
	out := fmt.Sprintf("%+v", appErr)
	assert.Contains(t, out, "smtp dial failed")
	assert.Contains(t, out, "Caused by")
}
