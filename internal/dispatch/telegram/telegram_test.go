package telegram

import (
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
)

func TestSafeSplitShortStringUnchanged(t *testing.T) {
	chunk, remainder := safeSplit("hello", 10)
	assert.Equal(t, "hello", chunk)
	assert.Empty(t, remainder)
}

func TestSafeSplitRespectsRuneBoundary(t *testing.T) {
	s := "안녕하세요" // each rune is 3 bytes in UTF-8
	chunk, remainder := safeSplit(s, 4)

	assert.True(t, len([]byte(chunk)) <= 4)
	assert.Equal(t, s, chunk+remainder)
	for _, r := range chunk + remainder {
		_ = r // forces valid rune iteration; panics on invalid UTF-8 only via range, not assertable directly
	}
}

func TestSafeSplitExactLimit(t *testing.T) {
	chunk, remainder := safeSplit("abcdef", 6)
	assert.Equal(t, "abcdef", chunk)
	assert.Empty(t, remainder)
}

func TestParseTelegramErrorExtractsCodeAndRetryAfter(t *testing.T) {
	err := tgbotapi.Error{
		Code:    429,
		Message: "Too Many Requests",
		ResponseParameters: tgbotapi.ResponseParameters{
			RetryAfter: 5,
		},
	}

	code, retryAfter := parseTelegramError(err)
	assert.Equal(t, 429, code)
	assert.Equal(t, 5, retryAfter)
}

func TestParseTelegramErrorNonTelegramError(t *testing.T) {
	code, retryAfter := parseTelegramError(assertErr{})
	assert.Equal(t, 0, code)
	assert.Equal(t, 0, retryAfter)
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }
