package cryptobox_test

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/cellbridge/sms-bridge/internal/cryptobox"
	apperrors "github.com/cellbridge/sms-bridge/internal/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, cryptobox.KeySize)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return key
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	box, err := cryptobox.New(randomKey(t))
	require.NoError(t, err)

	plaintext := []byte("123456")
	token, err := box.Encrypt(plaintext)
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	decrypted, err := box.Decrypt(token)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(plaintext, decrypted))
}

func TestNewRejectsWrongKeySize(t *testing.T) {
	_, err := cryptobox.New([]byte("too-short"))
	assert.Error(t, err)
	assert.Equal(t, apperrors.InvalidInput, apperrors.GetType(err))
}

func TestDecryptRejectsMalformedBase64(t *testing.T) {
	box, err := cryptobox.New(randomKey(t))
	require.NoError(t, err)

	_, err = box.Decrypt("not-valid-base64!!!")
	assert.ErrorIs(t, err, cryptobox.ErrInvalidToken)
}

func TestDecryptRejectsWrongKey(t *testing.T) {
	box1, err := cryptobox.New(randomKey(t))
	require.NoError(t, err)
	box2, err := cryptobox.New(randomKey(t))
	require.NoError(t, err)

	token, err := box1.Encrypt([]byte("789012"))
	require.NoError(t, err)

	_, err = box2.Decrypt(token)
	assert.ErrorIs(t, err, cryptobox.ErrInvalidToken)
}

func TestDecryptRejectsTruncatedEnvelope(t *testing.T) {
	box, err := cryptobox.New(randomKey(t))
	require.NoError(t, err)

	_, err = box.Decrypt("QQ==") // decodes to 1 byte, shorter than a 12-byte nonce
	assert.ErrorIs(t, err, cryptobox.ErrInvalidToken)
}
