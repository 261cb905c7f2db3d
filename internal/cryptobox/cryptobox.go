// Package cryptobox implements the at-rest encryption envelope for SMS
// body payloads: AES-256-GCM, a random 96-bit nonce prepended to the
// ciphertext, the whole thing base64-encoded for transport over JSON.
//
// Grounded on the stdlib crypto/aes + crypto/cipher AEAD pattern; no
// third-party AEAD library in the retrieval pack offers anything the
// standard library doesn't already do idiomatically for a single
// pre-shared symmetric key, so this one component is built on stdlib by
// design (see DESIGN.md).
package cryptobox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"io"

	apperrors "github.com/cellbridge/sms-bridge/internal/pkg/errors"
)

// KeySize is the required pre-shared key length: AES-256.
const KeySize = 32

// ErrInvalidToken is returned by Decrypt for any envelope that fails to
// base64-decode, is too short to contain a nonce, or fails GCM
// authentication. It deliberately does not distinguish those cases: a
// forged or corrupted token must never be treated as plaintext.
var ErrInvalidToken = apperrors.New(apperrors.InvalidInput, "invalid_token")

// Box encrypts and decrypts SMS body payloads with a single pre-shared key.
type Box struct {
	aead cipher.AEAD
}

// New builds a Box from a raw KeySize-byte key.
func New(key []byte) (*Box, error) {
	if len(key) != KeySize {
		return nil, apperrors.Newf(apperrors.InvalidInput, "encryption key must be %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.Internal, "failed to construct AES cipher")
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.Internal, "failed to construct GCM AEAD")
	}
	return &Box{aead: aead}, nil
}

// Encrypt seals plaintext into a base64 envelope: nonce || ciphertext+tag.
func (b *Box) Encrypt(plaintext []byte) (string, error) {
	nonce := make([]byte, b.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", apperrors.Wrap(err, apperrors.Internal, "failed to generate nonce")
	}
	sealed := b.aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a base64 envelope produced by Encrypt. Any failure —
// malformed base64, truncated envelope, or authentication failure —
// collapses to ErrInvalidToken.
func (b *Box) Decrypt(token string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil, ErrInvalidToken
	}

	nonceSize := b.aead.NonceSize()
	if len(raw) < nonceSize {
		return nil, ErrInvalidToken
	}

	nonce, ciphertext := raw[:nonceSize], raw[nonceSize:]
	plaintext, err := b.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrInvalidToken
	}
	return plaintext, nil
}

// LooksLikeToken reports whether s has the shape of an envelope produced
// by Encrypt — base64-decodable and long enough to hold at least a nonce
// — without attempting to authenticate it. Used at ingest time to tell a
// genuinely pre-sealed edge token apart from a node that merely claimed
// encrypted=true over plain base64.
func (b *Box) LooksLikeToken(s string) bool {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return false
	}
	return len(raw) > b.aead.NonceSize()
}
