package web

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// passwordSealTTL bounds how long a carried password survives between steps.
const passwordSealTTL = 15 * time.Minute

var errInvalidSeal = errors.New("web.seal.invalid")

// passwordSealer encrypts the password carried between form steps so the
// rendered page never contains it in plain text.
type passwordSealer struct {
	aead cipher.AEAD
	now  func() time.Time
}

// newPasswordSealer derives the form key from secret. An empty secret gets a
// random key, which only costs carried passwords across restarts.
func newPasswordSealer(secret []byte) (*passwordSealer, error) {
	if len(secret) == 0 {
		secret = make([]byte, chacha20poly1305.KeySize)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("web.seal.random_key: %w", err)
		}
	}
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte("xevora.auth.password-seal")), key); err != nil {
		return nil, fmt.Errorf("web.seal.derive_key: %w", err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("web.seal.cipher: %w", err)
	}
	return &passwordSealer{aead: aead, now: time.Now}, nil
}

// Seal returns an opaque value for password, or "" when there is nothing to carry.
func (sealer *passwordSealer) Seal(password string) (string, error) {
	if password == "" {
		return "", nil
	}
	nonce := make([]byte, sealer.aead.NonceSize(), sealer.aead.NonceSize()+8+len(password)+sealer.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("web.seal.nonce: %w", err)
	}
	plaintext := binary.BigEndian.AppendUint64(nil, uint64(sealer.now().Unix()))
	plaintext = append(plaintext, password...)
	return base64.RawURLEncoding.EncodeToString(sealer.aead.Seal(nonce, nonce, plaintext, nil)), nil
}

// Open recovers a password sealed within passwordSealTTL.
func (sealer *passwordSealer) Open(sealed string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(sealed)
	if err != nil || len(raw) < sealer.aead.NonceSize() {
		return "", errInvalidSeal
	}
	nonce, ciphertext := raw[:sealer.aead.NonceSize()], raw[sealer.aead.NonceSize():]
	plaintext, err := sealer.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil || len(plaintext) < 8 {
		return "", errInvalidSeal
	}
	sealedAt := time.Unix(int64(binary.BigEndian.Uint64(plaintext[:8])), 0)
	if sealer.now().Sub(sealedAt) > passwordSealTTL {
		return "", errInvalidSeal
	}
	return string(plaintext[8:]), nil
}
