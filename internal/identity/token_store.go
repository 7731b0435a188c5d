package identity

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrCredentialTokenNotFound indicates no credential token matched the provided value.
	ErrCredentialTokenNotFound = errors.New("credential_token.not_found")
	// ErrCredentialTokenRevoked indicates the credential token has been revoked.
	ErrCredentialTokenRevoked = errors.New("credential_token.revoked")
	// ErrCredentialTokenExpired indicates the credential token has exceeded its expiry.
	ErrCredentialTokenExpired = errors.New("credential_token.expired")
	// ErrCredentialTokenEmpty indicates that the provided opaque token text is empty.
	ErrCredentialTokenEmpty = errors.New("credential_token.empty_token")
)

// CredentialTokenStore manages the opaque tokens handed out with a principal.
type CredentialTokenStore interface {
	Issue(ctx context.Context, applicationUserID string, expiresUnix int64) (tokenID string, tokenOpaque string, err error)
	Validate(ctx context.Context, tokenOpaque string) (applicationUserID string, tokenID string, err error)
	Revoke(ctx context.Context, tokenID string) error
}

const credentialOpaqueByteLength = 32

func newCredentialTokenID(now time.Time) string {
	nowString := now.UTC().Format(time.RFC3339Nano)
	return base64.RawURLEncoding.EncodeToString([]byte(nowString))
}

func generateCredentialOpaque() (string, string, error) {
	randomBytes := make([]byte, credentialOpaqueByteLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", "", fmt.Errorf("credential_token.random: %w", err)
	}
	opaque := base64.RawURLEncoding.EncodeToString(randomBytes)
	return opaque, hashOpaque(opaque), nil
}

func hashOpaque(opaque string) string {
	sum := sha256.Sum256([]byte(opaque))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
