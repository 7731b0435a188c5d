package identity

import (
	"context"
	"encoding/base64"
	"sync"
	"time"
)

// MemoryCredentialTokenStore is an in-memory store intended for tests and dev.
type MemoryCredentialTokenStore struct {
	mutex      sync.Mutex
	byID       map[string]*memoryTokenRecord
	byHash     map[string]string
	sequenceID uint64
	now        func() time.Time
}

type memoryTokenRecord struct {
	TokenID       string
	UserID        string
	Hash          string
	ExpiresUnix   int64
	RevokedAtUnix int64
}

// NewMemoryCredentialTokenStore creates a new in-memory token store.
func NewMemoryCredentialTokenStore() *MemoryCredentialTokenStore {
	return &MemoryCredentialTokenStore{
		byID:   make(map[string]*memoryTokenRecord),
		byHash: make(map[string]string),
		now:    time.Now,
	}
}

// Issue creates a new token for the user.
func (store *MemoryCredentialTokenStore) Issue(ctx context.Context, applicationUserID string, expiresUnix int64) (string, string, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	opaque, hashValue, err := generateCredentialOpaque()
	if err != nil {
		return "", "", err
	}
	tokenID := store.nextID()
	store.byID[tokenID] = &memoryTokenRecord{
		TokenID:     tokenID,
		UserID:      applicationUserID,
		Hash:        hashValue,
		ExpiresUnix: expiresUnix,
	}
	store.byHash[hashValue] = tokenID
	return tokenID, opaque, nil
}

// Validate checks the opaque token and returns its user and token id.
func (store *MemoryCredentialTokenStore) Validate(ctx context.Context, tokenOpaque string) (string, string, error) {
	if tokenOpaque == "" {
		return "", "", ErrCredentialTokenEmpty
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()

	tokenID, ok := store.byHash[hashOpaque(tokenOpaque)]
	if !ok {
		return "", "", ErrCredentialTokenNotFound
	}
	record := store.byID[tokenID]
	if record == nil {
		return "", "", ErrCredentialTokenNotFound
	}
	if record.RevokedAtUnix != 0 {
		return "", "", ErrCredentialTokenRevoked
	}
	if time.Unix(record.ExpiresUnix, 0).Before(store.now().UTC()) {
		return "", "", ErrCredentialTokenExpired
	}
	return record.UserID, record.TokenID, nil
}

// Revoke marks a token as revoked. Revoking twice is not an error.
func (store *MemoryCredentialTokenStore) Revoke(ctx context.Context, tokenID string) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	record := store.byID[tokenID]
	if record == nil {
		return ErrCredentialTokenNotFound
	}
	if record.RevokedAtUnix == 0 {
		record.RevokedAtUnix = store.now().UTC().Unix()
	}
	return nil
}

func (store *MemoryCredentialTokenStore) nextID() string {
	store.sequenceID++
	timestampID := newCredentialTokenID(store.now().UTC())
	sequenceFragment := base64.RawURLEncoding.EncodeToString([]byte{byte(store.sequenceID % 255)})
	return timestampID + "-" + sequenceFragment
}
