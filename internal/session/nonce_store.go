package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrNonceNotFound indicates the nonce was never issued or was already consumed.
	ErrNonceNotFound = errors.New("session.nonce.not_found")
	// ErrNonceExpired indicates the nonce expired before consumption.
	ErrNonceExpired = errors.New("session.nonce.expired")
)

// DefaultNonceTTL bounds how long a browser may take to finish a social sign-in.
const DefaultNonceTTL = 5 * time.Minute

// NonceStore issues one-time nonces that bind Google and Apple ID tokens to
// the browser that asked for them.
type NonceStore interface {
	Issue(ctx context.Context) (string, error)
	// Consume validates and invalidates an issued nonce.
	Consume(ctx context.Context, nonce string) error
}

// MemoryNonceStore keeps nonces in process memory.
type MemoryNonceStore struct {
	mutex   sync.Mutex
	entries map[string]time.Time
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryNonceStore constructs an in-memory NonceStore with ttl.
func NewMemoryNonceStore(ttl time.Duration) *MemoryNonceStore {
	if ttl <= 0 {
		ttl = DefaultNonceTTL
	}
	return &MemoryNonceStore{
		entries: make(map[string]time.Time),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (store *MemoryNonceStore) Issue(ctx context.Context) (string, error) {
	nonce, err := randomNonce()
	if err != nil {
		return "", err
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.purgeExpiredLocked()
	store.entries[nonce] = store.now().Add(store.ttl)
	return nonce, nil
}

func (store *MemoryNonceStore) Consume(ctx context.Context, nonce string) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	defer store.purgeExpiredLocked()
	expiry, ok := store.entries[nonce]
	if !ok {
		return ErrNonceNotFound
	}
	delete(store.entries, nonce)
	if store.now().After(expiry) {
		return ErrNonceExpired
	}
	return nil
}

func (store *MemoryNonceStore) purgeExpiredLocked() {
	now := store.now()
	for nonce, expiry := range store.entries {
		if now.After(expiry) {
			delete(store.entries, nonce)
		}
	}
}

// RedisNonceStore shares nonces between server replicas. Redis expires
// entries, so an expired nonce reports ErrNonceNotFound.
type RedisNonceStore struct {
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
}

// NewRedisNonceStore constructs a Redis-backed NonceStore.
func NewRedisNonceStore(client redis.UniversalClient, ttl time.Duration) *RedisNonceStore {
	if ttl <= 0 {
		ttl = DefaultNonceTTL
	}
	return &RedisNonceStore{client: client, ttl: ttl, prefix: "xevora:nonce:"}
}

func (store *RedisNonceStore) Issue(ctx context.Context) (string, error) {
	nonce, err := randomNonce()
	if err != nil {
		return "", err
	}
	if err := store.client.Set(ctx, store.prefix+nonce, 1, store.ttl).Err(); err != nil {
		return "", fmt.Errorf("session.nonce.issue: %w", err)
	}
	return nonce, nil
}

func (store *RedisNonceStore) Consume(ctx context.Context, nonce string) error {
	if nonce == "" {
		return ErrNonceNotFound
	}
	deleted, err := store.client.Del(ctx, store.prefix+nonce).Result()
	if err != nil {
		return fmt.Errorf("session.nonce.consume: %w", err)
	}
	if deleted == 0 {
		return ErrNonceNotFound
	}
	return nil
}

func randomNonce() (string, error) {
	buffer := make([]byte, 32)
	if _, err := rand.Read(buffer); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buffer), nil
}
