package profile

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	fieldEmail       = "email"
	fieldDisplayName = "display_name"
	fieldAvatarURL   = "avatar_url"
	fieldCreatedAt   = "created_at"
	fieldLastLogin   = "last_login"
)

// RedisStore keeps each record as a hash under "users:<id>".
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore constructs a Redis-backed store.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client, prefix: "users:"}
}

func (store *RedisStore) key(userID string) string {
	return store.prefix + userID
}

func (store *RedisStore) Get(ctx context.Context, userID string) (Record, bool, error) {
	fields, err := store.client.HGetAll(ctx, store.key(userID)).Result()
	if err != nil {
		return Record{}, false, fmt.Errorf("profile_store.get.redis: %w", err)
	}
	if len(fields) == 0 {
		return Record{}, false, nil
	}
	return Record{
		UserID:      userID,
		Email:       fields[fieldEmail],
		DisplayName: fields[fieldDisplayName],
		AvatarURL:   fields[fieldAvatarURL],
		CreatedAt:   parseUnix(fields[fieldCreatedAt]),
		LastLogin:   parseUnix(fields[fieldLastLogin]),
	}, true, nil
}

// Merge sets only the provided fields; HSET leaves other hash fields alone.
func (store *RedisStore) Merge(ctx context.Context, record Record) error {
	if record.UserID == "" {
		return ErrEmptyUserID
	}
	values := make(map[string]any, 5)
	if record.Email != "" {
		values[fieldEmail] = record.Email
	}
	if record.DisplayName != "" {
		values[fieldDisplayName] = record.DisplayName
	}
	if record.AvatarURL != "" {
		values[fieldAvatarURL] = record.AvatarURL
	}
	if !record.CreatedAt.IsZero() {
		values[fieldCreatedAt] = record.CreatedAt.UTC().Unix()
	}
	if !record.LastLogin.IsZero() {
		values[fieldLastLogin] = record.LastLogin.UTC().Unix()
	}
	if len(values) == 0 {
		return nil
	}
	if err := store.client.HSet(ctx, store.key(record.UserID), values).Err(); err != nil {
		return fmt.Errorf("profile_store.merge.redis: %w", err)
	}
	return nil
}

func parseUnix(value string) time.Time {
	seconds, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return unixTime(seconds)
}
