package profilepg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/xevora/storefront/internal/profile"
)

const selectRecordSQL = `
SELECT email, display_name, avatar_url, created_at_unix, last_login_unix
FROM users
WHERE user_id = $1
`

// Empty strings and zero timestamps keep the stored column value.
const mergeRecordSQL = `
INSERT INTO users (user_id, email, display_name, avatar_url, created_at_unix, last_login_unix)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (user_id) DO UPDATE SET
    email = COALESCE(NULLIF(EXCLUDED.email, ''), users.email),
    display_name = COALESCE(NULLIF(EXCLUDED.display_name, ''), users.display_name),
    avatar_url = COALESCE(NULLIF(EXCLUDED.avatar_url, ''), users.avatar_url),
    created_at_unix = COALESCE(NULLIF(EXCLUDED.created_at_unix, 0), users.created_at_unix),
    last_login_unix = COALESCE(NULLIF(EXCLUDED.last_login_unix, 0), users.last_login_unix)
`

// Store implements profile.Store on PostgreSQL.
type Store struct {
	database Querier
}

var _ profile.Store = (*Store)(nil)

// NewStore constructs a Store over database (usually a *pgxpool.Pool).
func NewStore(database Querier) *Store {
	return &Store{database: database}
}

func (store *Store) Get(ctx context.Context, userID string) (profile.Record, bool, error) {
	var (
		record        = profile.Record{UserID: userID}
		createdAtUnix int64
		lastLoginUnix int64
	)
	row := store.database.QueryRow(ctx, selectRecordSQL, userID)
	scanErr := row.Scan(&record.Email, &record.DisplayName, &record.AvatarURL, &createdAtUnix, &lastLoginUnix)
	if scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return profile.Record{}, false, nil
		}
		return profile.Record{}, false, fmt.Errorf("profile_store.get.postgres: %w", scanErr)
	}
	record.CreatedAt = fromUnix(createdAtUnix)
	record.LastLogin = fromUnix(lastLoginUnix)
	return record, true, nil
}

func (store *Store) Merge(ctx context.Context, record profile.Record) error {
	if record.UserID == "" {
		return profile.ErrEmptyUserID
	}
	_, execErr := store.database.Exec(ctx, mergeRecordSQL,
		record.UserID,
		record.Email,
		record.DisplayName,
		record.AvatarURL,
		toUnix(record.CreatedAt),
		toUnix(record.LastLogin),
	)
	if execErr != nil {
		return fmt.Errorf("profile_store.merge.postgres: %w", execErr)
	}
	return nil
}

func toUnix(value time.Time) int64 {
	if value.IsZero() {
		return 0
	}
	return value.UTC().Unix()
}

func fromUnix(seconds int64) time.Time {
	if seconds == 0 {
		return time.Time{}
	}
	return time.Unix(seconds, 0).UTC()
}
