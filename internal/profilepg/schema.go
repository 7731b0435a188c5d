package profilepg

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of *pgxpool.Pool the store needs.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS users (
    user_id TEXT PRIMARY KEY,
    email TEXT NOT NULL DEFAULT '',
    display_name TEXT NOT NULL DEFAULT '',
    avatar_url TEXT NOT NULL DEFAULT '',
    created_at_unix BIGINT NOT NULL DEFAULT 0,
    last_login_unix BIGINT NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_users_email ON users (email);
`

// EnsureSchema creates the users table if it does not exist.
func EnsureSchema(ctx context.Context, database Querier) error {
	if _, err := database.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("profilepg.schema: %w", err)
	}
	return nil
}
