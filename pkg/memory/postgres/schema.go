package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlUserProfiles = `
CREATE TABLE IF NOT EXISTS user_profiles (
    tenant_id        TEXT         NOT NULL,
    user_id          TEXT         NOT NULL,
    first_name       TEXT         NOT NULL DEFAULT '',
    long_term_memory TEXT         NOT NULL DEFAULT '',
    updated_at       TIMESTAMPTZ  NOT NULL DEFAULT now(),
    PRIMARY KEY (tenant_id, user_id)
);
`

const ddlConversationTurns = `
CREATE TABLE IF NOT EXISTS conversation_turns (
    id         BIGSERIAL    PRIMARY KEY,
    tenant_id  TEXT         NOT NULL,
    user_id    TEXT         NOT NULL,
    role       TEXT         NOT NULL,
    content    TEXT         NOT NULL,
    created_at TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_turns_tenant_user_created
    ON conversation_turns (tenant_id, user_id, created_at);
`

// Migrate creates the required tables if they do not exist. It is
// idempotent and safe to call on every application start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range []string{ddlUserProfiles, ddlConversationTurns} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}
