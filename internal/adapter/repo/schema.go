package repo

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is applied idempotently at startup. The partial unique index on
// checkout_session_id is the race backstop for payment fulfillment.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id              UUID PRIMARY KEY,
    email           TEXT NOT NULL UNIQUE,
    username        TEXT NOT NULL UNIQUE,
    password_hash   TEXT NOT NULL,
    is_admin        BOOLEAN NOT NULL DEFAULT FALSE,
    credit_balance  INTEGER NOT NULL DEFAULT 0 CHECK (credit_balance >= 0),
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS login_attempts (
    id           UUID PRIMARY KEY,
    email        TEXT NOT NULL,
    success      BOOLEAN NOT NULL,
    country      TEXT NOT NULL DEFAULT '',
    attempted_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS stories (
    id               UUID PRIMARY KEY,
    user_id          UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    topic            TEXT NOT NULL,
    setting          TEXT NOT NULL DEFAULT '',
    mood             TEXT NOT NULL DEFAULT '',
    age_range        TEXT NOT NULL DEFAULT '',
    length           TEXT NOT NULL DEFAULT '',
    language         TEXT NOT NULL DEFAULT 'en',
    content          JSONB NOT NULL DEFAULT '{}'::jsonb,
    status           TEXT NOT NULL DEFAULT 'generating',
    cover_path       TEXT NOT NULL DEFAULT '',
    audio_path       TEXT NOT NULL DEFAULT '',
    bgm_path         TEXT NOT NULL DEFAULT '',
    duration_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
    cost_generation  BIGINT NOT NULL DEFAULT 0,
    cost_cover       BIGINT NOT NULL DEFAULT 0,
    cost_synthesis   BIGINT NOT NULL DEFAULT 0,
    cost_bgm         BIGINT NOT NULL DEFAULT 0,
    cost_total       BIGINT NOT NULL DEFAULT 0,
    segment_count    INTEGER NOT NULL DEFAULT 0,
    synthesis_chars  INTEGER NOT NULL DEFAULT 0,
    recordings       JSONB NOT NULL DEFAULT '{}'::jsonb,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_stories_user_created ON stories (user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_stories_status_updated ON stories (status, updated_at);

CREATE TABLE IF NOT EXISTS transactions (
    id                  UUID PRIMARY KEY,
    user_id             UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    type                TEXT NOT NULL,
    credits             INTEGER NOT NULL,
    amount              BIGINT NOT NULL DEFAULT 0,
    checkout_session_id TEXT,
    story_id            TEXT,
    description         TEXT NOT NULL DEFAULT '',
    created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_transactions_session
    ON transactions (checkout_session_id)
    WHERE checkout_session_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_transactions_user_created ON transactions (user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS app_settings (
    id             INTEGER PRIMARY KEY CHECK (id = 1),
    story_model    TEXT NOT NULL,
    tts_model      TEXT NOT NULL,
    cover_provider TEXT NOT NULL,
    bgm_enabled    BOOLEAN NOT NULL DEFAULT FALSE,
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// EnsureSchema creates any missing tables and indexes.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, schema)
	return err
}
