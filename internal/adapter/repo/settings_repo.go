package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"storyforge/internal/domain"
)

// SettingsRepositoryPG holds the singleton runtime settings row.
type SettingsRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewSettingsRepository creates a new SettingsRepositoryPG.
func NewSettingsRepository(pool *pgxpool.Pool) *SettingsRepositoryPG {
	return &SettingsRepositoryPG{pool: pool}
}

// Get returns the settings row, falling back to defaults when the row was
// never written.
func (r *SettingsRepositoryPG) Get(ctx context.Context) (domain.Settings, error) {
	var s domain.Settings
	err := r.pool.QueryRow(ctx, `SELECT story_model, tts_model, cover_provider, bgm_enabled, updated_at FROM app_settings WHERE id = 1`).
		Scan(&s.StoryModel, &s.TTSModel, &s.CoverProvider, &s.BGMEnabled, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.DefaultSettings(), nil
	}
	if err != nil {
		return domain.Settings{}, err
	}
	return s, nil
}

// Update upserts the singleton row.
func (r *SettingsRepositoryPG) Update(ctx context.Context, settings domain.Settings) error {
	query := `
INSERT INTO app_settings (id, story_model, tts_model, cover_provider, bgm_enabled)
VALUES (1, $1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE
SET story_model = EXCLUDED.story_model,
    tts_model = EXCLUDED.tts_model,
    cover_provider = EXCLUDED.cover_provider,
    bgm_enabled = EXCLUDED.bgm_enabled,
    updated_at = NOW();
`
	_, err := r.pool.Exec(ctx, query, settings.StoryModel, settings.TTSModel, settings.CoverProvider, settings.BGMEnabled)
	return err
}
