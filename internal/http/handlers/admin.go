package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"storyforge/internal/domain"
)

type settingsDTO struct {
	StoryModel    string    `json:"story_model"`
	TTSModel      string    `json:"tts_model"`
	CoverProvider string    `json:"cover_provider"`
	BGMEnabled    bool      `json:"bgm_enabled"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// GetSettings returns the runtime settings. Admin only.
func (a *App) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := a.Settings.Get(r.Context())
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to load settings")
		return
	}
	a.json(w, http.StatusOK, settingsFromDomain(settings))
}

// UpdateSettings replaces the runtime settings. Admin only. The pipeline
// picks the new values up on its next run.
func (a *App) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if req.StoryModel == "" || req.TTSModel == "" || req.CoverProvider == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "story_model, tts_model and cover_provider are required")
		return
	}
	settings := domain.Settings{
		StoryModel:    req.StoryModel,
		TTSModel:      req.TTSModel,
		CoverProvider: req.CoverProvider,
		BGMEnabled:    req.BGMEnabled,
	}
	if err := a.Settings.Update(r.Context(), settings); err != nil {
		a.Logger.Error().Err(err).Msg("update settings failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to update settings")
		return
	}
	updated, err := a.Settings.Get(r.Context())
	if err != nil {
		updated = settings
	}
	a.json(w, http.StatusOK, settingsFromDomain(updated))
}

func settingsFromDomain(s domain.Settings) settingsDTO {
	return settingsDTO{
		StoryModel:    s.StoryModel,
		TTSModel:      s.TTSModel,
		CoverProvider: s.CoverProvider,
		BGMEnabled:    s.BGMEnabled,
		UpdatedAt:     s.UpdatedAt,
	}
}
