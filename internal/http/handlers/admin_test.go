package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"storyforge/internal/domain"
)

func TestGetSettingsReturnsDefaults(t *testing.T) {
	app := newTestApp(t)
	userID, _ := registerUser(t, app, "admin@example.com")

	rr := httptest.NewRecorder()
	app.GetSettings(rr, authedRequest(t, "GET", "/v1/admin/settings", userID, nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d", rr.Code)
	}
	var dto struct {
		StoryModel    string `json:"story_model"`
		TTSModel      string `json:"tts_model"`
		CoverProvider string `json:"cover_provider"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&dto); err != nil {
		t.Fatalf("decode: %v", err)
	}
	defaults := domain.DefaultSettings()
	if dto.StoryModel != defaults.StoryModel || dto.TTSModel != defaults.TTSModel {
		t.Fatalf("settings diverge from defaults: %+v", dto)
	}
}

func TestUpdateSettingsPersists(t *testing.T) {
	app := newTestApp(t)
	userID, _ := registerUser(t, app, "admin2@example.com")

	rr := httptest.NewRecorder()
	app.UpdateSettings(rr, authedRequest(t, "PUT", "/v1/admin/settings", userID, map[string]any{
		"story_model":    "gpt-4o-mini",
		"tts_model":      "tts-1",
		"cover_provider": "dalle3",
		"bgm_enabled":    true,
	}))
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", rr.Code, rr.Body.String())
	}

	settings, err := app.mem.Settings.Get(context.Background())
	if err != nil {
		t.Fatalf("reload settings: %v", err)
	}
	if settings.StoryModel != "gpt-4o-mini" || settings.TTSModel != "tts-1" || !settings.BGMEnabled {
		t.Fatalf("settings not persisted: %+v", settings)
	}
}

func TestUpdateSettingsRejectsBlankModels(t *testing.T) {
	app := newTestApp(t)
	userID, _ := registerUser(t, app, "admin3@example.com")

	rr := httptest.NewRecorder()
	app.UpdateSettings(rr, authedRequest(t, "PUT", "/v1/admin/settings", userID, map[string]any{
		"story_model":    "",
		"tts_model":      "tts-1",
		"cover_provider": "dalle3",
	}))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want 400", rr.Code)
	}
}
