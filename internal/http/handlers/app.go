// Package handlers implements the HTTP API surface.
package handlers

import (
	"encoding/json"
	"net/http"

	"storyforge/internal/credits"
	"storyforge/internal/domain"
	"storyforge/internal/infra"
	"storyforge/internal/middleware"
	"storyforge/internal/providers/cover"
	"storyforge/internal/providers/story"
	"storyforge/internal/storage"
	"storyforge/internal/worker"
)

// App carries every dependency the handlers need.
type App struct {
	Cfg      *infra.Config
	Logger   infra.Logger
	Users    domain.UserStore
	Stories  domain.StoryStore
	Settings domain.SettingsStore
	Ledger   *credits.Ledger
	Checkout *credits.Checkout
	Packs    *credits.PackTable
	StoryGen story.Generator
	Covers   cover.Registry
	Pool     *worker.Pool
	Files    *storage.FileStore
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, map[string]any{
		"error": map[string]string{"code": code, "message": message},
	})
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}
