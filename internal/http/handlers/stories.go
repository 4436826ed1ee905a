package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"storyforge/internal/credits"
	"storyforge/internal/domain"
	"storyforge/internal/middleware"
	"storyforge/internal/providers/story"
)

type createStoryRequest struct {
	Topic      string         `json:"topic"`
	Setting    string         `json:"setting"`
	Mood       string         `json:"mood"`
	AgeRange   string         `json:"age_range"`
	Length     string         `json:"length"`
	Language   string         `json:"language"`
	Recordings map[int]string `json:"recordings,omitempty"`
}

type storyDTO struct {
	ID              string               `json:"id"`
	Status          domain.StoryStatus   `json:"status"`
	Topic           string               `json:"topic"`
	Setting         string               `json:"setting,omitempty"`
	Mood            string               `json:"mood,omitempty"`
	AgeRange        string               `json:"age_range,omitempty"`
	Length          string               `json:"length,omitempty"`
	Language        string               `json:"language"`
	Title           string               `json:"title,omitempty"`
	Summary         string               `json:"summary,omitempty"`
	Content         *domain.StoryContent `json:"content,omitempty"`
	CoverURL        string               `json:"cover_url,omitempty"`
	AudioURL        string               `json:"audio_url,omitempty"`
	DurationSeconds float64              `json:"duration_seconds,omitempty"`
	CostTotal       float64              `json:"cost_total"`
	SegmentCount    int                  `json:"segment_count"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
}

// CreateStory generates the story text and cover synchronously, deducts one
// credit, persists the story in tts_processing and hands it to the worker
// pool. The client polls for the audio afterwards.
func (a *App) CreateStory(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req createStoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	req.Topic = strings.TrimSpace(req.Topic)
	if req.Topic == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "topic required")
		return
	}
	if req.Language == "" {
		req.Language = middleware.LocaleFromContext(r.Context())
	}
	req.Language = middleware.NormalizeLocale(req.Language)
	if req.Length == "" {
		req.Length = "medium"
	}

	// Reject before any paid provider call; the authoritative check is the
	// locked deduction below.
	balance, err := a.Ledger.CheckBalance(r.Context(), userID)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to check balance")
		return
	}
	if balance < 1 {
		a.error(w, http.StatusPaymentRequired, "insufficient_credits", "not enough credits")
		return
	}

	settings, err := a.Settings.Get(r.Context())
	if err != nil {
		a.Logger.Error().Err(err).Msg("load settings failed")
		settings = domain.DefaultSettings()
	}

	storyID := uuid.NewString()
	genCtx, cancel := context.WithTimeout(r.Context(), a.Cfg.StageTimeout)
	content, usage, err := a.StoryGen.Generate(genCtx, story.GenerateParams{
		Topic:    req.Topic,
		Setting:  req.Setting,
		Mood:     req.Mood,
		AgeRange: req.AgeRange,
		Length:   req.Length,
		Language: req.Language,
		Model:    settings.StoryModel,
	})
	cancel()
	if err != nil {
		a.Logger.Error().Err(err).Str("story_id", storyID).Msg("story generation failed")
		a.error(w, http.StatusBadGateway, "generation_failed", "story generation failed")
		return
	}
	costGen := credits.EstimateGenerationCost(usage.PromptTokens, usage.CompletionTokens, settings.StoryModel)

	// A missing cover never fails the request.
	var coverPath string
	var costCover domain.Money
	if gen, providerID := a.Covers.Select(settings.CoverProvider, a.Cfg.CoverProvider); gen != nil {
		coverCtx, cancel := context.WithTimeout(r.Context(), a.Cfg.StageTimeout)
		coverPath, err = gen.Generate(coverCtx, content.Summary, storyID)
		cancel()
		if err != nil {
			a.Logger.Warn().Err(err).Str("story_id", storyID).Msg("cover generation failed, continuing without cover")
			coverPath = ""
		} else {
			costCover = credits.EstimateCoverCost(providerID)
		}
	}

	if _, err := a.Ledger.DeductOne(r.Context(), userID, storyID); err != nil {
		if errors.Is(err, domain.ErrInsufficientBalance) {
			a.error(w, http.StatusPaymentRequired, "insufficient_credits", "not enough credits")
			return
		}
		a.Logger.Error().Err(err).Str("story_id", storyID).Msg("credit deduction failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to deduct credit")
		return
	}

	st := &domain.Story{
		ID:             storyID,
		UserID:         userID,
		Topic:          req.Topic,
		Setting:        req.Setting,
		Mood:           req.Mood,
		AgeRange:       req.AgeRange,
		Length:         req.Length,
		Language:       req.Language,
		Content:        *content,
		Status:         domain.StoryStatusTTSProcessing,
		CoverPath:      coverPath,
		CostGeneration: costGen,
		CostCover:      costCover,
		CostTotal:      costGen + costCover,
		SegmentCount:   len(content.Segments),
		Recordings:     req.Recordings,
	}
	if err := a.Stories.Create(r.Context(), st); err != nil {
		a.Logger.Error().Err(err).Str("story_id", storyID).Msg("persist story failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to persist story")
		return
	}

	if err := a.Pool.Submit(storyID); err != nil {
		a.Logger.Error().Err(err).Str("story_id", storyID).Msg("submit to worker pool failed")
		if err := a.Stories.UpdateStatus(r.Context(), storyID, domain.StoryStatusFailed); err != nil {
			a.Logger.Error().Err(err).Str("story_id", storyID).Msg("mark story failed after full queue")
		}
		a.error(w, http.StatusServiceUnavailable, "busy", "generation queue is full, try again later")
		return
	}
	a.json(w, http.StatusAccepted, a.storyDTO(st, true))
}

// ListStories returns the caller's stories, newest first, without content
// payloads.
func (a *App) ListStories(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	stories, err := a.Stories.ListByUser(r.Context(), userID)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to list stories")
		return
	}
	out := make([]storyDTO, 0, len(stories))
	for i := range stories {
		out = append(out, a.storyDTO(&stories[i], false))
	}
	a.json(w, http.StatusOK, map[string]any{"stories": out})
}

// GetStory returns one story with its full content payload. Clients poll
// this until the status is terminal.
func (a *App) GetStory(w http.ResponseWriter, r *http.Request) {
	st, ok := a.loadOwnStory(w, r)
	if !ok {
		return
	}
	a.json(w, http.StatusOK, a.storyDTO(st, true))
}

// DeleteStory removes a terminal story and its stored artifacts.
func (a *App) DeleteStory(w http.ResponseWriter, r *http.Request) {
	st, ok := a.loadOwnStory(w, r)
	if !ok {
		return
	}
	if !st.Status.Terminal() {
		a.error(w, http.StatusConflict, "conflict", "story is still processing")
		return
	}
	for _, key := range []string{st.AudioPath, st.CoverPath} {
		if key == "" {
			continue
		}
		if err := a.Files.Remove(key); err != nil {
			a.Logger.Warn().Err(err).Str("key", key).Msg("remove artifact failed")
		}
	}
	if err := a.Stories.Delete(r.Context(), st.ID); err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to delete story")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ServeAudio streams the assembled story audio. Available only once ready.
func (a *App) ServeAudio(w http.ResponseWriter, r *http.Request) {
	st, ok := a.loadOwnStory(w, r)
	if !ok {
		return
	}
	if st.Status != domain.StoryStatusReady || st.AudioPath == "" {
		a.error(w, http.StatusConflict, "not_ready", "story audio is not ready")
		return
	}
	path, err := a.Files.Abs(st.AudioPath)
	if err != nil {
		a.error(w, http.StatusNotFound, "not_found", "audio not found")
		return
	}
	w.Header().Set("Content-Type", "audio/wav")
	http.ServeFile(w, r, path)
}

// ServeCover streams the story cover image.
func (a *App) ServeCover(w http.ResponseWriter, r *http.Request) {
	st, ok := a.loadOwnStory(w, r)
	if !ok {
		return
	}
	if st.CoverPath == "" {
		a.error(w, http.StatusNotFound, "not_found", "story has no cover")
		return
	}
	path, err := a.Files.Abs(st.CoverPath)
	if err != nil {
		a.error(w, http.StatusNotFound, "not_found", "cover not found")
		return
	}
	http.ServeFile(w, r, path)
}

func (a *App) loadOwnStory(w http.ResponseWriter, r *http.Request) (*domain.Story, bool) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return nil, false
	}
	storyID := chi.URLParam(r, "story_id")
	if storyID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "story_id required")
		return nil, false
	}
	st, err := a.Stories.GetByID(r.Context(), storyID)
	if err != nil || st.UserID != userID {
		a.error(w, http.StatusNotFound, "not_found", "story not found")
		return nil, false
	}
	return st, true
}

func (a *App) storyDTO(st *domain.Story, includeContent bool) storyDTO {
	dto := storyDTO{
		ID:              st.ID,
		Status:          st.Status,
		Topic:           st.Topic,
		Setting:         st.Setting,
		Mood:            st.Mood,
		AgeRange:        st.AgeRange,
		Length:          st.Length,
		Language:        st.Language,
		Title:           st.Content.Title,
		Summary:         st.Content.Summary,
		DurationSeconds: st.DurationSeconds,
		CostTotal:       st.CostTotal.Float(),
		SegmentCount:    st.SegmentCount,
		CreatedAt:       st.CreatedAt,
		UpdatedAt:       st.UpdatedAt,
	}
	if includeContent {
		content := st.Content
		dto.Content = &content
	}
	if st.CoverPath != "" {
		dto.CoverURL = "/v1/stories/" + st.ID + "/cover"
	}
	if st.Status == domain.StoryStatusReady && st.AudioPath != "" {
		dto.AudioURL = "/v1/stories/" + st.ID + "/audio"
	}
	return dto
}
