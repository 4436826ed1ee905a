package handlers

import (
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"storyforge/internal/audio"
)

const maxRecordingBytes = 10 << 20

var recordingExtensions = map[string]struct{}{
	".mp3": {},
	".wav": {},
}

// UploadRecording stores a user-provided voice recording and returns its
// storage key. The key is attached to a segment id in a later story request,
// where it overrides synthesis for that segment. An optional "effect" form
// field runs the recording through a voice preset before storage.
func (a *App) UploadRecording(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	if err := r.ParseMultipartForm(maxRecordingBytes); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid multipart payload")
		return
	}
	effect := strings.ToLower(strings.TrimSpace(r.FormValue("effect")))
	if effect != "" && !audio.IsVoiceEffect(effect) {
		a.error(w, http.StatusBadRequest, "bad_request", "unknown voice effect")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "file field required")
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if _, ok := recordingExtensions[ext]; !ok {
		a.error(w, http.StatusBadRequest, "bad_request", "only mp3 and wav recordings are accepted")
		return
	}
	data, err := io.ReadAll(io.LimitReader(file, maxRecordingBytes+1))
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "failed to read upload")
		return
	}
	if len(data) > maxRecordingBytes {
		a.error(w, http.StatusRequestEntityTooLarge, "too_large", "recording exceeds 10MB")
		return
	}

	if effect != "" && effect != audio.VoiceEffectClean {
		processed, err := audio.ApplyVoiceEffect(data, strings.TrimPrefix(ext, "."), effect)
		if err != nil {
			a.Logger.Warn().Err(err).Str("effect", effect).Msg("voice effect failed")
			a.error(w, http.StatusBadRequest, "bad_request", "recording could not be processed")
			return
		}
		data = processed
		ext = ".wav"
	}

	key := fmt.Sprintf("recordings/%s/%s%s", userID, uuid.NewString(), ext)
	if _, err := a.Files.Write(r.Context(), key, data); err != nil {
		a.Logger.Error().Err(err).Str("key", key).Msg("store recording failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to store recording")
		return
	}
	a.json(w, http.StatusCreated, map[string]string{"key": key})
}
