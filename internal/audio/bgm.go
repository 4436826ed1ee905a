package audio

import (
	"os"
	"path/filepath"
	"strings"
)

// Library resolves per-mood background-music tracks from a local directory.
// An empty directory path disables background music entirely; the rest of
// the pipeline behaves identically either way.
type Library struct {
	dir string
}

// NewLibrary creates a Library rooted at dir. dir may be empty.
func NewLibrary(dir string) *Library {
	return &Library{dir: dir}
}

// Enabled reports whether a library directory is configured.
func (l *Library) Enabled() bool {
	return l != nil && l.dir != ""
}

// TrackForMood returns the path of the track matching the story mood, or
// false when no usable track exists. Lookup order: <mood>.mp3, <mood>.wav,
// then the same for "default".
func (l *Library) TrackForMood(mood string) (string, bool) {
	if !l.Enabled() {
		return "", false
	}
	mood = strings.ToLower(strings.TrimSpace(mood))
	if mood != filepath.Base(mood) {
		// Story moods are plain words; anything path-like is ignored.
		mood = ""
	}
	for _, name := range []string{mood, "default"} {
		if name == "" {
			continue
		}
		for _, ext := range []string{".mp3", ".wav"} {
			path := filepath.Join(l.dir, name+ext)
			if info, err := os.Stat(path); err == nil && !info.IsDir() {
				return path, true
			}
		}
	}
	return "", false
}
