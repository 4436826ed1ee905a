package domain

import "time"

// Settings is the singleton runtime configuration row consulted by the
// pipeline on every run. Model choices can be changed without a restart.
type Settings struct {
	StoryModel    string
	TTSModel      string
	CoverProvider string
	BGMEnabled    bool
	UpdatedAt     time.Time
}

// DefaultSettings returns the settings used until an admin changes them.
func DefaultSettings() Settings {
	return Settings{
		StoryModel:    "gpt-4o",
		TTSModel:      "gpt-4o-mini-tts",
		CoverProvider: "dalle3",
		BGMEnabled:    false,
	}
}
