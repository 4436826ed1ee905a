package domain

import "time"

// StoryStatus enumerates story lifecycle states.
type StoryStatus string

const (
	StoryStatusGenerating    StoryStatus = "generating"
	StoryStatusTTSProcessing StoryStatus = "tts_processing"
	StoryStatusReady         StoryStatus = "ready"
	StoryStatusFailed        StoryStatus = "failed"
)

// Terminal reports whether no further automatic transition may occur.
func (s StoryStatus) Terminal() bool {
	return s == StoryStatusReady || s == StoryStatusFailed
}

// SegmentType enumerates spoken-content segment kinds.
type SegmentType string

const (
	SegmentNarration SegmentType = "narration"
	SegmentDialog    SegmentType = "dialog"
)

// Character is a named voice within a story's content payload. It is
// immutable once the payload is persisted.
type Character struct {
	Name           string `json:"name"`
	Age            int    `json:"age"`
	Gender         string `json:"gender"`
	Description    string `json:"description"`
	DefaultEmotion string `json:"default_emotion"`
}

// Segment is one ordered unit of spoken content. IDs are 1-based and their
// numeric order equals playback order. An empty Character means the narrator
// speaks.
type Segment struct {
	ID         int         `json:"segment_id"`
	Type       SegmentType `json:"type"`
	Character  string      `json:"character,omitempty"`
	Emotion    string      `json:"emotion"`
	Text       string      `json:"text"`
	PauseAfter int         `json:"pause_after_ms"`
}

// StoryContent is the structured payload produced by content generation.
type StoryContent struct {
	Title      string      `json:"title"`
	Summary    string      `json:"summary"`
	Characters []Character `json:"characters"`
	Segments   []Segment   `json:"segments"`
	Moral      string      `json:"moral,omitempty"`
}

// Story encapsulates one end-to-end generation request. After creation it is
// mutated only by the pipeline worker until a terminal state is reached.
type Story struct {
	ID       string
	UserID   string
	Topic    string
	Setting  string
	Mood     string
	AgeRange string
	Length   string
	Language string

	Content StoryContent

	Status          StoryStatus
	CoverPath       string
	AudioPath       string
	BGMPath         string
	DurationSeconds float64

	CostGeneration Money
	CostCover      Money
	CostSynthesis  Money
	CostBGM        Money
	CostTotal      Money

	SegmentCount   int
	SynthesisChars int

	// Recordings maps segment id to a pre-recorded audio storage key that
	// replaces synthesis for that segment.
	Recordings map[int]string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// StoryResult carries everything the worker commits when a pipeline run
// finishes successfully.
type StoryResult struct {
	StoryID         string
	AudioPath       string
	BGMPath         string
	DurationSeconds float64
	CostSynthesis   Money
	CostBGM         Money
	SynthesisChars  int
}
