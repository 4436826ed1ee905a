package tts

import (
	"context"
	"strings"

	"storyforge/internal/domain"
	"storyforge/internal/infra"
)

// SegmentAudio is one synthesized (or pre-recorded, or dropped) segment in
// playback order. Empty Data marks a dropped segment; the assembler inserts
// a fixed silence in its place.
type SegmentAudio struct {
	Data         []byte
	Format       string
	PauseAfterMS int
}

// RecordingReader loads pre-recorded segment audio by storage key.
type RecordingReader interface {
	Read(ctx context.Context, key string) ([]byte, error)
}

// Pipeline acquires audio for every segment of a story's content payload.
// A single segment failure never aborts the run.
type Pipeline struct {
	engine     Engine
	recordings RecordingReader
	logger     infra.Logger
}

// NewPipeline builds the segment synthesizer.
func NewPipeline(engine Engine, recordings RecordingReader, logger infra.Logger) *Pipeline {
	return &Pipeline{engine: engine, recordings: recordings, logger: logger}
}

// Synthesize walks the segments in order. Segments with a recording override
// use it verbatim and only fall back to synthesis when the recording cannot
// be read. Returns the ordered audio list and the total character count sent
// to the synthesis service.
func (p *Pipeline) Synthesize(ctx context.Context, content domain.StoryContent, recordings map[int]string, language, model string) ([]SegmentAudio, int, error) {
	characters := make(map[string]domain.Character, len(content.Characters))
	for _, ch := range content.Characters {
		characters[ch.Name] = ch
	}

	results := make([]SegmentAudio, 0, len(content.Segments))
	totalChars := 0

	for i, segment := range content.Segments {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		p.logger.Info().
			Int("segment", i+1).
			Int("total", len(content.Segments)).
			Str("type", string(segment.Type)).
			Msg("tts: synthesizing segment")

		if key, ok := recordings[segment.ID]; ok && p.recordings != nil {
			data, err := p.recordings.Read(ctx, key)
			if err == nil {
				results = append(results, SegmentAudio{Data: data, Format: recordingFormat(key), PauseAfterMS: segment.PauseAfter})
				continue
			}
			p.logger.Warn().Err(err).Int("segment_id", segment.ID).Msg("tts: recording unreadable, falling back to synthesis")
		}

		voice, instructions := ResolveVoice(segment, characters, language)
		totalChars += len(segment.Text)

		data, format, err := p.engine.Synthesize(ctx, SpeechRequest{
			Text:         segment.Text,
			Voice:        voice,
			Instructions: instructions,
			Model:        model,
		})
		if err != nil {
			p.logger.Error().Err(err).Int("segment_id", segment.ID).Msg("tts: segment synthesis failed, dropping")
			results = append(results, SegmentAudio{PauseAfterMS: segment.PauseAfter, Format: "mp3"})
			continue
		}
		results = append(results, SegmentAudio{Data: data, Format: format, PauseAfterMS: segment.PauseAfter})
	}

	return results, totalChars, nil
}

func recordingFormat(key string) string {
	if strings.HasSuffix(strings.ToLower(key), ".mp3") {
		return "mp3"
	}
	return "wav"
}
