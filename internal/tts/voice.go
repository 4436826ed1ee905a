package tts

import (
	"fmt"
	"strings"

	"storyforge/internal/domain"
)

// Synthesis voices mapped by character profile.
// Voices: alloy, ash, ballad, coral, echo, fable, nova, onyx, sage, shimmer
//
// Masculine-leaning:  ash (warm), echo (steady), fable (expressive), onyx (deep)
// Feminine-leaning:   alloy (neutral), coral (warm), nova (bright), shimmer (soft)
// Neutral/versatile:  ballad (gentle), sage (calm)

type voiceKey struct {
	gender string
	bucket string
}

var voiceMap = map[voiceKey]string{
	{"female", "child"}:  "shimmer",
	{"female", "teen"}:   "nova",
	{"female", "adult"}:  "coral",
	{"female", "elder"}:  "sage",
	{"male", "child"}:    "alloy",
	{"male", "teen"}:     "echo",
	{"male", "adult"}:    "ash",
	{"male", "elder"}:    "onyx",
	{"neutral", "child"}: "shimmer",
	{"neutral", "teen"}:  "alloy",
	{"neutral", "adult"}: "ballad",
	{"neutral", "elder"}: "sage",
}

const fallbackVoice = "alloy"

var narratorVoices = map[string]string{
	"en": "fable",
	"fr": "ballad",
	"de": "onyx",
	"es": "coral",
}

const defaultNarratorVoice = "fable"

var emotionStyles = map[string]string{
	"neutral":   "Speak in a natural, conversational tone with subtle warmth. Vary your pacing slightly to keep the listener engaged without sounding monotone.",
	"happy":     "Speak with genuine joy and a bright, playful energy. Let your voice rise naturally with excitement, as if you're sharing wonderful news with a child. Smile as you speak.",
	"sad":       "Speak softly and slowly, with a tender, bittersweet quality. Let pauses breathe. Your voice should feel heavy with emotion but still gentle, like comforting someone.",
	"excited":   "Speak with bubbling enthusiasm and rising energy! Let your pitch climb with anticipation. Your pace should quicken naturally, like you can barely contain the thrill of what's happening.",
	"scared":    "Speak in a hushed, trembling voice. Let your words come out slightly uneven, with nervous pauses. Your breath should feel short, as if something might jump out at any moment.",
	"angry":     "Speak with intensity and barely contained emotion. Your voice should be firm and punchy, with sharp emphasis on key words. Keep it controlled but let the frustration bleed through.",
	"whisper":   "Speak in a hushed, secretive whisper, as if sharing a secret with the listener. Keep it intimate and conspiratorial, barely above a breath.",
	"gentle":    "Speak in a soft, lullaby-like tone full of tenderness and care. Your voice should feel like a warm hug: slow, soothing, and full of love.",
	"surprised": "Speak with wide-eyed astonishment! Let a small gasp escape before the words. Your pitch should jump up with genuine wonder, as if you can't believe what just happened.",
}

// Emotions lists the supported emotion tags. Unknown tags degrade to
// neutral rather than failing a job.
func Emotions() []string {
	return []string{"neutral", "happy", "sad", "excited", "scared", "angry", "whisper", "gentle", "surprised"}
}

func ageBucket(age int) string {
	switch {
	case age < 13:
		return "child"
	case age < 18:
		return "teen"
	case age < 60:
		return "adult"
	default:
		return "elder"
	}
}

func emotionStyle(emotion string) string {
	if style, ok := emotionStyles[strings.ToLower(strings.TrimSpace(emotion))]; ok {
		return style
	}
	return emotionStyles["neutral"]
}

// ResolveVoice returns the synthesis voice and style instruction for a
// segment. It is total: unknown emotions, genders, ages and dangling
// character references all degrade to defaults instead of erroring.
func ResolveVoice(segment domain.Segment, characters map[string]domain.Character, language string) (string, string) {
	if segment.Type == domain.SegmentNarration || segment.Character == "" {
		return narratorVoice(language), narratorInstruction(segment.Emotion)
	}
	character, ok := characters[segment.Character]
	if !ok {
		return narratorVoice(language), narratorInstruction(segment.Emotion)
	}
	return pickVoice(character), characterInstruction(character, segment.Emotion)
}

func narratorVoice(language string) string {
	if voice, ok := narratorVoices[strings.ToLower(language)]; ok {
		return voice
	}
	return defaultNarratorVoice
}

func pickVoice(character domain.Character) string {
	gender := strings.ToLower(strings.TrimSpace(character.Gender))
	if gender != "male" && gender != "female" {
		gender = "neutral"
	}
	if voice, ok := voiceMap[voiceKey{gender, ageBucket(character.Age)}]; ok {
		return voice
	}
	return fallbackVoice
}

func characterInstruction(character domain.Character, emotion string) string {
	return fmt.Sprintf(
		"You are performing the role of %s, a %d-year-old %s character in a children's story. %s. %s "+
			"Bring this character to life: use expressive vocal dynamics, natural breathing pauses, "+
			"and age-appropriate energy. This is a performance, not a reading.",
		character.Name, character.Age, character.Gender, character.Description, emotionStyle(emotion),
	)
}

func narratorInstruction(emotion string) string {
	return "You are a beloved storyteller reading a bedtime story to a child. " +
		"Speak with the warmth and expressiveness of a grandparent who truly loves telling stories. " +
		emotionStyle(emotion) + " " +
		"Use dramatic pauses for suspense, shift your tone to match the scene, " +
		"and let your voice paint the world of the story. Never sound like you're reading. Sound like you're living it."
}
