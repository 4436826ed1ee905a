package tts

import (
	"strings"
	"testing"

	"storyforge/internal/domain"
)

func TestResolveVoiceNarratorPerLanguage(t *testing.T) {
	seg := domain.Segment{Type: domain.SegmentNarration, Emotion: "neutral"}
	cases := map[string]string{
		"en": "fable",
		"fr": "ballad",
		"de": "onyx",
		"es": "coral",
		"xx": "fable",
		"":   "fable",
	}
	for lang, want := range cases {
		voice, _ := ResolveVoice(seg, nil, lang)
		if voice != want {
			t.Fatalf("language %q: got %q, want %q", lang, voice, want)
		}
	}
}

func TestResolveVoiceCharacterBuckets(t *testing.T) {
	cases := []struct {
		name      string
		character domain.Character
		want      string
	}{
		{"female child", domain.Character{Name: "Mia", Age: 7, Gender: "female"}, "shimmer"},
		{"female teen", domain.Character{Name: "Lea", Age: 15, Gender: "female"}, "nova"},
		{"male adult", domain.Character{Name: "Tom", Age: 35, Gender: "male"}, "ash"},
		{"male elder", domain.Character{Name: "Opa", Age: 72, Gender: "male"}, "onyx"},
		{"unknown gender falls to neutral", domain.Character{Name: "Robo", Age: 30, Gender: "robot"}, "ballad"},
		{"boundary child to teen", domain.Character{Name: "Ben", Age: 13, Gender: "male"}, "echo"},
		{"boundary adult to elder", domain.Character{Name: "Oma", Age: 60, Gender: "female"}, "sage"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			characters := map[string]domain.Character{tc.character.Name: tc.character}
			seg := domain.Segment{Type: domain.SegmentDialog, Character: tc.character.Name, Emotion: "happy"}
			voice, instructions := ResolveVoice(seg, characters, "en")
			if voice != tc.want {
				t.Fatalf("got %q, want %q", voice, tc.want)
			}
			if !strings.Contains(instructions, tc.character.Name) {
				t.Fatalf("character instruction must mention the character, got %q", instructions)
			}
		})
	}
}

func TestResolveVoiceDanglingCharacterUsesNarrator(t *testing.T) {
	seg := domain.Segment{Type: domain.SegmentDialog, Character: "Ghost", Emotion: "scared"}
	voice, instructions := ResolveVoice(seg, map[string]domain.Character{}, "de")
	if voice != "onyx" {
		t.Fatalf("dangling character should fall back to narrator voice, got %q", voice)
	}
	if !strings.Contains(instructions, "storyteller") {
		t.Fatalf("expected narrator instruction, got %q", instructions)
	}
}

func TestEmotionStyleDegradesToNeutral(t *testing.T) {
	for _, emotion := range append(Emotions(), "FURIOUS", "", "  Happy  ") {
		style := emotionStyle(emotion)
		if style == "" {
			t.Fatalf("emotion %q produced empty style", emotion)
		}
	}
	if emotionStyle("no-such-emotion") != emotionStyles["neutral"] {
		t.Fatalf("unknown emotion must degrade to neutral")
	}
	if emotionStyle(" Happy ") != emotionStyles["happy"] {
		t.Fatalf("emotion lookup should trim and lowercase")
	}
}
