// Package audio assembles synthesized segments into a single audio artifact.
package audio

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/effects"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/wav"

	"storyforge/internal/infra"
	"storyforge/internal/tts"
)

const (
	// droppedSegmentSilence replaces a segment whose synthesis failed so the
	// assembled track keeps one audio region per segment.
	droppedSegmentSilence = 500 * time.Millisecond

	bgmVolumeDB     = -20.0
	bgmFadeIn       = 2 * time.Second
	bgmFadeOut      = 3 * time.Second
	resampleQuality = 4
)

// defaultFormat is used only when every segment was dropped and there is no
// lead segment to inherit a format from.
var defaultFormat = beep.Format{SampleRate: 44100, NumChannels: 2, Precision: 2}

// Tags are optional metadata fields embedded in the exported file.
type Tags struct {
	Title  string
	Artist string
	Album  string
}

// Options controls one assembly run.
type Options struct {
	BGMPath string
	Tags    *Tags
}

// Assembler concatenates segment audio with pauses, optionally mixes a
// background track underneath, and exports once.
type Assembler struct {
	logger infra.Logger
}

// NewAssembler builds an Assembler.
func NewAssembler(logger infra.Logger) *Assembler {
	return &Assembler{logger: logger}
}

type decodedSegment struct {
	streamer beep.StreamSeekCloser
	format   beep.Format
	pause    time.Duration
	dropped  bool
}

// Assemble writes the final track to outputPath and returns its duration in
// seconds. Export failure is fatal; no partial artifact is left behind.
func (a *Assembler) Assemble(segments []tts.SegmentAudio, opts Options, outputPath string) (float64, error) {
	decoded := make([]decodedSegment, 0, len(segments))
	for _, seg := range segments {
		d := decodedSegment{pause: time.Duration(seg.PauseAfterMS) * time.Millisecond}
		if len(seg.Data) == 0 {
			d.dropped = true
		} else {
			streamer, format, err := decodeAudio(seg.Data, seg.Format)
			if err != nil {
				a.logger.Warn().Err(err).Msg("audio: undecodable segment, substituting silence")
				d.dropped = true
			} else {
				d.streamer = streamer
				d.format = format
			}
		}
		decoded = append(decoded, d)
	}

	// The output track inherits the format of the first decodable segment.
	track := defaultFormat
	for _, d := range decoded {
		if !d.dropped {
			track = d.format
			break
		}
	}

	var (
		streamers    []beep.Streamer
		totalSamples int
	)
	for _, d := range decoded {
		if d.dropped {
			n := track.SampleRate.N(droppedSegmentSilence)
			streamers = append(streamers, beep.Silence(n))
			totalSamples += n
		} else {
			var s beep.Streamer = d.streamer
			length := d.streamer.Len()
			if d.format.SampleRate != track.SampleRate {
				s = beep.Resample(resampleQuality, d.format.SampleRate, track.SampleRate, s)
				length = int(float64(length) * float64(track.SampleRate) / float64(d.format.SampleRate))
			}
			streamers = append(streamers, s)
			totalSamples += length
		}
		// Pause silence is generated at the running track's rate so mixed
		// segment formats never skew the gap lengths.
		if d.pause > 0 {
			n := track.SampleRate.N(d.pause)
			streamers = append(streamers, beep.Silence(n))
			totalSamples += n
		}
	}

	final := beep.Seq(streamers...)
	if opts.BGMPath != "" {
		bgm, err := a.backgroundStreamer(opts.BGMPath, track, totalSamples)
		if err != nil {
			a.logger.Warn().Err(err).Str("bgm", opts.BGMPath).Msg("audio: background track unusable, exporting narration only")
		} else {
			final = beep.Mix(final, bgm)
		}
	}

	counted := &countingStreamer{s: final}
	if err := a.export(counted, track, opts.Tags, outputPath); err != nil {
		return 0, err
	}

	duration := float64(counted.n) / float64(track.SampleRate)
	a.logger.Info().Float64("seconds", duration).Str("path", outputPath).Msg("audio: assembled track")
	return duration, nil
}

func (a *Assembler) export(s beep.Streamer, track beep.Format, tags *Tags, outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("audio: ensure output directory: %w", err)
	}
	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("audio: create output: %w", err)
	}
	encodeFormat := beep.Format{SampleRate: track.SampleRate, NumChannels: track.NumChannels, Precision: 2}
	if err := wav.Encode(f, s, encodeFormat); err != nil {
		f.Close()
		os.Remove(outputPath)
		return fmt.Errorf("audio: export: %w", err)
	}
	if tags != nil {
		if err := writeInfoChunk(f, tags); err != nil {
			a.logger.Warn().Err(err).Msg("audio: embedding metadata tags failed")
		}
	}
	if err := f.Close(); err != nil {
		os.Remove(outputPath)
		return fmt.Errorf("audio: close output: %w", err)
	}
	return nil
}

// backgroundStreamer loops or truncates the track to exactly totalSamples,
// attenuates it and applies the fade envelopes.
func (a *Assembler) backgroundStreamer(path string, track beep.Format, totalSamples int) (beep.Streamer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("audio: read background track: %w", err)
	}
	streamer, format, err := decodeAudio(data, strings.TrimPrefix(filepath.Ext(path), "."))
	if err != nil {
		return nil, fmt.Errorf("audio: decode background track: %w", err)
	}

	var s beep.Streamer = beep.Loop(-1, streamer)
	if format.SampleRate != track.SampleRate {
		s = beep.Resample(resampleQuality, format.SampleRate, track.SampleRate, s)
	}
	s = beep.Take(totalSamples, s)
	s = &effects.Volume{Streamer: s, Base: 10, Volume: bgmVolumeDB / 20}
	return &fadeStreamer{
		s:       s,
		fadeIn:  track.SampleRate.N(bgmFadeIn),
		fadeOut: track.SampleRate.N(bgmFadeOut),
		length:  totalSamples,
	}, nil
}

func decodeAudio(data []byte, format string) (beep.StreamSeekCloser, beep.Format, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "wav":
		return wav.Decode(bytes.NewReader(data))
	default:
		return mp3.Decode(io.NopCloser(bytes.NewReader(data)))
	}
}

// fadeStreamer ramps gain linearly over the first fadeIn and the last
// fadeOut samples of a stream whose total length is known up front.
type fadeStreamer struct {
	s       beep.Streamer
	fadeIn  int
	fadeOut int
	length  int
	pos     int
}

func (f *fadeStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	n, ok = f.s.Stream(samples)
	for i := 0; i < n; i++ {
		gain := 1.0
		if f.fadeIn > 0 && f.pos < f.fadeIn {
			gain = float64(f.pos) / float64(f.fadeIn)
		}
		if remaining := f.length - f.pos; f.fadeOut > 0 && remaining < f.fadeOut {
			if out := float64(remaining) / float64(f.fadeOut); out < gain {
				gain = out
			}
		}
		samples[i][0] *= gain
		samples[i][1] *= gain
		f.pos++
	}
	return n, ok
}

func (f *fadeStreamer) Err() error { return f.s.Err() }

// countingStreamer counts streamed samples so the caller can report the
// exported duration without re-reading the file.
type countingStreamer struct {
	s beep.Streamer
	n int
}

func (c *countingStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	n, ok = c.s.Stream(samples)
	c.n += n
	return n, ok
}

func (c *countingStreamer) Err() error { return c.s.Err() }
