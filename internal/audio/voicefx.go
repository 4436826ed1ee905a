package audio

import (
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/effects"
	"github.com/faiface/beep/wav"
)

// VoiceEffectClean leaves a recording untouched.
const VoiceEffectClean = "clean"

// voiceEffects maps preset names to streamer chains. Uploaded recordings run
// through the chain once and are stored processed, so story assembly never
// pays for the effect again.
var voiceEffects = map[string]func(beep.Streamer, beep.Format) beep.Streamer{
	"robot": func(s beep.Streamer, f beep.Format) beep.Streamer {
		s = pitchShift(s, -3)
		s = &driveStreamer{s: s, gain: math.Pow(10, 8.0/20)}
		return gainDB(s, 3)
	},
	"fairy": func(s beep.Streamer, f beep.Format) beep.Streamer {
		s = pitchShift(s, 5)
		s = newEcho(s, f, 90*time.Millisecond, 0.3, 0.4)
		return gainDB(s, 3)
	},
	"monster": func(s beep.Streamer, f beep.Format) beep.Streamer {
		s = pitchShift(s, -8)
		s = newEcho(s, f, 120*time.Millisecond, 0.3, 0.3)
		return gainDB(s, 4)
	},
	"echo": func(s beep.Streamer, f beep.Format) beep.Streamer {
		return newEcho(s, f, 500*time.Millisecond, 0.4, 0.5)
	},
	"underwater": func(s beep.Streamer, f beep.Format) beep.Streamer {
		s = newLowpass(s, f, 800)
		return gainDB(s, 4)
	},
}

// IsVoiceEffect reports whether name is a known preset.
func IsVoiceEffect(name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == VoiceEffectClean {
		return true
	}
	_, ok := voiceEffects[name]
	return ok
}

// ApplyVoiceEffect runs a recording through the named preset and returns the
// processed audio as WAV. Clean and empty effect names pass the input through
// unchanged.
func ApplyVoiceEffect(data []byte, format, effect string) ([]byte, error) {
	effect = strings.ToLower(strings.TrimSpace(effect))
	if effect == "" || effect == VoiceEffectClean {
		return data, nil
	}
	build, ok := voiceEffects[effect]
	if !ok {
		return nil, fmt.Errorf("audio: unknown voice effect %q", effect)
	}

	streamer, f, err := decodeAudio(data, format)
	if err != nil {
		return nil, fmt.Errorf("audio: decode recording: %w", err)
	}
	defer streamer.Close()

	var buf wavBuffer
	enc := beep.Format{SampleRate: f.SampleRate, NumChannels: f.NumChannels, Precision: 2}
	if err := wav.Encode(&buf, build(streamer, f), enc); err != nil {
		return nil, fmt.Errorf("audio: encode recording: %w", err)
	}
	return buf.data, nil
}

// pitchShift plays the stream faster or slower by a semitone factor, which
// moves pitch and duration together.
func pitchShift(s beep.Streamer, semitones float64) beep.Streamer {
	return beep.ResampleRatio(resampleQuality, math.Pow(2, semitones/12), s)
}

func gainDB(s beep.Streamer, db float64) beep.Streamer {
	return &effects.Volume{Streamer: s, Base: 10, Volume: db / 20}
}

// echoStreamer feeds the output back through a fixed delay line. After the
// source ends it keeps streaming silence long enough for the repeats to die
// off.
type echoStreamer struct {
	s        beep.Streamer
	buf      [][2]float64
	pos      int
	feedback float64
	mix      float64
	tail     int
	drained  bool
}

func newEcho(s beep.Streamer, f beep.Format, delay time.Duration, feedback, mix float64) beep.Streamer {
	n := f.SampleRate.N(delay)
	if n < 1 {
		n = 1
	}
	return &echoStreamer{s: s, buf: make([][2]float64, n), feedback: feedback, mix: mix, tail: n * 4}
}

func (e *echoStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	if !e.drained {
		n, ok = e.s.Stream(samples)
		if !ok {
			e.drained = true
		}
	}
	if e.drained {
		for n < len(samples) && e.tail > 0 {
			samples[n] = [2]float64{}
			n++
			e.tail--
		}
		if n == 0 {
			return 0, false
		}
	}
	for i := 0; i < n; i++ {
		dry := samples[i]
		wet := e.buf[e.pos]
		samples[i][0] = dry[0] + wet[0]*e.mix
		samples[i][1] = dry[1] + wet[1]*e.mix
		e.buf[e.pos][0] = dry[0] + wet[0]*e.feedback
		e.buf[e.pos][1] = dry[1] + wet[1]*e.feedback
		e.pos++
		if e.pos == len(e.buf) {
			e.pos = 0
		}
	}
	return n, true
}

func (e *echoStreamer) Err() error { return e.s.Err() }

// lowpassStreamer is a one-pole filter, enough to muffle a voice without
// pulling in a DSP dependency.
type lowpassStreamer struct {
	s     beep.Streamer
	alpha float64
	mem   [2]float64
}

func newLowpass(s beep.Streamer, f beep.Format, cutoffHz float64) beep.Streamer {
	dt := 1.0 / float64(f.SampleRate)
	rc := 1.0 / (2 * math.Pi * cutoffHz)
	return &lowpassStreamer{s: s, alpha: dt / (rc + dt)}
}

func (l *lowpassStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	n, ok = l.s.Stream(samples)
	for i := 0; i < n; i++ {
		l.mem[0] += l.alpha * (samples[i][0] - l.mem[0])
		l.mem[1] += l.alpha * (samples[i][1] - l.mem[1])
		samples[i] = l.mem
	}
	return n, ok
}

func (l *lowpassStreamer) Err() error { return l.s.Err() }

// driveStreamer saturates the signal through tanh for a distorted edge.
type driveStreamer struct {
	s    beep.Streamer
	gain float64
}

func (d *driveStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	n, ok = d.s.Stream(samples)
	for i := 0; i < n; i++ {
		samples[i][0] = math.Tanh(samples[i][0] * d.gain)
		samples[i][1] = math.Tanh(samples[i][1] * d.gain)
	}
	return n, ok
}

func (d *driveStreamer) Err() error { return d.s.Err() }

// wavBuffer is an in-memory io.WriteSeeker for wav.Encode, which seeks back
// to patch the header after writing the data chunk.
type wavBuffer struct {
	data []byte
	off  int
}

func (b *wavBuffer) Write(p []byte) (int, error) {
	if grow := b.off + len(p) - len(b.data); grow > 0 {
		b.data = append(b.data, make([]byte, grow)...)
	}
	copy(b.data[b.off:], p)
	b.off += len(p)
	return len(p), nil
}

func (b *wavBuffer) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(b.off) + offset
	case io.SeekEnd:
		abs = int64(len(b.data)) + offset
	default:
		return 0, fmt.Errorf("audio: invalid seek whence %d", whence)
	}
	if abs < 0 {
		return 0, fmt.Errorf("audio: seek before start")
	}
	b.off = int(abs)
	return abs, nil
}
