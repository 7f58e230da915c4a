package redact

import (
	"errors"
	"fmt"
	"math"

	"github.com/voice-redaction-lab/internal/audio"
	"github.com/voice-redaction-lab/internal/logging"
)

var ErrInvalidInterval = errors.New("invalid interval")

// Interval is a span of audio in seconds.
type Interval struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

func NewInterval(start, end float64) (Interval, error) {
	if end < start || math.IsNaN(start) || math.IsNaN(end) {
		return Interval{}, fmt.Errorf("%w: end %v before start %v", ErrInvalidInterval, end, start)
	}
	return Interval{Start: start, End: end}, nil
}

// Mode selects what a redacted span is filled with.
type Mode struct {
	wave []byte
}

// SilenceMode zeroes redacted spans.
func SilenceMode() Mode { return Mode{} }

// ToneMode fills redacted spans with w, repeated as needed. An empty
// waveform behaves like SilenceMode.
func ToneMode(w Waveform) Mode { return Mode{wave: w.Data} }

func (m Mode) String() string {
	if len(m.wave) == 0 {
		return "silence"
	}
	return "tone"
}

// ByteRange maps iv onto byte offsets of a buffer with the given format and
// length. Negative starts clamp to zero and ends clamp to length; the result
// may be empty (lo >= hi).
func ByteRange(f audio.Format, iv Interval, length int) (lo, hi int) {
	lo, hi, _ = byteRange(f, iv, length)
	return lo, hi
}

func byteRange(f audio.Format, iv Interval, length int) (lo, hi int, clamped bool) {
	fs := f.FrameSize()
	if fs == 0 || f.SampleRate == 0 {
		return 0, 0, false
	}
	rate := float64(f.SampleRate)
	maxFrames := float64(length / fs)

	startFrames := math.Min(math.Floor(math.Max(0, iv.Start)*rate), maxFrames)
	endFrames := math.Floor(iv.End * rate)
	switch {
	case endFrames > maxFrames:
		hi, clamped = length, true
	case endFrames < 0:
		hi = 0
	default:
		hi = int(endFrames) * fs
	}
	return int(startFrames) * fs, hi, clamped
}

// Redact returns a copy of buf with every interval overwritten according to
// mode. Intervals are applied in order, so later ones win where they
// overlap. Spans past the end of the buffer are clamped.
func Redact(buf audio.Buffer, intervals []Interval, mode Mode) audio.Buffer {
	out := buf.Clone()
	fs := buf.Format.FrameSize()
	if fs == 0 {
		return out
	}
	for _, iv := range intervals {
		lo, hi, clamped := byteRange(buf.Format, iv, len(out.Data))
		if clamped {
			logging.Warnw("redact: interval extends past end of audio; clamped",
				append(logging.IntervalFields(iv.Start, iv.End), "bytes", len(out.Data))...)
		}
		if lo >= hi {
			continue
		}
		span := out.Data[lo:hi]
		if len(mode.wave) == 0 {
			for i := range span {
				span[i] = 0
			}
			continue
		}
		for k := range span {
			span[k] = mode.wave[k%len(mode.wave)]
		}
	}
	return out
}
