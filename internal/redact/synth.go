package redact

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/voice-redaction-lab/internal/audio"
	"github.com/voice-redaction-lab/internal/logging"
)

// ErrInvalidParams is returned for out-of-range synthesis parameters.
var ErrInvalidParams = errors.New("invalid replacement parameters")

type Timbre string

const (
	TimbreBeep   Timbre = "beep"
	TimbreChime  Timbre = "chime"
	TimbreSoft   Timbre = "soft"
	TimbreGentle Timbre = "gentle"
)

// ParseTimbre maps a name onto a known timbre. Unknown names map to beep.
func ParseTimbre(name string) Timbre {
	switch t := Timbre(strings.ToLower(strings.TrimSpace(name))); t {
	case TimbreBeep, TimbreChime, TimbreSoft, TimbreGentle:
		return t
	default:
		if name != "" {
			logging.Debugw("redact: unknown timbre, using beep", "timbre", name)
		}
		return TimbreBeep
	}
}

// Waveform is a synthesized replacement tone in a concrete PCM format.
type Waveform struct {
	Timbre    Timbre
	Frequency float64
	Duration  float64
	Volume    float64
	Format    audio.Format
	Data      []byte
}

// maxWaveformBytes bounds a synthesized tone. The tone is tiled across
// each span, so it never needs to be long.
const maxWaveformBytes = 64 << 20

var (
	chimePartials = [...]float64{800, 1200, 1600}
	chimeWeights  = [...]float64{1.0, 0.6, 0.3}
)

// Synthesize renders floor(rate*duration) frames of the given timbre, with
// each sample repeated across the frame's channels. Output is 16-bit
// little-endian and fully determined by the arguments.
func Synthesize(timbre Timbre, frequency, duration, volume float64, format audio.Format) (Waveform, error) {
	if frequency <= 0 || math.IsNaN(frequency) || math.IsInf(frequency, 0) {
		return Waveform{}, fmt.Errorf("%w: frequency %v", ErrInvalidParams, frequency)
	}
	if duration <= 0 || math.IsNaN(duration) || math.IsInf(duration, 0) {
		return Waveform{}, fmt.Errorf("%w: duration %v", ErrInvalidParams, duration)
	}
	if volume < 0 || volume > 1 || math.IsNaN(volume) {
		return Waveform{}, fmt.Errorf("%w: volume %v", ErrInvalidParams, volume)
	}
	if err := format.Validate(); err != nil || format.BitDepth != 16 {
		return Waveform{}, fmt.Errorf("%w: waveform format %s", ErrInvalidParams, format)
	}
	timbre = ParseTimbre(string(timbre))

	rate := float64(format.SampleRate)
	ch := format.Channels
	if size := math.Floor(rate*duration) * float64(ch*2); size > maxWaveformBytes {
		return Waveform{}, fmt.Errorf("%w: %v s at %s needs %.0f bytes, limit %d",
			ErrInvalidParams, duration, format, size, maxWaveformBytes)
	}
	n := int(rate * duration)
	data := make([]byte, n*ch*2)
	for i := 0; i < n; i++ {
		t := float64(i) / rate
		v := uint16(quantize(amplitude(timbre, frequency, t, duration, volume)))
		for c := 0; c < ch; c++ {
			binary.LittleEndian.PutUint16(data[(i*ch+c)*2:], v)
		}
	}
	return Waveform{
		Timbre:    timbre,
		Frequency: frequency,
		Duration:  duration,
		Volume:    volume,
		Format:    format,
		Data:      data,
	}, nil
}

func amplitude(timbre Timbre, f, t, d, volume float64) float64 {
	switch timbre {
	case TimbreChime:
		var sum float64
		for k, p := range chimePartials {
			sum += chimeWeights[k] * math.Sin(2*math.Pi*p*t)
		}
		return sum * math.Exp(-3*t) * fade(t, d, 0.05) * 0.3 * volume
	case TimbreSoft:
		base := 0.7 * f
		v := math.Sin(2*math.Pi*base*t) + 0.2*math.Sin(2*math.Pi*2*base*t)
		return v * fade(t, d, 0.1) * math.Sin(math.Pi*t/d) * 0.4 * volume
	case TimbreGentle:
		base := 0.5 * f
		env := math.Sin(math.Pi * t / d)
		return math.Sin(2*math.Pi*base*t) * fade(t, d, 0.2) * env * env * 0.15 * volume
	default:
		return math.Sin(2*math.Pi*f*t) * volume
	}
}

// fade is a linear ramp in over w seconds times a linear ramp out over the
// last w seconds.
func fade(t, d, w float64) float64 {
	return math.Min(1, t/w) * math.Min(1, (d-t)/w)
}

// quantize scales to the int16 range, clamps, and truncates toward zero.
func quantize(a float64) int16 {
	v := a * 32767
	if v > math.MaxInt16 {
		v = math.MaxInt16
	}
	if v < math.MinInt16 {
		v = math.MinInt16
	}
	return int16(v)
}

// Len is the waveform length in bytes.
func (w Waveform) Len() int { return len(w.Data) }
