package audio

import (
	"errors"
	"fmt"
	"time"
)

// ErrAudioFormat marks input that cannot be decoded or converted.
var ErrAudioFormat = errors.New("audio format error")

// Format describes interleaved little-endian signed PCM.
type Format struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

// DetectorFormat is what the detection channel expects.
var DetectorFormat = Format{SampleRate: 16000, Channels: 1, BitDepth: 16}

func (f Format) BytesPerSample() int { return f.BitDepth / 8 }

// FrameSize is the byte width of one sample across all channels.
func (f Format) FrameSize() int { return f.Channels * f.BytesPerSample() }

func (f Format) String() string {
	return fmt.Sprintf("%dHz/%dch/%dbit", f.SampleRate, f.Channels, f.BitDepth)
}

func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate %d", ErrAudioFormat, f.SampleRate)
	}
	if f.Channels <= 0 {
		return fmt.Errorf("%w: channels %d", ErrAudioFormat, f.Channels)
	}
	switch f.BitDepth {
	case 8, 16, 24, 32:
	default:
		return fmt.Errorf("%w: bit depth %d", ErrAudioFormat, f.BitDepth)
	}
	return nil
}

// Buffer is PCM audio plus its layout. Operations in this module never
// mutate a Buffer in place; they return new ones.
type Buffer struct {
	Format Format
	Data   []byte
}

// Frames is the number of whole frames in Data.
func (b Buffer) Frames() int {
	fs := b.Format.FrameSize()
	if fs == 0 {
		return 0
	}
	return len(b.Data) / fs
}

func (b Buffer) Duration() time.Duration {
	if b.Format.SampleRate == 0 {
		return 0
	}
	return time.Duration(b.Frames()) * time.Second / time.Duration(b.Format.SampleRate)
}

func (b Buffer) Clone() Buffer {
	data := make([]byte, len(b.Data))
	copy(data, b.Data)
	return Buffer{Format: b.Format, Data: data}
}
