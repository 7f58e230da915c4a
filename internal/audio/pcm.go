package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Samples decodes b into one int per sample (interleaved), in the native
// range of b's bit depth.
func Samples(b Buffer) ([]int, error) {
	if err := b.Format.Validate(); err != nil {
		return nil, err
	}
	bps := b.Format.BytesPerSample()
	n := len(b.Data) / bps
	out := make([]int, n)
	for i := 0; i < n; i++ {
		p := b.Data[i*bps : (i+1)*bps]
		switch bps {
		case 1:
			out[i] = int(int8(p[0]))
		case 2:
			out[i] = int(int16(binary.LittleEndian.Uint16(p)))
		case 3:
			v := int32(p[0]) | int32(p[1])<<8 | int32(p[2])<<16
			if v&0x800000 != 0 {
				v |= ^0xffffff
			}
			out[i] = int(v)
		case 4:
			out[i] = int(int32(binary.LittleEndian.Uint32(p)))
		}
	}
	return out, nil
}

// FromSamples16 packs int16-range samples into a 16-bit buffer.
func FromSamples16(samples []int, sampleRate, channels int) Buffer {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(int16(clamp16(s))))
	}
	return Buffer{Format: Format{SampleRate: sampleRate, Channels: channels, BitDepth: 16}, Data: data}
}

func clamp16(v int) int {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return v
}

// ToPCM16 converts b to 16-bit samples, keeping rate and channel count.
func ToPCM16(b Buffer) (Buffer, error) {
	if err := b.Format.Validate(); err != nil {
		return Buffer{}, err
	}
	if b.Format.BitDepth == 16 {
		return b.Clone(), nil
	}
	samples, err := Samples(b)
	if err != nil {
		return Buffer{}, err
	}
	shift := b.Format.BitDepth - 16
	for i, s := range samples {
		if shift > 0 {
			samples[i] = s >> uint(shift)
		} else {
			samples[i] = s << uint(-shift)
		}
	}
	return FromSamples16(samples, b.Format.SampleRate, b.Format.Channels), nil
}

// Downmix averages all channels of a 16-bit buffer into mono.
func Downmix(b Buffer) (Buffer, error) {
	if b.Format.BitDepth != 16 {
		return Buffer{}, fmt.Errorf("%w: downmix needs 16-bit input, got %d", ErrAudioFormat, b.Format.BitDepth)
	}
	ch := b.Format.Channels
	if ch == 1 {
		return b.Clone(), nil
	}
	samples, err := Samples(b)
	if err != nil {
		return Buffer{}, err
	}
	frames := len(samples) / ch
	mono := make([]int, frames)
	for f := 0; f < frames; f++ {
		sum := 0
		for c := 0; c < ch; c++ {
			sum += samples[f*ch+c]
		}
		mono[f] = sum / ch
	}
	return FromSamples16(mono, b.Format.SampleRate, 1), nil
}

// Upmix duplicates a mono 16-bit buffer across channels.
func Upmix(b Buffer, channels int) (Buffer, error) {
	if b.Format.BitDepth != 16 || b.Format.Channels != 1 {
		return Buffer{}, fmt.Errorf("%w: upmix needs mono 16-bit input, got %s", ErrAudioFormat, b.Format)
	}
	samples, err := Samples(b)
	if err != nil {
		return Buffer{}, err
	}
	out := make([]int, 0, len(samples)*channels)
	for _, s := range samples {
		for c := 0; c < channels; c++ {
			out = append(out, s)
		}
	}
	return FromSamples16(out, b.Format.SampleRate, channels), nil
}

// Resample changes the rate of a 16-bit buffer with per-channel linear
// interpolation.
func Resample(b Buffer, rate int) (Buffer, error) {
	if b.Format.BitDepth != 16 {
		return Buffer{}, fmt.Errorf("%w: resample needs 16-bit input, got %d", ErrAudioFormat, b.Format.BitDepth)
	}
	if rate <= 0 {
		return Buffer{}, fmt.Errorf("%w: target rate %d", ErrAudioFormat, rate)
	}
	if rate == b.Format.SampleRate {
		return b.Clone(), nil
	}
	samples, err := Samples(b)
	if err != nil {
		return Buffer{}, err
	}
	ch := b.Format.Channels
	inFrames := len(samples) / ch
	if inFrames == 0 {
		return Buffer{Format: Format{SampleRate: rate, Channels: ch, BitDepth: 16}}, nil
	}
	src := b.Format.SampleRate
	outFrames := int(int64(inFrames) * int64(rate) / int64(src))
	out := make([]int, outFrames*ch)
	for i := 0; i < outFrames; i++ {
		pos := float64(i) * float64(src) / float64(rate)
		i0 := int(pos)
		if i0 >= inFrames {
			i0 = inFrames - 1
		}
		i1 := i0 + 1
		if i1 >= inFrames {
			i1 = inFrames - 1
		}
		frac := pos - float64(i0)
		for c := 0; c < ch; c++ {
			s0 := float64(samples[i0*ch+c])
			s1 := float64(samples[i1*ch+c])
			out[i*ch+c] = int(math.Round(s0 + (s1-s0)*frac))
		}
	}
	return FromSamples16(out, rate, ch), nil
}

// Normalize converts b into target, which must be 16-bit. Bit depth is
// converted first, then channel layout, then rate.
func Normalize(b Buffer, target Format) (Buffer, error) {
	if err := target.Validate(); err != nil {
		return Buffer{}, err
	}
	if target.BitDepth != 16 {
		return Buffer{}, fmt.Errorf("%w: only 16-bit targets are supported, got %d", ErrAudioFormat, target.BitDepth)
	}
	out, err := ToPCM16(b)
	if err != nil {
		return Buffer{}, err
	}
	switch {
	case out.Format.Channels == target.Channels:
	case target.Channels == 1:
		if out, err = Downmix(out); err != nil {
			return Buffer{}, err
		}
	case out.Format.Channels == 1:
		if out, err = Upmix(out, target.Channels); err != nil {
			return Buffer{}, err
		}
	default:
		return Buffer{}, fmt.Errorf("%w: cannot map %d channels to %d", ErrAudioFormat, out.Format.Channels, target.Channels)
	}
	return Resample(out, target.SampleRate)
}
