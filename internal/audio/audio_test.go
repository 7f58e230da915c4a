package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zaf/g711"
)

func TestFormatFrameSizeAndValidate(t *testing.T) {
	f := Format{SampleRate: 44100, Channels: 2, BitDepth: 16}
	assert.Equal(t, 4, f.FrameSize())
	assert.NoError(t, f.Validate())

	err := Format{SampleRate: 16000, Channels: 1, BitDepth: 12}.Validate()
	assert.True(t, errors.Is(err, ErrAudioFormat))
	assert.Error(t, Format{SampleRate: 0, Channels: 1, BitDepth: 16}.Validate())
}

func TestBufferDurationAndClone(t *testing.T) {
	b := Buffer{Format: DetectorFormat, Data: make([]byte, 32000)}
	assert.Equal(t, 16000, b.Frames())
	assert.Equal(t, time.Second, b.Duration())

	c := b.Clone()
	c.Data[0] = 0x7f
	assert.Equal(t, byte(0), b.Data[0])
}

func TestToPCM16FromOtherDepths(t *testing.T) {
	// 24-bit: 0x400000 (half scale) and -0x400000
	b24 := Buffer{
		Format: Format{SampleRate: 8000, Channels: 1, BitDepth: 24},
		Data:   []byte{0x00, 0x00, 0x40, 0x00, 0x00, 0xc0},
	}
	out, err := ToPCM16(b24)
	require.NoError(t, err)
	s, err := Samples(out)
	require.NoError(t, err)
	assert.Equal(t, []int{16384, -16384}, s)

	b8 := Buffer{Format: Format{SampleRate: 8000, Channels: 1, BitDepth: 8}, Data: []byte{0x40, 0xc0}}
	out, err = ToPCM16(b8)
	require.NoError(t, err)
	s, err = Samples(out)
	require.NoError(t, err)
	assert.Equal(t, []int{16384, -16384}, s)
}

func TestDownmixAveragesChannels(t *testing.T) {
	stereo := FromSamples16([]int{100, 300, -200, -400}, 16000, 2)
	mono, err := Downmix(stereo)
	require.NoError(t, err)
	assert.Equal(t, 1, mono.Format.Channels)
	s, err := Samples(mono)
	require.NoError(t, err)
	assert.Equal(t, []int{200, -300}, s)
}

func TestResampleHalvesFrameCount(t *testing.T) {
	in := FromSamples16([]int{0, 100, 200, 300, 400, 500, 600, 700}, 32000, 1)
	out, err := Resample(in, 16000)
	require.NoError(t, err)
	s, err := Samples(out)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 200, 400, 600}, s)
	assert.Equal(t, 16000, out.Format.SampleRate)
}

func TestResampleUpInterpolates(t *testing.T) {
	in := FromSamples16([]int{0, 100}, 8000, 1)
	out, err := Resample(in, 16000)
	require.NoError(t, err)
	s, err := Samples(out)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 50, 100, 100}, s)
}

func TestNormalizeToDetectorFormat(t *testing.T) {
	frames := 48000
	samples := make([]int, frames*2)
	for i := range samples {
		samples[i] = 1000
	}
	in := FromSamples16(samples, 48000, 2)
	out, err := Normalize(in, DetectorFormat)
	require.NoError(t, err)
	assert.Equal(t, DetectorFormat, out.Format)
	assert.Equal(t, 16000, out.Frames())

	s, err := Samples(out)
	require.NoError(t, err)
	assert.Equal(t, 1000, s[100])
}

func TestNormalizeRejectsNon16Target(t *testing.T) {
	_, err := Normalize(FromSamples16([]int{1}, 16000, 1), Format{SampleRate: 16000, Channels: 1, BitDepth: 24})
	assert.True(t, errors.Is(err, ErrAudioFormat))
}

func TestWAVEncodeDecode(t *testing.T) {
	in := FromSamples16([]int{0, 1000, -1000, 32767, -32768, 5}, 16000, 2)
	data, err := EncodeWAV(in)
	require.NoError(t, err)
	assert.Equal(t, "RIFF", string(data[:4]))

	out, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, in.Format, out.Format)
	assert.Equal(t, in.Data, out.Data)
}

func TestDecodeRejectsUnknownContainer(t *testing.T) {
	_, err := Decode([]byte("not audio at all"))
	assert.True(t, errors.Is(err, ErrAudioFormat))

	_, err = DecodeWAV(bytes.NewReader([]byte("RIFF\x00\x00\x00\x00WAVEjunk")))
	assert.True(t, errors.Is(err, ErrAudioFormat))
}

// rawWAV builds a minimal RIFF/WAVE file. A non-zero sub is written as the
// WAVE_FORMAT_EXTENSIBLE sub-format tag.
func rawWAV(tag uint16, sub uint16, channels, rate, bits int, data []byte) []byte {
	fmtBody := make([]byte, 16)
	binary.LittleEndian.PutUint16(fmtBody[0:], tag)
	binary.LittleEndian.PutUint16(fmtBody[2:], uint16(channels))
	binary.LittleEndian.PutUint32(fmtBody[4:], uint32(rate))
	binary.LittleEndian.PutUint32(fmtBody[8:], uint32(rate*channels*bits/8))
	binary.LittleEndian.PutUint16(fmtBody[12:], uint16(channels*bits/8))
	binary.LittleEndian.PutUint16(fmtBody[14:], uint16(bits))
	if sub != 0 {
		ext := make([]byte, 24)
		binary.LittleEndian.PutUint16(ext[0:], 22)
		binary.LittleEndian.PutUint16(ext[2:], uint16(bits))
		binary.LittleEndian.PutUint16(ext[8:], sub)
		fmtBody = append(fmtBody, ext...)
	}
	var b bytes.Buffer
	b.WriteString("RIFF")
	_ = binary.Write(&b, binary.LittleEndian, uint32(4+8+len(fmtBody)+8+len(data)))
	b.WriteString("WAVEfmt ")
	_ = binary.Write(&b, binary.LittleEndian, uint32(len(fmtBody)))
	b.Write(fmtBody)
	b.WriteString("data")
	_ = binary.Write(&b, binary.LittleEndian, uint32(len(data)))
	b.Write(data)
	return b.Bytes()
}

func TestDecodeRejectsNonPCMEncodings(t *testing.T) {
	cases := map[string][]byte{
		"float":            rawWAV(3, 0, 1, 16000, 32, make([]byte, 16)),
		"adpcm":            rawWAV(2, 0, 1, 16000, 4, make([]byte, 16)),
		"extensible float": rawWAV(0xFFFE, 3, 1, 16000, 32, make([]byte, 16)),
		"16-bit mu-law":    rawWAV(7, 0, 1, 8000, 16, make([]byte, 16)),
	}
	for name, data := range cases {
		_, err := Decode(data)
		assert.True(t, errors.Is(err, ErrAudioFormat), name)
	}
}

func TestDecodeExpandsG711(t *testing.T) {
	companded := []byte{0xff, 0x00, 0x80, 0x55, 0xd5, 0x2a}

	ulaw, err := Decode(rawWAV(7, 0, 1, 8000, 8, companded))
	require.NoError(t, err)
	assert.Equal(t, Format{SampleRate: 8000, Channels: 1, BitDepth: 16}, ulaw.Format)
	samples, err := Samples(ulaw)
	require.NoError(t, err)
	require.Len(t, samples, len(companded))
	for i, c := range companded {
		assert.Equal(t, int(g711.DecodeUlawFrame(c)), samples[i], "mu-law byte 0x%02x", c)
	}
	assert.NotZero(t, samples[1])

	alaw, err := Decode(rawWAV(6, 0, 1, 8000, 8, companded))
	require.NoError(t, err)
	samples, err = Samples(alaw)
	require.NoError(t, err)
	for i, c := range companded {
		assert.Equal(t, int(g711.DecodeAlawFrame(c)), samples[i], "a-law byte 0x%02x", c)
	}
}
