//go:build opus
// +build opus

package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/hraban/opus"
)

// opus streams always decode at 48 kHz regardless of the input rate
// recorded in the header.
const opusDecodeRate = 48000

// DecodeOggOpus decodes a whole Ogg/Opus file into 16-bit PCM at 48 kHz.
func DecodeOggOpus(data []byte) (Buffer, error) {
	channels, err := opusChannels(data)
	if err != nil {
		return Buffer{}, err
	}
	s, err := opus.NewStream(bytes.NewReader(data))
	if err != nil {
		return Buffer{}, fmt.Errorf("%w: open opus stream: %v", ErrAudioFormat, err)
	}
	defer s.Close()

	// 120 ms is the largest opus frame.
	pcm := make([]int16, opusDecodeRate/1000*120*channels)
	var samples []int
	for {
		n, err := s.Read(pcm)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Buffer{}, fmt.Errorf("%w: decode opus: %v", ErrAudioFormat, err)
		}
		for _, v := range pcm[:n*channels] {
			samples = append(samples, int(v))
		}
	}
	return FromSamples16(samples, opusDecodeRate, channels), nil
}

// opusChannels reads the channel count from the OpusHead identification
// header.
func opusChannels(data []byte) (int, error) {
	idx := bytes.Index(data, []byte("OpusHead"))
	if idx < 0 || idx+9 >= len(data) {
		return 0, fmt.Errorf("%w: missing OpusHead", ErrAudioFormat)
	}
	ch := int(data[idx+9])
	if ch < 1 || ch > 2 {
		return 0, fmt.Errorf("%w: unsupported opus channel count %d", ErrAudioFormat, ch)
	}
	return ch, nil
}
