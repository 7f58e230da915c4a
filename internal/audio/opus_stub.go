//go:build !opus
// +build !opus

package audio

import "fmt"

// DecodeOggOpus is unavailable in builds without libopus; build with the
// `opus` tag to enable it.
func DecodeOggOpus(data []byte) (Buffer, error) {
	return Buffer{}, fmt.Errorf("%w: ogg/opus input requires a build with the opus tag", ErrAudioFormat)
}
