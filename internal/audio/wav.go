package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/orcaman/writerseeker"
	"github.com/zaf/g711"
)

// WAVE format tags.
const (
	wavFormatPCM        = 0x0001
	wavFormatALaw       = 0x0006
	wavFormatMuLaw      = 0x0007
	wavFormatExtensible = 0xFFFE
)

// DecodeWAV reads a RIFF/WAVE stream into a Buffer at the file's own rate
// and channel count. Integer PCM keeps its bit depth; 8-bit A-law and
// mu-law are expanded to 16-bit. Every other encoding is rejected.
func DecodeWAV(r io.ReadSeeker) (Buffer, error) {
	tag, err := wavEncoding(r)
	if err != nil {
		return Buffer{}, err
	}
	switch tag {
	case wavFormatPCM, wavFormatALaw, wavFormatMuLaw:
	default:
		return Buffer{}, fmt.Errorf("%w: unsupported wav encoding 0x%04x", ErrAudioFormat, tag)
	}

	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return Buffer{}, fmt.Errorf("%w: not a valid wav file", ErrAudioFormat)
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return Buffer{}, fmt.Errorf("%w: read pcm: %v", ErrAudioFormat, err)
	}
	f := Format{
		SampleRate: int(d.SampleRate),
		Channels:   int(d.NumChans),
		BitDepth:   int(d.BitDepth),
	}
	if tag != wavFormatPCM {
		if f.BitDepth != 8 {
			return Buffer{}, fmt.Errorf("%w: g711 wav with %d-bit samples", ErrAudioFormat, f.BitDepth)
		}
		f.BitDepth = 16
		if err := f.Validate(); err != nil {
			return Buffer{}, err
		}
		return Buffer{Format: f, Data: expandG711(buf.Data, tag == wavFormatALaw)}, nil
	}
	if err := f.Validate(); err != nil {
		return Buffer{}, err
	}
	return Buffer{Format: f, Data: packSamples(buf.Data, f.BitDepth)}, nil
}

// wavEncoding returns the effective format tag of the fmt chunk, resolving
// WAVE_FORMAT_EXTENSIBLE to its sub-format. r is rewound afterwards.
func wavEncoding(r io.ReadSeeker) (uint16, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrAudioFormat, err)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrAudioFormat, err)
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrAudioFormat, err)
	}
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return 0, fmt.Errorf("%w: not a valid wav file", ErrAudioFormat)
	}
	for off := 12; off+8 <= len(data); {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := data[off+8:]
		if size < len(body) {
			body = body[:size]
		}
		if id == "fmt " {
			if len(body) < 16 {
				return 0, fmt.Errorf("%w: short fmt chunk", ErrAudioFormat)
			}
			tag := binary.LittleEndian.Uint16(body[0:2])
			if tag == wavFormatExtensible {
				// cbSize, valid bits and channel mask precede the
				// sub-format GUID, whose first two bytes hold the tag.
				if len(body) < 26 {
					return 0, fmt.Errorf("%w: short extensible fmt chunk", ErrAudioFormat)
				}
				tag = binary.LittleEndian.Uint16(body[24:26])
			}
			return tag, nil
		}
		off += 8 + size + size%2
	}
	return 0, fmt.Errorf("%w: missing fmt chunk", ErrAudioFormat)
}

// expandG711 turns 8-bit companded samples, as go-audio returns them, into
// 16-bit little-endian PCM.
func expandG711(samples []int, alaw bool) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		var v int16
		if alaw {
			v = g711.DecodeAlawFrame(uint8(s))
		} else {
			v = g711.DecodeUlawFrame(uint8(s))
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

// packSamples writes go-audio ints as little-endian signed PCM. go-audio
// hands back 8-bit wav samples unsigned, so they are re-centred here.
func packSamples(samples []int, bitDepth int) []byte {
	bps := bitDepth / 8
	out := make([]byte, len(samples)*bps)
	for i, s := range samples {
		p := out[i*bps:]
		switch bps {
		case 1:
			p[0] = byte(int8(s - 128))
		case 2:
			binary.LittleEndian.PutUint16(p, uint16(int16(s)))
		case 3:
			p[0], p[1], p[2] = byte(s), byte(s>>8), byte(s>>16)
		case 4:
			binary.LittleEndian.PutUint32(p, uint32(int32(s)))
		}
	}
	return out
}

// EncodeWAV renders b as a 16-bit RIFF/WAVE file in memory. Other bit
// depths are converted first.
func EncodeWAV(b Buffer) ([]byte, error) {
	pcm, err := ToPCM16(b)
	if err != nil {
		return nil, err
	}
	samples, err := Samples(pcm)
	if err != nil {
		return nil, err
	}
	ws := &writerseeker.WriterSeeker{}
	enc := wav.NewEncoder(ws, pcm.Format.SampleRate, 16, pcm.Format.Channels, 1)
	ib := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: pcm.Format.Channels,
			SampleRate:  pcm.Format.SampleRate,
		},
		Data:           samples,
		SourceBitDepth: 16,
	}
	if err := enc.Write(ib); err != nil {
		return nil, fmt.Errorf("encoder write buffer: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encoder close: %w", err)
	}
	out, err := io.ReadAll(ws.Reader())
	if err != nil {
		return nil, fmt.Errorf("reading wav into memory: %w", err)
	}
	return out, nil
}

// Decode sniffs data and dispatches to the WAV or Ogg/Opus decoder.
func Decode(data []byte) (Buffer, error) {
	switch {
	case len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE":
		return DecodeWAV(bytes.NewReader(data))
	case len(data) >= 4 && string(data[0:4]) == "OggS":
		return DecodeOggOpus(data)
	default:
		return Buffer{}, fmt.Errorf("%w: unrecognised container", ErrAudioFormat)
	}
}
