package config

import (
	"time"

	"github.com/voice-redaction-lab/internal/audio"
	"github.com/voice-redaction-lab/internal/pipeline"
	"github.com/voice-redaction-lab/internal/transcribe"
)

// ClientConfig maps the detector section onto a streaming client config.
// The detector always receives mono 16-bit PCM at SampleRate.
func (d Detector) ClientConfig() transcribe.Config {
	return transcribe.Config{
		URL:              d.URL,
		Engine:           d.Engine,
		Format:           audio.Format{SampleRate: d.SampleRate, Channels: 1, BitDepth: 16},
		AppContextHeader: d.AppContextHeader,
		AppContext:       d.AppContext,
		ChunkSize:        d.ChunkSize,
		ChunkDuration:    time.Duration(d.ChunkDurationMs) * time.Millisecond,
		QueueSize:        d.QueueSize,
		DrainTimeout:     d.DrainTimeout,
		HandshakeTimeout: d.HandshakeTimeout,
	}
}

// Params returns the configured replacement defaults.
func (r Replacement) Params() pipeline.ReplacementParams {
	return pipeline.ReplacementParams{
		Method:    pipeline.Method(r.Method),
		Timbre:    r.Timbre,
		Frequency: r.Frequency,
		Duration:  r.Duration,
		Volume:    r.Volume,
	}
}
