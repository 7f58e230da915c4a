package pipeline

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/voice-redaction-lab/internal/audio"
	"github.com/voice-redaction-lab/internal/logging"
	"github.com/voice-redaction-lab/internal/redact"
	"github.com/voice-redaction-lab/internal/transcribe"
)

// Streamer is one detection session. *transcribe.Client satisfies it.
type Streamer interface {
	Stream(ctx context.Context, pcm []byte) error
	Aggregator() *transcribe.Aggregator
	SessionID() string
}

// StreamerFactory returns a fresh Streamer per run.
type StreamerFactory func() (Streamer, error)

// Pipeline turns recorded audio into a redacted copy plus the detected
// entities.
type Pipeline struct {
	detectorFormat audio.Format
	newStreamer    StreamerFactory
}

// New builds a Pipeline that opens a transcribe.Client per run.
func New(cfg transcribe.Config, opts ...transcribe.Option) *Pipeline {
	return NewWithFactory(cfg.Format, func() (Streamer, error) {
		return transcribe.NewClient(cfg, opts...)
	})
}

func NewWithFactory(detectorFormat audio.Format, f StreamerFactory) *Pipeline {
	return &Pipeline{detectorFormat: detectorFormat, newStreamer: f}
}

type Result struct {
	ID                 string              `json:"id"`
	SessionID          string              `json:"session_id"`
	Source             string              `json:"source,omitempty"`
	CreatedAt          time.Time           `json:"created_at"`
	Audio              audio.Buffer        `json:"-"`
	Transcript         string              `json:"transcript"`
	RedactedTranscript string              `json:"redacted_transcript"`
	Entities           []transcribe.Entity `json:"entities"`
	Intervals          []redact.Interval   `json:"intervals"`
	Params             ReplacementParams   `json:"params"`
}

// Run streams in to the detector, then splices replacement audio over every
// detected entity. The returned audio keeps in's rate and channel layout at
// 16 bits.
func (p *Pipeline) Run(ctx context.Context, in audio.Buffer, params ReplacementParams) (*Result, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	id := uuid.NewString()
	ctx = logging.WithFields(ctx, "redaction.id", id)
	logging.InfowCtx(ctx, "pipeline: run started",
		append(logging.FormatFields(in.Format.SampleRate, in.Format.Channels, in.Format.BitDepth),
			"method", params.Method, "timbre", params.Timbre)...)

	detectorAudio, err := audio.Normalize(in, p.detectorFormat)
	if err != nil {
		return nil, fmt.Errorf("normalize for detector: %w", err)
	}
	spliceAudio, err := audio.ToPCM16(in)
	if err != nil {
		return nil, fmt.Errorf("normalize for splicing: %w", err)
	}

	// The tone is built before streaming so bad parameters fail before any
	// network use.
	mode := redact.SilenceMode()
	if params.Method == MethodBeep {
		w, err := redact.Synthesize(redact.ParseTimbre(params.Timbre), params.Frequency, params.Duration, params.Volume, spliceAudio.Format)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
		}
		mode = redact.ToneMode(w)
	}

	s, err := p.newStreamer()
	if err != nil {
		return nil, fmt.Errorf("create detection session: %w", err)
	}
	ctx = logging.WithFields(ctx, logging.SessionFields(s.SessionID())...)
	if err := s.Stream(ctx, detectorAudio.Data); err != nil {
		logging.ErrorwCtx(ctx, "pipeline: detection failed", "err", err)
		return nil, err
	}
	transcript, entities, intervals := s.Aggregator().Finalize()

	for _, iv := range intervals {
		logging.DebugwCtx(ctx, "pipeline: redacting", logging.IntervalFields(iv.Start, iv.End)...)
	}
	redacted := redact.Redact(spliceAudio, intervals, mode)

	res := &Result{
		ID:                 id,
		SessionID:          s.SessionID(),
		CreatedAt:          time.Now().UTC(),
		Audio:              redacted,
		Transcript:         transcript,
		RedactedTranscript: MaskTranscript(transcript, entities),
		Entities:           entities,
		Intervals:          intervals,
		Params:             params,
	}
	logging.InfowCtx(ctx, "pipeline: run finished", "entities", len(entities), "mode", mode.String(),
		"duration_ms", redacted.Duration().Milliseconds())
	return res, nil
}

// RunFile decodes a WAV or Ogg/Opus file and runs it. Decode failures are
// reported before any connection is attempted.
func (p *Pipeline) RunFile(ctx context.Context, path string, params ReplacementParams) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	in, err := audio.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	res, err := p.Run(ctx, in, params)
	if err != nil {
		return nil, err
	}
	res.Source = path
	return res, nil
}
