package transcribe

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/voice-redaction-lab/internal/audio"
)

// Config is the immutable set of knobs for one streaming client.
type Config struct {
	URL    string `validate:"required"`
	Engine string `validate:"required"`
	// Format is the PCM layout sent to the detector.
	Format           audio.Format
	AppContextHeader string
	AppContext       string
	ChunkSize        int `validate:"gt=0"`
	// ChunkDuration overrides the pacing interval. Zero derives it from
	// ChunkSize and Format.
	ChunkDuration    time.Duration `validate:"gte=0"`
	QueueSize        int           `validate:"gt=0"`
	DrainTimeout     time.Duration `validate:"gt=0"`
	HandshakeTimeout time.Duration `validate:"gt=0"`
}

func DefaultConfig() Config {
	return Config{
		URL:              "ws://localhost:8080/v1/transcribe",
		Engine:           "aws",
		Format:           audio.DetectorFormat,
		AppContextHeader: "x-sfdc-app-context",
		AppContext:       "EinsteinGPT",
		ChunkSize:        2048,
		QueueSize:        64,
		DrainTimeout:     30 * time.Second,
		HandshakeTimeout: 10 * time.Second,
	}
}

func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("transcribe config: %w", err)
	}
	if err := c.Format.Validate(); err != nil {
		return fmt.Errorf("transcribe config: %w", err)
	}
	return nil
}

// PacingInterval is the wall-clock spacing between chunk sends.
func (c Config) PacingInterval() time.Duration {
	if c.ChunkDuration > 0 {
		return c.ChunkDuration
	}
	bytesPerSec := c.Format.SampleRate * c.Format.FrameSize()
	if bytesPerSec == 0 {
		return 0
	}
	return time.Duration(c.ChunkSize) * time.Second / time.Duration(bytesPerSec)
}

// Endpoint returns URL with the stream parameters added to its query.
func (c Config) Endpoint() (string, error) {
	u, err := url.Parse(c.URL)
	if err != nil {
		return "", fmt.Errorf("%w: parse url: %v", ErrChannelConnect, err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	q := u.Query()
	q.Set("engine", c.Engine)
	q.Set("media-encoding", "pcm")
	q.Set("media-sample-rate-hertz", strconv.Itoa(c.Format.SampleRate))
	q.Set("content-redaction-type", "PII")
	q.Set("pii-entity-types", "ALL")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c Config) headers() http.Header {
	h := http.Header{}
	if c.AppContextHeader != "" && c.AppContext != "" {
		h.Set(c.AppContextHeader, c.AppContext)
	}
	return h
}
