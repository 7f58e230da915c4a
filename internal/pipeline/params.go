package pipeline

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/voice-redaction-lab/internal/redact"
)

var ErrInvalidParams = errors.New("invalid redaction parameters")

type Method string

const (
	MethodBeep    Method = "beep"
	MethodSilence Method = "silence"
)

// ReplacementParams controls what redacted spans are filled with. Timbre
// is free-form; unknown names fall back to beep.
type ReplacementParams struct {
	Method    Method  `json:"method" validate:"oneof=beep silence"`
	Timbre    string  `json:"timbre"`
	Frequency float64 `json:"frequency" validate:"gt=0"`
	Duration  float64 `json:"duration" validate:"gt=0,lte=60"`
	Volume    float64 `json:"volume" validate:"gte=0,lte=1"`
}

func DefaultParams() ReplacementParams {
	return ReplacementParams{
		Method:    MethodBeep,
		Timbre:    string(redact.TimbreBeep),
		Frequency: 1000,
		Duration:  0.5,
		Volume:    0.3,
	}
}

var validate = validator.New()

func (p ReplacementParams) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	return nil
}
