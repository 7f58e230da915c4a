package pipeline

import (
	"fmt"
	"path/filepath"

	"github.com/voice-redaction-lab/internal/audio"
	"github.com/voice-redaction-lab/internal/fileio"
	"github.com/voice-redaction-lab/internal/logging"
)

// Artifacts are the files written for one Result.
type Artifacts struct {
	WavPath     string `json:"wav_path"`
	SidecarPath string `json:"sidecar_path"`
}

type sidecar struct {
	*Result
	WavPath     string  `json:"wav_path"`
	SampleRate  int     `json:"sample_rate"`
	Channels    int     `json:"channels"`
	DurationSec float64 `json:"duration_sec"`
}

// WriteResult stores the redacted audio as <id>_redacted.wav and its
// metadata as <id>.json under dir.
func WriteResult(dir string, r *Result) (Artifacts, error) {
	wav, err := audio.EncodeWAV(r.Audio)
	if err != nil {
		return Artifacts{}, fmt.Errorf("encode redacted wav: %w", err)
	}
	a := Artifacts{
		WavPath:     filepath.Join(dir, r.ID+"_redacted.wav"),
		SidecarPath: filepath.Join(dir, r.ID+".json"),
	}
	if err := fileio.SaveFileAtomic(a.WavPath, wav, 0o644); err != nil {
		return Artifacts{}, err
	}
	sc := sidecar{
		Result:      r,
		WavPath:     a.WavPath,
		SampleRate:  r.Audio.Format.SampleRate,
		Channels:    r.Audio.Format.Channels,
		DurationSec: r.Audio.Duration().Seconds(),
	}
	if err := fileio.SaveJSONAtomic(a.SidecarPath, sc); err != nil {
		return Artifacts{}, err
	}
	logging.Infow("pipeline: artifacts saved", "redaction.id", r.ID, "wav_path", a.WavPath, "sidecar_path", a.SidecarPath)
	return a, nil
}
