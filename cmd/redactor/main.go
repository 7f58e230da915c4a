package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/voice-redaction-lab/internal/audio"
	"github.com/voice-redaction-lab/internal/config"
	"github.com/voice-redaction-lab/internal/logging"
	"github.com/voice-redaction-lab/internal/pipeline"
	"github.com/voice-redaction-lab/internal/transcribe"
)

func main() {
	sugar := logging.Init()
	if sugar == nil {
		l, _ := zap.NewProduction()
		sugar = l.Sugar()
		logging.SetLogger(sugar)
	}
	defer func() { _ = logging.Sync() }()

	flags := pflag.NewFlagSet("redactor", pflag.ExitOnError)
	in := flags.StringP("in", "i", "", "input recording (WAV or Ogg/Opus)")
	cfgPath := flags.StringP("config", "c", "", "optional YAML config file")
	flags.String("detector-url", "", "detection service websocket URL")
	flags.String("method", "", "replacement method: beep or silence")
	flags.String("timbre", "", "tone timbre: beep, chime, soft or gentle")
	flags.Float64("frequency", 0, "tone frequency in Hz")
	flags.Float64("duration", 0, "synthesized tone length in seconds")
	flags.Float64("volume", 0, "tone volume between 0 and 1")
	flags.String("out-dir", "", "directory for the redacted wav and its JSON sidecar")
	_ = flags.Parse(os.Args[1:])

	if *in == "" && flags.NArg() > 0 {
		*in = flags.Arg(0)
	}
	if *in == "" {
		logging.FatalExitf("an input file is required (--in or first argument)")
	}

	cfg, err := config.Load(*cfgPath, flags)
	if err != nil {
		logging.FatalExitf("config load failed", "err", err)
	}
	sugar.Infow("configuration loaded", "detector", cfg.Detector.URL, "method", cfg.Replacement.Method, "out_dir", cfg.Output.Dir)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := pipeline.New(cfg.Detector.ClientConfig())
	res, err := p.RunFile(ctx, *in, cfg.Replacement.Params())
	if err != nil {
		switch {
		case errors.Is(err, audio.ErrAudioFormat):
			sugar.Errorw("unsupported input audio", "path", *in, "err", err)
		case errors.Is(err, transcribe.ErrChannelConnect), errors.Is(err, transcribe.ErrChannelSend):
			sugar.Errorw("detection channel failed", "err", err)
		case errors.Is(err, context.Canceled):
			sugar.Warnw("interrupted", "err", err)
		default:
			sugar.Errorw("redaction failed", "err", err)
		}
		_ = logging.Sync()
		os.Exit(1)
	}

	arts, err := pipeline.WriteResult(cfg.Output.Dir, res)
	if err != nil {
		sugar.Errorw("saving output failed", "err", err)
		_ = logging.Sync()
		os.Exit(1)
	}
	sugar.Infow("redaction complete",
		"redaction.id", res.ID,
		"entities", len(res.Entities),
		"redacted_transcript", res.RedactedTranscript,
		"wav_path", arts.WavPath,
		"sidecar_path", arts.SidecarPath,
	)
}
