package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/voice-redaction-lab/internal/config"
	"github.com/voice-redaction-lab/internal/logging"
	"github.com/voice-redaction-lab/internal/mcpserver"
	"github.com/voice-redaction-lab/internal/pipeline"
)

func main() {
	sugar := logging.Init()
	if sugar == nil {
		l, _ := zap.NewProduction()
		sugar = l.Sugar()
		logging.SetLogger(sugar)
	}
	defer func() { _ = logging.Sync() }()

	flags := pflag.NewFlagSet("mcp-server", pflag.ExitOnError)
	cfgPath := flags.StringP("config", "c", "", "optional YAML config file")
	flags.String("addr", "", "listen address")
	flags.String("detector-url", "", "detection service websocket URL")
	flags.String("out-dir", "", "directory for redacted output")
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.Load(*cfgPath, flags)
	if err != nil {
		logging.FatalExitf("config load failed", "err", err)
	}
	// PORT is honoured for container platforms that inject it.
	if port := os.Getenv("PORT"); port != "" {
		cfg.MCP.Addr = ":" + port
	}

	server := mcpserver.NewServer(mcpserver.Options{
		Runner:    pipeline.New(cfg.Detector.ClientConfig()),
		OutputDir: cfg.Output.Dir,
		Defaults:  cfg.Replacement.Params(),
	})
	serveCtx, cancelSessions := context.WithCancel(context.Background())
	defer cancelSessions()
	httpSrv := &http.Server{
		Addr:              cfg.MCP.Addr,
		Handler:           mcpserver.Handler(serveCtx, server),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		sugar.Infow("mcp server listening", "addr", cfg.MCP.Addr, "detector", cfg.Detector.URL)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.FatalExitf("listen failed", "addr", cfg.MCP.Addr, "err", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	sugar.Infow("shutdown signal received, closing server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		sugar.Warnw("http shutdown error", "err", err)
	}
	cancelSessions()
}
