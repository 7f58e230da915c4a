// Package mcpserver exposes audio redaction as an MCP tool reachable over
// a websocket endpoint.
package mcpserver

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/voice-redaction-lab/internal/logging"
	"github.com/voice-redaction-lab/internal/pipeline"
	"github.com/voice-redaction-lab/internal/redact"
	"github.com/voice-redaction-lab/internal/transcribe"
)

const ToolName = "redact_audio"

// Runner executes one redaction. *pipeline.Pipeline satisfies it.
type Runner interface {
	RunFile(ctx context.Context, path string, params pipeline.ReplacementParams) (*pipeline.Result, error)
}

type Options struct {
	Runner    Runner
	OutputDir string
	Defaults  pipeline.ReplacementParams
	Version   string
}

type RedactInput struct {
	Path      string   `json:"path" jsonschema:"path to a WAV or Ogg/Opus recording readable by the server"`
	Method    string   `json:"method,omitempty" jsonschema:"beep or silence"`
	Timbre    string   `json:"timbre,omitempty" jsonschema:"tone colour which is one of beep or chime or soft or gentle"`
	Frequency float64  `json:"frequency,omitempty" jsonschema:"tone frequency in Hz"`
	Duration  float64  `json:"duration,omitempty" jsonschema:"length of the synthesized tone in seconds"`
	Volume    *float64 `json:"volume,omitempty" jsonschema:"tone volume between 0 and 1"`
}

type RedactOutput struct {
	ID                 string              `json:"id"`
	WavPath            string              `json:"wav_path"`
	SidecarPath        string              `json:"sidecar_path"`
	RedactedTranscript string              `json:"redacted_transcript"`
	Entities           []transcribe.Entity `json:"entities"`
	Intervals          []redact.Interval   `json:"intervals"`
}

// params overlays the caller's choices on the configured defaults.
func (in RedactInput) params(defaults pipeline.ReplacementParams) pipeline.ReplacementParams {
	p := defaults
	if in.Method != "" {
		p.Method = pipeline.Method(strings.ToLower(in.Method))
	}
	if in.Timbre != "" {
		p.Timbre = in.Timbre
	}
	if in.Frequency != 0 {
		p.Frequency = in.Frequency
	}
	if in.Duration != 0 {
		p.Duration = in.Duration
	}
	if in.Volume != nil {
		p.Volume = *in.Volume
	}
	return p
}

type tool struct{ opts Options }

func (t *tool) handle(ctx context.Context, _ *mcp.CallToolRequest, in RedactInput) (*mcp.CallToolResult, RedactOutput, error) {
	if strings.TrimSpace(in.Path) == "" {
		return nil, RedactOutput{}, fmt.Errorf("path is required")
	}
	params := in.params(t.opts.Defaults)
	logging.Infow("mcp: redact_audio called", "path", in.Path, "method", params.Method)
	res, err := t.opts.Runner.RunFile(ctx, in.Path, params)
	if err != nil {
		logging.Warnw("mcp: redact_audio failed", "path", in.Path, "err", err)
		return nil, RedactOutput{}, err
	}
	arts, err := pipeline.WriteResult(t.opts.OutputDir, res)
	if err != nil {
		return nil, RedactOutput{}, err
	}
	out := RedactOutput{
		ID:                 res.ID,
		WavPath:            arts.WavPath,
		SidecarPath:        arts.SidecarPath,
		RedactedTranscript: res.RedactedTranscript,
		Entities:           res.Entities,
		Intervals:          res.Intervals,
	}
	if out.Entities == nil {
		out.Entities = []transcribe.Entity{}
	}
	if out.Intervals == nil {
		out.Intervals = []redact.Interval{}
	}
	summary := fmt.Sprintf("redacted %d entities; audio written to %s", len(out.Entities), out.WavPath)
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: summary}}}, out, nil
}

// NewServer returns an MCP server with the redact_audio tool registered.
func NewServer(opts Options) *mcp.Server {
	if opts.Version == "" {
		opts.Version = "v0.1.0"
	}
	server := mcp.NewServer(&mcp.Implementation{Name: "audio-redactor", Version: opts.Version}, nil)
	t := &tool{opts: opts}
	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolName,
		Description: "Detect sensitive entities in a recording and write a copy with them masked by a tone or silence",
	}, t.handle)
	return server
}

// Handler serves /health and bridges each websocket on /mcp/ws into a
// server session. Sessions run on ctx and are closed when it is cancelled;
// http.Server.Shutdown does not track hijacked connections.
func Handler(ctx context.Context, server *mcp.Server) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	upgrader := websocket.Upgrader{}
	mux.HandleFunc("/mcp/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logging.Warnw("mcp: websocket upgrade failed", "err", err, "remote", r.RemoteAddr)
			return
		}
		remote := r.RemoteAddr
		go func() {
			session, err := server.Connect(ctx, NewWebSocketTransport(conn), nil)
			if err != nil {
				logging.Errorw("mcp: server connect failed", "err", err)
				_ = conn.Close()
				return
			}
			stop := context.AfterFunc(ctx, func() { _ = session.Close() })
			defer stop()
			logging.Infow("mcp: session started", "remote", remote)
			if err := session.Wait(); err != nil {
				logging.Infow("mcp: session ended", "remote", remote, "err", err)
				return
			}
			logging.Infow("mcp: session ended", "remote", remote)
		}()
	})
	return mux
}
