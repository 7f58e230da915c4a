package transcribe

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/looplab/fsm"
	"golang.org/x/sync/errgroup"

	"github.com/voice-redaction-lab/internal/logging"
)

// State is a lifecycle stage of a Client.
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateStreaming  State = "streaming"
	StateDraining   State = "draining"
	StateClosed     State = "closed"
	StateFailed     State = "failed"
)

const (
	evConnect   = "connect"
	evConnected = "connected"
	evDrain     = "drain"
	evClose     = "close"
	evFail      = "fail"
)

// ClientStats are per-session counters.
type ClientStats struct {
	ChunksSent     int64 `json:"chunks_sent"`
	BytesSent      int64 `json:"bytes_sent"`
	EventsReceived int64 `json:"events_received"`
	Malformed      int64 `json:"malformed_events"`
	DrainTimedOut  bool  `json:"drain_timed_out"`
}

// Client streams one PCM recording to the detector at real-time pace and
// aggregates the entity events that come back. A Client is single use.
type Client struct {
	cfg       Config
	dialer    Dialer
	clock     Clock
	agg       *Aggregator
	machine   *fsm.FSM
	sessionID string

	draining       atomic.Bool
	drainTimedOut  atomic.Bool
	chunksSent     atomic.Int64
	bytesSent      atomic.Int64
	eventsReceived atomic.Int64
	malformed      atomic.Int64
}

type Option func(*Client)

func WithDialer(d Dialer) Option { return func(c *Client) { c.dialer = d } }

func WithClock(clk Clock) Option { return func(c *Client) { c.clock = clk } }

func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Client{
		cfg:       cfg,
		clock:     realClock{},
		sessionID: uuid.NewString(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.dialer == nil {
		c.dialer = NewWebSocketDialer(cfg.HandshakeTimeout)
	}
	if c.agg == nil {
		c.agg = NewAggregator()
	}
	c.machine = fsm.NewFSM(
		string(StateIdle),
		fsm.Events{
			{Name: evConnect, Src: []string{string(StateIdle)}, Dst: string(StateConnecting)},
			{Name: evConnected, Src: []string{string(StateConnecting)}, Dst: string(StateStreaming)},
			{Name: evDrain, Src: []string{string(StateStreaming)}, Dst: string(StateDraining)},
			{Name: evClose, Src: []string{string(StateDraining)}, Dst: string(StateClosed)},
			{Name: evFail, Src: []string{
				string(StateIdle), string(StateConnecting), string(StateStreaming), string(StateDraining),
			}, Dst: string(StateFailed)},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				logging.Debugw("transcribe: state change", "session.id", c.sessionID, "from", e.Src, "to", e.Dst, "event", e.Event)
			},
		},
	)
	return c, nil
}

func (c *Client) State() State { return State(c.machine.Current()) }

func (c *Client) SessionID() string { return c.sessionID }

// Aggregator exposes the session's aggregation state. It stays readable
// after failures and aborts.
func (c *Client) Aggregator() *Aggregator { return c.agg }

func (c *Client) Stats() ClientStats {
	return ClientStats{
		ChunksSent:     c.chunksSent.Load(),
		BytesSent:      c.bytesSent.Load(),
		EventsReceived: c.eventsReceived.Load(),
		Malformed:      c.malformed.Load(),
		DrainTimedOut:  c.drainTimedOut.Load(),
	}
}

func (c *Client) transition(ctx context.Context, event string) error {
	// the fsm aborts transitions on a cancelled context, so state changes
	// run detached from the caller's.
	if err := c.machine.Event(context.WithoutCancel(ctx), event); err != nil {
		return fmt.Errorf("transcribe: %s from %s: %w", event, c.machine.Current(), err)
	}
	return nil
}

func (c *Client) fail(ctx context.Context, cause error) {
	if err := c.transition(ctx, evFail); err != nil {
		logging.Debugw("transcribe: fail transition rejected", "session.id", c.sessionID, "err", err)
	}
	logging.WarnwCtx(ctx, "transcribe: session failed", "err", cause)
}

// Stream connects, sends pcm as paced fixed-size chunks, signals end of
// input, and waits for the detector to close (bounded by DrainTimeout).
// pcm must already be in cfg.Format. On a send failure or cancellation the
// aggregated results gathered so far remain available via Aggregator.
func (c *Client) Stream(ctx context.Context, pcm []byte) error {
	ctx = logging.WithFields(ctx, logging.SessionFields(c.sessionID)...)
	if err := c.transition(ctx, evConnect); err != nil {
		return err
	}

	endpoint, err := c.cfg.Endpoint()
	if err != nil {
		c.fail(ctx, err)
		return err
	}
	logging.InfowCtx(ctx, "transcribe: connecting", "url", endpoint)
	dctx, cancel := context.WithTimeout(ctx, c.cfg.HandshakeTimeout)
	conn, err := c.dialer.Dial(dctx, endpoint, c.cfg.headers())
	cancel()
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrChannelConnect, err)
		c.fail(ctx, err)
		return err
	}
	defer conn.Close()
	if err := c.transition(ctx, evConnected); err != nil {
		return err
	}

	events := make(chan Event, c.cfg.QueueSize)
	readerDone := make(chan struct{})
	g, gctx := errgroup.WithContext(ctx)

	// unblock the reader when the group winds down or is cancelled
	go func() {
		<-gctx.Done()
		_ = conn.Close()
	}()

	g.Go(func() error {
		defer close(readerDone)
		defer close(events)
		return c.readLoop(gctx, conn, events)
	})
	g.Go(func() error {
		for ev := range events {
			c.agg.OnEvent(ev)
		}
		return nil
	})
	g.Go(func() error {
		if err := c.sendChunks(gctx, conn, pcm); err != nil {
			return err
		}
		return c.drain(gctx, conn, readerDone)
	})

	err = g.Wait()
	stats := c.Stats()
	switch {
	case err == nil:
		if terr := c.transition(ctx, evClose); terr != nil {
			return terr
		}
		agg := c.agg.Stats()
		logging.InfowCtx(ctx, "transcribe: session closed",
			"chunks", stats.ChunksSent, "bytes", stats.BytesSent, "events", stats.EventsReceived,
			"malformed", stats.Malformed, "drain_timed_out", stats.DrainTimedOut,
			"segments", agg.Segments, "partials", agg.Partials, "duplicate_segments", agg.DuplicateSegments,
			"entities", agg.Entities, "duplicate_entities", agg.DuplicateEntities)
		return nil
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		c.fail(ctx, err)
		logging.InfowCtx(ctx, "transcribe: session aborted; partial results retained", "events", stats.EventsReceived)
		return err
	default:
		c.fail(ctx, err)
		return err
	}
}

// Chunks splits pcm into size-byte chunks, zero padding the last one.
func Chunks(pcm []byte, size int) [][]byte {
	if size <= 0 || len(pcm) == 0 {
		return nil
	}
	out := make([][]byte, 0, (len(pcm)+size-1)/size)
	for off := 0; off < len(pcm); off += size {
		chunk := make([]byte, size)
		copy(chunk, pcm[off:])
		out = append(out, chunk)
	}
	return out
}

// sendChunks writes chunk j no earlier than start + j*interval.
func (c *Client) sendChunks(ctx context.Context, conn Conn, pcm []byte) error {
	interval := c.cfg.PacingInterval()
	chunks := Chunks(pcm, c.cfg.ChunkSize)
	logging.InfowCtx(ctx, "transcribe: streaming", "chunks", len(chunks), "interval_ms", interval.Milliseconds())
	start := c.clock.Now()
	for j, chunk := range chunks {
		due := start.Add(time.Duration(j) * interval)
		if err := c.clock.Sleep(ctx, due.Sub(c.clock.Now())); err != nil {
			return err
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: chunk %d: %v", ErrChannelSend, j, err)
		}
		c.chunksSent.Add(1)
		c.bytesSent.Add(int64(len(chunk)))
	}
	return nil
}

// drain sends the empty end-of-input message and waits for the reader to
// see the channel close. A timeout is logged and treated as success.
func (c *Client) drain(ctx context.Context, conn Conn, readerDone <-chan struct{}) error {
	if err := c.transition(ctx, evDrain); err != nil {
		return err
	}
	c.draining.Store(true)
	if err := conn.WriteMessage(websocket.BinaryMessage, []byte{}); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: end of stream: %v", ErrChannelSend, err)
	}
	select {
	case <-readerDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.clock.After(c.cfg.DrainTimeout):
		c.drainTimedOut.Store(true)
		logging.WarnwCtx(ctx, "transcribe: drain timed out; continuing with partial results", "timeout", c.cfg.DrainTimeout)
		_ = conn.Close()
		<-readerDone
		return nil
	}
}

func (c *Client) readLoop(ctx context.Context, conn Conn, events chan<- Event) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if c.draining.Load() || ctx.Err() != nil {
				logging.DebugwCtx(ctx, "transcribe: reader finished", "err", err)
				return nil
			}
			return fmt.Errorf("%w: channel closed while streaming: %v", ErrChannelSend, err)
		}
		ev, derr := DecodeEvent(data)
		if derr != nil {
			c.malformed.Add(1)
			logging.WarnwCtx(ctx, "transcribe: skipping malformed event", "err", derr, "bytes", len(data))
			continue
		}
		c.eventsReceived.Add(1)
		if ev.Notice != "" {
			logging.WarnwCtx(ctx, "transcribe: detector notice", "message", ev.Notice)
		}
		if len(ev.Segments) == 0 {
			continue
		}
		select {
		case events <- ev:
		case <-ctx.Done():
			return nil
		}
	}
}
