package transcribe

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d > 0 {
		f.mu.Lock()
		f.now = f.now.Add(d)
		f.mu.Unlock()
	}
	return nil
}

func (f *fakeClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

type sentMessage struct {
	at   time.Time
	data []byte
}

// fakeConn replays scripted inbound messages and records outbound ones.
// Writing the empty end-of-stream message closes the inbound side unless
// holdOpen is set.
type fakeConn struct {
	clock     Clock
	inbound   chan []byte
	holdOpen  bool
	failWrite int // 1-based write index that fails; 0 never

	mu        sync.Mutex
	sent      []sentMessage
	closeOnce sync.Once
}

func newFakeConn(clock Clock, messages ...string) *fakeConn {
	c := &fakeConn{clock: clock, inbound: make(chan []byte, len(messages))}
	for _, m := range messages {
		c.inbound <- []byte(m)
	}
	return c
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	n := len(c.sent) + 1
	if c.failWrite > 0 && n == c.failWrite {
		c.mu.Unlock()
		return errors.New("broken pipe")
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	c.sent = append(c.sent, sentMessage{at: c.clock.Now(), data: buf})
	c.mu.Unlock()
	if len(data) == 0 && !c.holdOpen {
		c.closeInbound()
	}
	return nil
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	msg, ok := <-c.inbound
	if !ok {
		return 0, nil, errors.New("connection closed")
	}
	return 1, msg, nil
}

func (c *fakeConn) Close() error {
	c.closeInbound()
	return nil
}

func (c *fakeConn) closeInbound() {
	c.closeOnce.Do(func() { close(c.inbound) })
}

func (c *fakeConn) messages() []sentMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]sentMessage, len(c.sent))
	copy(out, c.sent)
	return out
}

type fakeDialer struct {
	conn   Conn
	err    error
	url    string
	header http.Header
}

func (d *fakeDialer) Dial(_ context.Context, url string, header http.Header) (Conn, error) {
	d.url = url
	d.header = header
	if d.err != nil {
		return nil, d.err
	}
	return d.conn, nil
}

// recordingLogger keeps Infow entries so tests can check log fields.
type recordingLogger struct {
	mu      sync.Mutex
	entries map[string][]interface{}
}

func newRecordingLogger() *recordingLogger {
	return &recordingLogger{entries: make(map[string][]interface{})}
}

func (r *recordingLogger) Infow(msg string, kv ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[msg] = kv
}
func (r *recordingLogger) Debugw(string, ...interface{}) {}
func (r *recordingLogger) Warnw(string, ...interface{})  {}
func (r *recordingLogger) Errorw(string, ...interface{}) {}
func (r *recordingLogger) Fatalw(string, ...interface{}) {}
func (r *recordingLogger) Sync() error                   { return nil }

// field returns the value logged under key for msg.
func (r *recordingLogger) field(msg, key string) (interface{}, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kv := r.entries[msg]
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i] == key {
			return kv[i+1], true
		}
	}
	return nil, false
}
