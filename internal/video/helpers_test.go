package video

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"
)

const testBoundary = "myboundary"

var testContentType = "multipart/x-mixed-replace; boundary=" + testBoundary

// jpegFrame returns an n-byte frame wrapped in SOI/EOI markers.
func jpegFrame(n int, fill byte) []byte {
	if n < 4 {
		n = 4
	}
	frame := bytes.Repeat([]byte{fill}, n)
	frame[0], frame[1] = jpegMarker, jpegSOI
	frame[n-2], frame[n-1] = jpegMarker, jpegEOI
	return frame
}

// writePart appends one multipart/x-mixed-replace part.
func writePart(buf *bytes.Buffer, frame []byte) {
	fmt.Fprintf(buf, "\r\n--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", testBoundary, len(frame))
	buf.Write(frame)
}

// mjpegBody builds a stream carrying frames. closed ends it with the final
// boundary; otherwise it ends right after the last frame, as a camera does
// between frames.
func mjpegBody(closed bool, frames ...[]byte) []byte {
	var buf bytes.Buffer
	for _, f := range frames {
		writePart(&buf, f)
	}
	if closed {
		fmt.Fprintf(&buf, "\r\n--%s--\r\n", testBoundary)
	}
	return buf.Bytes()
}

// holdReader serves its data and then blocks until ctx is cancelled, like
// a camera that stops sending but keeps the socket open.
type holdReader struct {
	ctx context.Context
	r   io.Reader
}

func (h *holdReader) Read(p []byte) (int, error) {
	if err := h.ctx.Err(); err != nil {
		return 0, err
	}
	n, err := h.r.Read(p)
	if err == io.EOF {
		if n > 0 {
			return n, nil
		}
		<-h.ctx.Done()
		return 0, h.ctx.Err()
	}
	return n, err
}

// endlessReader produces frames until ctx is cancelled.
type endlessReader struct {
	ctx   context.Context
	frame []byte
	buf   bytes.Buffer
}

func (e *endlessReader) Read(p []byte) (int, error) {
	if err := e.ctx.Err(); err != nil {
		return 0, err
	}
	if e.buf.Len() == 0 {
		time.Sleep(time.Millisecond)
		writePart(&e.buf, e.frame)
	}
	return e.buf.Read(p)
}

type connectFunc func(ctx context.Context) (*StreamConn, error)

// streamOf serves frames and then ends the stream.
func streamOf(frames ...[]byte) connectFunc {
	return func(context.Context) (*StreamConn, error) {
		return &StreamConn{
			ContentType: testContentType,
			Body:        io.NopCloser(bytes.NewReader(mjpegBody(true, frames...))),
		}, nil
	}
}

// holdStream serves frames and then stalls until the session is cancelled.
func holdStream(frames ...[]byte) connectFunc {
	return func(ctx context.Context) (*StreamConn, error) {
		return &StreamConn{
			ContentType: testContentType,
			Body:        io.NopCloser(&holdReader{ctx: ctx, r: bytes.NewReader(mjpegBody(false, frames...))}),
		}, nil
	}
}

// endlessStream serves the same frame until the session is cancelled.
func endlessStream(frame []byte) connectFunc {
	return func(ctx context.Context) (*StreamConn, error) {
		return &StreamConn{
			ContentType: testContentType,
			Body:        io.NopCloser(&endlessReader{ctx: ctx, frame: frame}),
		}, nil
	}
}

// refuse fails every attempt like an unreachable camera.
func refuse(context.Context) (*StreamConn, error) {
	return nil, &ConnectionError{Address: "camera", Err: fmt.Errorf("connection refused")}
}

// slowConnect never completes until the attempt is cancelled.
func slowConnect(ctx context.Context) (*StreamConn, error) {
	<-ctx.Done()
	return nil, &ConnectionError{Address: "camera", Err: ctx.Err()}
}

// fakeConnector plays back a script of connect behaviours.
type fakeConnector struct {
	mu       sync.Mutex
	script   []connectFunc
	fallback connectFunc
	times    []time.Time
}

func newFakeConnector(fallback connectFunc, script ...connectFunc) *fakeConnector {
	return &fakeConnector{script: script, fallback: fallback}
}

func (f *fakeConnector) Connect(ctx context.Context, _ string) (*StreamConn, error) {
	f.mu.Lock()
	f.times = append(f.times, time.Now())
	fn := f.fallback
	if len(f.script) > 0 {
		fn = f.script[0]
		f.script = f.script[1:]
	}
	f.mu.Unlock()
	return fn(ctx)
}

func (f *fakeConnector) attempts() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Time(nil), f.times...)
}

// recordingObserver captures lifecycle events.
type recordingObserver struct {
	mu      sync.Mutex
	states  []State
	started []SessionInfo
	ended   []endedSession
}

type endedSession struct {
	info SessionInfo
	err  error
}

func (o *recordingObserver) StateChanged(_, to State) {
	o.mu.Lock()
	o.states = append(o.states, to)
	o.mu.Unlock()
}

func (o *recordingObserver) SessionStarted(info SessionInfo) {
	o.mu.Lock()
	o.started = append(o.started, info)
	o.mu.Unlock()
}

func (o *recordingObserver) SessionEnded(info SessionInfo, err error) {
	o.mu.Lock()
	o.ended = append(o.ended, endedSession{info: info, err: err})
	o.mu.Unlock()
}

func (o *recordingObserver) endedSessions() []endedSession {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]endedSession(nil), o.ended...)
}

func (o *recordingObserver) sawState(s State) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, st := range o.states {
		if st == s {
			return true
		}
	}
	return false
}

// frameCollector is a subscriber that keeps copies of every record.
type frameCollector struct {
	mu      sync.Mutex
	records []Record
}

func (c *frameCollector) handle(rec *Record) {
	c.mu.Lock()
	c.records = append(c.records, rec.Clone())
	c.mu.Unlock()
}

func (c *frameCollector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

func (c *frameCollector) snapshot() []Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Record(nil), c.records...)
}

// waitFor polls cond until it holds or timeout expires.
func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out after %s waiting for %s", timeout, what)
}

// describedPublisher returns a publisher ready to be supervised.
func describedPublisher() *RecordPublisher {
	return NewRecordPublisher(NewOutputSchema("", 704, 480), NewEncodingDescriptor())
}
