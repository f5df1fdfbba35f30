// Package streamtee implements the StreamTee primitive (§4.6): one
// upstream byte stream is duplicated into a Live consumer, read by the
// Responder with minimum added latency, and a bounded Capture buffer,
// drained later by the BackgroundWriter. A single goroutine pumps the
// source so that Live's own cancellation never stops Capture from
// draining the rest of the source.
package streamtee

import (
	"errors"
	"io"
	"sync"
)

// ErrOverflow names the condition of Capture exceeding its configured
// byte cap. The Tee itself does not return it; overflow is reported
// through CaptureOverflowed, and Live callers never see it.
var ErrOverflow = errors.New("streamtee: capture overflow")

// capture is the bounded accumulator. It is written from exactly one
// goroutine (the pump) and read from exactly one goroutine (whoever
// calls Bytes/Done after Wait returns), so no locking is required on the
// happy path — the mutex here only guards against a reader racing an
// in-flight pump, e.g. a caller polling Overflowed before Wait returns.
type capture struct {
	mu         sync.Mutex
	buf        []byte
	max        int
	overflowed bool
	done       bool // true once the source ended cleanly (clean EOF)
}

func (c *capture) write(p []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.overflowed {
		return
	}
	if len(c.buf)+len(p) > c.max {
		c.overflowed = true
		c.buf = nil
		return
	}
	c.buf = append(c.buf, p...)
}

func (c *capture) finish(clean bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.done = clean
}

// Bytes returns the captured content. Only meaningful after Wait returns.
func (c *capture) Bytes() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf
}

// Done reports whether the source ended cleanly and Capture did not
// overflow (§4.6: "only 'done'
// captures are eligible for admission").
func (c *capture) Done() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done && !c.overflowed
}

// Overflowed reports whether Capture was abandoned for exceeding its cap.
func (c *capture) Overflowed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.overflowed
}

// Tee fans a single source reader out to a Live pipe and a bounded
// Capture buffer.
type Tee struct {
	pr      *io.PipeReader
	pw      *io.PipeWriter
	capture *capture
	doneCh  chan struct{}
}

// New starts pumping src in a background goroutine and returns a Tee
// whose Live reader and Capture buffer both see every byte of src, in
// order, exactly once. src is expected to be bound to a context carrying
// the overall deadline of §4.6/§5 (BACKGROUND_DEADLINE_MS) — once that
// context expires, src.Read returns an error and the pump finishes.
// maxCaptureBytes bounds Capture's memory; on overflow Capture
// self-abandons without ever blocking Live.
func New(src io.Reader, maxCaptureBytes int) *Tee {
	pr, pw := io.Pipe()
	t := &Tee{
		pr:      pr,
		pw:      pw,
		capture: &capture{max: maxCaptureBytes},
		doneCh:  make(chan struct{}),
	}
	go t.pump(src)
	return t
}

// Live returns the reader the Responder relays to the client. Closing it
// (e.g. on client disconnect) detaches Live from the pump without
// stopping Capture.
func (t *Tee) Live() io.ReadCloser { return t.pr }

// Wait blocks until the source has been fully drained (clean EOF,
// transport error, or context deadline).
func (t *Tee) Wait() { <-t.doneCh }

// CaptureBytes returns everything Capture accumulated. Only meaningful
// after Wait returns.
func (t *Tee) CaptureBytes() []byte { return t.capture.Bytes() }

// CaptureDone reports whether the source ended cleanly and Capture did
// not overflow — the admissibility gate of §4.6.
func (t *Tee) CaptureDone() bool { return t.capture.Done() }

// CaptureOverflowed reports whether Capture was abandoned for size.
func (t *Tee) CaptureOverflowed() bool { return t.capture.Overflowed() }

func (t *Tee) pump(src io.Reader) {
	defer close(t.doneCh)

	// liveClosed short-circuits further attempts to write into the pipe
	// once its reader has gone away (Live cancelled); Capture keeps
	// draining src regardless.
	liveClosed := false
	buf := make([]byte, 32*1024)

	for {
		n, err := src.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			t.capture.write(chunk)
			if !liveClosed {
				if _, werr := t.pw.Write(chunk); werr != nil {
					liveClosed = true
				}
			}
		}
		if err != nil {
			if err == io.EOF {
				t.capture.finish(true)
				t.pw.Close()
			} else {
				t.capture.finish(false)
				t.pw.CloseWithError(err)
			}
			return
		}
	}
}
