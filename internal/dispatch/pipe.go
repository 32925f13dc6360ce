// ABOUTME: Bounded ordered pipe from an engine token callback to a protocol writer.
// ABOUTME: Producer blocks on a full buffer; consumer disconnect stops further feeding.

package dispatch

import (
	"sync"
)

// Frame is one unit of streamed output. Content frames carry a non-empty
// Delta; the single terminal frame carries an empty Delta and a FinishReason.
type Frame struct {
	Delta        string
	FinishReason string
}

// Pipe moves frames from one producer (the engine's token callback) to one
// consumer (the SSE writer) in strict production order. The buffer is
// bounded: a slow consumer blocks the producer rather than dropping frames.
//
// Closing from the consumer side signals the producer to stop feeding.
// Engine-side computation already in flight is not cancelled; it runs to
// completion and its frames are discarded.
type Pipe struct {
	frames chan Frame

	closeOnce sync.Once
	closed    chan struct{}

	// err is written by the producer before frames is closed and read by the
	// consumer after; the channel close orders the two.
	err error
}

// NewPipe creates a pipe buffering up to size frames.
func NewPipe(size int) *Pipe {
	if size <= 0 {
		size = 1
	}
	return &Pipe{
		frames: make(chan Frame, size),
		closed: make(chan struct{}),
	}
}

// Frames is the consumer side. The channel closes after the terminal frame,
// or without one if the generation failed mid-stream.
func (p *Pipe) Frames() <-chan Frame { return p.frames }

// Close signals consumer disconnect. Safe to call multiple times and
// concurrently with the producer.
func (p *Pipe) Close() {
	p.closeOnce.Do(func() { close(p.closed) })
}

// Err reports the generation error, if any. Valid only after Frames is
// drained.
func (p *Pipe) Err() error { return p.err }

// push delivers one frame, blocking while the buffer is full. Returns false
// once the consumer has disconnected.
func (p *Pipe) push(f Frame) bool {
	select {
	case <-p.closed:
		return false
	default:
	}
	select {
	case p.frames <- f:
		return true
	case <-p.closed:
		return false
	}
}

// finish emits the terminal frame and closes the stream.
func (p *Pipe) finish(reason string) {
	p.push(Frame{FinishReason: reason})
	close(p.frames)
}

// fail records the error and closes the stream with no terminal frame.
// Frames already delivered are not retracted.
func (p *Pipe) fail(err error) {
	p.err = err
	close(p.frames)
}
