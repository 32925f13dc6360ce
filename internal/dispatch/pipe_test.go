// ABOUTME: Tests for the bounded frame pipe: blocking push, disconnect, and close semantics.

package dispatch

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushBlocksWhenBufferFull(t *testing.T) {
	p := NewPipe(2)
	require.True(t, p.push(Frame{Delta: "a"}))
	require.True(t, p.push(Frame{Delta: "b"}))

	blocked := make(chan bool, 1)
	go func() {
		blocked <- p.push(Frame{Delta: "c"})
	}()

	select {
	case <-blocked:
		t.Fatal("push returned while buffer was full")
	case <-time.After(20 * time.Millisecond):
	}

	// Draining one frame unblocks the producer.
	assert.Equal(t, "a", (<-p.Frames()).Delta)
	assert.True(t, <-blocked)
}

func TestCloseUnblocksProducer(t *testing.T) {
	p := NewPipe(1)
	require.True(t, p.push(Frame{Delta: "a"}))

	blocked := make(chan bool, 1)
	go func() {
		blocked <- p.push(Frame{Delta: "b"})
	}()

	p.Close()
	select {
	case ok := <-blocked:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("push did not observe consumer disconnect")
	}
	assert.False(t, p.push(Frame{Delta: "c"}))
}

func TestFinishEmitsTerminalThenCloses(t *testing.T) {
	p := NewPipe(4)
	p.push(Frame{Delta: "hi"})
	p.finish("stop")

	f, ok := <-p.Frames()
	require.True(t, ok)
	assert.Equal(t, "hi", f.Delta)

	f, ok = <-p.Frames()
	require.True(t, ok)
	assert.Equal(t, "", f.Delta)
	assert.Equal(t, "stop", f.FinishReason)

	_, ok = <-p.Frames()
	assert.False(t, ok)
	assert.NoError(t, p.Err())
}

func TestFailClosesWithoutTerminal(t *testing.T) {
	p := NewPipe(4)
	p.push(Frame{Delta: "partial"})
	p.fail(errors.New("engine died"))

	f, ok := <-p.Frames()
	require.True(t, ok)
	assert.Equal(t, "partial", f.Delta)

	_, ok = <-p.Frames()
	assert.False(t, ok)
	require.Error(t, p.Err())
}

func TestCloseIsIdempotent(t *testing.T) {
	p := NewPipe(1)
	p.Close()
	p.Close()
	assert.False(t, p.push(Frame{Delta: "x"}))
}
