// Package dispatch serializes generation per session and bridges engine
// token callbacks to protocol writers.
//
// # Per-operation state machine
//
// Every operation moves through Idle -> Locked -> Generating -> {Completed,
// Failed} -> Unlocked. Terminal states always reach Unlocked: synchronous
// calls release in a defer, streaming calls release in the producing
// goroutine's defer, and engine panics are recovered into errors before
// either defer runs.
//
// # Streaming
//
// GenerateStream returns a Pipe: a bounded channel carrying frames in
// production order. Backpressure propagates to the engine through the
// blocking onToken callback. If the consumer disconnects mid-stream the pipe
// drops subsequent frames, but the engine runs to completion before the
// session lock is released - there is no engine-side cancellation signal.
package dispatch
