// ABOUTME: Serializes generation per session and invokes the engine, sync or streaming.
// ABOUTME: Lock release is unconditional on every exit path, including engine panics.

package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/inferd/inferd/internal/engine"
	"github.com/inferd/inferd/internal/session"
)

// Request is one generation request as seen by the dispatcher. Tools apply
// only when this request ends up creating the session's conversation.
type Request struct {
	Messages []engine.Message
	Prompt   string
	Sampling engine.Sampling
	Tools    []engine.Tool
}

// Dispatcher routes requests to their session's conversation, holding the
// session lock across the whole operation. Each operation acquires exactly
// one lock and never a second, so cross-session deadlock is structurally
// impossible.
type Dispatcher struct {
	registry *session.Registry
	engine   engine.Engine
	timeout  time.Duration
	logger   *slog.Logger
}

// New creates a dispatcher. A zero timeout disables the per-generation
// deadline.
func New(registry *session.Registry, eng engine.Engine, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		registry: registry,
		engine:   eng,
		timeout:  timeout,
		logger:   logger.With("component", "dispatch"),
	}
}

// Generate runs one synchronous generation for sessionID. It blocks until
// the session's lock is available, ensures a conversation exists, and
// returns the full text.
func (d *Dispatcher) Generate(ctx context.Context, sessionID string, req Request) (*engine.Result, error) {
	if !d.engine.Loaded() {
		return nil, engine.ErrModelNotLoaded
	}

	s := d.registry.Acquire(sessionID)
	s.Lock()
	defer s.Unlock()

	conv, err := s.Conversation(ctx, d.engine, req.Tools)
	if err != nil {
		return nil, fmt.Errorf("creating conversation: %w", err)
	}

	ctx, cancel := d.deadline(ctx)
	defer cancel()

	start := time.Now()
	res, err := d.safeGenerate(ctx, conv, req)
	if err != nil {
		d.logger.Warn("generation failed", "session_id", sessionID, "error", err)
		return nil, err
	}
	d.logger.Debug("generation complete",
		"session_id", sessionID,
		"elapsed", time.Since(start),
		"completion_tokens", res.Usage.CompletionTokens,
	)
	return res, nil
}

// GenerateStream starts a streaming generation for sessionID and returns a
// pipe of ordered frames. The session lock is held for the full duration of
// the stream and released by the producing goroutine when the engine
// finishes, fails, or the consumer disconnects after the final frame.
func (d *Dispatcher) GenerateStream(ctx context.Context, sessionID string, req Request) (*Pipe, error) {
	if !d.engine.Loaded() {
		return nil, engine.ErrModelNotLoaded
	}

	s := d.registry.Acquire(sessionID)
	s.Lock()

	conv, err := s.Conversation(ctx, d.engine, req.Tools)
	if err != nil {
		s.Unlock()
		return nil, fmt.Errorf("creating conversation: %w", err)
	}

	p := NewPipe(64)

	go func() {
		defer s.Unlock()

		ctx, cancel := d.deadline(ctx)
		defer cancel()

		res, err := d.safeGenerateStream(ctx, conv, req, func(token string) {
			// A false push means the consumer went away. The engine keeps
			// generating (no cancellation signal exists); later tokens are
			// dropped here.
			p.push(Frame{Delta: token})
		})
		if err != nil {
			d.logger.Warn("stream failed", "session_id", sessionID, "error", err)
			p.fail(err)
			return
		}
		p.finish(res.FinishReason)
	}()

	return p, nil
}

// Release detaches the session's conversation and hands it back to the
// engine once any in-flight generation has finished. Called after registry
// deletion, off the request path.
func (d *Dispatcher) Release(s *session.Session) {
	go func() {
		s.Lock()
		conv := s.TakeConversation()
		s.Unlock()
		if conv != nil {
			d.engine.ReleaseConversation(conv)
		}
	}()
}

func (d *Dispatcher) deadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d.timeout)
}

// safeGenerate converts engine panics into errors so no fault can skip the
// deferred lock release above.
func (d *Dispatcher) safeGenerate(ctx context.Context, conv engine.Conversation, req Request) (res *engine.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("engine fault: %v", r)
		}
	}()
	return d.engine.Generate(ctx, conv, engine.Request{
		Messages: req.Messages,
		Prompt:   req.Prompt,
		Sampling: req.Sampling,
	})
}

func (d *Dispatcher) safeGenerateStream(ctx context.Context, conv engine.Conversation, req Request, onToken func(string)) (res *engine.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("engine fault: %v", r)
		}
	}()
	return d.engine.GenerateStream(ctx, conv, engine.Request{
		Messages: req.Messages,
		Prompt:   req.Prompt,
		Sampling: req.Sampling,
	}, onToken)
}
