// ABOUTME: Engine interface and shared types for pluggable text generation backends.
// ABOUTME: Defines conversations, sampling parameters, tool definitions, and engine errors.

package engine

import (
	"context"
	"errors"
)

// ErrModelNotLoaded indicates the engine has no model available for generation.
var ErrModelNotLoaded = errors.New("model not loaded")

// ErrConversationReleased indicates an operation on a conversation that was
// already handed back to the engine.
var ErrConversationReleased = errors.New("conversation released")

// Message is a single turn in a dialogue.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Tool describes a callable function exposed to the model. Parameters follows
// the JSON Schema shape used by the OpenAI function-calling API. Tools are
// bound to a conversation at creation time; whether and how the engine invokes
// them is entirely up to the engine.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Sampling carries the generation parameters passed through to the engine.
// Zero values mean "engine default".
type Sampling struct {
	Temperature float64
	TopP        float64
	MaxTokens   int
	Stop        []string
}

// Request is one generation request against an existing conversation.
// Either Messages or Prompt is set, never both: chat completions carry
// Messages, legacy text completions carry Prompt.
type Request struct {
	Messages []Message
	Prompt   string
	Sampling Sampling
}

// Usage reports token consumption for one generation.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// Result is the outcome of a completed generation.
type Result struct {
	Text         string
	FinishReason string // "stop" or "length"
	Usage        Usage
}

// Conversation is an opaque handle to engine-owned dialogue state. Callers
// must never touch a conversation without holding its session's lock.
type Conversation interface{}

// Engine is the generation backend boundary. Implementations own
// tokenization, sampling, and dialogue accumulation; this layer only routes
// requests to the right conversation.
//
// GenerateStream invokes onToken once per produced token, in order, from an
// engine-owned goroutine. The callback may block; the engine must not drop
// or reorder tokens around a blocking callback.
type Engine interface {
	CreateConversation(ctx context.Context, tools []Tool) (Conversation, error)
	Generate(ctx context.Context, conv Conversation, req Request) (*Result, error)
	GenerateStream(ctx context.Context, conv Conversation, req Request, onToken func(token string)) (*Result, error)
	ReleaseConversation(conv Conversation)

	// Loaded reports whether a model is ready to serve generations.
	Loaded() bool

	// ModelID returns the identifier advertised on /v1/models.
	ModelID() string
}
