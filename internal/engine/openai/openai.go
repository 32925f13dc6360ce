// ABOUTME: Engine adapter for OpenAI-compatible backends (llama.cpp server, LM Studio, hosted API).
// ABOUTME: Keeps per-conversation dialogue history locally since the wire protocol is stateless.

package openai

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/inferd/inferd/internal/engine"
)

// Options configure the adapter.
type Options struct {
	// Model is the backend model identifier. Required.
	Model string
	// BaseURL points at an OpenAI-compatible server. Empty means the hosted API.
	BaseURL string
	// APIKey is sent as a bearer token. Local backends usually ignore it.
	APIKey string
}

// Engine adapts the OpenAI Chat Completions API to the engine.Engine
// interface. The remote protocol has no conversation state, so each
// conversation handle carries its own accumulated message history; the
// session lock above us guarantees a handle is never appended to
// concurrently.
type Engine struct {
	client *openai.Client
	opts   Options
	logger *slog.Logger
}

// conversation is the opaque handle handed out by CreateConversation.
type conversation struct {
	history  []openai.ChatCompletionMessageParamUnion
	tools    []openai.ChatCompletionToolParam
	released bool
}

// New creates an adapter for the configured backend.
func New(opts Options, logger *slog.Logger) (*Engine, error) {
	if opts.Model == "" {
		return nil, fmt.Errorf("openai engine: model is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	var clientOpts []option.RequestOption
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := openai.NewClient(clientOpts...)

	return &Engine{
		client: &client,
		opts:   opts,
		logger: logger.With("component", "engine", "backend", "openai"),
	}, nil
}

// CreateConversation starts a fresh dialogue, binding the tool set for its
// whole lifetime.
func (e *Engine) CreateConversation(ctx context.Context, tools []engine.Tool) (engine.Conversation, error) {
	conv := &conversation{}
	for _, t := range tools {
		conv.tools = append(conv.tools, openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        t.Name,
				Description: openai.String(t.Description),
				Parameters:  t.Parameters,
			},
		})
	}
	e.logger.Debug("conversation created", "tools", len(tools))
	return conv, nil
}

// Generate runs one synchronous completion and folds the exchange into the
// conversation history.
func (e *Engine) Generate(ctx context.Context, conv engine.Conversation, req engine.Request) (*engine.Result, error) {
	c, err := e.conv(conv)
	if err != nil {
		return nil, err
	}

	params := e.buildParams(c, req)
	resp, err := e.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai completion: no choices returned")
	}

	choice := resp.Choices[0]
	c.history = append(params.Messages, openai.AssistantMessage(choice.Message.Content))

	return &engine.Result{
		Text:         choice.Message.Content,
		FinishReason: normalizeFinishReason(choice.FinishReason),
		Usage: engine.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
		},
	}, nil
}

// GenerateStream runs one streaming completion, invoking onToken for each
// content delta in arrival order.
func (e *Engine) GenerateStream(ctx context.Context, conv engine.Conversation, req engine.Request, onToken func(token string)) (*engine.Result, error) {
	c, err := e.conv(conv)
	if err != nil {
		return nil, err
	}

	params := e.buildParams(c, req)
	stream := e.client.Chat.Completions.NewStreaming(ctx, params)

	var full []byte
	finishReason := "stop"
	var usage engine.Usage
	for stream.Next() {
		chunk := stream.Current()
		if chunk.Usage.CompletionTokens > 0 || chunk.Usage.PromptTokens > 0 {
			usage.PromptTokens = int(chunk.Usage.PromptTokens)
			usage.CompletionTokens = int(chunk.Usage.CompletionTokens)
		}
		for _, choice := range chunk.Choices {
			if choice.Delta.Content != "" {
				full = append(full, choice.Delta.Content...)
				onToken(choice.Delta.Content)
			}
			if choice.FinishReason != "" {
				finishReason = normalizeFinishReason(choice.FinishReason)
			}
		}
	}
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("openai streaming: %w", err)
	}

	text := string(full)
	c.history = append(params.Messages, openai.AssistantMessage(text))

	return &engine.Result{
		Text:         text,
		FinishReason: finishReason,
		Usage:        usage,
	}, nil
}

// ReleaseConversation drops the handle's history. Further use of the handle
// fails with ErrConversationReleased.
func (e *Engine) ReleaseConversation(conv engine.Conversation) {
	if c, ok := conv.(*conversation); ok {
		c.history = nil
		c.tools = nil
		c.released = true
	}
}

// Loaded reports true once the adapter is constructed; the backend owns the
// actual model lifecycle and generation surfaces its failures.
func (e *Engine) Loaded() bool { return true }

// ModelID returns the configured backend model identifier.
func (e *Engine) ModelID() string { return e.opts.Model }

func (e *Engine) conv(conv engine.Conversation) (*conversation, error) {
	c, ok := conv.(*conversation)
	if !ok {
		return nil, fmt.Errorf("openai engine: foreign conversation handle %T", conv)
	}
	if c.released {
		return nil, engine.ErrConversationReleased
	}
	return c, nil
}

// buildParams assembles the wire parameters from the conversation history
// plus the request's turns. The history itself is left untouched; callers
// commit params.Messages back to the conversation only once the backend call
// succeeds, so a failed generation is not replayed twice on retry.
func (e *Engine) buildParams(c *conversation, req engine.Request) openai.ChatCompletionNewParams {
	messages := append([]openai.ChatCompletionMessageParamUnion(nil), c.history...)
	if req.Prompt != "" {
		messages = append(messages, openai.UserMessage(req.Prompt))
	}
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			messages = append(messages, openai.SystemMessage(m.Content))
		case "assistant":
			messages = append(messages, openai.AssistantMessage(m.Content))
		default:
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    e.opts.Model,
		Messages: messages,
	}
	if len(c.tools) > 0 {
		params.Tools = c.tools
	}
	s := req.Sampling
	if s.Temperature != 0 {
		params.Temperature = openai.Float(s.Temperature)
	}
	if s.TopP != 0 {
		params.TopP = openai.Float(s.TopP)
	}
	if s.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(s.MaxTokens))
	}
	if len(s.Stop) > 0 {
		params.Stop = openai.ChatCompletionNewParamsStopUnion{OfStringArray: s.Stop}
	}
	return params
}

// normalizeFinishReason folds backend-specific reasons into the two values
// this gateway reports.
func normalizeFinishReason(reason string) string {
	if reason == "length" {
		return "length"
	}
	return "stop"
}
