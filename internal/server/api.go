// ABOUTME: OpenAI-compatible HTTP handlers for chat/text completions, sessions, and models.
// ABOUTME: Streams responses over SSE and persists completions on request.

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/inferd/inferd/internal/dispatch"
	"github.com/inferd/inferd/internal/engine"
	"github.com/inferd/inferd/internal/session"
	"github.com/inferd/inferd/internal/store"
)

// chatCompletionRequest is the JSON request body for POST /v1/chat/completions.
type chatCompletionRequest struct {
	Model       string           `json:"model"`
	Messages    []engine.Message `json:"messages"`
	Stream      bool             `json:"stream"`
	Store       bool             `json:"store"`
	Metadata    map[string]any   `json:"metadata"`
	Tools       []toolParam      `json:"tools"`
	Temperature float64          `json:"temperature"`
	TopP        float64          `json:"top_p"`
	MaxTokens   int              `json:"max_tokens"`
	Stop        stopList         `json:"stop"`

	// Session routing fields, resolved in priority order.
	ConversationID string `json:"conversation_id"`
	User           string `json:"user"`
	SessionID      string `json:"session_id"`
}

// completionRequest is the JSON request body for POST /v1/completions.
type completionRequest struct {
	Model       string   `json:"model"`
	Prompt      string   `json:"prompt"`
	Stream      bool     `json:"stream"`
	Temperature float64  `json:"temperature"`
	TopP        float64  `json:"top_p"`
	MaxTokens   int      `json:"max_tokens"`
	Stop        stopList `json:"stop"`

	ConversationID string `json:"conversation_id"`
	User           string `json:"user"`
	SessionID      string `json:"session_id"`
}

// toolParam mirrors the OpenAI function tool shape.
type toolParam struct {
	Type     string `json:"type"`
	Function struct {
		Name        string         `json:"name"`
		Description string         `json:"description"`
		Parameters  map[string]any `json:"parameters"`
	} `json:"function"`
}

// stopList accepts a single string, an array of strings, or null.
type stopList []string

func (s *stopList) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*s = nil
		return nil
	}
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*s = stopList{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*s = stopList(many)
	return nil
}

type chatMessagePayload struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatChoice struct {
	Index        int                `json:"index"`
	Message      chatMessagePayload `json:"message"`
	FinishReason string             `json:"finish_reason"`
}

type usagePayload struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// chatCompletionResponse is the non-streaming response for chat completions
// and the retrieval shape for stored ones.
type chatCompletionResponse struct {
	ID       string         `json:"id"`
	Object   string         `json:"object"`
	Created  int64          `json:"created"`
	Model    string         `json:"model"`
	Choices  []chatChoice   `json:"choices"`
	Usage    *usagePayload  `json:"usage,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type chunkDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

type chunkChoice struct {
	Index        int        `json:"index"`
	Delta        chunkDelta `json:"delta"`
	FinishReason *string    `json:"finish_reason"`
}

// chatCompletionChunk is one SSE event body for streaming chat completions.
type chatCompletionChunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []chunkChoice `json:"choices"`
}

type textChoice struct {
	Text         string  `json:"text"`
	Index        int     `json:"index"`
	FinishReason *string `json:"finish_reason"`
}

// textCompletionResponse covers both the sync response and stream chunks for
// the legacy completions endpoint.
type textCompletionResponse struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []textChoice  `json:"choices"`
	Usage   *usagePayload `json:"usage,omitempty"`
}

// handleModels handles GET /v1/models.
func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"object": "list",
		"data": []map[string]any{{
			"id":       s.engine.ModelID(),
			"object":   "model",
			"created":  s.started.Unix(),
			"owned_by": s.config.Engine.OwnedBy,
		}},
	})
}

// handleChatCompletions handles POST /v1/chat/completions (generation) and
// GET /v1/chat/completions (stored completion listing).
func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListStoredCompletions(w, r)
	case http.MethodPost:
		s.handleCreateChatCompletion(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleCreateChatCompletion(w http.ResponseWriter, r *http.Request) {
	var req chatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Messages) == 0 {
		s.writeError(w, http.StatusBadRequest, "messages is required")
		return
	}
	if req.Model == "" {
		s.writeError(w, http.StatusBadRequest, "model is required")
		return
	}

	sessionID := session.ResolveID(req.ConversationID, req.User, req.SessionID, r.Header.Get("X-Session-ID"))

	dreq := dispatch.Request{
		Messages: req.Messages,
		Sampling: engine.Sampling{
			Temperature: req.Temperature,
			TopP:        req.TopP,
			MaxTokens:   req.MaxTokens,
			Stop:        req.Stop,
		},
		Tools: toolsFromParams(req.Tools),
	}

	completionID := "chatcmpl-" + uuid.New().String()
	created := time.Now()

	if req.Stream {
		s.streamChatCompletion(w, r, sessionID, completionID, created, &req, dreq)
		return
	}

	res, err := s.dispatcher.Generate(r.Context(), sessionID, dreq)
	if err != nil {
		s.writeGenerationError(w, err)
		return
	}

	if req.Store {
		if err := s.persistCompletion(r.Context(), completionID, created, req.Messages, res.Text, req.Metadata); err != nil {
			s.logger.Error("failed to persist completion", "completion_id", completionID, "error", err)
			s.writeError(w, http.StatusInternalServerError, "failed to store completion")
			return
		}
	}

	writeJSON(w, http.StatusOK, chatCompletionResponse{
		ID:      completionID,
		Object:  "chat.completion",
		Created: created.Unix(),
		Model:   s.engine.ModelID(),
		Choices: []chatChoice{{
			Index:        0,
			Message:      chatMessagePayload{Role: "assistant", Content: res.Text},
			FinishReason: res.FinishReason,
		}},
		Usage: usageFrom(res.Usage),
	})
}

// streamChatCompletion writes the SSE response for a streaming chat request.
// Frames arrive in production order from the pipe; the terminal frame becomes
// the empty-delta finish event, followed by the [DONE] sentinel.
func (s *Server) streamChatCompletion(w http.ResponseWriter, r *http.Request, sessionID, completionID string, created time.Time, req *chatCompletionRequest, dreq dispatch.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// The engine is not cancelled on client disconnect; the pipe stops
	// delivering and the generation runs to completion before the session
	// lock is released.
	pipe, err := s.dispatcher.GenerateStream(context.WithoutCancel(r.Context()), sessionID, dreq)
	if err != nil {
		s.writeGenerationError(w, err)
		return
	}
	defer pipe.Close()

	setSSEHeaders(w)

	var full strings.Builder
	completed := false
	for {
		select {
		case <-r.Context().Done():
			return

		case frame, ok := <-pipe.Frames():
			if !ok {
				if pipe.Err() != nil {
					// Mid-stream failure: terminate without a dedicated
					// error frame. Already-sent frames stand.
					s.logger.Error("stream aborted", "completion_id", completionID, "error", pipe.Err())
					return
				}
				s.writeSSEData(w, "[DONE]")
				flusher.Flush()
				completed = true
			} else if frame.FinishReason != "" {
				s.writeSSEChunk(w, chatCompletionChunk{
					ID:      completionID,
					Object:  "chat.completion.chunk",
					Created: created.Unix(),
					Model:   s.engine.ModelID(),
					Choices: []chunkChoice{{Index: 0, Delta: chunkDelta{}, FinishReason: &frame.FinishReason}},
				})
				flusher.Flush()
			} else {
				full.WriteString(frame.Delta)
				s.writeSSEChunk(w, chatCompletionChunk{
					ID:      completionID,
					Object:  "chat.completion.chunk",
					Created: created.Unix(),
					Model:   s.engine.ModelID(),
					Choices: []chunkChoice{{Index: 0, Delta: chunkDelta{Content: frame.Delta}, FinishReason: nil}},
				})
				flusher.Flush()
			}
		}

		if completed {
			break
		}
	}

	if req.Store {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 5*time.Second)
		defer cancel()
		if err := s.persistCompletion(ctx, completionID, created, req.Messages, full.String(), req.Metadata); err != nil {
			s.logger.Error("failed to persist streamed completion", "completion_id", completionID, "error", err)
		}
	}
}

// handleCompletions handles POST /v1/completions.
func (s *Server) handleCompletions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req completionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Prompt == "" {
		s.writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}
	if req.Model == "" {
		s.writeError(w, http.StatusBadRequest, "model is required")
		return
	}

	sessionID := session.ResolveID(req.ConversationID, req.User, req.SessionID, r.Header.Get("X-Session-ID"))

	dreq := dispatch.Request{
		Prompt: req.Prompt,
		Sampling: engine.Sampling{
			Temperature: req.Temperature,
			TopP:        req.TopP,
			MaxTokens:   req.MaxTokens,
			Stop:        req.Stop,
		},
	}

	completionID := "cmpl-" + uuid.New().String()
	created := time.Now()

	if req.Stream {
		s.streamTextCompletion(w, r, sessionID, completionID, created, dreq)
		return
	}

	res, err := s.dispatcher.Generate(r.Context(), sessionID, dreq)
	if err != nil {
		s.writeGenerationError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, textCompletionResponse{
		ID:      completionID,
		Object:  "text_completion",
		Created: created.Unix(),
		Model:   s.engine.ModelID(),
		Choices: []textChoice{{Text: res.Text, Index: 0, FinishReason: &res.FinishReason}},
		Usage:   usageFrom(res.Usage),
	})
}

func (s *Server) streamTextCompletion(w http.ResponseWriter, r *http.Request, sessionID, completionID string, created time.Time, dreq dispatch.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	pipe, err := s.dispatcher.GenerateStream(context.WithoutCancel(r.Context()), sessionID, dreq)
	if err != nil {
		s.writeGenerationError(w, err)
		return
	}
	defer pipe.Close()

	setSSEHeaders(w)

	for {
		select {
		case <-r.Context().Done():
			return

		case frame, ok := <-pipe.Frames():
			if !ok {
				if pipe.Err() != nil {
					s.logger.Error("stream aborted", "completion_id", completionID, "error", pipe.Err())
					return
				}
				s.writeSSEData(w, "[DONE]")
				flusher.Flush()
				return
			}

			choice := textChoice{Text: frame.Delta, Index: 0, FinishReason: nil}
			if frame.FinishReason != "" {
				reason := frame.FinishReason
				choice = textChoice{Text: "", Index: 0, FinishReason: &reason}
			}
			s.writeSSEChunk(w, textCompletionResponse{
				ID:      completionID,
				Object:  "text_completion",
				Created: created.Unix(),
				Model:   s.engine.ModelID(),
				Choices: []textChoice{choice},
			})
			flusher.Flush()
		}
	}
}

// handleListStoredCompletions handles GET /v1/chat/completions.
func (s *Server) handleListStoredCompletions(w http.ResponseWriter, r *http.Request) {
	completions, err := s.store.List(r.Context(), 100)
	if err != nil {
		s.logger.Error("failed to list completions", "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	data := make([]chatCompletionResponse, 0, len(completions))
	for _, c := range completions {
		data = append(data, storedCompletionResponse(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"object": "list",
		"data":   data,
	})
}

// handleStoredCompletion handles GET/POST /v1/chat/completions/{id},
// DELETE /v1/chat/completions/{id}, and GET /v1/chat/completions/{id}/messages.
func (s *Server) handleStoredCompletion(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/chat/completions/")
	if rest == "" {
		s.writeError(w, http.StatusBadRequest, "completion id is required")
		return
	}

	if id, ok := strings.CutSuffix(rest, "/messages"); ok {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		s.handleCompletionMessages(w, r, id)
		return
	}

	if strings.Contains(rest, "/") {
		s.writeError(w, http.StatusNotFound, "not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.handleGetCompletion(w, r, rest)
	case http.MethodPost:
		s.handleUpdateCompletionMetadata(w, r, rest)
	case http.MethodDelete:
		s.handleDeleteCompletion(w, r, rest)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleGetCompletion(w http.ResponseWriter, r *http.Request, id string) {
	c, err := s.store.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("completion %q not found", id))
		return
	}
	if err != nil {
		s.logger.Error("failed to get completion", "completion_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, storedCompletionResponse(c))
}

func (s *Server) handleUpdateCompletionMetadata(w http.ResponseWriter, r *http.Request, id string) {
	var body struct {
		Metadata map[string]any `json:"metadata"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	c, err := s.store.UpdateMetadata(r.Context(), id, body.Metadata)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("completion %q not found", id))
		return
	}
	if err != nil {
		s.logger.Error("failed to update metadata", "completion_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, storedCompletionResponse(c))
}

func (s *Server) handleDeleteCompletion(w http.ResponseWriter, r *http.Request, id string) {
	deleted, err := s.store.Delete(r.Context(), id)
	if err != nil {
		s.logger.Error("failed to delete completion", "completion_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if !deleted {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("completion %q not found", id))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":      id,
		"object":  "chat.completion.deleted",
		"deleted": true,
	})
}

func (s *Server) handleCompletionMessages(w http.ResponseWriter, r *http.Request, id string) {
	messages, err := s.store.Messages(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("completion %q not found", id))
		return
	}
	if err != nil {
		s.logger.Error("failed to get messages", "completion_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"object": "list",
		"data":   messages,
	})
}

// handleSessions handles GET /v1/sessions (list) and DELETE /v1/sessions
// (clear all).
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		infos := s.registry.List()
		data := make([]map[string]any, 0, len(infos))
		for _, info := range infos {
			data = append(data, map[string]any{
				"id":        info.ID,
				"object":    "session",
				"last_used": info.LastUsed.Unix(),
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"object": "list",
			"data":   data,
			"count":  len(data),
		})

	case http.MethodDelete:
		detached := s.registry.Clear()
		for _, sess := range detached {
			s.dispatcher.Release(sess)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"deleted": true,
			"count":   len(detached),
			"object":  "sessions",
		})

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleSessionByID handles DELETE /v1/sessions/{id}.
func (s *Server) handleSessionByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/sessions/")
	if id == "" || strings.Contains(id, "/") {
		s.writeError(w, http.StatusBadRequest, "session id is required")
		return
	}

	sess, ok := s.registry.Delete(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("session %q not found", id))
		return
	}
	s.dispatcher.Release(sess)

	writeJSON(w, http.StatusOK, map[string]any{
		"deleted": true,
		"id":      id,
		"object":  "session",
	})
}

func (s *Server) persistCompletion(ctx context.Context, id string, created time.Time, messages []engine.Message, response string, metadata map[string]any) error {
	stored := make([]store.Message, len(messages))
	for i, m := range messages {
		stored[i] = store.Message{Role: m.Role, Content: m.Content}
	}
	return s.store.Create(ctx, &store.Completion{
		ID:       id,
		Created:  created,
		Model:    s.engine.ModelID(),
		Messages: stored,
		Response: response,
		Metadata: metadata,
	})
}

func storedCompletionResponse(c *store.Completion) chatCompletionResponse {
	return chatCompletionResponse{
		ID:      c.ID,
		Object:  "chat.completion",
		Created: c.Created.Unix(),
		Model:   c.Model,
		Choices: []chatChoice{{
			Index:        0,
			Message:      chatMessagePayload{Role: "assistant", Content: c.Response},
			FinishReason: "stop",
		}},
		Metadata: c.Metadata,
	}
}

func toolsFromParams(params []toolParam) []engine.Tool {
	if len(params) == 0 {
		return nil
	}
	tools := make([]engine.Tool, 0, len(params))
	for _, p := range params {
		if p.Type != "" && p.Type != "function" {
			continue
		}
		tools = append(tools, engine.Tool{
			Name:        p.Function.Name,
			Description: p.Function.Description,
			Parameters:  p.Function.Parameters,
		})
	}
	return tools
}

func usageFrom(u engine.Usage) *usagePayload {
	return &usagePayload{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.PromptTokens + u.CompletionTokens,
	}
}

// writeGenerationError maps dispatcher errors onto HTTP statuses.
func (s *Server) writeGenerationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrModelNotLoaded):
		s.writeError(w, http.StatusServiceUnavailable, "model not loaded")
	case errors.Is(err, context.DeadlineExceeded):
		s.writeError(w, http.StatusGatewayTimeout, "generation timed out")
	default:
		s.logger.Error("generation failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// writeError writes the JSON error envelope.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{"message": message},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// writeSSEChunk writes one JSON payload as an SSE data event.
func (s *Server) writeSSEChunk(w http.ResponseWriter, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("failed to marshal SSE data", "error", err)
		return
	}
	s.writeSSEData(w, string(data))
}

func (s *Server) writeSSEData(w http.ResponseWriter, data string) {
	fmt.Fprintf(w, "data: %s\n\n", data)
}
