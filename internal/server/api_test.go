// ABOUTME: HTTP handler tests exercising the OpenAI-compatible surface end to end
// ABOUTME: against a scripted engine: sync, SSE streaming, storage, and sessions.

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferd/inferd/internal/config"
	"github.com/inferd/inferd/internal/engine"
)

// stubEngine returns scripted tokens and records conversation lifecycle calls.
type stubEngine struct {
	mu        sync.Mutex
	tokens    []string
	fail      error
	notLoaded bool
	created   int
	released  int
	lastTools []engine.Tool
}

type stubConv struct{}

func (e *stubEngine) CreateConversation(ctx context.Context, tools []engine.Tool) (engine.Conversation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.created++
	e.lastTools = tools
	return &stubConv{}, nil
}

func (e *stubEngine) Generate(ctx context.Context, conv engine.Conversation, req engine.Request) (*engine.Result, error) {
	if e.fail != nil {
		return nil, e.fail
	}
	return &engine.Result{
		Text:         strings.Join(e.tokens, ""),
		FinishReason: "stop",
		Usage:        engine.Usage{PromptTokens: 5, CompletionTokens: len(e.tokens)},
	}, nil
}

func (e *stubEngine) GenerateStream(ctx context.Context, conv engine.Conversation, req engine.Request, onToken func(string)) (*engine.Result, error) {
	if e.fail != nil {
		return nil, e.fail
	}
	for _, tok := range e.tokens {
		onToken(tok)
	}
	return &engine.Result{Text: strings.Join(e.tokens, ""), FinishReason: "stop"}, nil
}

func (e *stubEngine) ReleaseConversation(conv engine.Conversation) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.released++
}

func (e *stubEngine) Loaded() bool    { return !e.notLoaded }
func (e *stubEngine) ModelID() string { return "test-model" }

func newTestServer(t *testing.T, eng engine.Engine) *Server {
	t.Helper()
	cfg := &config.Config{
		Server:   config.ServerConfig{HTTPAddr: ":0"},
		Engine:   config.EngineConfig{Type: "openai", Model: "test-model", OwnedBy: "inferd"},
		Database: config.DatabaseConfig{Path: ":memory:"},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv, err := New(cfg, eng, logger)
	require.NoError(t, err)
	t.Cleanup(func() { srv.store.Close() })
	return srv
}

func doJSON(t *testing.T, srv *Server, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func errorMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	body := decodeBody(t, w)
	errObj, ok := body["error"].(map[string]any)
	require.True(t, ok, "expected error envelope, got %s", w.Body.String())
	msg, _ := errObj["message"].(string)
	return msg
}

// sseEvents extracts the data payloads from an SSE body in order.
func sseEvents(body string) []string {
	var events []string
	for _, line := range strings.Split(body, "\n") {
		if data, ok := strings.CutPrefix(line, "data: "); ok {
			events = append(events, data)
		}
	}
	return events
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, &stubEngine{})
	w := doJSON(t, srv, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, true, body["model_loaded"])
}

func TestHealthModelNotLoaded(t *testing.T) {
	srv := newTestServer(t, &stubEngine{notLoaded: true})
	w := doJSON(t, srv, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decodeBody(t, w)["model_loaded"])
}

func TestModels(t *testing.T) {
	srv := newTestServer(t, &stubEngine{})
	w := doJSON(t, srv, http.MethodGet, "/v1/models", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, "list", body["object"])
	data := body["data"].([]any)
	require.Len(t, data, 1)
	model := data[0].(map[string]any)
	assert.Equal(t, "test-model", model["id"])
	assert.Equal(t, "model", model["object"])
	assert.Equal(t, "inferd", model["owned_by"])
}

func TestChatCompletionSync(t *testing.T) {
	srv := newTestServer(t, &stubEngine{tokens: []string{"Hello", " world"}})
	w := doJSON(t, srv, http.MethodPost, "/v1/chat/completions",
		`{"model":"test-model","messages":[{"role":"user","content":"hi"}]}`, nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.True(t, strings.HasPrefix(body["id"].(string), "chatcmpl-"))
	assert.Equal(t, "chat.completion", body["object"])
	assert.Equal(t, "test-model", body["model"])

	choices := body["choices"].([]any)
	require.Len(t, choices, 1)
	choice := choices[0].(map[string]any)
	assert.Equal(t, "stop", choice["finish_reason"])
	msg := choice["message"].(map[string]any)
	assert.Equal(t, "assistant", msg["role"])
	assert.Equal(t, "Hello world", msg["content"])

	usage := body["usage"].(map[string]any)
	assert.Equal(t, float64(5), usage["prompt_tokens"])
	assert.Equal(t, float64(2), usage["completion_tokens"])
	assert.Equal(t, float64(7), usage["total_tokens"])
}

func TestChatCompletionValidation(t *testing.T) {
	srv := newTestServer(t, &stubEngine{})

	w := doJSON(t, srv, http.MethodPost, "/v1/chat/completions", `{"model":"test-model","messages":[]}`, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "messages is required", errorMessage(t, w))

	w = doJSON(t, srv, http.MethodPost, "/v1/chat/completions",
		`{"messages":[{"role":"user","content":"no model"}]}`, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "model is required", errorMessage(t, w))

	w = doJSON(t, srv, http.MethodPost, "/v1/chat/completions", `{not json`, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid JSON body", errorMessage(t, w))
}

func TestChatCompletionModelNotLoaded(t *testing.T) {
	srv := newTestServer(t, &stubEngine{notLoaded: true})
	w := doJSON(t, srv, http.MethodPost, "/v1/chat/completions",
		`{"model":"test-model","messages":[{"role":"user","content":"hi"}]}`, nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "model not loaded", errorMessage(t, w))
}

func TestChatCompletionEngineError(t *testing.T) {
	srv := newTestServer(t, &stubEngine{fail: errors.New("backend unreachable")})
	w := doJSON(t, srv, http.MethodPost, "/v1/chat/completions",
		`{"model":"test-model","messages":[{"role":"user","content":"hi"}]}`, nil)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, errorMessage(t, w), "backend unreachable")
}

func TestChatCompletionStreaming(t *testing.T) {
	tokens := []string{"The", " answer", " is", " 42"}
	srv := newTestServer(t, &stubEngine{tokens: tokens})

	w := doJSON(t, srv, http.MethodPost, "/v1/chat/completions",
		`{"model":"test-model","messages":[{"role":"user","content":"hi"}],"stream":true}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	events := sseEvents(w.Body.String())
	require.Len(t, events, len(tokens)+2)
	assert.Equal(t, "[DONE]", events[len(events)-1])

	var full strings.Builder
	for i, ev := range events[:len(events)-1] {
		var chunk map[string]any
		require.NoError(t, json.Unmarshal([]byte(ev), &chunk))
		assert.Equal(t, "chat.completion.chunk", chunk["object"])
		assert.True(t, strings.HasPrefix(chunk["id"].(string), "chatcmpl-"))

		choice := chunk["choices"].([]any)[0].(map[string]any)
		delta := choice["delta"].(map[string]any)
		if i < len(tokens) {
			assert.Equal(t, tokens[i], delta["content"])
			assert.Nil(t, choice["finish_reason"])
			full.WriteString(delta["content"].(string))
		} else {
			// Terminal chunk: empty delta, finish_reason set.
			assert.Empty(t, delta)
			assert.Equal(t, "stop", choice["finish_reason"])
		}
	}
	assert.Equal(t, "The answer is 42", full.String())
}

func TestStreamingMatchesSyncText(t *testing.T) {
	eng := &stubEngine{tokens: []string{"same", " ", "text"}}
	srv := newTestServer(t, eng)

	sync := doJSON(t, srv, http.MethodPost, "/v1/chat/completions",
		`{"model":"test-model","messages":[{"role":"user","content":"hi"}]}`, nil)
	require.Equal(t, http.StatusOK, sync.Code)
	syncText := decodeBody(t, sync)["choices"].([]any)[0].(map[string]any)["message"].(map[string]any)["content"].(string)

	stream := doJSON(t, srv, http.MethodPost, "/v1/chat/completions",
		`{"model":"test-model","messages":[{"role":"user","content":"hi"}],"stream":true}`, nil)
	require.Equal(t, http.StatusOK, stream.Code)

	var streamed strings.Builder
	for _, ev := range sseEvents(stream.Body.String()) {
		if ev == "[DONE]" {
			continue
		}
		var chunk map[string]any
		require.NoError(t, json.Unmarshal([]byte(ev), &chunk))
		delta := chunk["choices"].([]any)[0].(map[string]any)["delta"].(map[string]any)
		if content, ok := delta["content"].(string); ok {
			streamed.WriteString(content)
		}
	}
	assert.Equal(t, syncText, streamed.String())
}

func TestStreamingEngineErrorBeforeStart(t *testing.T) {
	srv := newTestServer(t, &stubEngine{notLoaded: true})
	w := doJSON(t, srv, http.MethodPost, "/v1/chat/completions",
		`{"model":"test-model","messages":[{"role":"user","content":"hi"}],"stream":true}`, nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestStoreAndRetrieveCompletion(t *testing.T) {
	srv := newTestServer(t, &stubEngine{tokens: []string{"stored reply"}})

	w := doJSON(t, srv, http.MethodPost, "/v1/chat/completions",
		`{"model":"test-model","messages":[{"role":"user","content":"remember me"}],"store":true,"metadata":{"topic":"testing"}}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	id := decodeBody(t, w)["id"].(string)

	// Retrieve by id.
	w = doJSON(t, srv, http.MethodGet, "/v1/chat/completions/"+id, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, id, body["id"])
	assert.Equal(t, map[string]any{"topic": "testing"}, body["metadata"])
	content := body["choices"].([]any)[0].(map[string]any)["message"].(map[string]any)["content"]
	assert.Equal(t, "stored reply", content)

	// Listing includes it.
	w = doJSON(t, srv, http.MethodGet, "/v1/chat/completions", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody(t, w)["data"].([]any), 1)

	// Messages include the synthesized assistant turn with positional ids.
	w = doJSON(t, srv, http.MethodGet, "/v1/chat/completions/"+id+"/messages", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	msgs := decodeBody(t, w)["data"].([]any)
	require.Len(t, msgs, 2)
	first := msgs[0].(map[string]any)
	assert.Equal(t, id+"-msg-0", first["id"])
	assert.Equal(t, "user", first["role"])
	last := msgs[1].(map[string]any)
	assert.Equal(t, id+"-msg-1", last["id"])
	assert.Equal(t, "assistant", last["role"])
	assert.Equal(t, "stored reply", last["content"])

	// Metadata update merges.
	w = doJSON(t, srv, http.MethodPost, "/v1/chat/completions/"+id,
		`{"metadata":{"reviewed":"yes"}}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]any{"topic": "testing", "reviewed": "yes"}, decodeBody(t, w)["metadata"])

	// Delete, then 404.
	w = doJSON(t, srv, http.MethodDelete, "/v1/chat/completions/"+id, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decodeBody(t, w)["deleted"])

	w = doJSON(t, srv, http.MethodGet, "/v1/chat/completions/"+id, "", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestUnstoredCompletionNotPersisted(t *testing.T) {
	srv := newTestServer(t, &stubEngine{tokens: []string{"ephemeral"}})

	w := doJSON(t, srv, http.MethodPost, "/v1/chat/completions",
		`{"model":"test-model","messages":[{"role":"user","content":"hi"}]}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	id := decodeBody(t, w)["id"].(string)

	w = doJSON(t, srv, http.MethodGet, "/v1/chat/completions/"+id, "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStreamedCompletionStored(t *testing.T) {
	srv := newTestServer(t, &stubEngine{tokens: []string{"streamed", " and", " kept"}})

	w := doJSON(t, srv, http.MethodPost, "/v1/chat/completions",
		`{"model":"test-model","messages":[{"role":"user","content":"hi"}],"stream":true,"store":true}`, nil)
	require.Equal(t, http.StatusOK, w.Code)

	events := sseEvents(w.Body.String())
	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(events[0]), &first))
	id := first["id"].(string)

	w = doJSON(t, srv, http.MethodGet, "/v1/chat/completions/"+id, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	content := decodeBody(t, w)["choices"].([]any)[0].(map[string]any)["message"].(map[string]any)["content"]
	assert.Equal(t, "streamed and kept", content)
}

func TestStoredCompletionNotFound(t *testing.T) {
	srv := newTestServer(t, &stubEngine{})

	for _, path := range []string{
		"/v1/chat/completions/chatcmpl-missing",
		"/v1/chat/completions/chatcmpl-missing/messages",
	} {
		w := doJSON(t, srv, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusNotFound, w.Code, path)
		assert.Contains(t, errorMessage(t, w), "not found")
	}

	w := doJSON(t, srv, http.MethodPost, "/v1/chat/completions/chatcmpl-missing",
		`{"metadata":{"a":"1"}}`, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, srv, http.MethodDelete, "/v1/chat/completions/chatcmpl-missing", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTextCompletionSync(t *testing.T) {
	srv := newTestServer(t, &stubEngine{tokens: []string{"once upon", " a time"}})

	w := doJSON(t, srv, http.MethodPost, "/v1/completions",
		`{"model":"test-model","prompt":"tell me a story"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.True(t, strings.HasPrefix(body["id"].(string), "cmpl-"))
	assert.Equal(t, "text_completion", body["object"])
	choice := body["choices"].([]any)[0].(map[string]any)
	assert.Equal(t, "once upon a time", choice["text"])
	assert.Equal(t, "stop", choice["finish_reason"])
}

func TestTextCompletionValidation(t *testing.T) {
	srv := newTestServer(t, &stubEngine{})

	w := doJSON(t, srv, http.MethodPost, "/v1/completions", `{}`, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "prompt is required", errorMessage(t, w))

	w = doJSON(t, srv, http.MethodPost, "/v1/completions", `{"prompt":"go"}`, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "model is required", errorMessage(t, w))
}

func TestTextCompletionStreaming(t *testing.T) {
	tokens := []string{"a", "b", "c"}
	srv := newTestServer(t, &stubEngine{tokens: tokens})

	w := doJSON(t, srv, http.MethodPost, "/v1/completions",
		`{"model":"test-model","prompt":"go","stream":true}`, nil)
	require.Equal(t, http.StatusOK, w.Code)

	events := sseEvents(w.Body.String())
	require.Len(t, events, len(tokens)+2)
	assert.Equal(t, "[DONE]", events[len(events)-1])

	for i, ev := range events[:len(events)-1] {
		var chunk map[string]any
		require.NoError(t, json.Unmarshal([]byte(ev), &chunk))
		assert.Equal(t, "text_completion", chunk["object"])
		choice := chunk["choices"].([]any)[0].(map[string]any)
		if i < len(tokens) {
			assert.Equal(t, tokens[i], choice["text"])
			assert.Nil(t, choice["finish_reason"])
		} else {
			assert.Equal(t, "", choice["text"])
			assert.Equal(t, "stop", choice["finish_reason"])
		}
	}
}

func TestSessionRoutingPriority(t *testing.T) {
	srv := newTestServer(t, &stubEngine{tokens: []string{"ok"}})
	post := func(body string, headers map[string]string) {
		w := doJSON(t, srv, http.MethodPost, "/v1/chat/completions", body, headers)
		require.Equal(t, http.StatusOK, w.Code)
	}

	// conversation_id outranks user; header outranks nothing; absent all
	// fields lands on "default".
	post(`{"model":"test-model","messages":[{"role":"user","content":"hi"}],"conversation_id":"conv-1","user":"bob"}`, nil)
	post(`{"model":"test-model","messages":[{"role":"user","content":"hi"}],"user":"carol"}`, nil)
	post(`{"model":"test-model","messages":[{"role":"user","content":"hi"}],"session_id":"sess-1"}`,
		map[string]string{"X-Session-ID": "ignored"})
	post(`{"model":"test-model","messages":[{"role":"user","content":"hi"}]}`,
		map[string]string{"X-Session-ID": "hdr-1"})
	post(`{"model":"test-model","messages":[{"role":"user","content":"hi"}]}`, nil)

	w := doJSON(t, srv, http.MethodGet, "/v1/sessions", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, float64(5), body["count"])

	var ids []string
	for _, item := range body["data"].([]any) {
		ids = append(ids, item.(map[string]any)["id"].(string))
	}
	assert.Equal(t, []string{"carol", "conv-1", "default", "hdr-1", "sess-1"}, ids)
}

func TestSameSessionReusesConversation(t *testing.T) {
	eng := &stubEngine{tokens: []string{"ok"}}
	srv := newTestServer(t, eng)

	for i := 0; i < 3; i++ {
		w := doJSON(t, srv, http.MethodPost, "/v1/chat/completions",
			`{"model":"test-model","messages":[{"role":"user","content":"hi"}],"session_id":"alice"}`, nil)
		require.Equal(t, http.StatusOK, w.Code)
	}

	eng.mu.Lock()
	defer eng.mu.Unlock()
	assert.Equal(t, 1, eng.created)
}

func TestToolsBindAtConversationCreation(t *testing.T) {
	eng := &stubEngine{tokens: []string{"ok"}}
	srv := newTestServer(t, eng)

	w := doJSON(t, srv, http.MethodPost, "/v1/chat/completions",
		`{"model":"test-model","messages":[{"role":"user","content":"hi"}],"session_id":"tooluser","tools":[
			{"type":"function","function":{"name":"get_weather","description":"Current weather","parameters":{"type":"object"}}}
		]}`, nil)
	require.Equal(t, http.StatusOK, w.Code)

	eng.mu.Lock()
	defer eng.mu.Unlock()
	require.Len(t, eng.lastTools, 1)
	assert.Equal(t, "get_weather", eng.lastTools[0].Name)
	assert.Equal(t, "Current weather", eng.lastTools[0].Description)
}

func TestDeleteSession(t *testing.T) {
	eng := &stubEngine{tokens: []string{"ok"}}
	srv := newTestServer(t, eng)

	w := doJSON(t, srv, http.MethodPost, "/v1/chat/completions",
		`{"model":"test-model","messages":[{"role":"user","content":"hi"}],"session_id":"doomed"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, srv, http.MethodDelete, "/v1/sessions/doomed", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, true, body["deleted"])
	assert.Equal(t, "doomed", body["id"])

	w = doJSON(t, srv, http.MethodDelete, "/v1/sessions/doomed", "", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, srv, http.MethodGet, "/v1/sessions", "", nil)
	assert.Equal(t, float64(0), decodeBody(t, w)["count"])
}

func TestClearSessions(t *testing.T) {
	srv := newTestServer(t, &stubEngine{tokens: []string{"ok"}})

	for _, id := range []string{"a", "b", "c"} {
		w := doJSON(t, srv, http.MethodPost, "/v1/chat/completions",
			fmt.Sprintf(`{"model":"test-model","messages":[{"role":"user","content":"hi"}],"session_id":%q}`, id), nil)
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := doJSON(t, srv, http.MethodDelete, "/v1/sessions", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, true, body["deleted"])
	assert.Equal(t, float64(3), body["count"])

	w = doJSON(t, srv, http.MethodGet, "/v1/sessions", "", nil)
	assert.Equal(t, float64(0), decodeBody(t, w)["count"])
}

func TestStopAcceptsStringArrayAndNull(t *testing.T) {
	var s stopList
	require.NoError(t, json.Unmarshal([]byte(`"END"`), &s))
	assert.Equal(t, stopList{"END"}, s)

	require.NoError(t, json.Unmarshal([]byte(`["a","b"]`), &s))
	assert.Equal(t, stopList{"a", "b"}, s)

	// null must leave the list empty, not produce a single empty sequence.
	require.NoError(t, json.Unmarshal([]byte(`null`), &s))
	assert.Nil(t, s)

	assert.Error(t, json.Unmarshal([]byte(`42`), &s))
}

func TestStopNullInRequestBody(t *testing.T) {
	srv := newTestServer(t, &stubEngine{tokens: []string{"ok"}})
	w := doJSON(t, srv, http.MethodPost, "/v1/chat/completions",
		`{"model":"test-model","messages":[{"role":"user","content":"hi"}],"stop":null}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, &stubEngine{})
	cases := []struct{ method, path string }{
		{http.MethodPost, "/v1/models"},
		{http.MethodDelete, "/v1/chat/completions"},
		{http.MethodGet, "/v1/completions"},
		{http.MethodPost, "/v1/sessions"},
		{http.MethodGet, "/v1/sessions/x"},
	}
	for _, tc := range cases {
		w := doJSON(t, srv, tc.method, tc.path, "", nil)
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code, "%s %s", tc.method, tc.path)
	}
}
