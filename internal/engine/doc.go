// Package engine defines the boundary between the gateway and its text
// generation backend.
//
// The gateway never performs inference itself. It creates one Conversation
// per session, serializes access to it through the session lock, and calls
// Generate or GenerateStream against it. Everything behind the Engine
// interface - model loading, tokenization, sampling, tool invocation - is
// the backend's business.
//
// The openai subpackage adapts any OpenAI-compatible server (llama.cpp
// --server, LM Studio, vLLM, the hosted API) into an Engine.
package engine
