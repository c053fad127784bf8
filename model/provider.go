package model

import (
	"context"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

// Provider abstracts LLM backends (Anthropic, OpenAI, OpenRouter, Ollama)
// using provider-agnostic types from this package.
//
// The interface lives here (not in the provider package) to avoid import
// cycles: provider implementations import model, and the crew engine uses
// Provider without importing any concrete backend.
type Provider interface {
	// Chat sends a request and streams the response back via callback.
	Chat(ctx context.Context, req ChatRequest, callback StreamCallback) error

	// Ping checks if the provider is reachable.
	Ping(ctx context.Context) error

	// Name returns the provider's identifier ("anthropic", "ollama", ...).
	Name() string
}

// ChatRequest is one model invocation. Model and Temperature are per-request
// because each crew role maps to its own model handle and sampling
// temperature; an empty Model falls back to the provider's default.
type ChatRequest struct {
	Messages    []Message
	Tools       []mcptypes.Tool
	Model       string
	Temperature float64
}

// StreamCallback is called for each chunk of streamed response. Tool calls,
// if any, arrive once the stream has completed.
type StreamCallback func(chunk string, toolCalls []ToolCall) error

// Response is the accumulated result of one Chat call: the full text plus
// any tool calls the model requested.
type Response struct {
	Text      string
	ToolCalls []ToolCall
}

// Collect returns a StreamCallback that accumulates chunks and tool calls
// into resp. The fallback layer uses it to turn the streaming interface into
// a whole-response one.
func Collect(resp *Response) StreamCallback {
	return func(chunk string, toolCalls []ToolCall) error {
		resp.Text += chunk
		resp.ToolCalls = append(resp.ToolCalls, toolCalls...)
		return nil
	}
}
