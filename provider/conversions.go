package provider

import (
	"encoding/json"

	"github.com/ollama/ollama/api"

	"crewtui/model"
)

// ToOllamaMessages converts crew messages to Ollama api.Message. Tool results
// keep their linking name so multi-call turns stay unambiguous; sender
// metadata and timestamps are dropped, the Ollama API has no place for them.
func ToOllamaMessages(messages []model.Message) []api.Message {
	result := make([]api.Message, len(messages))
	for i, msg := range messages {
		result[i] = api.Message{
			Role:    msg.Role,
			Content: msg.Content,
		}
		if msg.Role == "tool" {
			result[i].ToolName = msg.ToolName
		}
	}
	return result
}

// ParseToolArguments parses a JSON arguments string into a map. Used by the
// OpenAI-compatible providers, whose SDKs deliver arguments as raw JSON.
// Unparseable input yields an empty map rather than an error; validation
// happens downstream in the tool pipeline.
func ParseToolArguments(argsJSON string) map[string]any {
	var args map[string]any
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
		return make(map[string]any)
	}
	return args
}

// FromOllamaToolCalls converts Ollama tool calls to the provider-agnostic
// form. Returns nil for empty input, matching the Ollama API's nil semantics.
func FromOllamaToolCalls(ollamaCalls []api.ToolCall) []model.ToolCall {
	if len(ollamaCalls) == 0 {
		return nil
	}

	result := make([]model.ToolCall, len(ollamaCalls))
	for i, call := range ollamaCalls {
		result[i] = model.ToolCall{
			Name:      call.Function.Name,
			Arguments: call.Function.Arguments,
		}
	}
	return result
}
