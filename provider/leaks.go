package provider

import (
	"encoding/json"
	"regexp"
	"strings"

	"crewtui/model"
)

// Some models route around native tool calling and print the call into the
// response text instead. Two shapes show up in practice: a bare JSON object
// with name/arguments keys, and an XML-ish <tool_call> wrapper around the
// same JSON.

var xmlToolCallRe = regexp.MustCompile(`(?s)<tool_call>\s*(\{.*?\})\s*</tool_call>`)

// recoverLeakedToolCalls tries both leak shapes in order. Returns nil when
// the text carries no recognizable tool call.
func recoverLeakedToolCalls(content string) []model.ToolCall {
	if calls := ParseLeakedJSONToolCalls(content); len(calls) > 0 {
		return calls
	}
	return ParseLeakedXMLToolCalls(content)
}

type leakedCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
	// some models use "parameters" instead of "arguments"
	Parameters map[string]any `json:"parameters"`
}

func (l leakedCall) toToolCall() (model.ToolCall, bool) {
	if l.Name == "" {
		return model.ToolCall{}, false
	}
	args := l.Arguments
	if args == nil {
		args = l.Parameters
	}
	if args == nil {
		args = map[string]any{}
	}
	return model.ToolCall{Name: l.Name, Arguments: args}, true
}

// ParseLeakedJSONToolCalls scans response text for tool calls emitted as bare
// JSON objects. Returns nil when the text doesn't look like a leaked call.
func ParseLeakedJSONToolCalls(content string) []model.ToolCall {
	trimmed := strings.TrimSpace(content)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	if !strings.HasPrefix(trimmed, "{") && !strings.HasPrefix(trimmed, "[") {
		return nil
	}

	var calls []model.ToolCall

	if strings.HasPrefix(trimmed, "[") {
		var leaked []leakedCall
		if err := json.Unmarshal([]byte(trimmed), &leaked); err != nil {
			return nil
		}
		for _, l := range leaked {
			if call, ok := l.toToolCall(); ok {
				calls = append(calls, call)
			}
		}
		return calls
	}

	var l leakedCall
	if err := json.Unmarshal([]byte(trimmed), &l); err != nil {
		return nil
	}
	if call, ok := l.toToolCall(); ok {
		calls = append(calls, call)
	}
	return calls
}

// ParseLeakedXMLToolCalls scans response text for <tool_call> wrapped JSON.
func ParseLeakedXMLToolCalls(content string) []model.ToolCall {
	matches := xmlToolCallRe.FindAllStringSubmatch(content, -1)
	if len(matches) == 0 {
		return nil
	}

	var calls []model.ToolCall
	for _, m := range matches {
		var l leakedCall
		if err := json.Unmarshal([]byte(m[1]), &l); err != nil {
			continue
		}
		if call, ok := l.toToolCall(); ok {
			calls = append(calls, call)
		}
	}
	return calls
}
