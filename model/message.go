// Package model defines the provider-agnostic conversation types shared by
// the crew engine, the providers, and the UI.
//
// The types here are deliberately free of provider-specific structures: the
// provider layer converts to and from Anthropic/OpenAI/Ollama types at its
// boundary, so everything above it works with a single Message shape.
package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// RoleID identifies one of the five fixed crew participants.
type RoleID string

const (
	RoleCoordinator RoleID = "coordinator"
	RoleCoder       RoleID = "coder"
	RoleExecutor    RoleID = "executor"
	RoleReviewer    RoleID = "reviewer"
	RoleDocumenter  RoleID = "documenter"
)

// DisplayName returns the sender label used in transcripts and prefixes
// ("Coder", "Reviewer", ...).
func (r RoleID) DisplayName() string {
	switch r {
	case RoleCoordinator:
		return "Coordinator"
	case RoleCoder:
		return "Coder"
	case RoleExecutor:
		return "Executor"
	case RoleReviewer:
		return "Reviewer"
	case RoleDocumenter:
		return "Documenter"
	}
	return ""
}

// ToolCall is a tool invocation requested by a model response.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Segment is one part of a structured (multimodal) content payload. Only
// text segments are retained when normalizing.
type Segment struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Message represents one unit of the conversation.
//
// Invariants:
//   - ToolCalls is only set on assistant messages.
//   - ToolCallID/ToolName are only set on tool-result messages, and link back
//     to a ToolCall emitted by the preceding assistant message.
//   - Sender identifies the crew role that authored an assistant message; it
//     replaces the old prefix-sniffing convention, though the "Coder: " display
//     prefix is still emitted for transcript rendering.
type Message struct {
	Role       string     `json:"role"` // user | assistant | tool | system
	Sender     RoleID     `json:"sender,omitempty"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolName   string     `json:"tool_name,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}

// UnmarshalJSON accepts content either as a plain string or as a structured
// segment list, which some backends and older session files produce. Segment
// lists are flattened to text on the way in.
func (m *Message) UnmarshalJSON(data []byte) error {
	type alias Message
	aux := struct {
		Content json.RawMessage `json:"content"`
		*alias
	}{alias: (*alias)(m)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if len(aux.Content) == 0 || string(aux.Content) == "null" {
		return nil
	}

	var text string
	if err := json.Unmarshal(aux.Content, &text); err == nil {
		m.Content = text
		return nil
	}

	var segments []Segment
	if err := json.Unmarshal(aux.Content, &segments); err != nil {
		return fmt.Errorf("unsupported message content payload: %w", err)
	}
	m.Content = NormalizeSegments(segments)
	return nil
}

// NormalizeSegments flattens a structured content payload to plain text by
// concatenating all text segments in order. Non-text segments are dropped.
func NormalizeSegments(segments []Segment) string {
	var b strings.Builder
	for _, seg := range segments {
		if seg.Type == "text" {
			b.WriteString(seg.Text)
		}
	}
	return b.String()
}

// EnsurePrefix prepends the role's display prefix ("Coder: ") unless the
// content already carries it. The coordinator speaks unprefixed.
func EnsurePrefix(role RoleID, content string) string {
	if role == RoleCoordinator || content == "" {
		return content
	}
	prefix := role.DisplayName() + ":"
	if strings.HasPrefix(content, prefix) {
		return content
	}
	return prefix + " " + content
}

// IsToolResult reports whether the message answers a tool call.
func (m Message) IsToolResult() bool {
	return m.Role == "tool" && m.ToolCallID != ""
}

// ContainsAlert reports whether the message carries the system-alert tag
// emitted by the provider fallback layer.
func (m Message) ContainsAlert() bool {
	return strings.Contains(m.Content, AlertTag)
}

// Textual sentinels shared across the router, the tool pipeline and the UI.
const (
	TaskCommand         = "/task"
	AlertTag            = "[SYSTEM ALERT]"
	ApproveToolPrefix   = "APPROVE_TOOL:"
	DenyToolPrefix      = "DENY_TOOL:"
	ConfirmationPrefix  = "CONFIRMATION_REQUIRED:"
	ReviewPassToken     = "REVIEW_PASSED"
	ReviewFailToken     = "REVIEW_FAILED"
	ReviewPassTokenAlt  = "APPROVED"
)

// ParseApproval extracts (name, callID, approved) from an APPROVE_TOOL /
// DENY_TOOL sentinel. ok is false when the text is not an approval message.
func ParseApproval(text string) (name, callID string, approved, ok bool) {
	text = strings.TrimSpace(text)
	switch {
	case strings.HasPrefix(text, ApproveToolPrefix):
		approved = true
		text = strings.TrimPrefix(text, ApproveToolPrefix)
	case strings.HasPrefix(text, DenyToolPrefix):
		text = strings.TrimPrefix(text, DenyToolPrefix)
	default:
		return "", "", false, false
	}
	parts := strings.SplitN(text, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false, false
	}
	return parts[0], parts[1], approved, true
}

// RoleFromPrefix recovers the sending role from a display prefix. It is the
// fallback for messages persisted before the Sender field existed; new code
// should branch on Sender.
func RoleFromPrefix(content string) RoleID {
	for _, r := range []RoleID{RoleCoder, RoleExecutor, RoleReviewer, RoleDocumenter} {
		if strings.HasPrefix(content, r.DisplayName()+":") {
			return r
		}
	}
	return RoleCoordinator
}
