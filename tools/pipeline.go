package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"crewtui/config"
	"crewtui/mcp"
	"crewtui/model"
)

// Pipeline runs tool calls through validation, the confirmation gate and
// dispatch. It never returns a Go error to the caller: every failure mode is
// folded into the result text so the model can read it and react.
type Pipeline struct {
	registry *Registry
	session  *mcp.Session // nil when no external server is configured
	policy   config.ConfirmPolicy
	timeout  time.Duration
}

func NewPipeline(registry *Registry, session *mcp.Session, policy config.ConfirmPolicy, timeout time.Duration) *Pipeline {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Pipeline{
		registry: registry,
		session:  session,
		policy:   policy,
		timeout:  timeout,
	}
}

// EnsureCallIDs assigns IDs to tool calls that arrived without one. Leaked
// (text-parsed) calls have no provider-assigned ID but the confirmation gate
// and result linkage both need one.
func EnsureCallIDs(calls []model.ToolCall) {
	for i := range calls {
		if calls[i].ID == "" {
			calls[i].ID = uuid.New().String()
		}
	}
}

// Execute runs one tool call against the history-backed confirmation gate.
//
// The returned text is always safe to append as a tool-result message. When
// needsConfirmation is true the text is the CONFIRMATION_REQUIRED sentinel
// and the caller must suspend the role turn until the user answers.
func (p *Pipeline) Execute(ctx context.Context, call model.ToolCall, history []model.Message) (result string, needsConfirmation bool) {
	if msg, ok := p.validate(call); !ok {
		return msg, false
	}

	if p.requiresConfirmation(call.Name) {
		switch p.resolveApproval(call, history) {
		case approvalGranted:
			// fall through to dispatch
		case approvalDenied:
			return fmt.Sprintf("Tool call %s denied by user.", call.Name), false
		case approvalPending:
			return fmt.Sprintf("%s%s:%s", model.ConfirmationPrefix, call.Name, call.ID), true
		}
	}

	return p.dispatch(ctx, call), false
}

// ExecuteTrusted bypasses the confirmation gate. Used for tool calls the
// engine issues on its own behalf rather than on a model's request.
func (p *Pipeline) ExecuteTrusted(ctx context.Context, call model.ToolCall) string {
	if msg, ok := p.validate(call); !ok {
		return msg
	}
	return p.dispatch(ctx, call)
}

// validate checks the call against the tool's input schema. A failed check
// produces an error text for the model, not a Go error.
func (p *Pipeline) validate(call model.ToolCall) (string, bool) {
	def, ok := p.definition(call.Name)
	if !ok {
		return fmt.Sprintf("Error: unknown tool %q. Available tools: %s",
			call.Name, strings.Join(p.registry.Names(), ", ")), false
	}

	for _, req := range def.InputSchema.Required {
		v, present := call.Arguments[req]
		if !present || v == nil {
			return fmt.Sprintf("Error: missing required argument %q for tool %s", req, call.Name), false
		}
	}
	for key, raw := range def.InputSchema.Properties {
		prop, ok := raw.(map[string]any)
		if !ok || prop["type"] != "string" {
			continue
		}
		if v, present := call.Arguments[key]; present {
			if _, isStr := v.(string); !isStr {
				return fmt.Sprintf("Error: argument %q for tool %s must be a string", key, call.Name), false
			}
		}
	}
	return "", true
}

func (p *Pipeline) definition(name string) (mcptypes.Tool, bool) {
	if p.session != nil && p.session.Running() {
		for _, t := range p.session.Tools() {
			if t.Name == name {
				return t, true
			}
		}
	}
	if t, ok := p.registry.Get(name); ok {
		return t.Def, true
	}
	return mcptypes.Tool{}, false
}

func (p *Pipeline) requiresConfirmation(name string) bool {
	switch p.policy {
	case config.ConfirmAll:
		return true
	case config.ConfirmDangerous:
		return p.registry.IsDangerous(name)
	}
	return false
}

type approvalState int

const (
	approvalPending approvalState = iota
	approvalGranted
	approvalDenied
)

// resolveApproval scans the history backwards for the newest user verdict on
// this exact (name, call ID) pair.
func (p *Pipeline) resolveApproval(call model.ToolCall, history []model.Message) approvalState {
	for i := len(history) - 1; i >= 0; i-- {
		msg := history[i]
		if msg.Role != "user" {
			continue
		}
		name, callID, approved, ok := model.ParseApproval(msg.Content)
		if !ok || name != call.Name || callID != call.ID {
			continue
		}
		if approved {
			return approvalGranted
		}
		return approvalDenied
	}
	return approvalPending
}

// dispatch prefers the external MCP server when it advertises the tool, and
// falls back to the built-in implementation otherwise.
func (p *Pipeline) dispatch(ctx context.Context, call model.ToolCall) string {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if p.session != nil && p.session.Running() && p.sessionHasTool(call.Name) {
		result, err := p.session.CallTool(ctx, call.Name, call.Arguments)
		if err == nil {
			return mcpResultText(call.Name, result)
		}
		if config.DebugLog != nil {
			config.DebugLog.Printf("[TOOLS] MCP dispatch of %s failed (%v), using built-in", call.Name, err)
		}
	}

	tool, ok := p.registry.Get(call.Name)
	if !ok {
		return fmt.Sprintf("Error executing %s: no local implementation", call.Name)
	}
	return tool.Run(ctx, call.Arguments)
}

func (p *Pipeline) sessionHasTool(name string) bool {
	for _, t := range p.session.Tools() {
		if t.Name == name {
			return true
		}
	}
	return false
}

func mcpResultText(name string, result *mcptypes.CallToolResult) string {
	var parts []string
	for _, content := range result.Content {
		if tc, ok := content.(mcptypes.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	text := strings.Join(parts, "\n")
	if result.IsError {
		return fmt.Sprintf("Error executing %s: %s", name, text)
	}
	if text == "" {
		return "(no output)"
	}
	return text
}
