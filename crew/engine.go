package crew

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"crewtui/config"
	"crewtui/model"
	"crewtui/provider"
	"crewtui/tools"
)

// coordinatorMaxIterations caps the coordinator's internal tool-use loop.
const coordinatorMaxIterations = 3

// Engine runs one turn of the orchestration state machine: router decision,
// role execution, tool dispatch, and the crew cycle.
type Engine struct {
	cfg      *config.Config
	fallback *provider.Fallback
	pipeline *tools.Pipeline
	registry *tools.Registry
	roles    map[model.RoleID]Role
	workDir  string

	// Stream receives raw model output chunks for live rendering. Optional.
	Stream model.StreamCallback

	// Notify is called for each message as it is committed to the turn.
	// Optional.
	Notify func(model.Message)

	now func() time.Time
}

func NewEngine(cfg *config.Config, fb *provider.Fallback, pipeline *tools.Pipeline, registry *tools.Registry) *Engine {
	workDir := "."
	if roots := cfg.AllowedRoots(); len(roots) > 0 {
		workDir = roots[0]
	}

	return &Engine{
		cfg:      cfg,
		fallback: fb,
		pipeline: pipeline,
		registry: registry,
		roles:    BuildRoles(cfg),
		workDir:  workDir,
		now:      time.Now,
	}
}

// TurnResult is what one RunTurn call produced. Messages holds only the new
// messages; the caller appends them to its own copy of the history.
type TurnResult struct {
	Messages []model.Message

	WaitingConfirmation bool
	PendingTool         model.ToolCall

	ReviewStatus ReviewStatus
	Task         string
}

// RunTurn executes one turn: the last message of history is the external
// input (user message, approval, or tool result) and the engine runs roles
// until a terminal point or a confirmation suspension.
func (e *Engine) RunTurn(ctx context.Context, history []model.Message) TurnResult {
	decision := Route(history)

	state := &TurnState{
		History:         history,
		TaskDescription: decision.Task,
		ReviewStatus:    ReviewNone,
		NextRole:        decision.NextRole,
		CyclesLeft:      e.cfg.MaxCycles,
	}
	base := len(history)

	if config.DebugLog != nil {
		config.DebugLog.Printf("[Crew] Turn start: role=%s task=%q", decision.NextRole, decision.Task)
	}

	// A continuation may carry unanswered tool calls from the suspended
	// role; settle them before the role speaks again.
	if isContinuation(state.last()) {
		e.resolvePendingCalls(ctx, state)
	}

	if !state.WaitingConfirmation {
		if decision.NextRole == model.RoleCoordinator {
			e.runCoordinator(ctx, state)
		} else {
			e.runCrewLoop(ctx, state, decision.NextRole)
		}
	}

	return TurnResult{
		Messages:            state.History[base:],
		WaitingConfirmation: state.WaitingConfirmation,
		PendingTool:         state.PendingTool,
		ReviewStatus:        state.ReviewStatus,
		Task:                state.TaskDescription,
	}
}

// resolvePendingCalls answers tool calls left unexecuted by a suspended turn.
// The approval or denial sentinel is already in the history, so the pipeline
// either runs the call or synthesizes the denial result. A call that is still
// unapproved re-suspends the turn.
func (e *Engine) resolvePendingCalls(ctx context.Context, state *TurnState) {
	idx := lastAssistantIndex(state.History)
	if idx < 0 {
		return
	}

	answered := make(map[string]bool)
	for _, msg := range state.History[idx+1:] {
		if msg.IsToolResult() {
			answered[msg.ToolCallID] = true
		}
	}

	for _, call := range state.History[idx].ToolCalls {
		if answered[call.ID] {
			continue
		}
		result, needsConfirm := e.pipeline.Execute(ctx, call, state.History)
		if needsConfirm {
			state.WaitingConfirmation = true
			state.PendingTool = call
			return
		}
		e.commit(state, toolResultMessage(call, result, e.now()))
	}
}

// runCrewLoop drives the coder -> executor -> reviewer -> documenter cycle.
func (e *Engine) runCrewLoop(ctx context.Context, state *TurnState, start model.RoleID) {
	role := start

	for {
		out := e.runCrewRole(ctx, state, e.roles[role])
		if state.WaitingConfirmation || out.critical {
			return
		}

		switch role {
		case model.RoleCoder:
			role = model.RoleExecutor
		case model.RoleExecutor:
			role = model.RoleReviewer
		case model.RoleReviewer:
			state.ReviewStatus = reviewVerdict(out.finalText)
			role = model.RoleDocumenter
		case model.RoleDocumenter:
			e.persistArtifacts(ctx, state, out.finalText)

			if state.ReviewStatus == ReviewApproved || out.sawAlert {
				return
			}

			state.CyclesLeft--
			if state.CyclesLeft <= 0 {
				e.commit(state, model.Message{
					Role: "assistant",
					Content: fmt.Sprintf("%s Crew stopped: %d rework cycles completed without review approval. Re-issue /task to try again.",
						model.AlertTag, e.cfg.MaxCycles),
					Timestamp: e.now(),
				})
				return
			}
			role = model.RoleCoder

		default:
			return
		}
	}
}

type roleOutcome struct {
	finalText string
	critical  bool
	sawAlert  bool
}

// runCrewRole executes one crew role: a single model invocation followed by
// sequential execution of any requested tools.
func (e *Engine) runCrewRole(ctx context.Context, state *TurnState, role Role) roleOutcome {
	req := model.ChatRequest{
		Messages: []model.Message{
			{Role: "user", Content: e.composeCrewPrompt(ctx, role, state)},
		},
		Tools:       e.registry.Definitions(role.Tools),
		Model:       e.modelFor(role.ID),
		Temperature: role.Temperature,
	}

	resp, alert := e.fallback.Invoke(ctx, req, e.Stream)

	var out roleOutcome
	if alert != "" {
		e.commit(state, model.Message{Role: "assistant", Content: alert, Timestamp: e.now()})
		out.sawAlert = true
	}

	text := model.EnsurePrefix(role.ID, strings.TrimSpace(resp.Text))
	tools.EnsureCallIDs(resp.ToolCalls)

	assistant := model.Message{
		Role:      "assistant",
		Sender:    role.ID,
		Content:   text,
		ToolCalls: resp.ToolCalls,
		Timestamp: e.now(),
	}
	e.commit(state, assistant)

	out.finalText = text
	if assistant.ContainsAlert() {
		out.sawAlert = true
		if strings.Contains(text, "CRITICAL FAILURE") {
			out.critical = true
			return out
		}
	}

	for _, call := range resp.ToolCalls {
		result, needsConfirm := e.pipeline.Execute(ctx, call, state.History)
		if needsConfirm {
			state.WaitingConfirmation = true
			state.PendingTool = call
			return out
		}
		e.commit(state, toolResultMessage(call, result, e.now()))
	}

	return out
}

// runCoordinator runs the conversational path: system prompt plus raw
// history, with an internal tool loop so the coordinator can react to tool
// results within the same turn. All intermediate messages are accumulated
// locally and flushed to the turn atomically when the loop exits.
func (e *Engine) runCoordinator(ctx context.Context, state *TurnState) {
	role := e.roles[model.RoleCoordinator]

	var pending []model.Message
	flush := func() {
		for _, msg := range pending {
			e.commit(state, msg)
		}
		pending = nil
	}

	for i := 0; i < coordinatorMaxIterations; i++ {
		msgs := make([]model.Message, 0, len(state.History)+len(pending)+1)
		msgs = append(msgs, model.Message{Role: "system", Content: role.Prompt})
		msgs = append(msgs, state.History...)
		msgs = append(msgs, pending...)

		req := model.ChatRequest{
			Messages:    msgs,
			Tools:       e.registry.Definitions(role.Tools),
			Model:       e.modelFor(role.ID),
			Temperature: role.Temperature,
		}

		resp, alert := e.fallback.Invoke(ctx, req, e.Stream)
		if alert != "" {
			pending = append(pending, model.Message{Role: "assistant", Content: alert, Timestamp: e.now()})
		}

		tools.EnsureCallIDs(resp.ToolCalls)
		assistant := model.Message{
			Role:      "assistant",
			Sender:    model.RoleCoordinator,
			Content:   strings.TrimSpace(resp.Text),
			ToolCalls: resp.ToolCalls,
			Timestamp: e.now(),
		}
		pending = append(pending, assistant)

		if assistant.ContainsAlert() || len(resp.ToolCalls) == 0 {
			break
		}

		scanBase := append(append([]model.Message{}, state.History...), pending...)
		suspended := false
		for _, call := range resp.ToolCalls {
			result, needsConfirm := e.pipeline.Execute(ctx, call, scanBase)
			if needsConfirm {
				state.WaitingConfirmation = true
				state.PendingTool = call
				suspended = true
				break
			}
			msg := toolResultMessage(call, result, e.now())
			pending = append(pending, msg)
			scanBase = append(scanBase, msg)
		}
		if suspended {
			break
		}
	}

	flush()
}

// persistArtifacts writes the documenter's output through the trusted tool
// path: a timestamped user-facing report, the overwritten latest memory note,
// and a timestamped memory snapshot.
func (e *Engine) persistArtifacts(ctx context.Context, state *TurnState, report string) {
	if strings.TrimSpace(report) == "" {
		return
	}

	ts := e.now().Format("20060102-150405")
	reportBody := fmt.Sprintf("# Crew Report %s\n\nTask: %s\n\n%s\n", ts, state.TaskDescription, report)
	memoryBody := fmt.Sprintf("# Crew Memory\n\nTask: %s\nUpdated: %s\n\n%s\n", state.TaskDescription, ts, report)

	targets := []struct {
		path    string
		content string
	}{
		{filepath.Join(e.workDir, "reports", "report-"+ts+".md"), reportBody},
		{filepath.Join(e.workDir, "memory", "latest.md"), memoryBody},
		{filepath.Join(e.workDir, "memory", "snapshot-"+ts+".md"), memoryBody},
	}

	for _, t := range targets {
		result := e.pipeline.ExecuteTrusted(ctx, model.ToolCall{
			ID:        "doc-" + ts,
			Name:      "write_file",
			Arguments: map[string]any{"filepath": t.path, "content": t.content},
		})
		if config.DebugLog != nil {
			config.DebugLog.Printf("[Crew] Documenter artifact %s: %s", t.path, firstLine(result))
		}
	}
}

// memoryNote reads the latest crew memory for injection into the coder's
// prompt. Absence is not an error.
func (e *Engine) memoryNote(ctx context.Context) string {
	result := e.pipeline.ExecuteTrusted(ctx, model.ToolCall{
		ID:        "memory-read",
		Name:      "read_file",
		Arguments: map[string]any{"filepath": filepath.Join(e.workDir, "memory", "latest.md")},
	})
	if strings.HasPrefix(result, "Error") {
		return ""
	}
	return result
}

func (e *Engine) composeCrewPrompt(ctx context.Context, role Role, state *TurnState) string {
	var b strings.Builder
	b.WriteString(role.Prompt)

	b.WriteString("\n\n=== CREW CONTEXT ===\n")
	b.WriteString(crewContext(role.ID))

	b.WriteString("\n=== CURRENT TASK ===\n")
	b.WriteString(state.TaskDescription)
	b.WriteString("\n")

	if role.ID == model.RoleCoder {
		if note := e.memoryNote(ctx); note != "" {
			b.WriteString("\n=== PROJECT MEMORY ===\n")
			b.WriteString(note)
			b.WriteString("\n")
		}
	}

	b.WriteString("\n=== CONVERSATION HISTORY ===\n")
	b.WriteString(RenderTranscript(state.History))

	b.WriteString("\n\n=== YOUR RESPONSE ===\n")
	b.WriteString(responseInstruction(role.ID))

	return b.String()
}

func crewContext(id model.RoleID) string {
	switch id {
	case model.RoleCoder:
		return `You are part of a crew with:
- Executor: Will implement your code by writing files
- Reviewer: Will review the implementation and approve or request changes
- Documenter: Will record what the crew accomplished
`
	case model.RoleExecutor:
		return `You are part of a crew with:
- Coder: Wrote the code solution you are implementing
- Reviewer: Will review the files you write
`
	case model.RoleReviewer:
		return `You are part of a crew with:
- Coder: Wrote the code solution
- Executor: Implemented the code by writing files
You are reviewing their work.
`
	case model.RoleDocumenter:
		return `You are part of a crew with Coder, Executor and Reviewer.
The cycle has finished; you are recording what happened.
`
	}
	return ""
}

func responseInstruction(id model.RoleID) string {
	switch id {
	case model.RoleCoder:
		return `Provide your code solution. Include "File: filename" before code blocks so the Executor knows where to write.
Start your response with "Coder:" to identify yourself.`
	case model.RoleExecutor:
		return `Save the Coder's files using your file tools, then confirm what was written.
Start your response with "Executor:" to identify yourself.`
	case model.RoleReviewer:
		return `Review the implementation against the original task requirements.
If the work meets requirements, respond with "REVIEW_PASSED" and explain why.
If changes are needed, provide specific feedback to the Coder and respond with "REVIEW_FAILED".
Start your response with "Reviewer:" to identify yourself.`
	case model.RoleDocumenter:
		return `Write the progress report and the technical memory log.
Start your response with "Documenter:" to identify yourself.`
	}
	return ""
}

// reviewVerdict checks the reviewer's final text for a verdict. The explicit
// tokens the reviewer prompt mandates win; a bare "approved" counts only when
// neither token appears, so phrasing like "cannot be approved yet" next to a
// REVIEW_FAILED does not pass.
func reviewVerdict(text string) ReviewStatus {
	upper := strings.ToUpper(text)
	switch {
	case strings.Contains(upper, model.ReviewFailToken):
		return ReviewRejected
	case strings.Contains(upper, model.ReviewPassToken):
		return ReviewApproved
	case strings.Contains(upper, model.ReviewPassTokenAlt):
		return ReviewApproved
	}
	return ReviewRejected
}

// modelFor picks a role-specific model handle. Only the local provider
// distinguishes roles: the coder gets the dedicated coder model. Cloud
// providers use their configured default for every role.
func (e *Engine) modelFor(id model.RoleID) string {
	if e.fallback.CurrentName() == "ollama" && id == model.RoleCoder {
		return e.cfg.Ollama.CoderModel
	}
	return ""
}

// ProviderName reports the currently active provider, reflecting any
// fallback switch made during the session.
func (e *Engine) ProviderName() string {
	return e.fallback.CurrentName()
}

func (e *Engine) commit(state *TurnState, msg model.Message) {
	state.append(msg)
	if e.Notify != nil {
		e.Notify(msg)
	}
}

func toolResultMessage(call model.ToolCall, result string, ts time.Time) model.Message {
	return model.Message{
		Role:       "tool",
		ToolCallID: call.ID,
		ToolName:   call.Name,
		Content:    result,
		Timestamp:  ts,
	}
}

func lastAssistantIndex(history []model.Message) int {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == "assistant" {
			return i
		}
	}
	return -1
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
