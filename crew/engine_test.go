package crew

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"crewtui/config"
	"crewtui/model"
	"crewtui/provider"
	"crewtui/tools"
)

type scriptedResponse struct {
	text      string
	toolCalls []model.ToolCall
	err       error
}

// scriptedProvider replays canned responses in order, clamping to the last
// one once the script runs out.
type scriptedProvider struct {
	name      string
	responses []scriptedResponse
	calls     int
	requests  []model.ChatRequest
}

func (p *scriptedProvider) Chat(_ context.Context, req model.ChatRequest, callback model.StreamCallback) error {
	p.requests = append(p.requests, req)
	i := p.calls
	if i >= len(p.responses) {
		i = len(p.responses) - 1
	}
	p.calls++

	r := p.responses[i]
	if r.err != nil {
		return r.err
	}
	return callback(r.text, r.toolCalls)
}

func (p *scriptedProvider) Ping(context.Context) error { return nil }
func (p *scriptedProvider) Name() string               { return p.name }

func newTestEngine(t *testing.T, primary model.Provider, policy config.ConfirmPolicy) (*Engine, string) {
	t.Helper()
	dir := t.TempDir()

	cfg := &config.Config{
		DataDirectory:   dir,
		PrimaryProvider: "anthropic",
		Temperature:     0.7,
		CrewTemperature: 0.2,
		Confirmation:    policy,
		MaxCycles:       3,
		RetryAttempts:   0,
		ToolTimeout:     5 * time.Second,
		AllowedDirs:     []string{dir},
		RoleTools:       config.DefaultRoleTools(),
	}

	secondary := &scriptedProvider{name: "ollama", responses: []scriptedResponse{
		{err: errors.New("connection refused")},
	}}
	fb := provider.NewFallback(primary, secondary, 0)

	registry := tools.NewRegistry(cfg.AllowedRoots(), nil)
	pipeline := tools.NewPipeline(registry, nil, policy, cfg.ToolTimeout)

	return NewEngine(cfg, fb, pipeline, registry), dir
}

func TestTaskScenarioEndToEnd(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "hello.txt")

	primary := &scriptedProvider{name: "anthropic", responses: []scriptedResponse{
		{text: "Coder: File: hello.txt\n```\nhi\n```"},
		{text: "Executor: saving the file now", toolCalls: []model.ToolCall{
			{ID: "w1", Name: "write_file", Arguments: map[string]any{"filepath": target, "content": "hi"}},
		}},
		{text: "Reviewer: REVIEW_PASSED, the file matches the task"},
		{text: "Documenter: hello.txt was created with the requested content"},
	}}

	engine, _ := newTestEngine(t, primary, config.ConfirmAuto)
	engine.cfg.AllowedDirs = []string{dir}
	engine.workDir = dir
	engine.registry = tools.NewRegistry([]string{dir}, nil)
	engine.pipeline = tools.NewPipeline(engine.registry, nil, config.ConfirmAuto, 5*time.Second)

	history := []model.Message{
		{Role: "user", Content: "/task Create hello.txt containing 'hi'"},
	}
	result := engine.RunTurn(context.Background(), history)

	if result.WaitingConfirmation {
		t.Fatal("auto policy must not suspend")
	}
	if result.ReviewStatus != ReviewApproved {
		t.Errorf("ReviewStatus = %q, want approved", result.ReviewStatus)
	}
	if result.Task != "Create hello.txt containing 'hi'" {
		t.Errorf("Task = %q", result.Task)
	}

	data, err := os.ReadFile(target)
	if err != nil || string(data) != "hi" {
		t.Errorf("hello.txt = %q, %v", data, err)
	}

	// Documenter artifacts: a report and the memory pair.
	if _, err := os.Stat(filepath.Join(dir, "memory", "latest.md")); err != nil {
		t.Errorf("memory/latest.md not written: %v", err)
	}
	reports, _ := os.ReadDir(filepath.Join(dir, "reports"))
	if len(reports) != 1 {
		t.Errorf("got %d reports, want 1", len(reports))
	}

	// All four roles ran exactly once.
	if primary.calls != 4 {
		t.Errorf("provider invoked %d times, want 4", primary.calls)
	}

	// Call-id linkage: every tool result answers an earlier request.
	assertLinkage(t, result.Messages)
}

func TestCrewLoopRetriesUntilCycleCap(t *testing.T) {
	primary := &scriptedProvider{name: "anthropic", responses: []scriptedResponse{
		{text: "Reviewer: REVIEW_FAILED, still wrong"},
	}}

	engine, _ := newTestEngine(t, primary, config.ConfirmAuto)
	engine.cfg.MaxCycles = 2

	history := []model.Message{{Role: "user", Content: "/task impossible thing"}}
	result := engine.RunTurn(context.Background(), history)

	if result.ReviewStatus != ReviewRejected {
		t.Errorf("ReviewStatus = %q, want rejected", result.ReviewStatus)
	}

	last := result.Messages[len(result.Messages)-1]
	if !last.ContainsAlert() || !strings.Contains(last.Content, "rework cycles") {
		t.Errorf("missing cycle-cap alert: %q", last.Content)
	}

	// 2 cycles x 4 roles, then the cap fires.
	if primary.calls != 8 {
		t.Errorf("provider invoked %d times, want 8", primary.calls)
	}
}

func TestReviewPassEndsCycle(t *testing.T) {
	primary := &scriptedProvider{name: "anthropic", responses: []scriptedResponse{
		{text: "Coder: here"},
		{text: "Executor: nothing to write"},
		{text: "Reviewer: APPROVED, trivial change"},
		{text: "Documenter: done"},
		{text: "should never be requested"},
	}}

	engine, _ := newTestEngine(t, primary, config.ConfirmAuto)

	history := []model.Message{{Role: "user", Content: "/task trivial"}}
	result := engine.RunTurn(context.Background(), history)

	if result.ReviewStatus != ReviewApproved {
		t.Errorf("ReviewStatus = %q", result.ReviewStatus)
	}
	if primary.calls != 4 {
		t.Errorf("cycle should end after documenter, got %d calls", primary.calls)
	}
}

func TestConfirmationSuspendsAndResumes(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "out.txt")

	primary := &scriptedProvider{name: "anthropic", responses: []scriptedResponse{
		{text: "Coder: File: out.txt"},
		{text: "Executor: writing", toolCalls: []model.ToolCall{
			{ID: "w9", Name: "write_file", Arguments: map[string]any{"filepath": target, "content": "data"}},
		}},
		// After resume: executor follow-up, then reviewer and documenter.
		{text: "Executor: file saved"},
		{text: "Reviewer: REVIEW_PASSED"},
		{text: "Documenter: recorded"},
	}}

	engine, _ := newTestEngine(t, primary, config.ConfirmDangerous)
	engine.workDir = dir
	engine.registry = tools.NewRegistry([]string{dir}, nil)
	engine.pipeline = tools.NewPipeline(engine.registry, nil, config.ConfirmDangerous, 5*time.Second)

	history := []model.Message{{Role: "user", Content: "/task write out.txt"}}
	result := engine.RunTurn(context.Background(), history)

	if !result.WaitingConfirmation {
		t.Fatal("dangerous write must suspend the turn")
	}
	if result.PendingTool.ID != "w9" || result.PendingTool.Name != "write_file" {
		t.Errorf("PendingTool = %+v", result.PendingTool)
	}
	if _, err := os.Stat(target); !os.IsNotExist(err) {
		t.Fatal("file must not exist before approval")
	}

	// Resume with an approval sentinel appended as a fresh external input.
	history = append(history, result.Messages...)
	history = append(history, model.Message{Role: "user", Content: model.ApproveToolPrefix + "write_file:w9"})

	result = engine.RunTurn(context.Background(), history)
	if result.WaitingConfirmation {
		t.Fatal("approved turn must not re-suspend")
	}
	if result.ReviewStatus != ReviewApproved {
		t.Errorf("ReviewStatus = %q", result.ReviewStatus)
	}

	data, err := os.ReadFile(target)
	if err != nil || string(data) != "data" {
		t.Errorf("out.txt = %q, %v", data, err)
	}

	// The resumed turn starts with the settled tool result.
	first := result.Messages[0]
	if !first.IsToolResult() || first.ToolCallID != "w9" {
		t.Errorf("first resumed message = %+v, want tool result for w9", first)
	}
}

func TestDenialSynthesizesErrorResult(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "no.txt")

	primary := &scriptedProvider{name: "anthropic", responses: []scriptedResponse{
		{text: "Executor: trying again after denial"},
		{text: "Reviewer: REVIEW_FAILED, nothing was written"},
		{text: "Documenter: noted"},
		{text: "Coder: giving up"},
	}}

	engine, _ := newTestEngine(t, primary, config.ConfirmDangerous)
	engine.workDir = dir
	engine.registry = tools.NewRegistry([]string{dir}, nil)
	engine.pipeline = tools.NewPipeline(engine.registry, nil, config.ConfirmDangerous, 5*time.Second)
	engine.cfg.MaxCycles = 1

	history := []model.Message{
		{Role: "user", Content: "/task write no.txt"},
		{Role: "assistant", Sender: model.RoleExecutor, Content: "Executor: writing",
			ToolCalls: []model.ToolCall{
				{ID: "d1", Name: "write_file", Arguments: map[string]any{"filepath": target, "content": "x"}},
			}},
		{Role: "user", Content: model.DenyToolPrefix + "write_file:d1"},
	}

	result := engine.RunTurn(context.Background(), history)
	if result.WaitingConfirmation {
		t.Fatal("denial must not suspend")
	}

	first := result.Messages[0]
	if !first.IsToolResult() || !strings.Contains(first.Content, "denied by user") {
		t.Errorf("first message = %+v, want synthetic denial result", first)
	}
	if _, err := os.Stat(target); !os.IsNotExist(err) {
		t.Error("denied write must not touch the file")
	}
}

func TestCriticalFailureShortCircuitsCrewLoop(t *testing.T) {
	primary := &scriptedProvider{name: "anthropic", responses: []scriptedResponse{
		{err: errors.New("429 too many requests")},
	}}

	engine, _ := newTestEngine(t, primary, config.ConfirmAuto)

	history := []model.Message{{Role: "user", Content: "/task anything"}}
	result := engine.RunTurn(context.Background(), history)

	if result.WaitingConfirmation {
		t.Fatal("should not suspend")
	}

	// Both providers fail: the coder's response is the critical alert and
	// the executor/reviewer/documenter never run.
	var critical bool
	for _, msg := range result.Messages {
		if strings.Contains(msg.Content, "CRITICAL FAILURE") {
			critical = true
		}
	}
	if !critical {
		t.Errorf("no critical failure message in %d messages", len(result.Messages))
	}
	if primary.calls != 1 {
		t.Errorf("primary invoked %d times, want 1", primary.calls)
	}
}

func TestCoordinatorToolLoopIsCapped(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0644)

	// The coordinator keeps asking for tools forever; the cap stops it.
	primary := &scriptedProvider{name: "anthropic", responses: []scriptedResponse{
		{text: "reading", toolCalls: []model.ToolCall{
			{ID: "t1", Name: "read_file", Arguments: map[string]any{"filepath": filepath.Join(dir, "a.txt")}},
		}},
		{text: "reading again", toolCalls: []model.ToolCall{
			{ID: "t2", Name: "read_file", Arguments: map[string]any{"filepath": filepath.Join(dir, "a.txt")}},
		}},
		{text: "and again", toolCalls: []model.ToolCall{
			{ID: "t3", Name: "read_file", Arguments: map[string]any{"filepath": filepath.Join(dir, "a.txt")}},
		}},
		{text: "never reached"},
	}}

	engine, _ := newTestEngine(t, primary, config.ConfirmAuto)
	engine.registry = tools.NewRegistry([]string{dir}, nil)
	engine.pipeline = tools.NewPipeline(engine.registry, nil, config.ConfirmAuto, 5*time.Second)

	history := []model.Message{{Role: "user", Content: "what's in a.txt?"}}
	result := engine.RunTurn(context.Background(), history)

	if primary.calls != coordinatorMaxIterations {
		t.Errorf("coordinator invoked %d times, want %d", primary.calls, coordinatorMaxIterations)
	}
	assertLinkage(t, result.Messages)
}

func TestCoordinatorFlushOrdering(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "a.txt"), []byte("content"), 0644)

	primary := &scriptedProvider{name: "anthropic", responses: []scriptedResponse{
		{text: "let me check", toolCalls: []model.ToolCall{
			{ID: "t1", Name: "read_file", Arguments: map[string]any{"filepath": filepath.Join(dir, "a.txt")}},
		}},
		{text: "the file says: content"},
	}}

	engine, _ := newTestEngine(t, primary, config.ConfirmAuto)
	engine.registry = tools.NewRegistry([]string{dir}, nil)
	engine.pipeline = tools.NewPipeline(engine.registry, nil, config.ConfirmAuto, 5*time.Second)

	history := []model.Message{{Role: "user", Content: "read a.txt"}}
	result := engine.RunTurn(context.Background(), history)

	if len(result.Messages) != 3 {
		t.Fatalf("got %d messages, want assistant + tool result + assistant", len(result.Messages))
	}
	if result.Messages[0].Role != "assistant" || len(result.Messages[0].ToolCalls) != 1 {
		t.Errorf("msg 0 = %+v", result.Messages[0])
	}
	if !result.Messages[1].IsToolResult() || result.Messages[1].ToolCallID != "t1" {
		t.Errorf("msg 1 = %+v", result.Messages[1])
	}
	if result.Messages[2].Content != "the file says: content" {
		t.Errorf("msg 2 = %+v", result.Messages[2])
	}
}

func TestAppendOnlyInvariant(t *testing.T) {
	primary := &scriptedProvider{name: "anthropic", responses: []scriptedResponse{
		{text: "hello there"},
	}}

	engine, _ := newTestEngine(t, primary, config.ConfirmAuto)

	history := []model.Message{{Role: "user", Content: "hi"}}
	snapshot := make([]model.Message, len(history))
	copy(snapshot, history)

	result := engine.RunTurn(context.Background(), history)

	if len(result.Messages) == 0 {
		t.Fatal("turn produced no messages")
	}
	for i := range snapshot {
		if history[i].Content != snapshot[i].Content {
			t.Errorf("history[%d] mutated", i)
		}
	}
}

func TestCrewRolesGetPrefixedContent(t *testing.T) {
	primary := &scriptedProvider{name: "anthropic", responses: []scriptedResponse{
		{text: "unprefixed plan"},
		{text: "Executor: already prefixed"},
		{text: "REVIEW_PASSED"},
		{text: "report body"},
	}}

	engine, _ := newTestEngine(t, primary, config.ConfirmAuto)

	history := []model.Message{{Role: "user", Content: "/task small"}}
	result := engine.RunTurn(context.Background(), history)

	assistants := make([]model.Message, 0)
	for _, m := range result.Messages {
		if m.Role == "assistant" {
			assistants = append(assistants, m)
		}
	}
	if len(assistants) != 4 {
		t.Fatalf("got %d assistant messages, want 4", len(assistants))
	}
	if !strings.HasPrefix(assistants[0].Content, "Coder: ") {
		t.Errorf("coder content = %q", assistants[0].Content)
	}
	if assistants[1].Content != "Executor: already prefixed" {
		t.Errorf("double prefix applied: %q", assistants[1].Content)
	}
	if assistants[0].Sender != model.RoleCoder || assistants[3].Sender != model.RoleDocumenter {
		t.Error("Sender field not set on crew messages")
	}
}

// assertLinkage checks that every tool result answers exactly one earlier
// request with the same call ID.
func assertLinkage(t *testing.T, msgs []model.Message) {
	t.Helper()

	requested := make(map[string]int)
	answered := make(map[string]int)

	for _, msg := range msgs {
		for _, call := range msg.ToolCalls {
			requested[call.ID]++
		}
		if msg.IsToolResult() {
			if requested[msg.ToolCallID] == 0 {
				t.Errorf("tool result %s has no earlier request", msg.ToolCallID)
			}
			answered[msg.ToolCallID]++
		}
	}
	for id, n := range answered {
		if n > 1 {
			t.Errorf("call %s answered %d times", id, n)
		}
	}
}

func TestReviewVerdictPrefersExplicitTokens(t *testing.T) {
	tests := []struct {
		name string
		text string
		want ReviewStatus
	}{
		{"pass token", "Reviewer: REVIEW_PASSED, the loop is correct", ReviewApproved},
		{"fail token", "Reviewer: REVIEW_FAILED, off-by-one in the loop", ReviewRejected},
		{"fail token beats approved mention", "Reviewer: this cannot be APPROVED yet. REVIEW_FAILED", ReviewRejected},
		{"bare approved as fallback", "Reviewer: looks solid, approved", ReviewApproved},
		{"no verdict", "Reviewer: still reading the diff", ReviewRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := reviewVerdict(tt.text); got != tt.want {
				t.Errorf("reviewVerdict(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}
