package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"crewtui/config"
	"crewtui/model"
)

func newTestPipeline(t *testing.T, policy config.ConfirmPolicy) (*Pipeline, string) {
	t.Helper()
	r, dir := newTestRegistry(t)
	return NewPipeline(r, nil, policy, 5*time.Second), dir
}

func TestExecuteUnknownTool(t *testing.T) {
	p, _ := newTestPipeline(t, config.ConfirmAuto)

	out, confirm := p.Execute(context.Background(), model.ToolCall{ID: "1", Name: "summon_demon"}, nil)
	if confirm {
		t.Error("unknown tool should not ask for confirmation")
	}
	if !strings.Contains(out, "unknown tool") {
		t.Errorf("out = %q", out)
	}
	// The error names the real tools so the model can correct itself.
	if !strings.Contains(out, "read_file") {
		t.Errorf("unknown-tool error should list available tools: %q", out)
	}
}

func TestExecuteMissingRequiredArgument(t *testing.T) {
	p, _ := newTestPipeline(t, config.ConfirmAuto)

	out, confirm := p.Execute(context.Background(), model.ToolCall{ID: "1", Name: "read_file", Arguments: map[string]any{}}, nil)
	if confirm {
		t.Error("validation failure should not ask for confirmation")
	}
	if !strings.Contains(out, `missing required argument "filepath"`) {
		t.Errorf("out = %q", out)
	}
}

func TestExecuteWrongArgumentType(t *testing.T) {
	p, _ := newTestPipeline(t, config.ConfirmAuto)

	call := model.ToolCall{ID: "1", Name: "read_file", Arguments: map[string]any{"filepath": 42}}
	out, _ := p.Execute(context.Background(), call, nil)
	if !strings.Contains(out, "must be a string") {
		t.Errorf("out = %q", out)
	}
}

func TestConfirmationGateDangerousPolicy(t *testing.T) {
	p, dir := newTestPipeline(t, config.ConfirmDangerous)
	path := filepath.Join(dir, "f.txt")
	call := model.ToolCall{ID: "c1", Name: "write_file", Arguments: map[string]any{"filepath": path, "content": "x"}}

	// No approval in history: suspend with the sentinel.
	out, confirm := p.Execute(context.Background(), call, nil)
	if !confirm {
		t.Fatal("dangerous tool should require confirmation")
	}
	want := model.ConfirmationPrefix + "write_file:c1"
	if out != want {
		t.Errorf("sentinel = %q, want %q", out, want)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("tool must not run before approval")
	}

	// Approval present: runs.
	history := []model.Message{
		{Role: "user", Content: model.ApproveToolPrefix + "write_file:c1"},
	}
	out, confirm = p.Execute(context.Background(), call, history)
	if confirm {
		t.Fatal("approved call should not re-suspend")
	}
	if !strings.Contains(out, "Successfully wrote") {
		t.Errorf("out = %q", out)
	}
}

func TestConfirmationGateDenial(t *testing.T) {
	p, dir := newTestPipeline(t, config.ConfirmDangerous)
	path := filepath.Join(dir, "f.txt")
	call := model.ToolCall{ID: "c2", Name: "delete_file", Arguments: map[string]any{"filepath": path}}

	history := []model.Message{
		{Role: "user", Content: model.DenyToolPrefix + "delete_file:c2"},
	}
	out, confirm := p.Execute(context.Background(), call, history)
	if confirm {
		t.Error("denied call should not re-suspend")
	}
	if !strings.Contains(out, "denied by user") {
		t.Errorf("out = %q", out)
	}
}

func TestConfirmationApprovalMustMatchCallID(t *testing.T) {
	p, dir := newTestPipeline(t, config.ConfirmDangerous)
	call := model.ToolCall{ID: "c3", Name: "write_file", Arguments: map[string]any{
		"filepath": filepath.Join(dir, "f.txt"), "content": "x",
	}}

	// Approval for a different call ID does not unlock this one.
	history := []model.Message{
		{Role: "user", Content: model.ApproveToolPrefix + "write_file:other"},
	}
	_, confirm := p.Execute(context.Background(), call, history)
	if !confirm {
		t.Error("approval for another call ID should not apply")
	}
}

func TestNewestVerdictWins(t *testing.T) {
	p, dir := newTestPipeline(t, config.ConfirmDangerous)
	call := model.ToolCall{ID: "c4", Name: "write_file", Arguments: map[string]any{
		"filepath": filepath.Join(dir, "f.txt"), "content": "x",
	}}

	history := []model.Message{
		{Role: "user", Content: model.ApproveToolPrefix + "write_file:c4"},
		{Role: "user", Content: model.DenyToolPrefix + "write_file:c4"},
	}
	out, confirm := p.Execute(context.Background(), call, history)
	if confirm {
		t.Error("should not re-suspend")
	}
	if !strings.Contains(out, "denied by user") {
		t.Errorf("later denial should win: %q", out)
	}
}

func TestConfirmAllPolicyGatesSafeTools(t *testing.T) {
	p, dir := newTestPipeline(t, config.ConfirmAll)
	os.WriteFile(filepath.Join(dir, "f.txt"), []byte("x"), 0644)
	call := model.ToolCall{ID: "c5", Name: "read_file", Arguments: map[string]any{
		"filepath": filepath.Join(dir, "f.txt"),
	}}

	_, confirm := p.Execute(context.Background(), call, nil)
	if !confirm {
		t.Error("confirm-all should gate read_file too")
	}
}

func TestConfirmAutoNeverGates(t *testing.T) {
	p, dir := newTestPipeline(t, config.ConfirmAuto)
	call := model.ToolCall{ID: "c6", Name: "write_file", Arguments: map[string]any{
		"filepath": filepath.Join(dir, "f.txt"), "content": "x",
	}}

	out, confirm := p.Execute(context.Background(), call, nil)
	if confirm {
		t.Error("auto policy should never gate")
	}
	if !strings.Contains(out, "Successfully wrote") {
		t.Errorf("out = %q", out)
	}
}

func TestExecuteTrustedSkipsGate(t *testing.T) {
	p, dir := newTestPipeline(t, config.ConfirmAll)
	call := model.ToolCall{ID: "c7", Name: "write_file", Arguments: map[string]any{
		"filepath": filepath.Join(dir, "report.md"), "content": "# Report",
	}}

	out := p.ExecuteTrusted(context.Background(), call)
	if !strings.Contains(out, "Successfully wrote") {
		t.Errorf("out = %q", out)
	}
}

func TestEnsureCallIDs(t *testing.T) {
	calls := []model.ToolCall{
		{ID: "keep", Name: "read_file"},
		{Name: "write_file"},
	}
	EnsureCallIDs(calls)
	if calls[0].ID != "keep" {
		t.Error("existing ID must be preserved")
	}
	if calls[1].ID == "" {
		t.Error("missing ID must be assigned")
	}
}

func TestExecuteTimeoutIsFoldedIntoResult(t *testing.T) {
	r, _ := newTestRegistry(t)
	p := NewPipeline(r, nil, config.ConfirmAuto, 100*time.Millisecond)

	call := model.ToolCall{ID: "c8", Name: "run_command", Arguments: map[string]any{"command": "sleep 5"}}
	out, confirm := p.Execute(context.Background(), call, nil)
	if confirm {
		t.Error("timeout should not ask for confirmation")
	}
	if !strings.Contains(out, "Command failed") {
		t.Errorf("out = %q", out)
	}
}

func TestSentinelFormat(t *testing.T) {
	// The UI parses this back; pin the exact shape.
	got := fmt.Sprintf("%s%s:%s", model.ConfirmationPrefix, "run_command", "abc")
	if got != "CONFIRMATION_REQUIRED:run_command:abc" {
		t.Errorf("sentinel = %q", got)
	}
}
