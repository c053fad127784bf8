package crew

import (
	"testing"

	"crewtui/model"
)

func TestRouteEmptyHistory(t *testing.T) {
	d := Route(nil)
	if d.NextRole != model.RoleCoordinator {
		t.Errorf("NextRole = %q, want coordinator", d.NextRole)
	}
}

func TestRouteTaskCommand(t *testing.T) {
	history := []model.Message{
		{Role: "user", Content: "  /task Create hello.txt containing 'hi'  "},
	}

	d := Route(history)
	if d.NextRole != model.RoleCoder {
		t.Errorf("NextRole = %q, want coder", d.NextRole)
	}
	if d.Task != "Create hello.txt containing 'hi'" {
		t.Errorf("Task = %q", d.Task)
	}
	if !d.NewTask {
		t.Error("NewTask should be set")
	}
}

func TestRouteTaskRestartMidCrew(t *testing.T) {
	history := []model.Message{
		{Role: "user", Content: "/task first thing"},
		{Role: "assistant", Sender: model.RoleCoder, Content: "Coder: plan"},
		{Role: "user", Content: "/task second thing"},
	}

	d := Route(history)
	if d.NextRole != model.RoleCoder || d.Task != "second thing" {
		t.Errorf("got role=%q task=%q", d.NextRole, d.Task)
	}
}

func TestRoutePlainMessageGoesToCoordinator(t *testing.T) {
	history := []model.Message{
		{Role: "user", Content: "what does this repo do?"},
	}

	d := Route(history)
	if d.NextRole != model.RoleCoordinator {
		t.Errorf("NextRole = %q, want coordinator", d.NextRole)
	}
}

func TestRouteContinuationUsesImmediatelyPrecedingAssistant(t *testing.T) {
	// The tool result answers the reviewer's pending call, even though an
	// older coder message is also in the history.
	history := []model.Message{
		{Role: "user", Content: "/task fix the bug"},
		{Role: "assistant", Sender: model.RoleCoder, Content: "Coder: patch below"},
		{Role: "assistant", Sender: model.RoleReviewer, Content: "Reviewer: needs changes",
			ToolCalls: []model.ToolCall{{ID: "r1", Name: "read_file"}}},
		{Role: "tool", ToolCallID: "r1", ToolName: "read_file", Content: "package main"},
	}

	d := Route(history)
	if d.NextRole != model.RoleReviewer {
		t.Errorf("NextRole = %q, want reviewer (author of the preceding assistant message)", d.NextRole)
	}
}

func TestRouteApprovalResumesPendingRole(t *testing.T) {
	history := []model.Message{
		{Role: "user", Content: "/task write the file"},
		{Role: "assistant", Sender: model.RoleExecutor, Content: "Executor: saving now",
			ToolCalls: []model.ToolCall{{ID: "w1", Name: "write_file"}}},
		{Role: "user", Content: model.ApproveToolPrefix + "write_file:w1"},
	}

	d := Route(history)
	if d.NextRole != model.RoleExecutor {
		t.Errorf("NextRole = %q, want executor", d.NextRole)
	}
	if d.Task != "write the file" {
		t.Errorf("Task = %q, continuation must preserve the task", d.Task)
	}
}

func TestRouteDenialAlsoResumes(t *testing.T) {
	history := []model.Message{
		{Role: "assistant", Sender: model.RoleCoordinator, Content: "running it",
			ToolCalls: []model.ToolCall{{ID: "c1", Name: "run_command"}}},
		{Role: "user", Content: model.DenyToolPrefix + "run_command:c1"},
	}

	d := Route(history)
	if d.NextRole != model.RoleCoordinator {
		t.Errorf("NextRole = %q, want coordinator", d.NextRole)
	}
}

func TestRouteContinuationPrefixFallback(t *testing.T) {
	// Histories persisted before the Sender field rely on the display prefix.
	history := []model.Message{
		{Role: "assistant", Content: "Executor: writing files",
			ToolCalls: []model.ToolCall{{ID: "x1", Name: "write_file"}}},
		{Role: "tool", ToolCallID: "x1", ToolName: "write_file", Content: "done"},
	}

	d := Route(history)
	if d.NextRole != model.RoleExecutor {
		t.Errorf("NextRole = %q, want executor from prefix", d.NextRole)
	}
}

func TestRouteTaskPreservedAcrossConversation(t *testing.T) {
	history := []model.Message{
		{Role: "user", Content: "/task build the parser"},
		{Role: "assistant", Sender: model.RoleCoder, Content: "Coder: working"},
		{Role: "user", Content: "how is it going?"},
	}

	d := Route(history)
	if d.NextRole != model.RoleCoordinator {
		t.Errorf("NextRole = %q", d.NextRole)
	}
	if d.Task != "build the parser" {
		t.Errorf("Task = %q, should be preserved from earlier /task", d.Task)
	}
}
