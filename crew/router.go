package crew

import (
	"strings"

	"crewtui/model"
)

// Decision is the router's output: which role runs next and, when a task
// command was just parsed, the fresh task description.
type Decision struct {
	NextRole model.RoleID
	Task     string
	NewTask  bool
}

// Route inspects the history and picks the next role.
//
// A /task user message starts (or restarts) the crew loop at the coder. A
// tool result or an approval/denial sentinel is a continuation: the turn
// resumes at the role that authored the most recent assistant message, so it
// can pick up its pending tool call. Everything else is plain conversation
// and goes to the coordinator.
func Route(history []model.Message) Decision {
	if len(history) == 0 {
		return Decision{NextRole: model.RoleCoordinator}
	}

	last := history[len(history)-1]
	text := strings.TrimSpace(last.Content)

	if last.Role == "user" && strings.HasPrefix(text, model.TaskCommand) {
		task := strings.TrimSpace(strings.TrimPrefix(text, model.TaskCommand))
		return Decision{NextRole: model.RoleCoder, Task: task, NewTask: true}
	}

	if isContinuation(last) {
		return Decision{
			NextRole: pendingRole(history),
			Task:     lastTask(history),
		}
	}

	return Decision{NextRole: model.RoleCoordinator, Task: lastTask(history)}
}

func isContinuation(last model.Message) bool {
	if last.IsToolResult() {
		return true
	}
	if last.Role != "user" {
		return false
	}
	_, _, _, ok := model.ParseApproval(last.Content)
	return ok
}

// pendingRole finds the author of the most recent assistant message. The
// continuation always belongs to that message's sender: a tool result or
// approval answers the pending calls of the immediately preceding assistant
// turn, never those of an older one.
func pendingRole(history []model.Message) model.RoleID {
	for i := len(history) - 1; i >= 0; i-- {
		msg := history[i]
		if msg.Role != "assistant" {
			continue
		}
		if msg.Sender != "" {
			return msg.Sender
		}
		// Pre-Sender histories fall back to the display prefix.
		return model.RoleFromPrefix(msg.Content)
	}
	return model.RoleCoordinator
}

// lastTask recovers the most recent task description so multi-turn crew
// tasks survive interleaved conversation.
func lastTask(history []model.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		msg := history[i]
		if msg.Role != "user" {
			continue
		}
		text := strings.TrimSpace(msg.Content)
		if strings.HasPrefix(text, model.TaskCommand) {
			return strings.TrimSpace(strings.TrimPrefix(text, model.TaskCommand))
		}
	}
	return ""
}
