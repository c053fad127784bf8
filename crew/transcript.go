package crew

import (
	"fmt"
	"strings"

	"crewtui/model"
)

const toolResultPreviewLimit = 500

// RenderTranscript formats the history with sender labels for inclusion in a
// crew role's prompt. Tool results are included in truncated form so the
// roles can see what the tools actually returned.
func RenderTranscript(history []model.Message) string {
	var parts []string

	for _, msg := range history {
		switch msg.Role {
		case "user":
			// Approval sentinels are control traffic, not conversation.
			if _, _, _, ok := model.ParseApproval(msg.Content); ok {
				continue
			}
			parts = append(parts, fmt.Sprintf("[User]: %s", msg.Content))

		case "assistant":
			sender := msg.Sender
			if sender == "" {
				sender = model.RoleFromPrefix(msg.Content)
			}
			content := msg.Content
			if content == "" && len(msg.ToolCalls) > 0 {
				content = describeToolCalls(msg.ToolCalls)
			}
			parts = append(parts, fmt.Sprintf("[%s]: %s", sender.DisplayName(), content))

		case "tool":
			preview := msg.Content
			if len(preview) > toolResultPreviewLimit {
				preview = preview[:toolResultPreviewLimit] + "..."
			}
			parts = append(parts, fmt.Sprintf("[Tool %s]: %s", msg.ToolName, preview))
		}
	}

	return strings.Join(parts, "\n\n")
}

func describeToolCalls(calls []model.ToolCall) string {
	names := make([]string, 0, len(calls))
	for _, c := range calls {
		names = append(names, c.Name)
	}
	return fmt.Sprintf("(requested tools: %s)", strings.Join(names, ", "))
}
