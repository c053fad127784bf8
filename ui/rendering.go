package ui

import (
	"fmt"
	"strings"

	markdown "github.com/MichaelMure/go-term-markdown"
	gomarkdown "github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/parser"

	"crewtui/model"
)

const toolResultDisplayLimit = 300

// refreshViewport rebuilds the transcript from the session history plus any
// live mid-turn messages.
func (a *App) refreshViewport(gotoBottom bool) {
	if !a.ready {
		return
	}

	msgs := a.session.Messages
	if len(a.live) > 0 {
		msgs = append(append([]model.Message{}, msgs...), a.live...)
	}

	if len(msgs) == 0 {
		a.viewport.SetContent("No messages yet. Say hello, or start a job with /task.")
		return
	}

	var b strings.Builder
	for _, msg := range msgs {
		b.WriteString(a.renderMessage(msg))
	}

	a.viewport.SetContent(b.String())
	if gotoBottom {
		a.viewport.GotoBottom()
	}
}

func (a *App) renderMessage(msg model.Message) string {
	timestamp := DimStyle.Render(msg.Timestamp.Format("[15:04]"))

	switch msg.Role {
	case "user":
		// Approval sentinels render as a short notice instead of raw text.
		if name, _, approved, ok := model.ParseApproval(msg.Content); ok {
			verdict := "denied"
			if approved {
				verdict = "approved"
			}
			return fmt.Sprintf("%s %s\n\n", timestamp, DimStyle.Render(fmt.Sprintf("(you %s tool %s)", verdict, name)))
		}
		return fmt.Sprintf("%s %s\n%s\n\n", timestamp, UserStyle.Render("You"), msg.Content)

	case "assistant":
		if msg.ContainsAlert() {
			return fmt.Sprintf("%s %s\n%s\n\n", timestamp, AlertStyle.Render("Alert"), AlertStyle.Render(msg.Content))
		}

		sender := msg.Sender
		if sender == "" {
			sender = model.RoleFromPrefix(msg.Content)
		}
		badge := roleStyle(sender).Render(sender.DisplayName())

		content := msg.Content
		if content == "" && len(msg.ToolCalls) > 0 {
			content = DimStyle.Render(describeCalls(msg.ToolCalls))
		} else {
			content = a.renderMarkdown(content)
		}
		return fmt.Sprintf("%s %s\n%s\n\n", timestamp, badge, content)

	case "tool":
		preview := msg.Content
		if len(preview) > toolResultDisplayLimit {
			preview = preview[:toolResultDisplayLimit] + "..."
		}
		header := DimStyle.Render(fmt.Sprintf("tool %s:", msg.ToolName))
		return fmt.Sprintf("%s %s\n%s\n\n", timestamp, header, DimStyle.Render(preview))
	}

	return ""
}

func (a *App) renderMarkdown(content string) string {
	width := a.width - 4
	if width < 20 {
		width = 20
	}

	// Autolink stays off so plain URLs pass through untouched and the
	// terminal emulator keeps them clickable.
	ext := markdown.Extensions() &^ parser.Autolink
	p := parser.NewWithExtensions(ext)
	r := markdown.NewRenderer(width, 0)
	doc := p.Parse([]byte(content))
	return strings.TrimRight(string(gomarkdown.Render(doc, r)), "\n")
}

func describeCalls(calls []model.ToolCall) string {
	names := make([]string, 0, len(calls))
	for _, c := range calls {
		names = append(names, c.Name)
	}
	return fmt.Sprintf("(calling: %s)", strings.Join(names, ", "))
}
