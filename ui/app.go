// Package ui is the bubbletea chat surface: a viewport transcript, a
// textarea input, and the y/n confirmation prompt that feeds approval
// sentinels back into the crew engine.
package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"crewtui/config"
	"crewtui/crew"
	"crewtui/model"
	"crewtui/storage"
)

// tea messages
type committedMsg model.Message
type turnDoneMsg crew.TurnResult
type sessionSavedMsg struct{ err error }

type App struct {
	cfg      *config.Config
	engine   *crew.Engine
	sessions *storage.SessionStorage
	session  *storage.Session

	viewport viewport.Model
	textarea textarea.Model
	spinner  spinner.Model

	width  int
	height int
	ready  bool

	running     bool
	waiting     bool
	pendingTool model.ToolCall
	lastTask    string
	statusNote  string

	// live holds messages committed by the in-flight turn, rendered ahead
	// of the turn result for immediate feedback.
	live []model.Message

	// notifyCh carries messages committed by the engine mid-turn so the
	// transcript grows while the turn is still running.
	notifyCh chan model.Message
}

func NewApp(cfg *config.Config, engine *crew.Engine, sessions *storage.SessionStorage, session *storage.Session) *App {
	ta := textarea.New()
	ta.Placeholder = "Message the crew, or /task <description> to start a job..."
	ta.Focus()
	ta.CharLimit = 0
	ta.ShowLineNumbers = false
	ta.SetHeight(3)
	ta.SetWidth(80)
	ta.KeyMap.InsertNewline = key.NewBinding(key.WithKeys("alt+enter"))
	ta.SetPromptFunc(2, func(lineIdx int) string {
		if lineIdx == 0 {
			return "> "
		}
		return "| "
	})

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	app := &App{
		cfg:      cfg,
		engine:   engine,
		sessions: sessions,
		session:  session,
		textarea: ta,
		viewport: viewport.New(0, 0),
		spinner:  sp,
		notifyCh: make(chan model.Message, 64),
	}
	engine.Notify = func(msg model.Message) {
		app.notifyCh <- msg
	}
	return app
}

func (a *App) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, a.spinner.Tick, a.waitForCommit())
}

// waitForCommit relays one engine-committed message into the update loop.
func (a *App) waitForCommit() tea.Cmd {
	return func() tea.Msg {
		return committedMsg(<-a.notifyCh)
	}
}

// runTurn executes the crew engine for the current history. The blocking
// work happens inside the command goroutine; intermediate messages stream in
// through notifyCh.
func (a *App) runTurn() tea.Cmd {
	history := make([]model.Message, len(a.session.Messages))
	copy(history, a.session.Messages)

	return func() tea.Msg {
		return turnDoneMsg(a.engine.RunTurn(context.Background(), history))
	}
}

func (a *App) saveSession() tea.Cmd {
	session := a.session
	return func() tea.Msg {
		return sessionSavedMsg{err: a.sessions.Save(session)}
	}
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.textarea.SetWidth(msg.Width - 2)
		a.viewport.Width = msg.Width
		a.viewport.Height = msg.Height - a.textarea.Height() - 4
		a.ready = true
		a.refreshViewport(true)
		return a, nil

	case tea.KeyMsg:
		return a.handleKey(msg)

	case committedMsg:
		// Live feedback only; turnDoneMsg delivers the authoritative set.
		a.live = append(a.live, model.Message(msg))
		a.refreshViewport(true)
		return a, a.waitForCommit()

	case turnDoneMsg:
		a.running = false
		a.live = nil
		a.session.Messages = append(a.session.Messages, msg.Messages...)
		a.waiting = msg.WaitingConfirmation
		a.pendingTool = msg.PendingTool
		a.lastTask = msg.Task
		a.refreshViewport(true)
		return a, a.saveSession()

	case sessionSavedMsg:
		if msg.err != nil {
			a.statusNote = fmt.Sprintf("save failed: %v", msg.err)
		} else {
			a.statusNote = ""
		}
		return a, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd
	}

	var cmd tea.Cmd
	a.textarea, cmd = a.textarea.Update(msg)
	return a, cmd
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "alt+q", "ctrl+c":
		return a, tea.Quit
	}

	// Confirmation prompt intercepts y/n while a tool is pending.
	if a.waiting && !a.running {
		switch msg.String() {
		case "y", "Y":
			return a.answerConfirmation(true)
		case "n", "N":
			return a.answerConfirmation(false)
		}
		return a, nil
	}

	if msg.String() == "enter" && !a.running {
		text := strings.TrimSpace(a.textarea.Value())
		if text == "" {
			return a, nil
		}
		a.textarea.Reset()
		return a.submit(text)
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	a.textarea, cmd = a.textarea.Update(msg)
	cmds = append(cmds, cmd)
	a.viewport, cmd = a.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return a, tea.Batch(cmds...)
}

func (a *App) submit(text string) (tea.Model, tea.Cmd) {
	if a.session.Name == "" {
		a.session.Name = storage.GenerateSessionName(text)
	}

	a.session.Messages = append(a.session.Messages, model.Message{
		Role:      "user",
		Content:   text,
		Timestamp: time.Now(),
	})
	a.running = true
	a.refreshViewport(true)
	return a, tea.Batch(a.runTurn(), a.spinner.Tick)
}

// answerConfirmation appends the approval sentinel and resumes the suspended
// turn. The sentinel is an ordinary user message: the router and the pipeline
// both read it straight from the history.
func (a *App) answerConfirmation(approved bool) (tea.Model, tea.Cmd) {
	prefix := model.DenyToolPrefix
	if approved {
		prefix = model.ApproveToolPrefix
	}

	a.session.Messages = append(a.session.Messages, model.Message{
		Role:      "user",
		Content:   fmt.Sprintf("%s%s:%s", prefix, a.pendingTool.Name, a.pendingTool.ID),
		Timestamp: time.Now(),
	})
	a.waiting = false
	a.pendingTool = model.ToolCall{}
	a.running = true
	a.refreshViewport(true)
	return a, tea.Batch(a.runTurn(), a.spinner.Tick)
}

func (a *App) View() string {
	if !a.ready {
		return "Loading crewtui..."
	}

	title := TitleStyle.Render("crewtui") +
		DimStyle.Render(fmt.Sprintf(" - %s", a.engine.ProviderName()))
	if a.session.Name != "" {
		title += UserStyle.Render(fmt.Sprintf(" - %s", a.session.Name))
	}
	if a.lastTask != "" {
		title += DimStyle.Render(fmt.Sprintf(" | task: %s", truncateTitle(a.lastTask, 40)))
	}

	var footer string
	switch {
	case a.waiting:
		footer = ConfirmStyle.Render(fmt.Sprintf(
			"Tool %q wants to run (call %s). Allow?  [y]es  [n]o",
			a.pendingTool.Name, a.pendingTool.ID))
	case a.running:
		footer = StatusStyle.Render(a.spinner.View() + " crew is working...")
	default:
		footer = StatusStyle.Render(FormatFooter(
			"Enter", "Send", "Alt+Enter", "New Line", "/task", "Start Crew", "Alt+Q", "Quit"))
	}
	if a.statusNote != "" {
		footer += "  " + AlertStyle.Render(a.statusNote)
	}

	return lipgloss.JoinVertical(
		lipgloss.Left,
		title,
		"",
		a.viewport.View(),
		a.textarea.View(),
		footer,
	)
}

func truncateTitle(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
