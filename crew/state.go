// Package crew implements the orchestration state machine: the router that
// picks the next role, the shared role execution contract, and the
// coder/executor/reviewer/documenter cycle driven by review status.
package crew

import (
	"crewtui/model"
)

// ReviewStatus is the reviewer's verdict driving the documenter back-edge.
type ReviewStatus string

const (
	ReviewNone     ReviewStatus = "none"
	ReviewApproved ReviewStatus = "approved"
	ReviewRejected ReviewStatus = "rejected"
)

// TurnState is the mutable record threaded through one router invocation.
// It is created fresh per turn and discarded at the terminal point; the
// only state surviving across turns is the conversation history itself.
type TurnState struct {
	History []model.Message

	TaskDescription string
	ReviewStatus    ReviewStatus
	NextRole        model.RoleID

	WaitingConfirmation bool
	PendingTool         model.ToolCall

	// CyclesLeft bounds the documenter -> coder back-edge. Decremented on
	// each rework loop; exhaustion ends the turn with a tagged message.
	CyclesLeft int
}

// append records new messages in order, keeping the history append-only.
func (s *TurnState) append(msgs ...model.Message) {
	s.History = append(s.History, msgs...)
}

// last returns the most recent message, or a zero Message for empty history.
func (s *TurnState) last() model.Message {
	if len(s.History) == 0 {
		return model.Message{}
	}
	return s.History[len(s.History)-1]
}
