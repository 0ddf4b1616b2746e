package ui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"tinychat/chat"
	"tinychat/directive"
	"tinychat/model"
)

// eventDisplay forwards session progress to the UI as tea messages
type eventDisplay struct {
	events chan<- tea.Msg
}

func (d eventDisplay) Begin()                           { d.events <- replyBeginMsg{} }
func (d eventDisplay) Update(partial string)            { d.events <- replyPartialMsg{Text: partial} }
func (d eventDisplay) FunctionCall(call directive.Call) { d.events <- functionCallMsg{Call: call} }
func (d eventDisplay) FunctionResult(msg model.Message) { d.events <- functionResultMsg{Message: msg} }
func (d eventDisplay) Error(text string)                { d.events <- replyErrorMsg{Text: text} }
func (d eventDisplay) Done(final string)                { d.events <- replyDoneMsg{Final: final} }

// sessionFunc runs one session against a display
type sessionFunc func(ctx context.Context, display chat.Display) chat.Outcome

// runSession starts a session in the background; its events arrive on events,
// which is closed after the final sessionDoneMsg.
func runSession(conversationID string, events chan tea.Msg, run sessionFunc) tea.Cmd {
	return func() tea.Msg {
		out := run(context.Background(), eventDisplay{events: events})
		events <- sessionDoneMsg{ConversationID: conversationID, Outcome: out}
		close(events)
		return nil
	}
}

// waitForEvent delivers the next session event
func waitForEvent(events <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-events
		if !ok {
			return nil
		}
		return msg
	}
}

func waitForTitle(titles <-chan titleMsg) tea.Cmd {
	return func() tea.Msg {
		return <-titles
	}
}
