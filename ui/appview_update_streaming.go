package ui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"tinychat/chat"
	"tinychat/config"
	"tinychat/model"
)

// handleSessionEvent applies one event of the running session
func (a AppView) handleSessionEvent(msg tea.Msg) (AppView, tea.Cmd) {
	next := waitForEvent(a.events)

	switch msg := msg.(type) {
	case replyBeginMsg:
		a.partial = ""
		a.updateStreamingMessage()
		return a, next

	case replyPartialMsg:
		a.partial = msg.Text
		a.updateStreamingMessage()
		return a, next

	case functionCallMsg:
		var cmd tea.Cmd
		if a.partial != "" {
			cmd = a.appendEntry(entry{Role: model.RoleAssistant, Content: a.partial, Timestamp: time.Now()})
		}
		a.partial = ""
		a.executingFunction = msg.Call.Name
		a.entries = append(a.entries, entry{
			Role:      roleSystem,
			Content:   "Calling " + msg.Call.Summary(),
			Timestamp: time.Now(),
		})
		a.updateStreamingMessage()
		return a, tea.Batch(cmd, next)

	case functionResultMsg:
		a.executingFunction = ""
		a.entries = append(a.entries, entryFromMessage(msg.Message))
		a.updateStreamingMessage()
		return a, next

	case replyErrorMsg:
		if config.DebugLog != nil {
			config.DebugLog.Printf("[UI] Session error: %s", msg.Text)
		}
		a.partial = ""
		a.entries = append(a.entries, entry{Role: roleSystem, Content: msg.Text, Timestamp: time.Now()})
		a.updateStreamingMessage()
		return a, next

	case replyDoneMsg:
		a.partial = ""
		var cmd tea.Cmd
		if msg.Final != "" {
			cmd = a.appendEntry(entry{Role: model.RoleAssistant, Content: msg.Final, Timestamp: time.Now()})
		}
		a.updateStreamingMessage()
		return a, tea.Batch(cmd, next)

	case sessionDoneMsg:
		a.streaming = false
		a.executingFunction = ""
		a.partial = ""
		a.events = nil

		out := msg.Outcome
		switch {
		case out.Kind == chat.OutcomeCancelled:
			a.status = DimStyle.Render("Generation stopped")
		case out.HopLimitReached:
			a.entries = append(a.entries, entry{
				Role:      roleSystem,
				Content:   fmt.Sprintf("Stopped after %d function calls", out.Hops),
				Timestamp: time.Now(),
			})
		case out.Failure == chat.FailureRejected:
			a.status = ErrorStyle.Render(out.Err.Error())
		}
		a.updateViewportContent(true)
		return a, nil
	}

	return a, next
}

// appendEntry adds a finished message and renders its markdown in the background
func (a *AppView) appendEntry(e entry) tea.Cmd {
	e.Rendered = e.Content
	a.entries = append(a.entries, e)
	return a.renderMarkdownAsync(len(a.entries)-1, e.Content)
}
