package ui

import (
	"context"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"

	"tinychat/chat"
	"tinychat/config"
	"tinychat/model"
)

func (a AppView) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		cmd  tea.Cmd
		cmds []tea.Cmd
	)

	// Spinner animates while waiting for the first character or a function result
	if _, ok := msg.(tea.KeyMsg); !ok && a.streaming {
		a.loadingSpinner, cmd = a.loadingSpinner.Update(msg)
		cmds = append(cmds, cmd)
		if a.partial == "" || a.executingFunction != "" {
			a.updateStreamingMessage()
		}
	}

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height

		// Reserve space for title (1 line), separator (1 line), textarea (3 lines), and status bar (1 line)
		a.viewport.Width = a.width
		a.viewport.Height = max(a.height-6, 1)
		a.textarea.SetWidth(a.width)

		a.ready = true
		a.updateViewportContent(true)
		return a, tea.Batch(append(cmds, a.renderAllMarkdown())...)

	case tea.KeyMsg:
		var handled bool
		a, cmd, handled = a.handleKey(msg)
		if handled {
			return a, tea.Batch(append(cmds, cmd)...)
		}

	case replyBeginMsg, replyPartialMsg, functionCallMsg, functionResultMsg, replyErrorMsg, replyDoneMsg, sessionDoneMsg:
		a, cmd = a.handleSessionEvent(msg)
		return a, tea.Batch(append(cmds, cmd)...)

	case titleMsg:
		if a.conv != nil && a.conv.ID == msg.ConversationID {
			a.conv.Title = msg.Title
		}
		return a, tea.Batch(append(cmds, waitForTitle(a.titles))...)

	case healthMsg:
		a.offline = msg.Err != nil
		if a.offline && config.DebugLog != nil {
			config.DebugLog.Printf("[UI] Backend health check failed: %v", msg.Err)
		}
		return a, tea.Batch(cmds...)

	case markdownRenderedMsg:
		if msg.EntryIndex >= 0 && msg.EntryIndex < len(a.entries) {
			a.entries[msg.EntryIndex].Rendered = msg.Rendered
			if !a.streaming {
				a.updateViewportContent(true)
			}
		}
		return a, tea.Batch(cmds...)

	case searchResultsMsg:
		a = a.handleSearchResults(msg)
		return a, tea.Batch(cmds...)

	case conversationsListMsg, conversationLoadedMsg:
		a, cmd = a.handlePickerMessage(msg)
		return a, tea.Batch(append(cmds, cmd)...)
	}

	if !a.picker.visible && !a.search.visible && !a.showHelp {
		a.textarea, cmd = a.textarea.Update(msg)
		cmds = append(cmds, cmd)
		a.viewport, cmd = a.viewport.Update(msg)
		cmds = append(cmds, cmd)
	}

	return a, tea.Batch(cmds...)
}

// handleKey processes global shortcuts; unhandled keys reach the textarea
func (a AppView) handleKey(msg tea.KeyMsg) (AppView, tea.Cmd, bool) {
	if msg.String() == "ctrl+c" {
		if a.streaming {
			a.orchestrator.Cancel(a.conv.ID)
		}
		return a, tea.Quit, true
	}

	if a.showHelp {
		if msg.String() == "esc" || msg.String() == "alt+h" {
			a.showHelp = false
		}
		return a, nil, true
	}

	if a.picker.visible {
		a, cmd := a.handlePickerKey(msg)
		return a, cmd, true
	}

	if a.search.visible {
		a, cmd := a.handleSearchKey(msg)
		return a, cmd, true
	}

	switch msg.String() {
	case "alt+h":
		a.showHelp = true
		return a, nil, true

	case "esc":
		if a.streaming && a.orchestrator.Cancel(a.conv.ID) {
			if config.DebugLog != nil {
				config.DebugLog.Printf("[UI] Generation cancelled by user")
			}
		}
		return a, nil, true

	case "enter":
		a, cmd := a.send()
		return a, cmd, true

	case "ctrl+r":
		a, cmd := a.regenerate()
		return a, cmd, true

	case "ctrl+y":
		for i := len(a.entries) - 1; i >= 0; i-- {
			if a.entries[i].Role == model.RoleAssistant && a.entries[i].Content != "" {
				if err := clipboard.WriteAll(a.entries[i].Content); err != nil {
					a.status = ErrorStyle.Render("Copy failed: " + err.Error())
				} else {
					a.status = DimStyle.Render("Copied last response")
				}
				break
			}
		}
		return a, nil, true

	case "ctrl+n":
		if a.streaming {
			return a, nil, true
		}
		conv, err := a.store.Create(model.DefaultTitle)
		if err != nil {
			a.status = ErrorStyle.Render("Could not create conversation: " + err.Error())
			return a, nil, true
		}
		a.setConversation(conv)
		if err := a.store.SaveCurrentID(conv.ID); err != nil && config.DebugLog != nil {
			config.DebugLog.Printf("[UI] Failed to save current conversation: %v", err)
		}
		a.updateViewportContent(true)
		return a, nil, true

	case "ctrl+o":
		if a.streaming {
			return a, nil, true
		}
		a.picker.open()
		return a, a.fetchConversations(""), true

	case "ctrl+f":
		if a.streaming {
			return a, nil, true
		}
		a.search.open()
		return a, nil, true
	}

	return a, nil, false
}

func (a AppView) send() (AppView, tea.Cmd) {
	text := strings.TrimSpace(a.textarea.Value())
	if text == "" || a.streaming {
		return a, nil
	}
	a.textarea.Reset()

	a.entries = append(a.entries, entry{Role: model.RoleUser, Content: text, Rendered: text, Timestamp: time.Now()})
	id := a.conv.ID
	return a.startSession(func(ctx context.Context, display chat.Display) chat.Outcome {
		return a.orchestrator.Submit(ctx, id, text, display)
	})
}

func (a AppView) regenerate() (AppView, tea.Cmd) {
	if a.streaming {
		return a, nil
	}

	last := -1
	for i := len(a.entries) - 1; i >= 0; i-- {
		if a.entries[i].Role == model.RoleUser {
			last = i
			break
		}
	}
	if last < 0 {
		a.status = DimStyle.Render("Nothing to regenerate")
		return a, nil
	}
	a.entries = a.entries[:last+1]

	id := a.conv.ID
	return a.startSession(func(ctx context.Context, display chat.Display) chat.Outcome {
		return a.orchestrator.Regenerate(ctx, id, display)
	})
}

func (a AppView) startSession(run sessionFunc) (AppView, tea.Cmd) {
	a.streaming = true
	a.partial = ""
	a.status = ""
	a.events = make(chan tea.Msg, 64)
	a.updateStreamingMessage()

	return a, tea.Batch(
		runSession(a.conv.ID, a.events, run),
		waitForEvent(a.events),
		a.loadingSpinner.Tick,
	)
}
