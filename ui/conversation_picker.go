package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"tinychat/config"
	"tinychat/model"
	"tinychat/storage"
)

type conversationPicker struct {
	visible       bool
	filter        textinput.Model
	list          []storage.ConversationMetadata
	selected      int
	confirmDelete bool
	err           string
}

func newConversationPicker() conversationPicker {
	filter := textinput.New()
	filter.Prompt = "Filter: "
	filter.CharLimit = 64
	return conversationPicker{filter: filter}
}

func (p *conversationPicker) open() {
	p.visible = true
	p.selected = 0
	p.confirmDelete = false
	p.err = ""
	p.filter.SetValue("")
	p.filter.Focus()
}

func (p *conversationPicker) close() {
	p.visible = false
	p.confirmDelete = false
	p.filter.Blur()
}

func (p conversationPicker) current() (storage.ConversationMetadata, bool) {
	if p.selected < 0 || p.selected >= len(p.list) {
		return storage.ConversationMetadata{}, false
	}
	return p.list[p.selected], true
}

func (a AppView) fetchConversations(query string) tea.Cmd {
	store := a.store
	return func() tea.Msg {
		var (
			list []storage.ConversationMetadata
			err  error
		)
		if strings.TrimSpace(query) == "" {
			list, err = store.List()
		} else {
			list, err = store.FindByTitle(query)
		}
		return conversationsListMsg{Conversations: list, Err: err}
	}
}

func (a AppView) loadConversation(id string) tea.Cmd {
	store := a.store
	return func() tea.Msg {
		conv, err := store.Load(id)
		return conversationLoadedMsg{Conversation: conv, Err: err}
	}
}

func (a AppView) handlePickerKey(msg tea.KeyMsg) (AppView, tea.Cmd) {
	p := &a.picker

	if p.confirmDelete {
		switch msg.String() {
		case "y", "Y":
			return a.deleteSelected()
		default:
			p.confirmDelete = false
		}
		return a, nil
	}

	switch msg.String() {
	case "esc":
		p.close()
		return a, nil
	case "up", "ctrl+p":
		if p.selected > 0 {
			p.selected--
		}
		return a, nil
	case "down", "ctrl+n":
		if p.selected < len(p.list)-1 {
			p.selected++
		}
		return a, nil
	case "enter":
		if meta, ok := p.current(); ok {
			return a, a.loadConversation(meta.ID)
		}
		return a, nil
	case "ctrl+d":
		if _, ok := p.current(); ok {
			p.confirmDelete = true
		}
		return a, nil
	}

	var cmd tea.Cmd
	before := p.filter.Value()
	p.filter, cmd = p.filter.Update(msg)
	if p.filter.Value() != before {
		p.selected = 0
		return a, tea.Batch(cmd, a.fetchConversations(p.filter.Value()))
	}
	return a, cmd
}

func (a AppView) deleteSelected() (AppView, tea.Cmd) {
	p := &a.picker
	p.confirmDelete = false

	meta, ok := p.current()
	if !ok {
		return a, nil
	}
	if err := a.store.Delete(meta.ID); err != nil {
		p.err = err.Error()
		return a, nil
	}
	if config.DebugLog != nil {
		config.DebugLog.Printf("[UI] Deleted conversation %s", meta.ID)
	}

	if a.conv != nil && a.conv.ID == meta.ID {
		conv, err := a.store.Create(model.DefaultTitle)
		if err != nil {
			p.err = err.Error()
			return a, nil
		}
		a.setConversation(conv)
		if err := a.store.SaveCurrentID(conv.ID); err != nil && config.DebugLog != nil {
			config.DebugLog.Printf("[UI] Failed to save current conversation: %v", err)
		}
		a.updateViewportContent(true)
	}
	return a, a.fetchConversations(p.filter.Value())
}

func (a AppView) handlePickerMessage(msg tea.Msg) (AppView, tea.Cmd) {
	switch msg := msg.(type) {
	case conversationsListMsg:
		if msg.Err != nil {
			a.picker.err = msg.Err.Error()
			return a, nil
		}
		a.picker.err = ""
		a.picker.list = msg.Conversations
		if a.picker.selected >= len(a.picker.list) {
			a.picker.selected = max(len(a.picker.list)-1, 0)
		}

	case conversationLoadedMsg:
		if msg.Err != nil {
			if a.search.visible {
				a.search.err = msg.Err.Error()
			} else {
				a.picker.err = msg.Err.Error()
			}
			return a, nil
		}
		a.picker.close()
		a.search.close()
		a.setConversation(msg.Conversation)
		if err := a.store.SaveCurrentID(msg.Conversation.ID); err != nil && config.DebugLog != nil {
			config.DebugLog.Printf("[UI] Failed to save current conversation: %v", err)
		}
		a.updateViewportContent(true)
		return a, a.renderAllMarkdown()
	}
	return a, nil
}

func (p conversationPicker) render(currentID string, width, height int) string {
	modalWidth := min(width-10, 100)
	maxLines := max(height-14, 3)

	if p.confirmDelete {
		meta, _ := p.current()
		body := fmt.Sprintf("Delete %q?\n\n%s\n\n%s",
			meta.Title,
			lipgloss.NewStyle().Foreground(dangerColor).Render("This action cannot be undone."),
			FormatFooter("y", "Delete", "any key", "Cancel"))
		box := lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(dangerColor).
			Padding(1, 2)
		return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, box.Render(body))
	}

	titleSection := lipgloss.NewStyle().
		Bold(true).
		Align(lipgloss.Center).
		Width(modalWidth).
		Render("Conversations")

	headerSection := lipgloss.NewStyle().
		Foreground(dimColor).
		Width(modalWidth).
		BorderTop(true).
		BorderBottom(true).
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(dimColor).
		Render(p.filter.View())

	var lines []string
	if len(p.list) == 0 {
		emptyMsg := "No conversations yet"
		if p.filter.Value() != "" {
			emptyMsg = "No matches found"
		}
		lines = append(lines, lipgloss.NewStyle().
			Foreground(dimColor).
			Italic(true).
			Align(lipgloss.Center).
			Width(modalWidth).
			Render(emptyMsg))
	}

	start := 0
	if p.selected >= maxLines {
		start = p.selected - maxLines + 1
	}
	for i := start; i < len(p.list) && i < start+maxLines; i++ {
		lines = append(lines, renderConversationLine(p.list[i], i == p.selected, p.list[i].ID == currentID, modalWidth))
	}

	if p.err != "" {
		lines = append(lines, "", ErrorStyle.Render(p.err))
	}

	footer := FormatFooter("Type", "Filter", "↑/↓", "Navigate", "Enter", "Open", "Ctrl+D", "Delete", "Esc", "Close")

	content := lipgloss.JoinVertical(
		lipgloss.Left,
		titleSection,
		headerSection,
		strings.Join(lines, "\n"),
		"",
		footer,
	)

	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(dimColor).
		Padding(1, 2)
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, box.Render(content))
}

func renderConversationLine(meta storage.ConversationMetadata, selected, current bool, width int) string {
	indicator := "  "
	if selected {
		indicator = "▶ "
	}

	msgCount := fmt.Sprintf("%d msgs", meta.MessageCount)
	if meta.MessageCount == 1 {
		msgCount = "1 msg"
	}
	rightSide := fmt.Sprintf("%s  %8s", msgCount, formatTimeAgo(meta.UpdatedAt))

	nameWidth := max(width-4-len(indicator)-len(rightSide)-2, 8)
	name := runewidth.Truncate(meta.Title, nameWidth, "...")
	spacing := max(width-4-len(indicator)-runewidth.StringWidth(name)-len(rightSide), 1)

	switch {
	case selected:
		name = lipgloss.NewStyle().Foreground(successColor).Bold(true).Render(name)
	case current:
		name = lipgloss.NewStyle().Foreground(accentColor).Bold(true).Render(name)
	}

	return indicator + name + strings.Repeat(" ", spacing) + DimStyle.Render(rightSide)
}

func formatTimeAgo(t time.Time) string {
	duration := time.Since(t)

	switch {
	case duration < time.Minute:
		return "just now"
	case duration < time.Hour:
		return fmt.Sprintf("%dm ago", int(duration.Minutes()))
	case duration < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(duration.Hours()))
	case duration < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(duration.Hours()/24))
	case duration < 30*24*time.Hour:
		return fmt.Sprintf("%dw ago", int(duration.Hours()/24/7))
	}
	return fmt.Sprintf("%dmo ago", int(duration.Hours()/24/30))
}
