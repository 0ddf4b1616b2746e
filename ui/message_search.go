package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"tinychat/model"
	"tinychat/storage"
)

// messageSearch searches message text across every conversation
type messageSearch struct {
	visible  bool
	input    textinput.Model
	results  []storage.MessageMatch
	selected int
	err      string
}

func newMessageSearch() messageSearch {
	input := textinput.New()
	input.Prompt = "Search: "
	input.CharLimit = 128
	return messageSearch{input: input}
}

func (s *messageSearch) open() {
	s.visible = true
	s.results = nil
	s.selected = 0
	s.err = ""
	s.input.SetValue("")
	s.input.Focus()
}

func (s *messageSearch) close() {
	s.visible = false
	s.input.Blur()
}

func (a AppView) searchMessages(query string) tea.Cmd {
	store := a.store
	return func() tea.Msg {
		matches, err := store.SearchMessages(query)
		return searchResultsMsg{Query: query, Matches: matches, Err: err}
	}
}

func (a AppView) handleSearchKey(msg tea.KeyMsg) (AppView, tea.Cmd) {
	s := &a.search

	switch msg.String() {
	case "esc":
		s.close()
		return a, nil
	case "up", "ctrl+p":
		if s.selected > 0 {
			s.selected--
		}
		return a, nil
	case "down", "ctrl+n":
		if s.selected < len(s.results)-1 {
			s.selected++
		}
		return a, nil
	case "enter":
		if s.selected >= 0 && s.selected < len(s.results) {
			return a, a.loadConversation(s.results[s.selected].ConversationID)
		}
		return a, nil
	}

	var cmd tea.Cmd
	before := s.input.Value()
	s.input, cmd = s.input.Update(msg)
	if s.input.Value() != before {
		s.selected = 0
		return a, tea.Batch(cmd, a.searchMessages(s.input.Value()))
	}
	return a, cmd
}

func (a AppView) handleSearchResults(msg searchResultsMsg) AppView {
	// Results for a query the user has already typed past are dropped
	if msg.Query != a.search.input.Value() {
		return a
	}
	if msg.Err != nil {
		a.search.err = msg.Err.Error()
		return a
	}
	a.search.err = ""
	a.search.results = msg.Matches
	if a.search.selected >= len(msg.Matches) {
		a.search.selected = max(len(msg.Matches)-1, 0)
	}
	return a
}

func (s messageSearch) render(width, height int) string {
	modalWidth := min(width-4, 100)

	modalStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(dimColor).
		Padding(1, 2)

	title := TitleStyle.Render("Search All Conversations")

	var resultsView strings.Builder
	switch {
	case s.err != "":
		resultsView.WriteString(ErrorStyle.Render(s.err))
	case len(s.results) == 0 && s.input.Value() == "":
		resultsView.WriteString(DimStyle.Render("Type to search messages in every conversation..."))
	case len(s.results) == 0:
		resultsView.WriteString(DimStyle.Render("No matches found"))
	default:
		// Border, padding, title, input, counter and footer with their blank lines
		const fixedOverhead = 12
		const linesPerResult = 3
		maxVisible := max((height-fixedOverhead-4)/linesPerResult, 1)

		start := 0
		if s.selected >= maxVisible {
			start = s.selected - maxVisible + 1
		}
		end := min(start+maxVisible, len(s.results))

		fmt.Fprintf(&resultsView, "Found %d matches:\n\n", len(s.results))
		if start > 0 {
			resultsView.WriteString(DimStyle.Render(fmt.Sprintf("↑ %d more above", start)) + "\n\n")
		}

		for i := start; i < end; i++ {
			match := s.results[i]

			roleStyle := UserStyle
			switch match.Role {
			case model.RoleAssistant:
				roleStyle = AssistantStyle
			case model.RoleFunction:
				roleStyle = FunctionStyle
			}

			matchText := fmt.Sprintf("%s [%s] %s\n  %s",
				roleStyle.Render(runewidth.Truncate(match.ConversationTitle, 40, "...")),
				match.Timestamp.Local().Format("Jan 2, 3:04 PM"),
				DimStyle.Render(match.Role),
				match.Preview,
			)

			if i == s.selected {
				matchText = SelectedStyle.Render("> " + matchText)
			} else {
				matchText = "  " + matchText
			}
			resultsView.WriteString(matchText + "\n\n")
		}

		if end < len(s.results) {
			resultsView.WriteString(DimStyle.Render(fmt.Sprintf("↓ %d more below", len(s.results)-end)))
		}
	}

	footer := FormatFooter("Type", "to search", "↑/↓", "Navigate", "Enter", "Open", "Esc", "Close")

	content := lipgloss.JoinVertical(
		lipgloss.Left,
		title,
		"",
		s.input.View(),
		"",
		resultsView.String(),
		"",
		footer,
	)

	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center,
		modalStyle.Width(modalWidth).Render(content))
}
