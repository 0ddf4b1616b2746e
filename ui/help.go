package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

func renderHelpModal(width, height int) string {
	green := lipgloss.NewStyle().
		Bold(true).
		Foreground(successColor)

	title := green.Render("tinychat - Keyboard Shortcuts")

	blue := lipgloss.NewStyle().Foreground(accentColor)

	line := func(keys, desc string) string {
		return fmt.Sprintf("• %-13s %s", keys, desc)
	}

	globalActions := lipgloss.JoinVertical(
		lipgloss.Left,
		blue.Render("## Global Actions"),
		line("Ctrl+N", "New chat"),
		line("Ctrl+O", "Open a conversation"),
		line("Ctrl+F", "Search all messages"),
		line("Alt+H", "Toggle this help"),
		line("Ctrl+C", "Quit"),
	)

	chatActions := lipgloss.JoinVertical(
		lipgloss.Left,
		blue.Render("## Chat Actions"),
		line("Enter", "Send message"),
		line("Alt+Enter", "New line"),
		line("Esc", "Stop generating"),
		line("Ctrl+R", "Regenerate last reply"),
		line("Ctrl+Y", "Copy last reply"),
		line("PgUp/PgDn", "Scroll"),
	)

	columnStyle := lipgloss.NewStyle().Width(40).PaddingLeft(4)

	twoColumns := lipgloss.JoinHorizontal(
		lipgloss.Top,
		columnStyle.Render(globalActions),
		columnStyle.Render(chatActions),
	)

	footer := lipgloss.NewStyle().
		Foreground(dimColor).
		Render("Press Alt+H or Esc to close this help")

	content := lipgloss.JoinVertical(
		lipgloss.Center,
		title,
		"",
		twoColumns,
		"",
		footer,
	)

	helpBox := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("8")).
		Padding(1, 2)

	return lipgloss.Place(
		width,
		height,
		lipgloss.Center,
		lipgloss.Center,
		helpBox.Render(content),
	)
}
