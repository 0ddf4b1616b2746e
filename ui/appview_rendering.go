package ui

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	markdown "github.com/MichaelMure/go-term-markdown"
	tea "github.com/charmbracelet/bubbletea"
	gomarkdown "github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/parser"

	"tinychat/config"
	"tinychat/model"
)

const codeBar = "┃"

// Pre-compiled regex patterns for better performance
var (
	inlineCodeRegex = regexp.MustCompile(`(?s)\x1b\[44;3m(.*?)\x1b\[0m`)
	mdLinkRegex     = regexp.MustCompile(`\[([^\]]+)\]\((https?://[^\)]+)\)`)
	urlRegex        = regexp.MustCompile(`(https?://[^\s]+)`)
)

func (a *AppView) updateViewportContent(gotoBottom bool) {
	if len(a.entries) == 0 {
		a.viewport.SetContent("No messages yet. Start chatting!")
		return
	}

	a.viewport.SetContent(a.renderEntries())
	if gotoBottom {
		a.viewport.GotoBottom()
	}
}

// updateStreamingMessage redraws the history plus the reply being revealed
func (a *AppView) updateStreamingMessage() {
	var content strings.Builder
	content.WriteString(a.renderEntries())

	if a.streaming && a.executingFunction == "" {
		timestamp := DimStyle.Render(time.Now().Format("[15:04]"))
		role := AssistantStyle.Render("Assistant")

		// Spinner until the first character arrives, then the text with a cursor
		streamContent := a.loadingSpinner.View()
		if a.partial != "" {
			streamContent = a.partial + "▋"
		}
		content.WriteString(fmt.Sprintf("%s %s\n%s\n\n", timestamp, role, streamContent))
	}

	a.viewport.SetContent(content.String())
	a.viewport.GotoBottom()
}

func (a *AppView) renderEntries() string {
	var content strings.Builder

	for _, e := range a.entries {
		timestamp := DimStyle.Render(e.Timestamp.Format("[15:04]"))

		switch e.Role {
		case model.RoleUser:
			content.WriteString(formatUserMessage(timestamp, UserStyle.Render("You"), e.Rendered))
		case model.RoleAssistant:
			if e.Content == "" {
				continue
			}
			content.WriteString(fmt.Sprintf("%s %s\n%s\n\n", timestamp, AssistantStyle.Render("Assistant"), e.Rendered))
		case model.RoleFunction:
			content.WriteString(formatFunctionResult(timestamp, e.Name, e.Content))
		default:
			content.WriteString(fmt.Sprintf("%s %s\n\n", timestamp, DimStyle.Render(e.Content)))
		}
	}

	return content.String()
}

func formatUserMessage(timestamp, role, content string) string {
	greenBold := "\x1b[32;1m"
	reset := "\x1b[0m"
	bar := greenBold + codeBar + reset

	var result strings.Builder
	result.WriteString(fmt.Sprintf("%s %s %s\n", bar, timestamp, role))

	for _, line := range strings.Split(content, "\n") {
		result.WriteString(fmt.Sprintf("%s %s\n", bar, line))
	}

	result.WriteString("\n")

	return result.String()
}

// formatFunctionResult renders a function message as a dim tree line
func formatFunctionResult(timestamp, name, content string) string {
	label := FunctionStyle.Render(name)
	lines := strings.Split(content, "\n")
	if len(lines) > 6 {
		lines = append(lines[:6], fmt.Sprintf("... (%d more lines)", len(lines)-6))
	}

	var result strings.Builder
	result.WriteString(fmt.Sprintf("%s %s %s\n", timestamp, label, DimStyle.Render("returned:")))
	for _, line := range lines {
		result.WriteString(DimStyle.Render("╰─ "+line) + "\n")
	}
	result.WriteString("\n")
	return result.String()
}

func postProcessMarkdown(rendered string, width int) string {
	// Inline code: blue background becomes red text
	rendered = fixInlineCode(rendered)
	rendered = fixMarkdownLinks(rendered)
	return frameCodeBlocks(rendered, width)
}

// preprocessLinks strips markdown link syntax [text](url) down to the url
func preprocessLinks(content string) string {
	return mdLinkRegex.ReplaceAllString(content, "$2")
}

func fixInlineCode(s string) string {
	return inlineCodeRegex.ReplaceAllString(s, "\x1b[31m$1\x1b[0m")
}

// fixMarkdownLinks colors plain URLs red outside code blocks
func fixMarkdownLinks(s string) string {
	redColor := "\x1b[31m"
	reset := "\x1b[0m"

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if !strings.Contains(line, codeBar) {
			lines[i] = urlRegex.ReplaceAllString(line, redColor+"$1"+reset)
		}
	}

	return strings.Join(lines, "\n")
}

// frameCodeBlocks replaces the bar prefix of code block lines with a
// horizontal frame labelled [code]
func frameCodeBlocks(s string, width int) string {
	var (
		result      []string
		block       []string
		inCodeBlock bool
	)

	darkGray := "\x1b[90m"
	reset := "\x1b[0m"
	lineLen := max(width-4, 8)

	closeBlock := func() {
		result = append(result, block...)
		result = append(result, "", darkGray+strings.Repeat("━", lineLen)+reset, "")
		block = nil
		inCodeBlock = false
	}

	for _, line := range strings.Split(s, "\n") {
		if strings.Contains(line, codeBar) {
			if !inCodeBlock {
				inCodeBlock = true
				label := "[code]"
				leftLen := (lineLen - len(label)) / 2
				rightLen := max(lineLen-len(label)-leftLen, 0)
				border := darkGray + strings.Repeat("━", max(leftLen, 0)) + reset + label + darkGray + strings.Repeat("━", rightLen) + reset
				result = append(result, "", border, "")
			}
			block = append(block, stripCodeBlockPrefix(line))
			continue
		}

		if inCodeBlock {
			closeBlock()
		}
		result = append(result, line)
	}

	if inCodeBlock && len(block) > 0 {
		closeBlock()
	}

	return strings.Join(result, "\n")
}

func stripCodeBlockPrefix(line string) string {
	idx := strings.Index(line, codeBar)
	if idx < 0 {
		return line
	}
	after := idx + len(codeBar)
	if after < len(line) && line[after] == ' ' {
		after++
	}
	return line[after:]
}

// renderMarkdown renders content for a terminal of the given width
func renderMarkdown(content string, width int) string {
	if width < 20 {
		width = 80
	}
	content = preprocessLinks(content)

	// Autolink stays off so terminals handle URL detection themselves
	ext := markdown.Extensions() &^ parser.Autolink
	p := parser.NewWithExtensions(ext)
	r := markdown.NewRenderer(width-4, 0)
	rendered := gomarkdown.Render(p.Parse([]byte(content)), r)

	return strings.TrimRight(postProcessMarkdown(string(rendered), width), "\n")
}

func (a AppView) renderMarkdownAsync(index int, content string) tea.Cmd {
	width := a.width
	return func() tea.Msg {
		start := time.Now()
		rendered := renderMarkdown(content, width)
		if config.DebugLog != nil {
			config.DebugLog.Printf("[UI] Markdown for entry %d rendered in %v", index, time.Since(start))
		}
		return markdownRenderedMsg{EntryIndex: index, Rendered: rendered}
	}
}

// renderAllMarkdown re-renders every assistant entry, newest first
func (a AppView) renderAllMarkdown() tea.Cmd {
	var cmds []tea.Cmd
	for i := len(a.entries) - 1; i >= 0; i-- {
		if a.entries[i].Role == model.RoleAssistant && a.entries[i].Content != "" {
			cmds = append(cmds, a.renderMarkdownAsync(i, a.entries[i].Content))
		}
	}
	return tea.Batch(cmds...)
}
