package ui

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"tinychat/chat"
	"tinychat/config"
	"tinychat/directive"
	"tinychat/model"
	"tinychat/storage"
)

// entry is a message as shown in the chat viewport
type entry struct {
	Role      string // model roles, plus "system" for notices
	Name      string
	Content   string
	Rendered  string
	Timestamp time.Time
}

const roleSystem = "system"

const healthTimeout = 5 * time.Second

// pinger is implemented by backends that can report whether they are up
type pinger interface {
	Ping(ctx context.Context) error
}

type AppView struct {
	cfg          *config.Config
	store        *storage.ConversationStore
	orchestrator *chat.Orchestrator
	backend      chat.Backend

	conv    *model.Conversation
	entries []entry

	// UI Components
	viewport       viewport.Model
	textarea       textarea.Model
	loadingSpinner spinner.Model

	// Window state
	width  int
	height int
	ready  bool

	// Session state
	streaming         bool
	partial           string
	executingFunction string
	events            chan tea.Msg
	titles            chan titleMsg

	showHelp bool
	picker   conversationPicker
	search   messageSearch
	status   string
	offline  bool
}

// NewAppView creates the chat view for conv. Generated titles arrive on an
// internal channel and are applied by Update.
func NewAppView(cfg *config.Config, b chat.Backend, store *storage.ConversationStore, conv *model.Conversation) AppView {
	titles := make(chan titleMsg, 4)

	opts := chat.OptionsFromConfig(cfg)
	opts.OnTitle = func(conversationID, title string) {
		select {
		case titles <- titleMsg{ConversationID: conversationID, Title: title}:
		default:
		}
	}

	ta := textarea.New()
	ta.Placeholder = "Type your message here..."
	ta.Focus()
	ta.CharLimit = 0
	ta.ShowLineNumbers = false
	ta.SetHeight(3)
	ta.SetWidth(80)

	// Alt+Enter for newline, Enter alone sends
	ta.KeyMap.InsertNewline = key.NewBinding(key.WithKeys("alt+enter"))

	ta.SetPromptFunc(2, func(lineIdx int) string {
		if lineIdx == 0 {
			return "> "
		}
		return "| "
	})

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = AssistantStyle

	a := AppView{
		cfg:            cfg,
		store:          store,
		orchestrator:   chat.New(b, store, opts),
		backend:        b,
		textarea:       ta,
		viewport:       viewport.New(0, 0),
		loadingSpinner: sp,
		titles:         titles,
		picker:         newConversationPicker(),
		search:         newMessageSearch(),
	}
	a.setConversation(conv)
	return a
}

func (a AppView) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, waitForTitle(a.titles), a.checkHealth())
}

func (a AppView) checkHealth() tea.Cmd {
	p, ok := a.backend.(pinger)
	if !ok {
		return nil
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), healthTimeout)
		defer cancel()
		return healthMsg{Err: p.Ping(ctx)}
	}
}

// Wait blocks until background work started by the view has finished
func (a AppView) Wait() {
	a.orchestrator.Wait()
}

func (a *AppView) setConversation(conv *model.Conversation) {
	a.conv = conv
	a.entries = nil
	for _, m := range conv.Messages {
		a.entries = append(a.entries, entryFromMessage(m))
	}
	a.partial = ""
	a.status = ""
}

func entryFromMessage(m model.Message) entry {
	content := m.Content
	if m.Role == model.RoleAssistant {
		content = directive.Visible(content)
	}
	return entry{Role: m.Role, Name: m.Name, Content: content, Rendered: content, Timestamp: m.Timestamp}
}

func (a AppView) View() string {
	if !a.ready {
		return "Loading tinychat..."
	}

	if a.showHelp {
		return renderHelpModal(a.width, a.height)
	}

	if a.picker.visible {
		return a.picker.render(a.conv.ID, a.width, a.height)
	}

	if a.search.visible {
		return a.search.render(a.width, a.height)
	}

	// Title bar - "tinychat - Conversation title | backend"
	appText := AssistantStyle.Render("tinychat")
	title := model.DefaultTitle
	if a.conv != nil && a.conv.Title != "" {
		title = a.conv.Title
	}
	titleWidth := a.width - runewidth.StringWidth(a.cfg.BackendURL) - 16
	if titleWidth < 10 {
		titleWidth = 10
	}
	header := appText +
		UserStyle.Render(" - "+runewidth.Truncate(title, titleWidth, "...")) +
		DimStyle.Render(" | "+a.cfg.BackendURL)
	if a.offline {
		header += ErrorStyle.Render(" (offline)")
	}

	if a.executingFunction != "" {
		header += TitleStyle.Render(fmt.Sprintf(" | calling %s %s", a.executingFunction, a.loadingSpinner.View()))
	}

	descStyle := lipgloss.NewStyle().Foreground(successColor).Bold(true)
	statusBar := fmt.Sprintf("Ctrl+C %s  Ctrl+N %s  Ctrl+O %s  Ctrl+F %s  Ctrl+R %s  Ctrl+Y %s  Esc %s  Alt+H %s",
		descStyle.Render("Quit"),
		descStyle.Render("New"),
		descStyle.Render("Chats"),
		descStyle.Render("Search"),
		descStyle.Render("Regenerate"),
		descStyle.Render("Copy"),
		descStyle.Render("Stop"),
		descStyle.Render("Help"),
	)
	if a.status != "" {
		statusBar = a.status
	}

	return lipgloss.JoinVertical(
		lipgloss.Left,
		header,
		"",
		a.viewport.View(),
		a.textarea.View(),
		StatusStyle.Render(statusBar),
	)
}
