package ui

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tinychat/backend"
	"tinychat/chat"
	"tinychat/config"
	"tinychat/directive"
	"tinychat/model"
	"tinychat/storage"
)

type idleBackend struct{}

func (idleBackend) OpenStream(ctx context.Context, req backend.ChatRequest) (io.ReadCloser, error) {
	return nil, errors.New("not connected")
}

func (idleBackend) Complete(ctx context.Context, req backend.ChatRequest) (string, error) {
	return "", errors.New("not connected")
}

func (idleBackend) ExecuteFunction(ctx context.Context, name string, args map[string]any) (*backend.FunctionResponse, error) {
	return nil, errors.New("not connected")
}

func newTestView(t *testing.T) (AppView, *storage.ConversationStore) {
	t.Helper()
	store, err := storage.NewConversationStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	conv, err := store.Create(model.DefaultTitle)
	require.NoError(t, err)

	cfg := &config.Config{BackendURL: config.DefaultBackendURL}
	a := NewAppView(cfg, idleBackend{}, store, conv)

	m, _ := a.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return m.(AppView), store
}

func update(t *testing.T, a AppView, msg tea.Msg) (AppView, tea.Cmd) {
	t.Helper()
	m, cmd := a.Update(msg)
	return m.(AppView), cmd
}

func TestEventDisplayForwardsInOrder(t *testing.T) {
	events := make(chan tea.Msg, 8)
	var d chat.Display = eventDisplay{events: events}

	d.Begin()
	d.Update("Hel")
	d.FunctionCall(directive.Call{Name: "get_weather"})
	d.FunctionResult(model.NewFunctionMessage("get_weather", "72F"))
	d.Error("boom")
	d.Done("Hello")
	close(events)

	var got []tea.Msg
	for msg := range events {
		got = append(got, msg)
	}
	require.Len(t, got, 6)
	assert.IsType(t, replyBeginMsg{}, got[0])
	assert.Equal(t, replyPartialMsg{Text: "Hel"}, got[1])
	assert.Equal(t, "get_weather", got[2].(functionCallMsg).Call.Name)
	assert.Equal(t, "72F", got[3].(functionResultMsg).Message.Content)
	assert.Equal(t, replyErrorMsg{Text: "boom"}, got[4])
	assert.Equal(t, replyDoneMsg{Final: "Hello"}, got[5])
}

func TestWaitForEventReturnsNilWhenClosed(t *testing.T) {
	events := make(chan tea.Msg, 1)
	events <- replyBeginMsg{}
	close(events)

	assert.Equal(t, replyBeginMsg{}, waitForEvent(events)())
	assert.Nil(t, waitForEvent(events)())
}

func TestSessionEventsBuildEntries(t *testing.T) {
	a, _ := newTestView(t)
	a.streaming = true
	a.events = make(chan tea.Msg)

	a, _ = update(t, a, replyBeginMsg{})
	a, _ = update(t, a, replyPartialMsg{Text: "Let me check."})
	assert.Equal(t, "Let me check.", a.partial)

	a, _ = update(t, a, functionCallMsg{Call: directive.Call{Name: "get_weather", Arguments: map[string]any{"city": "Boston"}}})
	assert.Equal(t, "get_weather", a.executingFunction)
	assert.Empty(t, a.partial)

	a, _ = update(t, a, functionResultMsg{Message: model.NewFunctionMessage("get_weather", "72F")})
	assert.Empty(t, a.executingFunction)

	a, _ = update(t, a, replyBeginMsg{})
	a, _ = update(t, a, replyPartialMsg{Text: "Sunny"})
	a, _ = update(t, a, replyDoneMsg{Final: "Sunny and 72F."})
	a, _ = update(t, a, sessionDoneMsg{Outcome: chat.Outcome{Kind: chat.OutcomeOK, Hops: 1}})

	assert.False(t, a.streaming)
	assert.Nil(t, a.events)

	require.Len(t, a.entries, 4)
	assert.Equal(t, entry{Role: model.RoleAssistant, Content: "Let me check."}, stripTime(a.entries[0]))
	assert.Equal(t, `Calling get_weather({"city":"Boston"})`, a.entries[1].Content)
	assert.Equal(t, roleSystem, a.entries[1].Role)
	assert.Equal(t, model.RoleFunction, a.entries[2].Role)
	assert.Equal(t, "72F", a.entries[2].Content)
	assert.Equal(t, "Sunny and 72F.", a.entries[3].Content)
}

func stripTime(e entry) entry {
	e.Timestamp = time.Time{}
	e.Rendered = ""
	return e
}

func TestSessionDoneNotices(t *testing.T) {
	a, _ := newTestView(t)
	a.streaming = true
	a, _ = update(t, a, sessionDoneMsg{Outcome: chat.Outcome{Kind: chat.OutcomeOK, HopLimitReached: true, Hops: 5}})
	require.NotEmpty(t, a.entries)
	assert.Equal(t, "Stopped after 5 function calls", a.entries[len(a.entries)-1].Content)

	a.streaming = true
	a, _ = update(t, a, sessionDoneMsg{Outcome: chat.Outcome{Kind: chat.OutcomeCancelled}})
	assert.Contains(t, a.status, "Generation stopped")
}

func TestEnterStartsSession(t *testing.T) {
	a, _ := newTestView(t)
	a.textarea.SetValue("  hello  ")

	a, cmd := update(t, a, tea.KeyMsg{Type: tea.KeyEnter})

	assert.NotNil(t, cmd)
	assert.True(t, a.streaming)
	assert.NotNil(t, a.events)
	assert.Empty(t, a.textarea.Value())
	require.Len(t, a.entries, 1)
	assert.Equal(t, model.RoleUser, a.entries[0].Role)
	assert.Equal(t, "hello", a.entries[0].Content)

	// a second send while streaming is ignored
	a.textarea.SetValue("again")
	a, _ = update(t, a, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Len(t, a.entries, 1)
}

func TestTitleMsgUpdatesCurrentConversation(t *testing.T) {
	a, _ := newTestView(t)

	a, cmd := update(t, a, titleMsg{ConversationID: a.conv.ID, Title: "Boston Weather"})
	assert.Equal(t, "Boston Weather", a.conv.Title)
	assert.NotNil(t, cmd)
	assert.Contains(t, a.View(), "Boston Weather")

	a, _ = update(t, a, titleMsg{ConversationID: "other", Title: "Ignored"})
	assert.Equal(t, "Boston Weather", a.conv.Title)
}

func TestNewChatKey(t *testing.T) {
	a, store := newTestView(t)
	first := a.conv.ID

	a, _ = update(t, a, tea.KeyMsg{Type: tea.KeyCtrlN})

	assert.NotEqual(t, first, a.conv.ID)
	current, err := store.LoadCurrentID()
	require.NoError(t, err)
	assert.Equal(t, a.conv.ID, current)
}

func TestPickerOpensConversation(t *testing.T) {
	a, store := newTestView(t)
	other, err := store.Create("Trip plans")
	require.NoError(t, err)
	require.NoError(t, store.Append(other.ID, model.NewUserMessage("Where should we go?")))

	a, cmd := update(t, a, tea.KeyMsg{Type: tea.KeyCtrlO})
	require.True(t, a.picker.visible)
	require.NotNil(t, cmd)

	a, _ = update(t, a, cmd())
	require.Len(t, a.picker.list, 2)

	target := -1
	for i, meta := range a.picker.list {
		if meta.ID == other.ID {
			target = i
		}
	}
	require.GreaterOrEqual(t, target, 0)
	for range target {
		a, _ = update(t, a, tea.KeyMsg{Type: tea.KeyDown})
	}

	a, cmd = update(t, a, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	a, _ = update(t, a, cmd())

	assert.False(t, a.picker.visible)
	assert.Equal(t, other.ID, a.conv.ID)
	require.Len(t, a.entries, 1)
	assert.Equal(t, "Where should we go?", a.entries[0].Content)
}

func TestPickerDeleteCurrentStartsNewChat(t *testing.T) {
	a, store := newTestView(t)
	old := a.conv.ID

	a, cmd := update(t, a, tea.KeyMsg{Type: tea.KeyCtrlO})
	require.NotNil(t, cmd)
	a, _ = update(t, a, cmd())
	require.Len(t, a.picker.list, 1)

	a, _ = update(t, a, tea.KeyMsg{Type: tea.KeyCtrlD})
	require.True(t, a.picker.confirmDelete)
	a, cmd = update(t, a, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("y")})
	require.NotNil(t, cmd)

	assert.NotEqual(t, old, a.conv.ID)
	current, err := store.LoadCurrentID()
	require.NoError(t, err)
	assert.Equal(t, a.conv.ID, current)

	_, err = store.Load(old)
	assert.Error(t, err)
}

func TestEntryFromMessageHidesDirective(t *testing.T) {
	msg := model.NewAssistantMessage(`Checking. <function_call>{"name":"f","arguments":{}}</function_call>`)
	assert.Equal(t, "Checking. ", entryFromMessage(msg).Content)
}

func TestFrameCodeBlocks(t *testing.T) {
	in := "intro\n┃ x := 1\n┃ y := 2\noutro"
	out := frameCodeBlocks(in, 24)

	assert.Contains(t, out, "[code]")
	assert.Contains(t, out, "\nx := 1\ny := 2\n")
	assert.NotContains(t, out, codeBar)
	assert.True(t, strings.HasPrefix(out, "intro\n"))
	assert.True(t, strings.HasSuffix(out, "\noutro"))
}

func TestPreprocessLinks(t *testing.T) {
	assert.Equal(t, "see https://example.com now", preprocessLinks("see [docs](https://example.com) now"))
}

func TestFormatTimeAgo(t *testing.T) {
	now := time.Now()
	assert.Equal(t, "just now", formatTimeAgo(now))
	assert.Equal(t, "5m ago", formatTimeAgo(now.Add(-5*time.Minute-time.Second)))
	assert.Equal(t, "3h ago", formatTimeAgo(now.Add(-3*time.Hour-time.Second)))
	assert.Equal(t, "2d ago", formatTimeAgo(now.Add(-49*time.Hour)))
}

type pingBackend struct {
	idleBackend
	err error
}

func (b pingBackend) Ping(ctx context.Context) error { return b.err }

func TestHealthCheckMarksOffline(t *testing.T) {
	a, _ := newTestView(t)
	assert.Nil(t, a.checkHealth())

	a.backend = pingBackend{err: errors.New("connection refused")}
	cmd := a.checkHealth()
	require.NotNil(t, cmd)

	a, _ = update(t, a, cmd())
	assert.True(t, a.offline)
	assert.Contains(t, a.View(), "(offline)")

	a.backend = pingBackend{}
	a, _ = update(t, a, a.checkHealth()())
	assert.False(t, a.offline)
}

func TestFormatFooter(t *testing.T) {
	footer := FormatFooter("Enter", "Open", "Esc")
	assert.Contains(t, footer, "Enter ")
	assert.Contains(t, footer, "Open")
	assert.NotContains(t, footer, "Esc")
}

func TestSearchOpensMatchingConversation(t *testing.T) {
	a, store := newTestView(t)
	other, err := store.Create("Trip plans")
	require.NoError(t, err)
	require.NoError(t, store.Append(other.ID, model.NewUserMessage("Where should we go in spring?")))

	a, _ = update(t, a, tea.KeyMsg{Type: tea.KeyCtrlF})
	require.True(t, a.search.visible)

	var cmd tea.Cmd
	for _, r := range "spring" {
		a, cmd = update(t, a, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	require.NotNil(t, cmd)
	a, _ = update(t, a, searchResultsMsg{Query: "spring", Matches: mustSearch(t, store, "spring")})
	require.Len(t, a.search.results, 1)
	assert.Contains(t, a.View(), "Trip plans")

	// stale results are ignored
	a, _ = update(t, a, searchResultsMsg{Query: "spr"})
	assert.Len(t, a.search.results, 1)

	a, cmd = update(t, a, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	a, _ = update(t, a, cmd())

	assert.False(t, a.search.visible)
	assert.Equal(t, other.ID, a.conv.ID)
}

func mustSearch(t *testing.T, store *storage.ConversationStore, query string) []storage.MessageMatch {
	t.Helper()
	matches, err := store.SearchMessages(query)
	require.NoError(t, err)
	return matches
}
