package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tinychat/model"
)

func newTestStore(t *testing.T) *ConversationStore {
	t.Helper()
	store, err := NewConversationStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestCreateAndLoad(t *testing.T) {
	store := newTestStore(t)

	conv, err := store.Create("")
	require.NoError(t, err)
	assert.Equal(t, model.DefaultTitle, conv.Title)
	assert.NotEmpty(t, conv.ID)

	loaded, err := store.Load(conv.ID)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, loaded.ID)
	assert.Equal(t, model.DefaultTitle, loaded.Title)
	assert.Empty(t, loaded.Messages)
	assert.WithinDuration(t, conv.CreatedAt, loaded.CreatedAt, time.Second)
}

func TestLoadMissing(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Load("does-not-exist")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAppendKeepsOrder(t *testing.T) {
	store := newTestStore(t)
	conv, err := store.Create("Weather")
	require.NoError(t, err)

	msgs := []model.Message{
		model.NewUserMessage("What's the weather in Boston?"),
		model.NewAssistantMessage(`I will check. <function_call>{"name":"get_weather","arguments":{"city":"Boston"}}</function_call>`),
		model.NewFunctionMessage("get_weather", `{"temperature":21}`),
		model.NewAssistantMessage("It is 21 degrees."),
	}
	for _, m := range msgs {
		require.NoError(t, store.Append(conv.ID, m))
	}

	loaded, err := store.Load(conv.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Messages, 4)
	for i, m := range msgs {
		assert.Equal(t, m.Role, loaded.Messages[i].Role)
		assert.Equal(t, m.Content, loaded.Messages[i].Content)
		assert.Equal(t, m.Name, loaded.Messages[i].Name)
	}
	assert.True(t, loaded.UpdatedAt.After(conv.UpdatedAt) || loaded.UpdatedAt.Equal(conv.UpdatedAt))
}

func TestAppendValidation(t *testing.T) {
	store := newTestStore(t)

	err := store.Append("missing", model.NewUserMessage("hi"))
	assert.ErrorIs(t, err, ErrNotFound)

	conv, err := store.Create("")
	require.NoError(t, err)
	err = store.Append(conv.ID, model.Message{Role: "system", Content: "x"})
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestTruncateFrom(t *testing.T) {
	store := newTestStore(t)
	conv, err := store.Create("")
	require.NoError(t, err)

	require.NoError(t, store.Append(conv.ID, model.NewUserMessage("one")))
	require.NoError(t, store.Append(conv.ID, model.NewAssistantMessage("two")))
	require.NoError(t, store.Append(conv.ID, model.NewAssistantMessage("three")))

	require.NoError(t, store.TruncateFrom(conv.ID, 1))
	require.NoError(t, store.Append(conv.ID, model.NewAssistantMessage("again")))

	loaded, err := store.Load(conv.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Messages, 2)
	assert.Equal(t, "one", loaded.Messages[0].Content)
	assert.Equal(t, "again", loaded.Messages[1].Content)
}

func TestRenameAndDelete(t *testing.T) {
	store := newTestStore(t)
	conv, err := store.Create("")
	require.NoError(t, err)
	require.NoError(t, store.Append(conv.ID, model.NewUserMessage("hi")))

	require.NoError(t, store.Rename(conv.ID, "  Greetings  "))
	loaded, err := store.Load(conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "Greetings", loaded.Title)

	assert.ErrorIs(t, store.Rename(conv.ID, " "), ErrInvalidTitle)
	assert.ErrorIs(t, store.Rename("missing", "x"), ErrNotFound)

	require.NoError(t, store.Delete(conv.ID))
	_, err = store.Load(conv.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.Delete(conv.ID), ErrNotFound)

	matches, err := store.SearchMessages("hi")
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestListNewestFirst(t *testing.T) {
	store := newTestStore(t)

	older, err := store.Create("Older")
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	newer, err := store.Create("Newer")
	require.NoError(t, err)

	list, err := store.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer.ID, list[0].ID)

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, store.Append(older.ID, model.NewUserMessage("bump")))

	list, err = store.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, older.ID, list[0].ID)
	assert.Equal(t, 1, list[0].MessageCount)
	assert.Equal(t, 0, list[1].MessageCount)
}

func TestFindByTitle(t *testing.T) {
	store := newTestStore(t)
	for _, title := range []string{"Boston weather", "Go generics", "Weekend trip ideas"} {
		_, err := store.Create(title)
		require.NoError(t, err)
	}

	found, err := store.FindByTitle("wthr")
	require.NoError(t, err)
	require.NotEmpty(t, found)
	assert.Equal(t, "Boston weather", found[0].Title)

	all, err := store.FindByTitle("")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestResolveID(t *testing.T) {
	store := newTestStore(t)
	conv, err := store.Create("")
	require.NoError(t, err)

	id, err := store.ResolveID(conv.ID[:8])
	require.NoError(t, err)
	assert.Equal(t, conv.ID, id)

	_, err = store.ResolveID("zzzz")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSearchMessages(t *testing.T) {
	store := newTestStore(t)
	conv, err := store.Create("Weather")
	require.NoError(t, err)
	require.NoError(t, store.Append(conv.ID, model.NewUserMessage("What is the weather in BOSTON today?")))
	require.NoError(t, store.Append(conv.ID, model.NewAssistantMessage("Sunny.")))

	matches, err := store.SearchMessages("boston")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, conv.ID, matches[0].ConversationID)
	assert.Equal(t, "Weather", matches[0].ConversationTitle)
	assert.Equal(t, 0, matches[0].MessageIndex)
	assert.Equal(t, model.RoleUser, matches[0].Role)
	assert.Contains(t, matches[0].Preview, "BOSTON")

	none, err := store.SearchMessages("   ")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestCurrentID(t *testing.T) {
	store := newTestStore(t)

	_, err := store.LoadCurrentID()
	assert.Error(t, err)

	require.NoError(t, store.SaveCurrentID("abc"))
	id, err := store.LoadCurrentID()
	require.NoError(t, err)
	assert.Equal(t, "abc", id)
}

func TestReopenKeepsData(t *testing.T) {
	dir := t.TempDir()

	store, err := NewConversationStore(dir)
	require.NoError(t, err)
	conv, err := store.Create("Persistent")
	require.NoError(t, err)
	require.NoError(t, store.Append(conv.ID, model.NewUserMessage("remember me")))
	require.NoError(t, store.Close())

	store, err = NewConversationStore(dir)
	require.NoError(t, err)
	defer store.Close()

	loaded, err := store.Load(conv.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Messages, 1)
	assert.Equal(t, "remember me", loaded.Messages[0].Content)
}

func TestExportToJSON(t *testing.T) {
	store := newTestStore(t)
	conv, err := store.Create("Export me")
	require.NoError(t, err)
	require.NoError(t, store.Append(conv.ID, model.NewUserMessage("hello")))

	path := filepath.Join(t.TempDir(), "out", "conv.json")
	require.NoError(t, store.ExportToJSON(conv.ID, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var exported model.Conversation
	require.NoError(t, json.Unmarshal(data, &exported))
	assert.Equal(t, "Export me", exported.Title)
	require.Len(t, exported.Messages, 1)
	assert.Equal(t, "hello", exported.Messages[0].Content)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "Boston-weather--today", SanitizeFilename("Boston weather: today?"))
	assert.Equal(t, "conversation", SanitizeFilename("..."))
	assert.Len(t, SanitizeFilename(strings.Repeat("a", 80)), 50)
}

func TestInstanceLock(t *testing.T) {
	store := newTestStore(t)

	locked, _, err := store.CheckInstanceLock()
	require.NoError(t, err)
	assert.False(t, locked)

	// our own lock never blocks us
	require.NoError(t, store.LockInstance())
	locked, _, err = store.CheckInstanceLock()
	require.NoError(t, err)
	assert.False(t, locked)

	require.NoError(t, os.WriteFile(store.lockPath(), []byte(strconv.Itoa(os.Getppid())), 0600))
	locked, pid, err := store.CheckInstanceLock()
	require.NoError(t, err)
	assert.True(t, locked)
	assert.Equal(t, os.Getppid(), pid)

	require.NoError(t, os.WriteFile(store.lockPath(), []byte("garbage"), 0600))
	locked, _, err = store.CheckInstanceLock()
	require.NoError(t, err)
	assert.False(t, locked)
	assert.NoFileExists(t, store.lockPath())

	require.NoError(t, store.UnlockInstance())
	require.NoError(t, store.UnlockInstance())
}
