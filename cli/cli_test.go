package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tinychat/directive"
	"tinychat/model"
	"tinychat/storage"
)

// fakeServer answers the chat server endpoints. Each stream request gets the
// next reply in order.
type fakeServer struct {
	replies  []string
	streams  atomic.Int32
	executed atomic.Int32
}

func (f *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/health":
		_, _ = io.WriteString(w, `{"status":"ok"}`)

	case "/v1/stream":
		n := int(f.streams.Add(1)) - 1
		if n >= len(f.replies) {
			http.Error(w, "no more replies", http.StatusInternalServerError)
			return
		}
		_, _ = io.WriteString(w, streamBody(f.replies[n]))

	case "/v1/chat/completions":
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"c1","object":"chat.completion","created":0,"model":"m",`+
			`"choices":[{"index":0,"message":{"role":"assistant","content":"Boston Weather"},"finish_reason":"stop"}]}`)

	case "/api/functions":
		_, _ = io.WriteString(w, `{"functions":[{"name":"get_weather","description":"Current weather for a city",`+
			`"parameters":{"type":"object","properties":{"city":{"type":"string"}}}}]}`)

	case "/api/execute_function":
		f.executed.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"success":true,"function_name":"get_weather","result":{"temperature":"72F"}}`)

	default:
		http.NotFound(w, r)
	}
}

// streamBody splits text into a few delta objects
func streamBody(text string) string {
	var parts []string
	for len(text) > 0 {
		n := min(len(text), 7)
		data, _ := json.Marshal(text[:n])
		parts = append(parts, fmt.Sprintf(`{"index":0,"delta":{"content":%s}}`, data))
		text = text[n:]
	}
	return `{"id":"gen-1","choices":[` + strings.Join(parts, ",") + `]}`
}

func setupEnv(t *testing.T, srv http.Handler) string {
	t.Helper()
	home := t.TempDir()
	dataDir := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)
	t.Setenv("TINYCHAT_DATA_DIR", dataDir)
	t.Setenv("TINYCHAT_DEBUG", "")

	url := "http://127.0.0.1:1"
	if srv != nil {
		ts := httptest.NewServer(srv)
		t.Cleanup(ts.Close)
		url = ts.URL
	}
	t.Setenv("TINYCHAT_BACKEND_URL", url)
	return dataDir
}

func run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetArgs(args)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func openStore(t *testing.T, dataDir string) *storage.ConversationStore {
	t.Helper()
	store, err := storage.NewConversationStore(dataDir)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCmd()
	assert.Equal(t, "tinychat", cmd.Use)
	assert.NotEmpty(t, cmd.Short)

	var names []string
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	assert.Subset(t, names, []string{"ask", "sessions", "functions", "health", "config"})
}

func TestAskPrintsStreamedReply(t *testing.T) {
	dataDir := setupEnv(t, &fakeServer{replies: []string{"Hello there, how can I help?"}})

	stdout, _, err := run(t, "", "ask", "--instant", "Hi")
	require.NoError(t, err)
	assert.Equal(t, "Hello there, how can I help?\n", stdout)

	store := openStore(t, dataDir)
	id, err := store.LoadCurrentID()
	require.NoError(t, err)
	conv, err := store.Load(id)
	require.NoError(t, err)

	require.Len(t, conv.Messages, 2)
	assert.Equal(t, model.RoleUser, conv.Messages[0].Role)
	assert.Equal(t, "Hi", conv.Messages[0].Content)
	assert.Equal(t, "Hello there, how can I help?", conv.Messages[1].Content)
	assert.Equal(t, "Boston Weather", conv.Title)
}

func TestAskFollowsFunctionCall(t *testing.T) {
	call := directive.Format(directive.Call{Name: "get_weather", Arguments: map[string]any{"city": "Boston"}})
	srv := &fakeServer{replies: []string{"Let me check. " + call, "It is 72F in Boston."}}
	dataDir := setupEnv(t, srv)

	stdout, stderr, err := run(t, "", "ask", "--instant", "Weather in Boston?")
	require.NoError(t, err)

	assert.Contains(t, stdout, "Let me check.")
	assert.Contains(t, stdout, "It is 72F in Boston.\n")
	assert.NotContains(t, stdout, directive.StartTag)
	assert.Contains(t, stderr, "get_weather")
	assert.EqualValues(t, 1, srv.executed.Load())
	assert.EqualValues(t, 2, srv.streams.Load())

	store := openStore(t, dataDir)
	id, err := store.LoadCurrentID()
	require.NoError(t, err)
	conv, err := store.Load(id)
	require.NoError(t, err)

	require.Len(t, conv.Messages, 4)
	assert.Equal(t, model.RoleFunction, conv.Messages[2].Role)
	assert.Equal(t, "get_weather", conv.Messages[2].Name)
	assert.JSONEq(t, `{"temperature":"72F"}`, conv.Messages[2].Content)
	assert.Equal(t, "It is 72F in Boston.", conv.Messages[3].Content)
}

func TestAskReadsStdin(t *testing.T) {
	dataDir := setupEnv(t, &fakeServer{replies: []string{"Got it."}})

	stdout, _, err := run(t, "Hello from stdin\n", "ask", "--instant")
	require.NoError(t, err)
	assert.Equal(t, "Got it.\n", stdout)

	store := openStore(t, dataDir)
	list, err := store.List()
	require.NoError(t, err)
	require.Len(t, list, 1)
	conv, err := store.Load(list[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "Hello from stdin", conv.Messages[0].Content)
}

func TestAskNoStream(t *testing.T) {
	srv := &fakeServer{}
	setupEnv(t, srv)

	stdout, _, err := run(t, "", "ask", "--no-stream", "Hi")
	require.NoError(t, err)
	assert.Equal(t, "Boston Weather\n", stdout)
	assert.Zero(t, srv.streams.Load())
}

func TestAskReusesCurrentConversation(t *testing.T) {
	dataDir := setupEnv(t, &fakeServer{replies: []string{"One.", "Two.", "Three."}})

	_, _, err := run(t, "", "ask", "--instant", "first")
	require.NoError(t, err)
	_, _, err = run(t, "", "ask", "--instant", "second")
	require.NoError(t, err)
	_, _, err = run(t, "", "ask", "--instant", "--new", "third")
	require.NoError(t, err)

	store := openStore(t, dataDir)
	list, err := store.List()
	require.NoError(t, err)
	require.Len(t, list, 2)

	counts := []int{list[0].MessageCount, list[1].MessageCount}
	assert.ElementsMatch(t, []int{2, 4}, counts)
}

func TestAskServerError(t *testing.T) {
	setupEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))

	_, stderr, err := run(t, "", "ask", "--instant", "Hi")
	require.Error(t, err)
	assert.Contains(t, stderr, "Error: server returned status 503")
}

func TestSessionsCommands(t *testing.T) {
	dataDir := setupEnv(t, nil)

	store := openStore(t, dataDir)
	conv, err := store.Create("Trip plans")
	require.NoError(t, err)
	require.NoError(t, store.Append(conv.ID, model.NewUserMessage("Where should we go in spring?")))
	call := directive.Format(directive.Call{Name: "search", Arguments: map[string]any{"q": "spring trips"}})
	require.NoError(t, store.Append(conv.ID, model.NewAssistantMessage("Looking. "+call)))
	other, err := store.Create("Groceries")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	prefix := conv.ID[:8]

	stdout, _, err := run(t, "", "sessions", "list")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Trip plans")
	assert.Contains(t, stdout, "Groceries")

	stdout, _, err = run(t, "", "sessions", "list", "--title", "trip")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Trip plans")
	assert.NotContains(t, stdout, "Groceries")

	stdout, _, err = run(t, "", "sessions", "show", prefix)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Where should we go in spring?")
	assert.Contains(t, stdout, `→ search({"q":"spring trips"})`)
	assert.NotContains(t, stdout, directive.StartTag)

	stdout, _, err = run(t, "", "sessions", "show", "--raw", prefix)
	require.NoError(t, err)
	assert.Contains(t, stdout, directive.StartTag)

	stdout, _, err = run(t, "", "sessions", "search", "spring")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Trip plans")

	_, _, err = run(t, "", "sessions", "rename", prefix, "Spring", "trip")
	require.NoError(t, err)

	exportPath := t.TempDir() + "/trip.json"
	stdout, _, err = run(t, "", "sessions", "export", prefix, "-o", exportPath)
	require.NoError(t, err)
	assert.Contains(t, stdout, exportPath)
	assert.FileExists(t, exportPath)

	_, _, err = run(t, "", "sessions", "use", other.ID)
	require.NoError(t, err)

	_, _, err = run(t, "", "sessions", "delete", prefix)
	require.NoError(t, err)

	_, _, err = run(t, "", "sessions", "show", prefix)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	store = openStore(t, dataDir)
	current, err := store.LoadCurrentID()
	require.NoError(t, err)
	assert.Equal(t, other.ID, current)
	loaded, err := store.Load(other.ID)
	require.NoError(t, err)
	assert.Equal(t, "Groceries", loaded.Title)
}

func TestFunctionsAndHealth(t *testing.T) {
	setupEnv(t, &fakeServer{})

	stdout, _, err := run(t, "", "functions")
	require.NoError(t, err)
	assert.Contains(t, stdout, "get_weather")
	assert.Contains(t, stdout, "Current weather for a city")

	stdout, _, err = run(t, "", "functions", "-v")
	require.NoError(t, err)
	assert.Contains(t, stdout, `parameters: {"type":"object","properties":{"city":{"type":"string"}}}`)

	stdout, _, err = run(t, "", "health")
	require.NoError(t, err)
	assert.Contains(t, stdout, "is up")
}

func TestHealthUnreachable(t *testing.T) {
	setupEnv(t, nil)

	_, _, err := run(t, "", "health")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not healthy")
}

func TestConfigShow(t *testing.T) {
	setupEnv(t, nil)

	stdout, _, err := run(t, "", "config", "show")
	require.NoError(t, err)
	assert.Contains(t, stdout, "[backend]")
	assert.Contains(t, stdout, `url = "http://127.0.0.1:1"`)
	assert.Contains(t, stdout, "max_function_hops = 5")
}

func TestConfigSet(t *testing.T) {
	setupEnv(t, nil)

	stdout, _, err := run(t, "", "config", "set", "generation.system_prompt", "Be", "brief.")
	require.NoError(t, err)
	assert.Equal(t, "generation.system_prompt = Be brief.\n", stdout)

	stdout, _, err = run(t, "", "config", "show")
	require.NoError(t, err)
	assert.Contains(t, stdout, `system_prompt = "Be brief."`)

	_, _, err = run(t, "", "config", "set", "generation.top_p", "2")
	assert.Error(t, err)
}

func TestWriterDisplay(t *testing.T) {
	var out, errOut bytes.Buffer
	d := &writerDisplay{out: &out, errOut: &errOut}

	d.Begin()
	d.Update("Hel")
	d.Update("Hello")
	d.Update("Hello") // nothing new
	d.Done("Hello!")
	assert.Equal(t, "Hello!\n", out.String())

	out.Reset()
	d.Begin()
	d.Update("Checking now ")
	d.Update("Checking now") // trimmed before the call, already shown
	d.FunctionCall(directive.Call{Name: "f", Arguments: map[string]any{}})
	d.FunctionResult(model.NewFunctionMessage("f", "done"))
	d.Begin()
	d.Done("Finished.")
	assert.Equal(t, "Checking now \nFinished.\n", out.String())
	assert.Equal(t, "→ f()\n← f: done\n", errOut.String())

	out.Reset()
	d.Begin()
	d.Update("\n")
	d.Update("\nHello")
	d.Done("Hello")
	assert.Equal(t, "\nHello\n", out.String())
}
