package directive

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetect(t *testing.T) {
	text := `I will check. <function_call>{"name":"get_weather","arguments":{"city":"Boston"}}</function_call>`

	d, ok := Detect(text)
	require.True(t, ok)
	assert.Equal(t, "I will check.", d.Before)
	assert.Equal(t, "get_weather", d.Call.Name)
	assert.Equal(t, map[string]any{"city": "Boston"}, d.Call.Arguments)
	assert.Empty(t, d.After)
}

func TestDetectTextAfterBlock(t *testing.T) {
	text := "Sure.\n<function_call>\n{\"name\": \"now\"}\n</function_call>\nOne moment."

	d, ok := Detect(text)
	require.True(t, ok)
	assert.Equal(t, "Sure.", d.Before)
	assert.Equal(t, "now", d.Call.Name)
	assert.NotNil(t, d.Call.Arguments)
	assert.Empty(t, d.Call.Arguments)
	assert.Equal(t, "One moment.", d.After)
}

func TestDetectFirstBlockWins(t *testing.T) {
	text := `<function_call>{"name":"a"}</function_call><function_call>{"name":"b"}</function_call>`

	d, ok := Detect(text)
	require.True(t, ok)
	assert.Equal(t, "a", d.Call.Name)
	assert.Equal(t, `<function_call>{"name":"b"}</function_call>`, d.After)
}

func TestDetectSkipsMalformedBlock(t *testing.T) {
	text := `Try: <function_call>{name: oops}</function_call> then <function_call>{"name":"get_weather","arguments":{"city":"Boston"}}</function_call> done`

	d, ok := Detect(text)
	require.True(t, ok)
	assert.Equal(t, "get_weather", d.Call.Name)
	assert.Equal(t, "Try: <function_call>{name: oops}</function_call> then", d.Before)
	assert.Equal(t, "done", d.After)

	_, ok = Detect(`<function_call>{"arguments":{}}</function_call><function_call>{name}</function_call>`)
	assert.False(t, ok)
}

func TestDetectNotFound(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"plain text", "The weather is nice."},
		{"open tag only", `Let me look. <function_call>{"name":"get_weather"`},
		{"malformed json", `<function_call>{name: get_weather}</function_call>`},
		{"missing name", `<function_call>{"arguments":{"x":1}}</function_call>`},
		{"empty block", `<function_call></function_call>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := Detect(tt.text)
			assert.False(t, ok)
		})
	}
}

func TestVisible(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"Hello", "Hello"},
		{"Hello <", "Hello "},
		{"Hello <func", "Hello "},
		{"Hello <function_call>{\"na", "Hello "},
		{"a < b", "a < b"},
		{"x <b>bold", "x <b>bold"},
		{"a <function_call>{bad}</function_call> b", "a <function_call>{bad}</function_call> b"},
		{"a <function_call>{bad}</function_call> b <function_call>{\"name\":\"x\"}", "a <function_call>{bad}</function_call> b "},
		{"a <function_call>{bad}</function_call> b <func", "a <function_call>{bad}</function_call> b "},
		{"a <function_call>{\"name\":\"x\"}</function_call> b", "a "},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Visible(tt.text), "Visible(%q)", tt.text)
	}
}

func TestVisibleNeverShrinksAsTextGrows(t *testing.T) {
	full := `Checking a < b and <i>now</i> <function_call>{"name":"x"}</function_call>`

	prev := ""
	for i := 0; i <= len(full); i++ {
		v := Visible(full[:i])
		assert.GreaterOrEqual(t, len(v), len(prev), "prefix %d", i)
		assert.True(t, len(v) <= i)
		prev = v
	}
	assert.Equal(t, "Checking a < b and <i>now</i> ", prev)
}

func TestVisibleShowsMalformedBlockOnceClosed(t *testing.T) {
	full := `Try <function_call>{oops}</function_call> again <function_call>{"name":"x"}</function_call>`

	prev := ""
	for i := 0; i <= len(full); i++ {
		v := Visible(full[:i])
		assert.GreaterOrEqual(t, len(v), len(prev), "prefix %d", i)
		prev = v
	}
	assert.Equal(t, "Try <function_call>{oops}</function_call> again ", prev)
}

func TestStripAndFormat(t *testing.T) {
	call := Call{Name: "get_weather", Arguments: map[string]any{"city": "Boston"}}
	text := "Checking. " + Format(call)

	d, ok := Detect(text)
	require.True(t, ok)
	assert.Equal(t, call, d.Call)
	assert.Equal(t, "Checking.", Strip(text))
	assert.Equal(t, `get_weather({"city":"Boston"})`, call.Summary())
}
