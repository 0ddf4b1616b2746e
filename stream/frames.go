package stream

import (
	"strings"

	"github.com/tidwall/gjson"

	"tinychat/config"
)

// choicesField marks the start of the array that carries one delta object per token
const choicesField = `"choices"`

// State is the parser's carry-over between chunks: the unconsumed text and
// whether the choices array has been located yet.
type State struct {
	Text    string
	Located bool
	Closed  bool // the choices array ended; trailing text is ignored
}

// Result describes one parsing pass
type Result struct {
	Fragments []string
	Skipped   int // complete objects that were not valid JSON
}

// Parse extracts every complete choice object from state.Text and returns the
// delta contents in order, plus the state to carry into the next call. An
// object still missing its closing brace stays in the returned text untouched.
//
// Until both the record start and the opening bracket of the choices array
// have arrived nothing is consumed.
func Parse(state State) (Result, State) {
	var res Result
	if state.Closed {
		return res, state
	}

	if !state.Located {
		text, ok := locateChoices(state.Text)
		if !ok {
			return res, state
		}
		state.Text = text
		state.Located = true
	}

	text := state.Text
	for {
		text = skipSeparator(text)
		if text == "" {
			break
		}
		if text[0] == ']' {
			state.Closed = true
			break
		}
		if text[0] != '{' {
			break
		}

		end := objectEnd(text)
		if end < 0 {
			// Object not complete yet
			break
		}

		object := text[:end+1]
		text = text[end+1:]

		if !gjson.Valid(object) {
			res.Skipped++
			if config.DebugLog != nil {
				config.DebugLog.Printf("[Stream] Skipping malformed choice object (%d bytes)", len(object))
			}
			continue
		}

		content := gjson.Get(object, "delta.content")
		if content.Type == gjson.String && content.Str != "" {
			res.Fragments = append(res.Fragments, content.Str)
		}
	}

	state.Text = text
	return res, state
}

// locateChoices discards everything up to and including the opening bracket of
// the choices array.
func locateChoices(text string) (string, bool) {
	if !strings.Contains(text, "{") {
		return text, false
	}
	field := strings.Index(text, choicesField)
	if field < 0 {
		return text, false
	}
	rest := text[field+len(choicesField):]
	bracket := strings.IndexByte(rest, '[')
	if bracket < 0 {
		return text, false
	}
	return rest[bracket+1:], true
}

// skipSeparator drops leading whitespace and at most one comma
func skipSeparator(text string) string {
	text = strings.TrimLeft(text, " \t\r\n")
	if strings.HasPrefix(text, ",") {
		text = strings.TrimLeft(text[1:], " \t\r\n")
	}
	return text
}

// objectEnd returns the index of the brace closing the object that starts at
// text[0], or -1 if it has not arrived. Braces inside string literals do not
// count, and a backslash inside a string escapes the byte after it.
func objectEnd(text string) int {
	depth := 0
	inString := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			switch c {
			case '\\':
				i++
			case '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// Parser accumulates chunks and yields delta contents as objects complete
type Parser struct {
	state     State
	fragments int
	skipped   int
}

// Feed appends chunk to the buffer and returns the fragments it completed
func (p *Parser) Feed(chunk string) []string {
	p.state.Text += chunk
	res, next := Parse(p.state)
	p.state = next
	p.fragments += len(res.Fragments)
	p.skipped += res.Skipped
	return res.Fragments
}

// Closed reports whether the end of the choices array has been seen
func (p *Parser) Closed() bool {
	return p.state.Closed
}

// Pending returns the text still waiting for more input
func (p *Parser) Pending() string {
	return p.state.Text
}

// Stats returns how many fragments were extracted and objects skipped
func (p *Parser) Stats() (fragments, skipped int) {
	return p.fragments, p.skipped
}
