// Package directive finds function-call directives embedded in assistant text.
//
// A directive is a block of the form
//
//	<function_call>{"name": "get_weather", "arguments": {"city": "Boston"}}</function_call>
//
// and asks the client to run the named function and hand the result back to
// the model.
package directive

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"tinychat/config"
)

// Directive delimiters
const (
	StartTag = "<function_call>"
	EndTag   = "</function_call>"
)

var blockRegex = regexp.MustCompile(`(?s)<function_call>\s*(.*?)\s*</function_call>`)

// Call is the parsed payload of a directive
type Call struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Detection is a directive found in a piece of text
type Detection struct {
	Before string // text preceding the block, trimmed
	Call   Call
	After  string // text following the block, trimmed
}

// Detect returns the first complete directive block in text that parses.
// Blocks whose payload is not valid JSON, or has no function name, are
// skipped so a later corrected block can still be found.
func Detect(text string) (Detection, bool) {
	for _, loc := range blockRegex.FindAllStringSubmatchIndex(text, -1) {
		call, err := parseCall(text[loc[2]:loc[3]])
		if err != nil {
			if config.DebugLog != nil {
				config.DebugLog.Printf("[Directive] Ignoring block: %v", err)
			}
			continue
		}
		return Detection{
			Before: strings.TrimSpace(text[:loc[0]]),
			Call:   call,
			After:  strings.TrimSpace(text[loc[1]:]),
		}, true
	}
	return Detection{}, false
}

func parseCall(payload string) (Call, error) {
	var call Call
	if err := json.Unmarshal([]byte(payload), &call); err != nil {
		return Call{}, fmt.Errorf("invalid payload: %w", err)
	}
	if call.Name == "" {
		return Call{}, errors.New("no function name")
	}
	if call.Arguments == nil {
		call.Arguments = map[string]any{}
	}
	return call, nil
}

// Visible returns the part of a partially streamed text that is safe to show:
// everything before an opening tag, or before a trailing fragment that could
// still grow into one. Closed blocks that do not parse stay visible.
func Visible(text string) string {
	offset := 0
	for {
		i := strings.Index(text[offset:], StartTag)
		if i < 0 {
			break
		}
		i += offset
		loc := blockRegex.FindStringSubmatchIndex(text[i:])
		if loc == nil || loc[0] != 0 {
			return text[:i]
		}
		if _, err := parseCall(text[i+loc[2] : i+loc[3]]); err == nil {
			return text[:i]
		}
		offset = i + loc[1]
	}

	rest := text[offset:]
	if j := strings.LastIndexByte(rest, '<'); j >= 0 && strings.HasPrefix(StartTag, rest[j:]) {
		return text[:offset+j]
	}
	return text
}

// Strip removes every complete directive block from text
func Strip(text string) string {
	return strings.TrimSpace(blockRegex.ReplaceAllString(text, ""))
}

// Format renders a call back into directive form
func Format(call Call) string {
	payload, err := json.Marshal(call)
	if err != nil {
		return StartTag + EndTag
	}
	return StartTag + string(payload) + EndTag
}

// Summary renders a call for display, e.g. get_weather({"city":"Boston"})
func (c Call) Summary() string {
	args, err := json.Marshal(c.Arguments)
	if err != nil || len(c.Arguments) == 0 {
		return c.Name + "()"
	}
	return c.Name + "(" + string(args) + ")"
}
