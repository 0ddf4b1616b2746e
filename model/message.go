package model

import (
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
)

// Message roles understood by the backend
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleFunction  = "function"
)

// Message represents a chat message in the conversation
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Name      string    `json:"name,omitempty"` // Function name, only for function-role messages
	Timestamp time.Time `json:"timestamp"`
}

// NewUserMessage creates a user message stamped with the current time
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content, Timestamp: time.Now()}
}

// NewAssistantMessage creates an assistant message stamped with the current time
func NewAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content, Timestamp: time.Now()}
}

// NewFunctionMessage creates a function-result message for the named function
func NewFunctionMessage(name, content string) Message {
	return Message{Role: RoleFunction, Name: name, Content: content, Timestamp: time.Now()}
}

// IsValidRole reports whether role is one the conversation can hold
func IsValidRole(role string) bool {
	switch role {
	case RoleUser, RoleAssistant, RoleFunction:
		return true
	}
	return false
}

// Preview returns the first line of the message, cut to maxWidth terminal cells
func (m Message) Preview(maxWidth int) string {
	line, _, _ := strings.Cut(strings.TrimSpace(m.Content), "\n")
	if maxWidth > 0 {
		return runewidth.Truncate(line, maxWidth, "...")
	}
	return line
}
