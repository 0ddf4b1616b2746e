package model

import "time"

// DefaultTitle is the placeholder title a conversation carries until one is generated
const DefaultTitle = "New Chat"

// Conversation is an ordered message history plus its metadata
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Messages  []Message `json:"messages"`
}

// HasPlaceholderTitle reports whether the conversation still needs a generated title
func (c *Conversation) HasPlaceholderTitle() bool {
	return c.Title == "" || c.Title == DefaultTitle
}

// LastUserIndex returns the index of the newest user message, or -1
func (c *Conversation) LastUserIndex() int {
	return LastUserIndex(c.Messages)
}

// FirstUserMessage returns the first user message, if any
func (c *Conversation) FirstUserMessage() (Message, bool) {
	for _, m := range c.Messages {
		if m.Role == RoleUser {
			return m, true
		}
	}
	return Message{}, false
}

// LastUserIndex returns the index of the newest user message in msgs, or -1
func LastUserIndex(msgs []Message) int {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == RoleUser {
			return i
		}
	}
	return -1
}

// CompleteExchanges counts user messages that were followed by an assistant reply
func CompleteExchanges(msgs []Message) int {
	count := 0
	waiting := false
	for _, m := range msgs {
		switch m.Role {
		case RoleUser:
			waiting = true
		case RoleAssistant:
			if waiting {
				count++
				waiting = false
			}
		}
	}
	return count
}
