package ui

import (
	"tinychat/chat"
	"tinychat/directive"
	"tinychat/model"
	"tinychat/storage"
)

// Session events, sent by eventDisplay from the session goroutine
type replyBeginMsg struct{}

type replyPartialMsg struct {
	Text string
}

type functionCallMsg struct {
	Call directive.Call
}

type functionResultMsg struct {
	Message model.Message
}

type replyErrorMsg struct {
	Text string
}

type replyDoneMsg struct {
	Final string
}

type sessionDoneMsg struct {
	ConversationID string
	Outcome        chat.Outcome
}

type titleMsg struct {
	ConversationID string
	Title          string
}

type markdownRenderedMsg struct {
	EntryIndex int
	Rendered   string
}

type conversationsListMsg struct {
	Conversations []storage.ConversationMetadata
	Err           error
}

type conversationLoadedMsg struct {
	Conversation *model.Conversation
	Err          error
}

type healthMsg struct {
	Err error
}

type searchResultsMsg struct {
	Query   string
	Matches []storage.MessageMatch
	Err     error
}
