package chat

import (
	"context"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"

	"tinychat/backend"
	"tinychat/config"
	"tinychat/directive"
	"tinychat/model"
)

const (
	titlePrompt   = "Write a short title of at most six words for this conversation. Reply with the title only."
	titleTimeout  = 30 * time.Second
	localTitleMax = 40
	titleMax      = 60
)

// maybeGenerateTitle names a conversation in the background after its first
// complete exchange.
func (o *Orchestrator) maybeGenerateTitle(sc SessionContext) {
	conv := model.Conversation{ID: sc.ConversationID, Title: sc.Title, Messages: sc.History}
	if !conv.HasPlaceholderTitle() {
		return
	}
	if model.CompleteExchanges(conv.Messages) != 1 {
		return
	}

	first, _ := conv.FirstUserMessage()
	userText := first.Content
	var reply string
	for _, m := range conv.Messages {
		if m.Role == model.RoleAssistant {
			reply = m.Content
		}
	}

	o.titles.Add(1)
	go func() {
		defer o.titles.Done()

		title := o.generateTitle(userText, reply)
		if err := o.store.Rename(sc.ConversationID, title); err != nil {
			if config.DebugLog != nil {
				config.DebugLog.Printf("[Chat] Failed to store title for %s: %v", sc.ConversationID, err)
			}
			return
		}
		if config.DebugLog != nil {
			config.DebugLog.Printf("[Chat] Titled %s: %q", sc.ConversationID, title)
		}
		if o.opts.OnTitle != nil {
			o.opts.OnTitle(sc.ConversationID, title)
		}
	}()
}

// generateTitle asks the model for a title, falling back to one built from
// the user's message.
func (o *Orchestrator) generateTitle(userText, reply string) string {
	ctx, cancel := context.WithTimeout(context.Background(), titleTimeout)
	defer cancel()

	history := []model.Message{
		model.NewUserMessage(userText),
		model.NewAssistantMessage(directive.Strip(reply)),
		model.NewUserMessage(titlePrompt),
	}
	settings := o.opts.Generation
	settings.MaxTokens = o.opts.TitleMaxTokens
	settings.SystemPrompt = ""

	text, err := o.backend.Complete(ctx, backend.NewChatRequest(history, settings))
	if err != nil {
		if config.DebugLog != nil {
			config.DebugLog.Printf("[Chat] Title generation failed, using local title: %v", err)
		}
		return LocalTitle(userText)
	}
	if title := CleanTitle(text); title != "" {
		return title
	}
	return LocalTitle(userText)
}

// CleanTitle reduces a model reply to a single title line
func CleanTitle(text string) string {
	line := ""
	for _, l := range strings.Split(directive.Strip(text), "\n") {
		if l = strings.TrimSpace(l); l != "" {
			line = l
			break
		}
	}
	if len(line) >= 6 && strings.EqualFold(line[:6], "title:") {
		line = strings.TrimSpace(line[6:])
	}
	line = strings.Trim(line, "\"'`*# ")
	return runewidth.Truncate(line, titleMax, "...")
}

// LocalTitle builds a title from the first line of a user message
func LocalTitle(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			return runewidth.Truncate(line, localTitleMax, "...")
		}
	}
	return model.DefaultTitle
}
