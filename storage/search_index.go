package storage

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mattn/go-runewidth"
)

const previewWidth = 100

// MessageMatch is a message whose content contains a search query
type MessageMatch struct {
	ConversationID    string
	ConversationTitle string
	MessageIndex      int
	Role              string
	Content           string
	Preview           string
	Timestamp         time.Time
}

// SearchMessages finds messages across all conversations containing query,
// case-insensitively, newest conversation first.
func (s *ConversationStore) SearchMessages(query string) ([]MessageMatch, error) {
	if strings.TrimSpace(query) == "" {
		return []MessageMatch{}, nil
	}

	rows, err := s.db.Query(`
	SELECT c.id, c.title, m.position, m.role, m.content, m.created_at
	FROM messages m
	JOIN conversations c ON c.id = m.conversation_id
	WHERE instr(lower(m.content), lower(?)) > 0
	ORDER BY c.updated_at DESC, m.position
	`, query)
	if err != nil {
		return nil, fmt.Errorf("failed to search messages: %w", err)
	}
	defer rows.Close()

	var matches []MessageMatch
	for rows.Next() {
		var m MessageMatch
		if err := rows.Scan(&m.ConversationID, &m.ConversationTitle, &m.MessageIndex, &m.Role, &m.Content, &m.Timestamp); err != nil {
			continue
		}
		m.Preview = preview(m.Content, query)
		matches = append(matches, m)
	}

	return matches, rows.Err()
}

// preview returns a single-line excerpt starting shortly before the first match
func preview(content, query string) string {
	flat := strings.Join(strings.Fields(content), " ")

	start := 0
	if i := strings.Index(strings.ToLower(flat), strings.ToLower(query)); i > 30 {
		start = i - 30
		// Move to a rune boundary
		for start < len(flat) && !utf8.RuneStart(flat[start]) {
			start++
		}
	}

	excerpt := runewidth.Truncate(flat[start:], previewWidth, "...")
	if start > 0 {
		excerpt = "..." + excerpt
	}
	return excerpt
}
