package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sahilm/fuzzy"
	_ "modernc.org/sqlite"

	"tinychat/config"
	"tinychat/model"
)

// Sentinel errors
var (
	ErrNotFound     = errors.New("conversation not found")
	ErrAmbiguousID  = errors.New("conversation id prefix matches more than one conversation")
	ErrInvalidRole  = errors.New("invalid message role")
	ErrInvalidTitle = errors.New("title cannot be empty")
)

// ConversationMetadata is a lightweight version of Conversation for listing
type ConversationMetadata struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
}

// ConversationStore persists conversations in a SQLite database under the data directory
type ConversationStore struct {
	db      *sql.DB
	dataDir string
}

// NewConversationStore opens (or creates) conversations.db in dataDir
func NewConversationStore(dataDir string) (*ConversationStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "conversations.db")

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection serializes writers; appends from the orchestrator and
	// renames from title generation can overlap.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &ConversationStore{db: db, dataDir: dataDir}

	if err := store.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return store, nil
}

func (s *ConversationStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS messages (
		conversation_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		PRIMARY KEY (conversation_id, position)
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_updated ON conversations(updated_at);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	if err := s.migrateSchema(); err != nil {
		return fmt.Errorf("schema migration failed: %w", err)
	}

	return nil
}

// migrateSchema adds columns introduced after the first release
func (s *ConversationStore) migrateSchema() error {
	hasName, err := s.columnExists("messages", "name")
	if err != nil {
		return fmt.Errorf("failed to check for name column: %w", err)
	}

	if !hasName {
		if _, err := s.db.Exec(`ALTER TABLE messages ADD COLUMN name TEXT NOT NULL DEFAULT ''`); err != nil {
			return fmt.Errorf("failed to add name column: %w", err)
		}
	}

	return nil
}

// columnExists checks if a column exists in a table using PRAGMA table_info
func (s *ConversationStore) columnExists(tableName, columnName string) (bool, error) {
	rows, err := s.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid        int
			name       string
			colType    string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &defaultVal, &pk); err != nil {
			return false, err
		}
		if name == columnName {
			return true, nil
		}
	}

	return false, rows.Err()
}

// Create starts an empty conversation
func (s *ConversationStore) Create(title string) (*model.Conversation, error) {
	if strings.TrimSpace(title) == "" {
		title = model.DefaultTitle
	}

	now := time.Now().UTC()
	conv := &model.Conversation{
		ID:        uuid.New().String(),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
		Messages:  []model.Message{},
	}

	_, err := s.db.Exec(`INSERT INTO conversations (id, title, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		conv.ID, conv.Title, conv.CreatedAt, conv.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}

	if config.DebugLog != nil {
		config.DebugLog.Printf("[Storage] Created conversation %s", conv.ID)
	}

	return conv, nil
}

// Load returns a conversation with its messages in order
func (s *ConversationStore) Load(id string) (*model.Conversation, error) {
	var conv model.Conversation
	err := s.db.QueryRow(`SELECT id, title, created_at, updated_at FROM conversations WHERE id = ?`, id).
		Scan(&conv.ID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}

	rows, err := s.db.Query(`
	SELECT role, content, name, created_at
	FROM messages
	WHERE conversation_id = ?
	ORDER BY position
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	defer rows.Close()

	conv.Messages = []model.Message{}
	for rows.Next() {
		var msg model.Message
		if err := rows.Scan(&msg.Role, &msg.Content, &msg.Name, &msg.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to read message: %w", err)
		}
		conv.Messages = append(conv.Messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read messages: %w", err)
	}

	return &conv, nil
}

// Append adds msg at the end of the conversation
func (s *ConversationStore) Append(id string, msg model.Message) error {
	if !model.IsValidRole(msg.Role) {
		return fmt.Errorf("%w: %q", ErrInvalidRole, msg.Role)
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	return s.withTx(func(tx *sql.Tx) error {
		if err := touch(tx, id, time.Now().UTC()); err != nil {
			return err
		}

		var next int
		if err := tx.QueryRow(`SELECT COALESCE(MAX(position) + 1, 0) FROM messages WHERE conversation_id = ?`, id).Scan(&next); err != nil {
			return fmt.Errorf("failed to find next position: %w", err)
		}

		_, err := tx.Exec(`INSERT INTO messages (conversation_id, position, role, content, name, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			id, next, msg.Role, msg.Content, msg.Name, msg.Timestamp.UTC())
		if err != nil {
			return fmt.Errorf("failed to append message: %w", err)
		}
		return nil
	})
}

// TruncateFrom deletes the message at position and every message after it
func (s *ConversationStore) TruncateFrom(id string, position int) error {
	return s.withTx(func(tx *sql.Tx) error {
		if err := touch(tx, id, time.Now().UTC()); err != nil {
			return err
		}
		if _, err := tx.Exec(`DELETE FROM messages WHERE conversation_id = ? AND position >= ?`, id, position); err != nil {
			return fmt.Errorf("failed to truncate conversation: %w", err)
		}
		return nil
	})
}

// Rename updates the title of a conversation
func (s *ConversationStore) Rename(id, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return ErrInvalidTitle
	}

	result, err := s.db.Exec(`UPDATE conversations SET title = ? WHERE id = ?`, title, id)
	if err != nil {
		return fmt.Errorf("failed to rename conversation: %w", err)
	}
	return requireRow(result, id)
}

// Delete removes a conversation and its messages
func (s *ConversationStore) Delete(id string) error {
	return s.withTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM messages WHERE conversation_id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete messages: %w", err)
		}
		result, err := tx.Exec(`DELETE FROM conversations WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to delete conversation: %w", err)
		}
		return requireRow(result, id)
	})
}

// List returns all conversations, most recently updated first
func (s *ConversationStore) List() ([]ConversationMetadata, error) {
	rows, err := s.db.Query(`
	SELECT c.id, c.title, c.created_at, c.updated_at, COUNT(m.position)
	FROM conversations c
	LEFT JOIN messages m ON m.conversation_id = c.id
	GROUP BY c.id
	ORDER BY c.updated_at DESC, c.created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var list []ConversationMetadata
	for rows.Next() {
		var meta ConversationMetadata
		if err := rows.Scan(&meta.ID, &meta.Title, &meta.CreatedAt, &meta.UpdatedAt, &meta.MessageCount); err != nil {
			continue
		}
		list = append(list, meta)
	}

	return list, rows.Err()
}

// FindByTitle fuzzy-matches query against conversation titles, best match first
func (s *ConversationStore) FindByTitle(query string) ([]ConversationMetadata, error) {
	list, err := s.List()
	if err != nil {
		return nil, err
	}
	if query == "" {
		return list, nil
	}

	titles := make([]string, len(list))
	for i, meta := range list {
		titles[i] = meta.Title
	}

	matches := fuzzy.Find(query, titles)
	result := make([]ConversationMetadata, 0, len(matches))
	for _, match := range matches {
		result = append(result, list[match.Index])
	}
	return result, nil
}

// ResolveID expands a unique id prefix to a full conversation id
func (s *ConversationStore) ResolveID(prefix string) (string, error) {
	if prefix == "" {
		return "", fmt.Errorf("%w: empty id", ErrNotFound)
	}

	rows, err := s.db.Query(`SELECT id FROM conversations WHERE id LIKE ? || '%' LIMIT 2`, prefix)
	if err != nil {
		return "", fmt.Errorf("failed to resolve id: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", err
		}
		ids = append(ids, id)
	}

	switch len(ids) {
	case 0:
		return "", fmt.Errorf("%w: %s", ErrNotFound, prefix)
	case 1:
		return ids[0], nil
	default:
		return "", fmt.Errorf("%w: %s", ErrAmbiguousID, prefix)
	}
}

// SaveCurrentID remembers the conversation that was open last
func (s *ConversationStore) SaveCurrentID(id string) error {
	return os.WriteFile(filepath.Join(s.dataDir, "current_conversation.id"), []byte(id), 0600)
}

// LoadCurrentID returns the conversation that was open last
func (s *ConversationStore) LoadCurrentID() (string, error) {
	data, err := os.ReadFile(filepath.Join(s.dataDir, "current_conversation.id"))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// Close closes the database
func (s *ConversationStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *ConversationStore) withTx(fn func(tx *sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// touch bumps updated_at and fails with ErrNotFound for unknown ids
func touch(tx *sql.Tx, id string, now time.Time) error {
	result, err := tx.Exec(`UPDATE conversations SET updated_at = ? WHERE id = ?`, now, id)
	if err != nil {
		return fmt.Errorf("failed to update conversation: %w", err)
	}
	return requireRow(result, id)
}

func requireRow(result sql.Result, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}
