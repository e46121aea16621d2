// Package store holds the two append/lookup collections behind the sync
// client: conversations and messages. The collections are the single
// source of truth; every successful mutation serializes both to durable
// storage before returning.
//
// The store is scoped per process, not per user; user isolation is only
// the user-id filter applied by queries.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nebulachat/nebula/internal/kv"
	"github.com/nebulachat/nebula/internal/log"
)

// DefaultConversationTitle is the title assigned to a newly created
// conversation.
const DefaultConversationTitle = "New Conversation"

// Role identifies the author of a message.
type Role string

// Message roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Sentinel errors for data-store operations.
var (
	// ErrConversationNotFound indicates a message referenced a conversation
	// id that does not exist.
	ErrConversationNotFound = errors.New("conversation not found")
)

// Conversation is a titled, ordered thread of messages owned by one user.
// Ownership is immutable; conversations are never updated or deleted
// except by Wipe.
type Conversation struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is one turn in a conversation. The chat_id JSON key preserves
// the storage layout the demo UI wrote.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"chat_id"`
	Content        string    `json:"content"`
	Role           Role      `json:"role"`
	CreatedAt      time.Time `json:"created_at"`
}

// DB holds both collections in memory and mirrors them to durable storage
// on every mutation. Safe for concurrent use within one process.
type DB struct {
	kv     kv.Store
	logger log.Logger

	mu            sync.RWMutex
	conversations []Conversation // newest first
	messages      []Message      // insertion order
}

// Open loads both collections from durable storage. Missing keys yield
// empty collections; corrupt data is an error.
func Open(store kv.Store, logger log.Logger) (*DB, error) {
	db := &DB{kv: store, logger: logger}

	if err := loadCollection(store, kv.KeyConversations, &db.conversations); err != nil {
		return nil, err
	}
	if err := loadCollection(store, kv.KeyMessages, &db.messages); err != nil {
		return nil, err
	}

	logger.Debug("data store opened",
		"conversations", len(db.conversations),
		"messages", len(db.messages))
	return db, nil
}

func loadCollection[T any](store kv.Store, key string, dst *[]T) error {
	data, ok, err := store.Get(key)
	if err != nil {
		return fmt.Errorf("loading %s: %w", key, err)
	}
	if !ok {
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decoding %s: %w", key, err)
	}
	return nil
}

// CreateConversation allocates a conversation owned by userID, prepends it
// to the collection (listings are newest-first) and persists.
func (db *DB) CreateConversation(userID string) (Conversation, error) {
	conv := Conversation{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     DefaultConversationTitle,
		CreatedAt: time.Now().UTC(),
	}

	db.mu.Lock()
	db.conversations = append([]Conversation{conv}, db.conversations...)
	db.persistLocked()
	db.mu.Unlock()

	db.logger.Debug("created conversation", "id", conv.ID, "user_id", userID)
	return conv, nil
}

// AppendMessage appends a message to conversationID and persists. The
// conversation must exist: dangling message references are rejected.
func (db *DB) AppendMessage(conversationID string, role Role, content string) (Message, error) {
	msg := Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Content:        content,
		Role:           role,
		CreatedAt:      time.Now().UTC(),
	}

	db.mu.Lock()
	if !db.conversationExistsLocked(conversationID) {
		db.mu.Unlock()
		return Message{}, fmt.Errorf("%w: %s", ErrConversationNotFound, conversationID)
	}
	db.messages = append(db.messages, msg)
	db.persistLocked()
	db.mu.Unlock()

	db.logger.Debug("appended message", "conversation_id", conversationID, "role", role)
	return msg, nil
}

// ConversationsByUser returns userID's conversations in stored order
// (newest first, because creation prepends).
func (db *DB) ConversationsByUser(userID string) []Conversation {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var out []Conversation
	for _, c := range db.conversations {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out
}

// MessagesByConversation returns the conversation's messages in insertion
// order.
func (db *DB) MessagesByConversation(conversationID string) []Message {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var out []Message
	for _, m := range db.messages {
		if m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	return out
}

// ConversationExists reports whether id is a known conversation.
func (db *DB) ConversationExists(id string) bool {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.conversationExistsLocked(id)
}

// Wipe discards both collections, in memory and in durable storage. This
// backs the clean-slate logout policy.
func (db *DB) Wipe() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.conversations = nil
	db.messages = nil
	if err := db.kv.Delete(kv.KeyConversations); err != nil {
		return fmt.Errorf("wiping conversations: %w", err)
	}
	if err := db.kv.Delete(kv.KeyMessages); err != nil {
		return fmt.Errorf("wiping messages: %w", err)
	}
	return nil
}

func (db *DB) conversationExistsLocked(id string) bool {
	for _, c := range db.conversations {
		if c.ID == id {
			return true
		}
	}
	return false
}

// persistLocked serializes both collections to durable storage. A failed
// write is logged, not returned: the mutation's effect stays observable in
// memory. There is no partial-write recovery; the kv.Fallback wrapper is
// the usual mitigation.
func (db *DB) persistLocked() {
	chats, err := json.Marshal(db.conversations)
	if err != nil {
		db.logger.Error("encoding conversations", "error", err)
		return
	}
	msgs, err := json.Marshal(db.messages)
	if err != nil {
		db.logger.Error("encoding messages", "error", err)
		return
	}
	if err := db.kv.Set(kv.KeyConversations, chats); err != nil {
		db.logger.Warn("persisting conversations", "error", err)
	}
	if err := db.kv.Set(kv.KeyMessages, msgs); err != nil {
		db.logger.Warn("persisting messages", "error", err)
	}
}
