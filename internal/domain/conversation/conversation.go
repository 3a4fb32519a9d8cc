// Package conversation defines the persisted conversation model. A
// conversation belongs to exactly one user and holds an ordered message
// subcollection; its metadata is derived from the messages flowing through it.
package conversation

import (
	"time"

	"github.com/flap-ai/flapd/internal/domain/chat"
)

const (
	titleLimit   = 50
	previewLimit = 100
)

// Conversation is the metadata document stored at
// users/{uid}/conversations/{id}.
type Conversation struct {
	ID           string    `json:"id"`
	Owner        string    `json:"owner"`
	Title        string    `json:"title"`
	LastMessage  string    `json:"last_message"`
	MessageCount int64     `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	LastUpdated  time.Time `json:"last_updated"`
}

// StoredMessage is one entry of a conversation's message subcollection.
type StoredMessage struct {
	ID        string          `json:"id"`
	Role      chat.Role       `json:"role"`
	Content   string          `json:"content"`
	Reasoning string          `json:"reasoning,omitempty"`
	Provider  chat.ProviderID `json:"provider,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// DeriveTitle builds a conversation title from its first message: the first
// 50 characters, with an ellipsis when truncated.
func DeriveTitle(firstMessage string) string {
	return truncate(firstMessage, titleLimit)
}

// Preview builds the last_message field: the first 100 characters of the most
// recent message.
func Preview(message string) string {
	return truncate(message, previewLimit)
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
