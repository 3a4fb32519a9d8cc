// Package service holds the chat orchestrator, the search agent and the
// conversation store gateway.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/flap-ai/flapd/internal/domain/chat"
	"github.com/flap-ai/flapd/internal/domain/conversation"
	"github.com/flap-ai/flapd/internal/port/docstore"
)

// ListLimit caps how many conversations a single listing returns.
const ListLimit = 50

// storedTimeFormat is fixed-width UTC. The store orders documents on these
// values as text, and RFC3339Nano's trimmed fractions misorder timestamps
// whose fractions are prefixes of each other.
const storedTimeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// ConversationService is the thin gateway between chat flows and the document
// store. Documents live in a two-level hierarchy:
// users/{uid}/conversations/{cid}/messages/{mid}.
type ConversationService struct {
	store  docstore.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewConversationService creates the gateway on the given store.
func NewConversationService(store docstore.Store, logger *slog.Logger) *ConversationService {
	return &ConversationService{store: store, logger: logger, now: time.Now}
}

func conversationsPath(uid string) string {
	return "users/" + uid + "/conversations"
}

func conversationPath(uid, cid string) string {
	return conversationsPath(uid) + "/" + cid
}

func messagesPath(uid, cid string) string {
	return conversationPath(uid, cid) + "/messages"
}

// Create starts a new conversation keyed off its first message and returns
// the stored record.
func (s *ConversationService) Create(ctx context.Context, uid, firstMessage string) (*conversation.Conversation, error) {
	now := s.now()
	conv := conversation.Conversation{
		Owner:       uid,
		Title:       conversation.DeriveTitle(firstMessage),
		LastMessage: conversation.Preview(firstMessage),
		CreatedAt:   now,
		LastUpdated: now,
	}

	id, err := s.store.Create(ctx, conversationsPath(uid), docstore.Doc{
		"owner":         conv.Owner,
		"title":         conv.Title,
		"last_message":  conv.LastMessage,
		"message_count": int64(0),
		"created_at":    now.UTC().Format(storedTimeFormat),
		"last_updated":  now.UTC().Format(storedTimeFormat),
	})
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}

	conv.ID = id
	return &conv, nil
}

// Exists reports whether the caller owns a conversation with the given id.
func (s *ConversationService) Exists(ctx context.Context, uid, cid string) bool {
	_, err := s.store.Get(ctx, conversationPath(uid, cid))
	return err == nil
}

// AppendMessage stores one message and refreshes the conversation metadata.
// The message counter uses the store's atomic increment, so concurrent
// writers to the same conversation need no locking here.
func (s *ConversationService) AppendMessage(ctx context.Context, uid, cid string, msg chat.Message) error {
	now := s.now()
	_, err := s.store.Create(ctx, messagesPath(uid, cid), docstore.Doc{
		"role":       string(msg.Role),
		"content":    msg.Content,
		"reasoning":  msg.Reasoning,
		"provider":   string(msg.Provider),
		"created_at": now.UTC().Format(storedTimeFormat),
	})
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}

	if err := s.store.Set(ctx, conversationPath(uid, cid), docstore.Doc{
		"last_message": conversation.Preview(msg.Content),
		"last_updated": now.UTC().Format(storedTimeFormat),
	}, true); err != nil {
		return fmt.Errorf("update conversation metadata: %w", err)
	}

	if err := s.store.Increment(ctx, conversationPath(uid, cid), "message_count", 1); err != nil {
		return fmt.Errorf("increment message count: %w", err)
	}
	return nil
}

// List returns the caller's conversations, most recently updated first,
// capped at ListLimit.
func (s *ConversationService) List(ctx context.Context, uid string) ([]conversation.Conversation, error) {
	docs, err := s.store.OrderedList(ctx, conversationsPath(uid), "last_updated", true, ListLimit)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	out := make([]conversation.Conversation, 0, len(docs))
	for _, d := range docs {
		out = append(out, docToConversation(d))
	}
	return out, nil
}

// Messages returns one conversation's messages, oldest first. Ownership is
// enforced by path scoping plus an existence check so a foreign id yields
// ErrNotFound rather than an empty list.
func (s *ConversationService) Messages(ctx context.Context, uid, cid string) ([]conversation.StoredMessage, error) {
	if _, err := s.store.Get(ctx, conversationPath(uid, cid)); err != nil {
		return nil, fmt.Errorf("conversation %s: %w", cid, err)
	}

	docs, err := s.store.OrderedList(ctx, messagesPath(uid, cid), "created_at", false, 0)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	out := make([]conversation.StoredMessage, 0, len(docs))
	for _, d := range docs {
		out = append(out, conversation.StoredMessage{
			ID:        d.ID,
			Role:      chat.Role(str(d.Data, "role")),
			Content:   str(d.Data, "content"),
			Reasoning: str(d.Data, "reasoning"),
			Provider:  chat.ProviderID(str(d.Data, "provider")),
			CreatedAt: timestamp(d.Data, "created_at"),
		})
	}
	return out, nil
}

// Delete removes a conversation and all its messages.
func (s *ConversationService) Delete(ctx context.Context, uid, cid string) error {
	if _, err := s.store.Get(ctx, conversationPath(uid, cid)); err != nil {
		return fmt.Errorf("conversation %s: %w", cid, err)
	}
	if err := s.store.Delete(ctx, conversationPath(uid, cid)); err != nil {
		return fmt.Errorf("delete conversation %s: %w", cid, err)
	}
	return nil
}

// History rebuilds the canonical message list from a stored conversation.
func (s *ConversationService) History(ctx context.Context, uid, cid string) ([]chat.Message, error) {
	stored, err := s.Messages(ctx, uid, cid)
	if err != nil {
		return nil, err
	}
	msgs := make([]chat.Message, 0, len(stored))
	for _, m := range stored {
		msgs = append(msgs, chat.Message{Role: m.Role, Content: m.Content, Reasoning: m.Reasoning, Provider: m.Provider})
	}
	return msgs, nil
}

func docToConversation(d docstore.Document) conversation.Conversation {
	return conversation.Conversation{
		ID:           d.ID,
		Owner:        str(d.Data, "owner"),
		Title:        str(d.Data, "title"),
		LastMessage:  str(d.Data, "last_message"),
		MessageCount: count(d.Data, "message_count"),
		CreatedAt:    timestamp(d.Data, "created_at"),
		LastUpdated:  timestamp(d.Data, "last_updated"),
	}
}

func str(doc docstore.Doc, key string) string {
	v, _ := doc[key].(string)
	return v
}

func count(doc docstore.Doc, key string) int64 {
	switch v := doc[key].(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	case int:
		return int64(v)
	}
	return 0
}

func timestamp(doc docstore.Doc, key string) time.Time {
	s, _ := doc[key].(string)
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
