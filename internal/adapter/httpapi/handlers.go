package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/flap-ai/flapd/internal/domain"
	"github.com/flap-ai/flapd/internal/domain/chat"
	"github.com/flap-ai/flapd/internal/domain/conversation"
	"github.com/flap-ai/flapd/internal/middleware"
	"github.com/flap-ai/flapd/internal/service"
)

// Handlers bundles the services the HTTP layer dispatches into.
type Handlers struct {
	Chat      *service.ChatService
	Providers []chat.ProviderID
	Search    bool
	Logger    *slog.Logger
}

// HandleRoot reports that the service is up.
func (h *Handlers) HandleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Flap AI Chat API is running",
	})
}

// HandleHealth reports service status with per-provider configured flags.
func (h *Handlers) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	providers := map[string]bool{
		string(chat.ProviderGrok):   false,
		string(chat.ProviderOpenAI): false,
		string(chat.ProviderGemini): false,
	}
	for _, id := range h.Providers {
		providers[string(id)] = true
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "healthy",
		"providers":      providers,
		"search_enabled": h.Search,
		"persistence":    h.Chat.Persistent(),
	})
}

// HandleChat serves the non-streaming chat endpoint. Upstream failures come
// back as 200 with success=false; only malformed requests and the empty
// registry produce error statuses.
func (h *Handlers) HandleChat(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[chat.Request](w, r)
	if !ok {
		return
	}

	uid := middleware.UID(r.Context())
	resp, err := h.Chat.Chat(r.Context(), uid, req)
	if err != nil {
		writeDomainError(w, err, "message is required")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// HandleChatStream serves the streaming chat endpoint over SSE.
func (h *Handlers) HandleChatStream(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[chat.Request](w, r)
	if !ok {
		return
	}

	sse, err := newSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	uid := middleware.UID(r.Context())
	for event := range h.Chat.ChatStream(r.Context(), uid, req) {
		if err := sse.Send(event); err != nil {
			h.Logger.Debug("client disconnected mid-stream", "error", err)
			return
		}
	}
}

type conversationList struct {
	Conversations []conversation.Conversation `json:"conversations"`
}

type conversationMessages struct {
	ConversationID string                       `json:"conversation_id"`
	Messages       []conversation.StoredMessage `json:"messages"`
}

// HandleListConversations returns the caller's conversations, most recently
// updated first.
func (h *Handlers) HandleListConversations(w http.ResponseWriter, r *http.Request) {
	store := h.Chat.Conversations()
	if store == nil {
		writeDomainError(w, domain.ErrStoreUnavailable, "")
		return
	}

	uid := middleware.UID(r.Context())
	convs, err := store.List(r.Context(), uid)
	if err != nil {
		writeDomainError(w, err, "conversation not found")
		return
	}
	if convs == nil {
		convs = []conversation.Conversation{}
	}

	writeJSON(w, http.StatusOK, conversationList{Conversations: convs})
}

// HandleGetConversation returns one conversation's messages, oldest first.
func (h *Handlers) HandleGetConversation(w http.ResponseWriter, r *http.Request) {
	store := h.Chat.Conversations()
	if store == nil {
		writeDomainError(w, domain.ErrStoreUnavailable, "")
		return
	}

	uid := middleware.UID(r.Context())
	cid := urlParam(r, "id")
	msgs, err := store.Messages(r.Context(), uid, cid)
	if err != nil {
		writeDomainError(w, err, "conversation not found")
		return
	}
	if msgs == nil {
		msgs = []conversation.StoredMessage{}
	}

	writeJSON(w, http.StatusOK, conversationMessages{ConversationID: cid, Messages: msgs})
}

// HandleDeleteConversation removes a conversation and its messages.
func (h *Handlers) HandleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	store := h.Chat.Conversations()
	if store == nil {
		writeDomainError(w, domain.ErrStoreUnavailable, "")
		return
	}

	uid := middleware.UID(r.Context())
	cid := urlParam(r, "id")
	if err := store.Delete(r.Context(), uid, cid); err != nil {
		writeDomainError(w, err, "conversation not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
