package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/flap-ai/flapd/internal/domain"
	"github.com/flap-ai/flapd/internal/domain/chat"
	"github.com/flap-ai/flapd/internal/port/docstore"
)

// mockStore is an in-memory docstore.Store recording operations for
// assertions. Safe for concurrent use: persistence runs on background
// goroutines while tests poll.
type mockStore struct {
	mu      sync.Mutex
	docs    map[string]docstore.Doc
	nextID  int
	created []string
	deleted []string
	failure error
}

func newMockStore() *mockStore {
	return &mockStore{docs: map[string]docstore.Doc{}}
}

func (m *mockStore) Create(ctx context.Context, path string, doc docstore.Doc) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failure != nil {
		return "", m.failure
	}
	m.nextID++
	id := fmt.Sprintf("id-%d", m.nextID)
	m.docs[path+"/"+id] = doc
	m.created = append(m.created, path+"/"+id)
	return id, nil
}

func (m *mockStore) Set(ctx context.Context, path string, doc docstore.Doc, merge bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failure != nil {
		return m.failure
	}
	if merge {
		existing, ok := m.docs[path]
		if !ok {
			existing = docstore.Doc{}
		}
		for k, v := range doc {
			existing[k] = v
		}
		m.docs[path] = existing
		return nil
	}
	m.docs[path] = doc
	return nil
}

func (m *mockStore) Get(ctx context.Context, path string) (docstore.Doc, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failure != nil {
		return nil, m.failure
	}
	doc, ok := m.docs[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return doc, nil
}

func (m *mockStore) OrderedList(ctx context.Context, path, orderKey string, desc bool, limit int) ([]docstore.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failure != nil {
		return nil, m.failure
	}
	var out []docstore.Document
	for p, doc := range m.docs {
		dir, id, ok := splitDocPath(p)
		if !ok || dir != path {
			continue
		}
		out = append(out, docstore.Document{ID: id, Data: doc})
	}
	// Insertion-order independent sort on the order key.
	for i := range out {
		for j := i + 1; j < len(out); j++ {
			a, _ := out[i].Data[orderKey].(string)
			b, _ := out[j].Data[orderKey].(string)
			if (desc && b > a) || (!desc && b < a) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockStore) Delete(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failure != nil {
		return m.failure
	}
	for p := range m.docs {
		if p == path || strings.HasPrefix(p, path+"/") {
			delete(m.docs, p)
			m.deleted = append(m.deleted, p)
		}
	}
	return nil
}

func (m *mockStore) Increment(ctx context.Context, path, field string, delta int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failure != nil {
		return m.failure
	}
	doc, ok := m.docs[path]
	if !ok {
		return domain.ErrNotFound
	}
	cur, _ := doc[field].(int64)
	doc[field] = cur + delta
	return nil
}

func splitDocPath(p string) (dir, id string, ok bool) {
	idx := strings.LastIndex(p, "/")
	if idx < 0 {
		return "", "", false
	}
	return p[:idx], p[idx+1:], true
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newTestConversations(store docstore.Store) *ConversationService {
	s := NewConversationService(store, testLogger())
	base := time.Date(2026, time.May, 1, 10, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	n := 0
	s.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
	return s
}

func TestConversationCreate(t *testing.T) {
	store := newMockStore()
	svc := newTestConversations(store)

	first := strings.Repeat("q", 60)
	conv, err := svc.Create(context.Background(), "u1", first)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if conv.ID == "" {
		t.Fatal("empty conversation id")
	}
	if !strings.HasSuffix(conv.Title, "...") || len([]rune(conv.Title)) != 53 {
		t.Errorf("title = %q", conv.Title)
	}

	doc, err := store.Get(context.Background(), "users/u1/conversations/"+conv.ID)
	if err != nil {
		t.Fatalf("stored doc missing: %v", err)
	}
	if doc["owner"] != "u1" {
		t.Errorf("owner = %v", doc["owner"])
	}
	if doc["message_count"] != int64(0) {
		t.Errorf("message_count = %v", doc["message_count"])
	}
}

func TestConversationAppendMessage(t *testing.T) {
	store := newMockStore()
	svc := newTestConversations(store)
	ctx := context.Background()

	conv, err := svc.Create(ctx, "u1", "hello")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := svc.AppendMessage(ctx, "u1", conv.ID, chat.User("hello")); err != nil {
		t.Fatalf("AppendMessage user: %v", err)
	}
	reply := chat.Message{Role: chat.RoleAssistant, Content: "hi there", Reasoning: "greeting", Provider: chat.ProviderGrok}
	if err := svc.AppendMessage(ctx, "u1", conv.ID, reply); err != nil {
		t.Fatalf("AppendMessage assistant: %v", err)
	}

	meta, _ := store.Get(ctx, "users/u1/conversations/"+conv.ID)
	if meta["message_count"] != int64(2) {
		t.Errorf("message_count = %v, want 2", meta["message_count"])
	}
	if meta["last_message"] != "hi there" {
		t.Errorf("last_message = %v", meta["last_message"])
	}

	msgs, err := svc.Messages(ctx, "u1", conv.ID)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].Role != chat.RoleUser || msgs[1].Role != chat.RoleAssistant {
		t.Errorf("roles = %v, %v", msgs[0].Role, msgs[1].Role)
	}
	if msgs[1].Reasoning != "greeting" || msgs[1].Provider != chat.ProviderGrok {
		t.Errorf("assistant message = %+v", msgs[1])
	}
}

func TestConversationListOrdering(t *testing.T) {
	store := newMockStore()
	svc := newTestConversations(store)
	ctx := context.Background()

	older, _ := svc.Create(ctx, "u1", "first")
	newer, _ := svc.Create(ctx, "u1", "second")

	convs, err := svc.List(ctx, "u1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(convs) != 2 {
		t.Fatalf("got %d conversations, want 2", len(convs))
	}
	if convs[0].ID != newer.ID || convs[1].ID != older.ID {
		t.Errorf("order = [%s %s], want newest first", convs[0].ID, convs[1].ID)
	}
}

func TestConversationListScopedToOwner(t *testing.T) {
	store := newMockStore()
	svc := newTestConversations(store)
	ctx := context.Background()

	svc.Create(ctx, "u1", "mine")
	svc.Create(ctx, "u2", "theirs")

	convs, err := svc.List(ctx, "u1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(convs) != 1 || convs[0].Title != "mine" {
		t.Errorf("convs = %+v", convs)
	}
}

func TestConversationMessagesForeignID(t *testing.T) {
	store := newMockStore()
	svc := newTestConversations(store)
	ctx := context.Background()

	conv, _ := svc.Create(ctx, "u1", "hello")

	_, err := svc.Messages(ctx, "u2", conv.ID)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestConversationDeleteRecursive(t *testing.T) {
	store := newMockStore()
	svc := newTestConversations(store)
	ctx := context.Background()

	conv, _ := svc.Create(ctx, "u1", "hello")
	svc.AppendMessage(ctx, "u1", conv.ID, chat.User("hello"))

	if err := svc.Delete(ctx, "u1", conv.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(store.docs) != 0 {
		t.Errorf("%d documents remain after delete", len(store.docs))
	}

	if err := svc.Delete(ctx, "u1", conv.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
}

func TestConversationHistory(t *testing.T) {
	store := newMockStore()
	svc := newTestConversations(store)
	ctx := context.Background()

	conv, _ := svc.Create(ctx, "u1", "hello")
	svc.AppendMessage(ctx, "u1", conv.ID, chat.User("hello"))
	svc.AppendMessage(ctx, "u1", conv.ID, chat.Assistant("hi"))

	history, err := svc.History(ctx, "u1", conv.ID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 2 || history[0].Content != "hello" || history[1].Content != "hi" {
		t.Errorf("history = %+v", history)
	}
}

func TestConversationMessageOrderWithinSecond(t *testing.T) {
	store := newMockStore()
	svc := NewConversationService(store, testLogger())

	// Sub-second cadence where one fraction is a prefix of the other.
	stamps := []time.Time{
		time.Date(2026, time.May, 1, 10, 0, 0, 0, time.UTC),           // Create
		time.Date(2026, time.May, 1, 10, 0, 0, 500_000_000, time.UTC), // first append
		time.Date(2026, time.May, 1, 10, 0, 0, 520_000_000, time.UTC), // second append
	}
	i := 0
	svc.now = func() time.Time {
		ts := stamps[i]
		i++
		return ts
	}

	ctx := context.Background()
	conv, err := svc.Create(ctx, "u1", "hello")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := svc.AppendMessage(ctx, "u1", conv.ID, chat.User("earlier")); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	if err := svc.AppendMessage(ctx, "u1", conv.ID, chat.Assistant("later")); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	msgs, err := svc.Messages(ctx, "u1", conv.ID)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Content != "earlier" || msgs[1].Content != "later" {
		t.Errorf("order = %+v, want oldest first", msgs)
	}
	if !msgs[0].CreatedAt.Before(msgs[1].CreatedAt) {
		t.Errorf("timestamps = %v, %v", msgs[0].CreatedAt, msgs[1].CreatedAt)
	}
}
