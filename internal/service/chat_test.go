package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/flap-ai/flapd/internal/domain"
	"github.com/flap-ai/flapd/internal/domain/chat"
	"github.com/flap-ai/flapd/internal/domain/search"
	"github.com/flap-ai/flapd/internal/port/provider"
)

// scriptedProvider returns canned completions and deltas, recording the
// messages it was called with.
type scriptedProvider struct {
	id         chat.ProviderID
	completion *provider.Completion
	deltas     []provider.Delta
	err        error
	gotMsgs    []chat.Message
}

func (p *scriptedProvider) ID() chat.ProviderID { return p.id }

func (p *scriptedProvider) Complete(ctx context.Context, msgs []chat.Message) (*provider.Completion, error) {
	p.gotMsgs = msgs
	if p.err != nil {
		return nil, p.err
	}
	return p.completion, nil
}

func (p *scriptedProvider) Stream(ctx context.Context, msgs []chat.Message) provider.Stream {
	p.gotMsgs = msgs
	return func(yield func(provider.Delta, error) bool) {
		if p.err != nil {
			yield(provider.Delta{}, p.err)
			return
		}
		for _, d := range p.deltas {
			if !yield(d, nil) {
				return
			}
		}
	}
}

func newChatService(p provider.Provider, conversations *ConversationService) *ChatService {
	return NewChatService(provider.NewRegistry(p), nil, conversations, nil, testLogger())
}

func collectEvents(seq func(yield func(chat.StreamEvent) bool)) []chat.StreamEvent {
	var out []chat.StreamEvent
	for e := range seq {
		out = append(out, e)
	}
	return out
}

func TestChatEmptyMessage(t *testing.T) {
	svc := newChatService(&scriptedProvider{id: chat.ProviderGrok}, nil)
	_, err := svc.Chat(context.Background(), "u1", chat.Request{Message: "   "})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestChatNoProvider(t *testing.T) {
	svc := NewChatService(provider.NewRegistry(), nil, nil, nil, testLogger())
	_, err := svc.Chat(context.Background(), "u1", chat.Request{Message: "hi"})
	if !errors.Is(err, domain.ErrNoProvider) {
		t.Fatalf("err = %v, want ErrNoProvider", err)
	}
}

func TestChatSuccess(t *testing.T) {
	p := &scriptedProvider{
		id:         chat.ProviderGemini,
		completion: &provider.Completion{Text: "answer", Reasoning: "because"},
	}
	svc := newChatService(p, nil)

	resp, err := svc.Chat(context.Background(), "u1", chat.Request{
		Message:             "question",
		ConversationHistory: []chat.Message{chat.User("earlier"), chat.Assistant("reply")},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if !resp.Success || resp.Response != "answer" || resp.Reasoning != "because" {
		t.Errorf("resp = %+v", resp)
	}
	if resp.Provider != chat.ProviderGemini {
		t.Errorf("provider = %s", resp.Provider)
	}

	// System prompt, two history turns, then the new message.
	if len(p.gotMsgs) != 4 {
		t.Fatalf("provider got %d messages, want 4", len(p.gotMsgs))
	}
	if p.gotMsgs[0].Role != chat.RoleSystem {
		t.Errorf("first message role = %s", p.gotMsgs[0].Role)
	}
	if p.gotMsgs[3].Content != "question" {
		t.Errorf("last message = %+v", p.gotMsgs[3])
	}
}

func TestChatUpstreamFailureIsStructured(t *testing.T) {
	p := &scriptedProvider{
		id:  chat.ProviderGrok,
		err: &provider.UpstreamError{Provider: chat.ProviderGrok, Status: 500, Body: "boom"},
	}
	svc := newChatService(p, nil)

	resp, err := svc.Chat(context.Background(), "u1", chat.Request{Message: "hi"})
	if err != nil {
		t.Fatalf("upstream failure must not surface as error, got %v", err)
	}
	if resp.Success || resp.Error == "" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestChatTimeoutMessage(t *testing.T) {
	p := &scriptedProvider{id: chat.ProviderGrok, err: context.DeadlineExceeded}
	svc := newChatService(p, nil)

	resp, err := svc.Chat(context.Background(), "u1", chat.Request{Message: "hi"})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Error != timeoutMessage {
		t.Errorf("error = %q, want %q", resp.Error, timeoutMessage)
	}
}

func TestChatPersistsExchange(t *testing.T) {
	store := newMockStore()
	conversations := newTestConversations(store)
	p := &scriptedProvider{id: chat.ProviderOpenAI, completion: &provider.Completion{Text: "noted"}}
	svc := newChatService(p, conversations)

	resp, err := svc.Chat(context.Background(), "u1", chat.Request{Message: "remember this"})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.ConversationID == nil {
		t.Fatal("no conversation id on response")
	}

	cid := *resp.ConversationID
	deadline := time.Now().Add(time.Second)
	for {
		msgs, err := conversations.Messages(context.Background(), "u1", cid)
		if err == nil && len(msgs) == 2 {
			if msgs[0].Content != "remember this" || msgs[1].Content != "noted" {
				t.Errorf("persisted messages = %+v", msgs)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("exchange not persisted: msgs=%d err=%v", len(msgs), err)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestChatResumesStoredConversation(t *testing.T) {
	store := newMockStore()
	conversations := newTestConversations(store)
	ctx := context.Background()

	conv, _ := conversations.Create(ctx, "u1", "first question")
	conversations.AppendMessage(ctx, "u1", conv.ID, chat.User("first question"))
	conversations.AppendMessage(ctx, "u1", conv.ID, chat.Assistant("first answer"))

	p := &scriptedProvider{id: chat.ProviderOpenAI, completion: &provider.Completion{Text: "second answer"}}
	svc := newChatService(p, conversations)

	resp, err := svc.Chat(ctx, "u1", chat.Request{Message: "follow-up", ConversationID: conv.ID})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.ConversationID == nil || *resp.ConversationID != conv.ID {
		t.Errorf("conversation id = %v, want %s", resp.ConversationID, conv.ID)
	}

	// Stored history wins: system + 2 stored turns + new message.
	if len(p.gotMsgs) != 4 {
		t.Fatalf("provider got %d messages, want 4", len(p.gotMsgs))
	}
	if p.gotMsgs[1].Content != "first question" || p.gotMsgs[2].Content != "first answer" {
		t.Errorf("history = %+v", p.gotMsgs[1:3])
	}
}

func TestChatStreamEventOrder(t *testing.T) {
	p := &scriptedProvider{
		id: chat.ProviderGrok,
		deltas: []provider.Delta{
			{Kind: provider.KindReasoning, Text: "thinking"},
			{Kind: provider.KindContent, Text: "Hel"},
			{Kind: provider.KindContent, Text: "lo"},
			{Kind: provider.KindDone},
		},
	}
	svc := newChatService(p, nil)

	events := collectEvents(svc.ChatStream(context.Background(), "u1", chat.Request{Message: "hi"}))
	if len(events) != 5 {
		t.Fatalf("got %d events: %+v", len(events), events)
	}
	if events[0].Type != chat.EventProvider || events[0].Provider != chat.ProviderGrok {
		t.Errorf("first event = %+v", events[0])
	}
	if events[1].Type != chat.EventReasoning || events[1].Data != "thinking" {
		t.Errorf("reasoning event = %+v", events[1])
	}
	var text strings.Builder
	for _, e := range events {
		if e.Type == chat.EventContent {
			text.WriteString(e.Data)
		}
	}
	if text.String() != "Hello" {
		t.Errorf("content = %q", text.String())
	}
	last := events[len(events)-1]
	if last.Type != chat.EventDone || !last.Done {
		t.Errorf("last event = %+v", last)
	}
}

func TestChatStreamEmptyMessage(t *testing.T) {
	svc := newChatService(&scriptedProvider{id: chat.ProviderGrok}, nil)
	events := collectEvents(svc.ChatStream(context.Background(), "u1", chat.Request{Message: ""}))
	if len(events) != 1 || events[0].Type != chat.EventError || !events[0].Done {
		t.Fatalf("events = %+v", events)
	}
}

func TestChatStreamUpstreamError(t *testing.T) {
	p := &scriptedProvider{
		id:  chat.ProviderGrok,
		err: &provider.UpstreamError{Provider: chat.ProviderGrok, Status: 429, Body: "slow down"},
	}
	svc := newChatService(p, nil)

	events := collectEvents(svc.ChatStream(context.Background(), "u1", chat.Request{Message: "hi"}))
	last := events[len(events)-1]
	if last.Type != chat.EventError || !last.Done {
		t.Fatalf("last event = %+v", last)
	}
	if !strings.Contains(last.Data, "429") {
		t.Errorf("error data = %q", last.Data)
	}
}

func TestChatStreamPersistsOnDisconnect(t *testing.T) {
	store := newMockStore()
	conversations := newTestConversations(store)
	p := &scriptedProvider{
		id: chat.ProviderGrok,
		deltas: []provider.Delta{
			{Kind: provider.KindContent, Text: "partial"},
			{Kind: provider.KindContent, Text: " answer"},
			{Kind: provider.KindDone},
		},
	}
	svc := newChatService(p, conversations)

	// Client goes away after the first content event.
	var cid string
	seen := 0
	for e := range svc.ChatStream(context.Background(), "u1", chat.Request{Message: "hi"}) {
		if e.ConversationID != nil {
			cid = *e.ConversationID
		}
		if e.Type == chat.EventContent {
			seen++
			break
		}
	}
	if seen != 1 || cid == "" {
		t.Fatalf("seen=%d cid=%q", seen, cid)
	}

	deadline := time.Now().Add(time.Second)
	for {
		msgs, err := conversations.Messages(context.Background(), "u1", cid)
		if err == nil && len(msgs) == 2 {
			if msgs[1].Content != "partial" {
				t.Errorf("persisted assistant content = %q", msgs[1].Content)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("partial exchange not persisted: msgs=%d err=%v", len(msgs), err)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestChatUnknownConversationIDDoesNotCreate(t *testing.T) {
	store := newMockStore()
	conversations := newTestConversations(store)
	p := &scriptedProvider{id: chat.ProviderOpenAI, completion: &provider.Completion{Text: "ok"}}
	svc := newChatService(p, conversations)

	resp, err := svc.Chat(context.Background(), "u1", chat.Request{
		Message:        "hi",
		ConversationID: "ghost-id",
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if !resp.Success {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.ConversationID != nil {
		t.Errorf("conversation id = %q, want none", *resp.ConversationID)
	}
	if len(store.created) != 0 {
		t.Errorf("store writes = %v, want none", store.created)
	}
}

func TestChatPersistsUserTurnOnUpstreamFailure(t *testing.T) {
	store := newMockStore()
	conversations := newTestConversations(store)
	p := &scriptedProvider{id: chat.ProviderGrok, err: context.DeadlineExceeded}
	svc := newChatService(p, conversations)

	resp, err := svc.Chat(context.Background(), "u1", chat.Request{Message: "still here?"})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Success || resp.ConversationID == nil {
		t.Fatalf("resp = %+v", resp)
	}

	cid := *resp.ConversationID
	deadline := time.Now().Add(time.Second)
	for {
		msgs, err := conversations.Messages(context.Background(), "u1", cid)
		if err == nil && len(msgs) == 1 {
			if msgs[0].Role != chat.RoleUser || msgs[0].Content != "still here?" {
				t.Errorf("persisted message = %+v", msgs[0])
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("user turn not persisted: msgs=%d err=%v", len(msgs), err)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestChatSearchResponseCarriesSources(t *testing.T) {
	model := &toolModel{turns: []toolScript{
		toolCallTurn("call_1", "web_search", `{"query":"flu shots"}`),
		answerTurn("Get one every fall."),
	}}
	model.id = chat.ProviderOpenAI
	engine := &fixedEngine{results: []search.Result{
		{Title: "Flu shots", Snippet: "Annual vaccination guidance.", URL: "https://health.example/flu"},
	}}
	agent := newTestAgent(model, engine)
	svc := NewChatService(provider.NewRegistry(model), agent, nil, nil, testLogger())

	resp, err := svc.Chat(context.Background(), "u1", chat.Request{Message: "flu shot timing?", WebSearch: true})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if !resp.Success || !resp.SearchPerformed {
		t.Fatalf("resp = %+v", resp)
	}
	if len(resp.Sources) != 1 || resp.Sources[0].URL != "https://health.example/flu" {
		t.Errorf("sources = %+v", resp.Sources)
	}
}
