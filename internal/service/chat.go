package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	fotel "github.com/flap-ai/flapd/internal/adapter/otel"
	"github.com/flap-ai/flapd/internal/domain"
	"github.com/flap-ai/flapd/internal/domain/chat"
	"github.com/flap-ai/flapd/internal/domain/search"
	"github.com/flap-ai/flapd/internal/port/provider"
)

// timeoutMessage is the client-facing text for an expired upstream deadline.
const timeoutMessage = "Request timed out, please try again"

// ChatService orchestrates a chat turn: provider selection, optional search
// agent routing, and conversation persistence. Persistence is best-effort and
// never blocks or fails the client-facing response.
type ChatService struct {
	registry      *provider.Registry
	agent         *SearchAgent
	conversations *ConversationService
	metrics       *fotel.Metrics
	logger        *slog.Logger
}

// NewChatService creates the orchestrator. agent may be nil when no
// tool-capable provider is configured; conversations may be nil when no
// document store is configured; metrics may be nil when telemetry is off.
func NewChatService(registry *provider.Registry, agent *SearchAgent, conversations *ConversationService, metrics *fotel.Metrics, logger *slog.Logger) *ChatService {
	return &ChatService{
		registry:      registry,
		agent:         agent,
		conversations: conversations,
		metrics:       metrics,
		logger:        logger,
	}
}

// Persistent reports whether conversation storage is active.
func (s *ChatService) Persistent() bool { return s.conversations != nil }

// Conversations exposes the store gateway for the conversation endpoints.
// Nil when storage is inactive.
func (s *ChatService) Conversations() *ConversationService { return s.conversations }

// Chat performs one non-streaming turn. Upstream failures come back as a
// structured response with Success=false, never as an error; only invalid
// input and the empty-registry case return an error.
func (s *ChatService) Chat(ctx context.Context, uid string, req chat.Request) (*chat.Response, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, domain.ErrValidation
	}

	p, err := s.registry.Pick()
	if err != nil {
		return nil, err
	}

	ctx, span := fotel.StartChatSpan(ctx, string(p.ID()), false)
	defer span.End()
	if s.metrics != nil {
		s.metrics.ChatRequests.Add(ctx, 1)
	}

	cid, history := s.resolveHistory(ctx, uid, req)
	msgs := append([]chat.Message{chat.System(systemPrompt)}, history...)
	msgs = append(msgs, chat.User(req.Message))

	// The user turn lands in the store before dispatch, so an upstream
	// failure never loses it.
	userPersisted := s.persistAsync(ctx, uid, cid, chat.User(req.Message), nil)

	resp := &chat.Response{Provider: p.ID()}
	if cid != "" {
		resp.ConversationID = &cid
	}

	var assistant chat.Message
	if s.agent != nil && req.WebSearch {
		result, err := s.agent.Respond(ctx, msgs)
		if err != nil {
			s.countFailure(ctx)
			resp.Error = clientError(err)
			return resp, nil
		}
		resp.Response = result.Response
		resp.Success = true
		resp.SearchPerformed = result.SearchPerformed
		resp.Sources = result.Sources
		assistant = chat.Message{Role: chat.RoleAssistant, Content: result.Response, Provider: s.agent.model.ID()}
		resp.Provider = s.agent.model.ID()
	} else {
		start := time.Now()
		completion, err := p.Complete(ctx, msgs)
		if s.metrics != nil {
			s.metrics.UpstreamLatency.Record(ctx, time.Since(start).Seconds())
		}
		if err != nil {
			s.countFailure(ctx)
			resp.Error = clientError(err)
			return resp, nil
		}
		resp.Response = completion.Text
		resp.Reasoning = completion.Reasoning
		resp.Success = true
		assistant = chat.Message{Role: chat.RoleAssistant, Content: completion.Text, Reasoning: completion.Reasoning, Provider: p.ID()}
	}

	s.persistAsync(ctx, uid, cid, assistant, userPersisted)
	return resp, nil
}

// ChatStream performs one streaming turn. The first event always announces
// the selected provider (and conversation id when storage is active); exactly
// one terminal event follows the deltas. Accumulated output is persisted even
// when the client disconnects mid-stream.
func (s *ChatService) ChatStream(ctx context.Context, uid string, req chat.Request) func(yield func(chat.StreamEvent) bool) {
	return func(yield func(chat.StreamEvent) bool) {
		if strings.TrimSpace(req.Message) == "" {
			yield(chat.ErrorEvent("message is required"))
			return
		}

		p, err := s.registry.Pick()
		if err != nil {
			yield(chat.ErrorEvent(clientError(err)))
			return
		}

		ctx, span := fotel.StartChatSpan(ctx, string(p.ID()), true)
		defer span.End()
		if s.metrics != nil {
			s.metrics.ChatRequests.Add(ctx, 1)
		}

		cid, history := s.resolveHistory(ctx, uid, req)
		msgs := append([]chat.Message{chat.System(systemPrompt)}, history...)
		msgs = append(msgs, chat.User(req.Message))

		userPersisted := s.persistAsync(ctx, uid, cid, chat.User(req.Message), nil)

		announce := chat.StreamEvent{Type: chat.EventProvider, Provider: p.ID()}
		if s.agent != nil && req.WebSearch {
			announce.Provider = s.agent.model.ID()
		}
		if cid != "" {
			announce.ConversationID = &cid
		}
		if !yield(announce) {
			return
		}

		var (
			content         strings.Builder
			reasoning       strings.Builder
			sources         []search.Result
			searchPerformed bool
			failed          bool
		)

		defer func() {
			if failed || content.Len() == 0 {
				return
			}
			assistant := chat.Message{
				Role:      chat.RoleAssistant,
				Content:   content.String(),
				Reasoning: reasoning.String(),
				Provider:  announce.Provider,
			}
			s.persistAsync(ctx, uid, cid, assistant, userPersisted)
		}()

		if s.agent != nil && req.WebSearch {
			for event := range s.agent.StreamRespond(ctx, msgs) {
				switch event.Type {
				case chat.EventContent:
					content.WriteString(event.Data)
				case chat.EventReasoning:
					reasoning.WriteString(event.Data)
				case chat.EventToolStart:
					searchPerformed = true
				case chat.EventToolEnd:
					sources = event.Sources
				case chat.EventError:
					failed = true
					s.countFailure(ctx)
				}
				s.countEvent(ctx)
				if !yield(event) {
					return
				}
				if event.Done {
					return
				}
			}
			yield(chat.DoneEvent(searchPerformed, sources))
			return
		}

		for delta, err := range p.Stream(ctx, msgs) {
			if err != nil {
				failed = true
				s.countFailure(ctx)
				yield(chat.ErrorEvent(clientError(err)))
				return
			}
			s.countEvent(ctx)
			switch delta.Kind {
			case provider.KindContent:
				content.WriteString(delta.Text)
				if !yield(chat.ContentEvent(delta.Text)) {
					return
				}
			case provider.KindReasoning:
				reasoning.WriteString(delta.Text)
				if !yield(chat.ReasoningEvent(delta.Text)) {
					return
				}
			case provider.KindDone:
				yield(chat.DoneEvent(false, nil))
				return
			}
		}
		yield(chat.DoneEvent(false, nil))
	}
}

// resolveHistory decides which prior turns precede the new message. With
// storage active the stored conversation wins over the request's inline
// history; an empty conversation id starts a fresh conversation. An explicit
// id that is not in the store never creates one: the turn runs on the inline
// history with persistence skipped.
func (s *ChatService) resolveHistory(ctx context.Context, uid string, req chat.Request) (string, []chat.Message) {
	if s.conversations == nil {
		return "", req.ConversationHistory
	}

	if req.ConversationID != "" {
		if !s.conversations.Exists(ctx, uid, req.ConversationID) {
			s.logger.Warn("unknown conversation id", "conversation_id", req.ConversationID)
			return "", req.ConversationHistory
		}
		history, err := s.conversations.History(ctx, uid, req.ConversationID)
		if err != nil {
			s.logger.Warn("history load failed", "conversation_id", req.ConversationID, "error", err)
			return req.ConversationID, req.ConversationHistory
		}
		return req.ConversationID, history
	}

	conv, err := s.conversations.Create(ctx, uid, req.Message)
	if err != nil {
		s.logger.Warn("conversation create failed", "error", err)
		return "", req.ConversationHistory
	}
	return conv.ID, req.ConversationHistory
}

// persistAsync appends one message in the background. The write deliberately
// outlives the request: a client disconnect must not lose the turn. The
// returned channel closes once the write has landed; passing it as after on a
// later call keeps the stored message order stable.
func (s *ChatService) persistAsync(ctx context.Context, uid, cid string, msg chat.Message, after <-chan struct{}) <-chan struct{} {
	if s.conversations == nil || cid == "" {
		return nil
	}

	done := make(chan struct{})
	detached := context.WithoutCancel(ctx)
	go func() {
		defer close(done)
		if after != nil {
			<-after
		}
		if err := s.conversations.AppendMessage(detached, uid, cid, msg); err != nil {
			s.logger.Error("persist message failed", "conversation_id", cid, "role", string(msg.Role), "error", err)
		}
	}()
	return done
}

func (s *ChatService) countFailure(ctx context.Context) {
	if s.metrics != nil {
		s.metrics.ChatFailures.Add(ctx, 1)
	}
}

func (s *ChatService) countEvent(ctx context.Context) {
	if s.metrics != nil {
		s.metrics.StreamEvents.Add(ctx, 1)
	}
}

// clientError maps an upstream failure to the string shown to the client.
func clientError(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return timeoutMessage
	case errors.Is(err, domain.ErrNoProvider):
		return "no chat provider configured"
	default:
		return err.Error()
	}
}
