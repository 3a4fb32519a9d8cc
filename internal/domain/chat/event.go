package chat

import "github.com/flap-ai/flapd/internal/domain/search"

// EventType discriminates the StreamEvent union. The set is closed: handlers
// and clients can switch over it exhaustively.
type EventType string

const (
	// EventProvider announces the selected provider and, when persistence is
	// active, the conversation id. Always the first event of a stream.
	EventProvider EventType = "provider"
	// EventContent carries an incremental fragment of assistant text.
	EventContent EventType = "content"
	// EventReasoning carries an incremental fragment of model reasoning.
	EventReasoning EventType = "reasoning"
	// EventToolStart announces a web-search invocation; Data holds the query.
	EventToolStart EventType = "tool_start"
	// EventToolEnd closes a web-search invocation; Sources holds every source
	// collected so far.
	EventToolEnd EventType = "tool_end"
	// EventError terminates the stream after an unrecovered failure.
	EventError EventType = "error"
	// EventDone terminates the stream normally.
	EventDone EventType = "done"
)

// StreamEvent is the normalized unit emitted to the client over SSE,
// regardless of which provider produced the underlying chunk. A stream is a
// sequence of these terminated by exactly one event with Done=true.
type StreamEvent struct {
	Type            EventType  `json:"type"`
	Data            string     `json:"data,omitempty"`
	Provider        ProviderID `json:"provider,omitempty"`
	ConversationID  *string    `json:"conversation_id,omitempty"`
	Sources         []search.Result `json:"sources,omitempty"`
	SearchPerformed bool       `json:"search_performed,omitempty"`
	Done            bool       `json:"done"`
}

// ContentEvent returns a content-delta event.
func ContentEvent(text string) StreamEvent {
	return StreamEvent{Type: EventContent, Data: text}
}

// ReasoningEvent returns a reasoning-delta event.
func ReasoningEvent(text string) StreamEvent {
	return StreamEvent{Type: EventReasoning, Data: text}
}

// ErrorEvent returns a terminal error event.
func ErrorEvent(msg string) StreamEvent {
	return StreamEvent{Type: EventError, Data: msg, Done: true}
}

// DoneEvent returns the terminal success event.
func DoneEvent(searchPerformed bool, sources []search.Result) StreamEvent {
	return StreamEvent{Type: EventDone, SearchPerformed: searchPerformed, Sources: sources, Done: true}
}
